package allocation

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	handler := NewHandler(slog.Default(), newTestService(repo))
	r := chi.NewRouter()
	r.Route("/allocation", handler.MountRoutes)
	return r
}

func TestHandlerPreviewReturnsState(t *testing.T) {
	repo := newMemoryRepo()
	repo.rules["FARINHA-25"] = []Rule{{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100}}
	repo.rules["ACUCAR-30"] = []Rule{{ItemKey: "ACUCAR-30", Sector: "Padaria", Percentage: 100}}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/allocation/invoices/"+testKey+"/preview", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalsBySector"`)
	require.Contains(t, rec.Body.String(), `"Padaria"`)
}

func TestHandlerPreviewUnknownInvoice(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/allocation/invoices/99999999999999999999999999999999999999999999/preview", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerFinalizeRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/allocation/finalize", strings.NewReader("{nope"))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerFinalizeRejectsShortAccessKey(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/allocation/finalize", strings.NewReader(`{"accessKey":"123"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerFinalizeCommits(t *testing.T) {
	repo := newMemoryRepo()
	repo.rules["FARINHA-25"] = []Rule{{ItemKey: "FARINHA-25", Sector: "Padaria", Percentage: 100}}
	repo.rules["ACUCAR-30"] = []Rule{{ItemKey: "ACUCAR-30", Sector: "Padaria", Percentage: 100}}
	router := newTestRouter(repo)

	body := `{"accessKey":"` + testKey + `","sectorTotals":{"Padaria":110}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/allocation/finalize", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.payables[testKey], 1)
}
