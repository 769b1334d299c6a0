package allocation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/Gustavohsdd/araujo-ptc/internal/platform/httpx"
)

// Handler exposes allocation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate

	// Concurrent previews of the same invoice collapse into one
	// computation; the result is transient state, so sharing is safe.
	previews singleflight.Group
}

// NewHandler builds the allocation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/{accessKey}/preview", h.preview)
	r.Get("/invoices/{accessKey}/payables", h.payables)
	r.Post("/finalize", h.finalize)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	accessKey := chi.URLParam(r, "accessKey")
	result, err, _ := h.previews.Do(accessKey, func() (interface{}, error) {
		return h.service.Preview(context.WithoutCancel(r.Context()), accessKey)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) payables(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Payables(r.Context(), chi.URLParam(r, "accessKey"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payables": rows})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	var input FinalizeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Finalize(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
