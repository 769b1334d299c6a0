package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Gustavohsdd/araujo-ptc/internal/platform/httpx"
)

// Handler exposes purchase-order read endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.listOpenOrders)
	r.Get("/orders/{orderID}/lines", h.orderLines)
}

func (h *Handler) listOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOpenOrders(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) orderLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.GetOrderLines(r.Context(), chi.URLParam(r, "orderID"), r.URL.Query().Get("supplier"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}
