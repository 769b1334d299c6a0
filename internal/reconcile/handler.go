package reconcile

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Gustavohsdd/araujo-ptc/internal/platform/httpx"
)

// Handler exposes reconciliation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the reconciliation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.preview)
	r.Post("/match", h.match)
	r.Post("/mappings", h.createMapping)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeMatchInput(w, r)
	if !ok {
		return
	}
	result, err := h.service.Preview(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeMatchInput(w, r)
	if !ok {
		return
	}
	result, err := h.service.Match(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "order reconciled",
		"result":  result,
	})
}

type createMappingRequest struct {
	Description string `json:"description" validate:"required"`
	ItemKey     string `json:"itemKey" validate:"required"`
}

func (h *Handler) createMapping(w http.ResponseWriter, r *http.Request) {
	var req createMappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.CreateMapping(r.Context(), req.Description, req.ItemKey); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "message": "mapping stored"})
}

func (h *Handler) decodeMatchInput(w http.ResponseWriter, r *http.Request) (MatchInput, bool) {
	var input MatchInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return MatchInput{}, false
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return MatchInput{}, false
	}
	return input, true
}
