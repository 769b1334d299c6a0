package ingest

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Gustavohsdd/araujo-ptc/internal/nfe"
	"github.com/Gustavohsdd/araujo-ptc/internal/platform/httpx"
	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// Handler exposes ingestion endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the ingestion handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ingestion routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/batches", h.ingestBatch)
	r.Put("/invoices/{accessKey}", h.reingest)
}

type batchDocumentRequest struct {
	DocumentName           string `json:"documentName" validate:"required"`
	RawDocumentBytesBase64 string `json:"rawDocumentBytesBase64" validate:"required"`
}

type batchRequest struct {
	Documents []batchDocumentRequest `json:"documents" validate:"required,min=1,dive"`
}

type batchResponse struct {
	Success bool `json:"success"`
	BatchResult
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	// Undecodable payloads are per-document failures, same as parse errors.
	docs := make([]Document, 0, len(req.Documents))
	badPayloads := 0
	for _, d := range req.Documents {
		raw, err := base64.StdEncoding.DecodeString(d.RawDocumentBytesBase64)
		if err != nil {
			badPayloads++
			h.logger.Warn("document payload not base64", slog.String("document", d.DocumentName))
			continue
		}
		docs = append(docs, Document{Name: d.DocumentName, Content: raw})
	}

	var result BatchResult
	if len(docs) > 0 {
		var err error
		result, err = h.service.IngestBatch(r.Context(), docs)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	result.Errored += badPayloads
	if result.Message == "" {
		result.Message = "no decodable documents in batch"
	}
	httpx.JSON(w, http.StatusOK, batchResponse{Success: true, BatchResult: result})
}

type reingestRequest struct {
	DocumentName           string `json:"documentName" validate:"required"`
	RawDocumentBytesBase64 string `json:"rawDocumentBytesBase64" validate:"required"`
}

func (h *Handler) reingest(w http.ResponseWriter, r *http.Request) {
	accessKey := chi.URLParam(r, "accessKey")
	var req reingestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.RawDocumentBytesBase64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "document payload is not base64")
		return
	}
	if err := h.service.Reingest(r.Context(), accessKey, Document{Name: req.DocumentName, Content: raw}); err != nil {
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, nfe.ErrParse) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "invoice replaced"})
}
