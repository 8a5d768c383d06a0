// Package server exposes the HTTP surface: the unauthenticated webhook
// intake plus the synchronous collection side channels.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"kore-service/internal/collection"
	"kore-service/internal/db"
	"kore-service/internal/webhook"
)

// Signature headers checked in priority order; first present value wins.
var signatureHeaders = []string{"Signature", "X-Kore-Signature", "X-Signature"}

const maxBodyBytes = 1 << 20

type Handler struct {
	webhooks    *webhook.Service
	collections *collection.Service
	logger      *slog.Logger
}

func NewHandler(webhooks *webhook.Service, collections *collection.Service, logger *slog.Logger) *Handler {
	return &Handler{
		webhooks:    webhooks,
		collections: collections,
		logger:      logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /webhooks/{provider}", h.receiveWebhook)
	mux.HandleFunc("POST /collections/{id}/validate", h.validateCollection)
	mux.HandleFunc("POST /collections/{id}/query", h.queryCollection)
	mux.HandleFunc("POST /collections/{id}/override", h.overrideCollection)
}

// receiveWebhook accepts unauthenticated provider traffic and answers 200
// for every delivery, including malformed payloads and internal errors.
// Failures are recorded on the stored event, never surfaced over HTTP,
// so the provider's retry logic cannot amplify load.
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error reading webhook body", "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	var signature string
	for _, header := range signatureHeaders {
		if v := r.Header.Get(header); v != "" {
			signature = v
			break
		}
	}

	event, err := h.webhooks.Receive(r.Context(), providerName, body, signature)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error receiving webhook", "provider", providerName, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     event.ID.String(),
		"status": event.Status,
	})
}

func (h *Handler) validateCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.collectionID(w, r)
	if !ok {
		return
	}

	var body struct {
		OTP string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	entity, err := h.collections.Validate(r.Context(), id, body.OTP)
	if err != nil {
		h.writeCollectionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, collectionResponse(entity))
}

func (h *Handler) queryCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.collectionID(w, r)
	if !ok {
		return
	}

	entity, err := h.collections.QueryStatus(r.Context(), id)
	if err != nil {
		h.writeCollectionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, collectionResponse(entity))
}

func (h *Handler) overrideCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.collectionID(w, r)
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	entity, err := h.collections.OverrideStatus(r.Context(), id, body.Status)
	if err != nil {
		h.writeCollectionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, collectionResponse(entity))
}

func (h *Handler) collectionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid collection id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeCollectionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, collection.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "collection not found"})
	case errors.Is(err, collection.ErrValidationNotRequired):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.ErrorContext(r.Context(), "Error handling collection request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

type collectionBody struct {
	ID              string  `json:"id"`
	RequestRef      string  `json:"requestRef"`
	ProviderRef     *string `json:"providerRef,omitempty"`
	Status          string  `json:"status"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	NeedsValidation bool    `json:"needsValidation"`
}

func collectionResponse(entity *db.CollectionEntity) collectionBody {
	return collectionBody{
		ID:              entity.ID.String(),
		RequestRef:      entity.RequestRef,
		ProviderRef:     entity.ProviderRef,
		Status:          entity.Status,
		Amount:          entity.Amount,
		Currency:        entity.Currency,
		NeedsValidation: entity.NeedsValidation,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
