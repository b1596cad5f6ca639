package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/saviobatista/vessel-tracker/internal/logging"
	"github.com/saviobatista/vessel-tracker/internal/metrics"
	"github.com/saviobatista/vessel-tracker/internal/parser"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

// MaxUploadBytes bounds the size of a device upload body
const MaxUploadBytes = 64 << 10

// SourceHTTP labels samples uploaded over HTTP
const SourceHTTP = "http"

const internalServerError = "Internal server error"

type uploadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// UploadBoatInfo accepts one telemetry sample from the device
func (h *Handler) UploadBoatInfo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		h.stats.IncrementRejectedPayloads()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondJSON(w, r, http.StatusRequestEntityTooLarge, uploadResponse{Success: false, Error: "Request body too large"})
			return
		}
		respondJSON(w, r, http.StatusBadRequest, uploadResponse{Success: false, Error: "Invalid request body"})
		return
	}

	raw, err := parser.ParseBody(r.Header.Get("Content-Type"), body)
	if err != nil {
		h.stats.IncrementRejectedPayloads()
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Rejected upload")
		respondJSON(w, r, http.StatusBadRequest, uploadResponse{Success: false, Error: "Invalid request body"})
		return
	}

	if h.recorder != nil {
		msg := &types.TelemetryMessage{Payload: body, Source: SourceHTTP, ReceivedAt: time.Now().UTC()}
		if err := h.recorder.Record(msg); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to archive upload")
		}
	}

	err = h.ingester.Ingest(r.Context(), raw)
	metrics.RecordIngest(SourceHTTP, err)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Error saving boat info")
		respondJSON(w, r, http.StatusInternalServerError, uploadResponse{Success: false, Error: internalServerError})
		return
	}

	respondJSON(w, r, http.StatusOK, uploadResponse{Success: true})
}

// Boat returns the latest snapshot of the vessel
func (h *Handler) Boat(w http.ResponseWriter, r *http.Request) {
	view, err := h.querier.Latest(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Error fetching boat info")
		respondJSON(w, r, http.StatusInternalServerError, errorResponse{Error: internalServerError})
		return
	}
	respondJSON(w, r, http.StatusOK, view)
}

// BoatHistory returns the most recent history entries. A missing or
// unparseable limit selects the default window.
func (h *Handler) BoatHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = 0
	}

	page, err := h.querier.History(r.Context(), limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Error fetching boat history")
		respondJSON(w, r, http.StatusInternalServerError, errorResponse{Error: internalServerError})
		return
	}
	respondJSON(w, r, http.StatusOK, page)
}

// Health reports process liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}
