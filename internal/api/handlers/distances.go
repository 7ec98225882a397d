package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"property-distance-service/internal/api/dto"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/validation"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DistanceQuerier is the slice of the distance service the handlers use.
type DistanceQuerier interface {
	GetDistance(ctx context.Context, a, b int64, mode domain.TravelMode) (domain.Distance, error)
	GetDistancesToMany(ctx context.Context, a int64, bs []int64, mode domain.TravelMode) ([]domain.Distance, error)
}

const (
	defaultMaxBatchSize = 100
	maxBatchBodyBytes   = 1 << 20
)

type DistanceHandler struct {
	Service      DistanceQuerier
	MaxBatchSize int
}

// Get answers one property -> point of interest query.
func (h *DistanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	propertyID, okA := parseID(chi.URLParam(r, "propertyId"))
	poiID, okB := parseID(chi.URLParam(r, "poiId"))
	if !okA || !okB {
		writeError(w, r, http.StatusBadRequest, "Invalid property ID or POI ID")
		return
	}

	mode, err := domain.ParseTravelMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, `Mode must be either "walking" or "driving"`)
		return
	}

	d, err := h.Service.GetDistance(r.Context(), propertyID, poiID, mode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.DistanceEnvelope{Data: toResponse(d)})
}

// Batch answers one property -> many points of interest. Entries that
// cannot be computed are left out of the response.
func (h *DistanceHandler) Batch(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parseID(chi.URLParam(r, "propertyId"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid property ID")
		return
	}

	mode, err := domain.ParseTravelMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, `Mode must be either "walking" or "driving"`)
		return
	}

	var req dto.BatchDistanceRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes))
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "POI IDs must be provided as an array of positive integers")
		return
	}

	maxBatch := h.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchSize
	}
	if len(req.PoiIDs) > maxBatch {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("at most %d POI IDs per request", maxBatch))
		return
	}

	ds, err := h.Service.GetDistancesToMany(r.Context(), propertyID, req.PoiIDs, mode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]dto.DistanceResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toResponse(d))
	}
	writeJSON(w, r, http.StatusOK, dto.DistanceListEnvelope{Data: out})
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toResponse(d domain.Distance) dto.DistanceResponse {
	return dto.DistanceResponse{
		PropertyID:        d.EntityAID,
		PoiID:             d.EntityBID,
		Mode:              d.Mode.String(),
		DistanceMeters:    d.DistanceMeters,
		TimeSeconds:       d.TimeSeconds,
		FormattedDistance: domain.FormatDistance(d.DistanceMeters),
		FormattedTime:     domain.FormatDuration(d.TimeSeconds),
		Estimated:         d.Estimated,
		Cached:            d.Cached,
	}
}

// writeServiceError maps domain error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidMode):
		writeError(w, r, http.StatusBadRequest, `Mode must be either "walking" or "driving"`)
	case errors.Is(err, domain.ErrEntityNotFound):
		writeError(w, r, http.StatusNotFound, "Property or POI not found")
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "distance provider unavailable")
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the body
		w.WriteHeader(499)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("distance request failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
