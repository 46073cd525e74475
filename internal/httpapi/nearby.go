package httpapi

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/proximity"
)

// parseNearbyQuery reads ?radius=&lat=&lon=. lat and lon go together.
func parseNearbyQuery(v url.Values) (proximity.Query, error) {
	var (
		q      proximity.Query
		fields []models.FieldError
	)

	if raw := v.Get("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			fields = append(fields, models.FieldError{Field: "radius", Message: "must be a positive number of meters"})
		} else {
			q.RadiusMeters = radius
		}
	}

	rawLat, rawLon := v.Get("lat"), v.Get("lon")
	switch {
	case rawLat == "" && rawLon == "":
	case rawLat == "" || rawLon == "":
		fields = append(fields, models.FieldError{Field: "origin", Message: "lat and lon must be given together"})
	default:
		lat, errLat := strconv.ParseFloat(rawLat, 64)
		lon, errLon := strconv.ParseFloat(rawLon, 64)
		if errLat != nil || errLon != nil || !geo.Valid(geo.Point{Lat: lat, Lon: lon}) {
			fields = append(fields, models.FieldError{Field: "origin", Message: "is not a valid coordinate"})
		} else {
			q.Origin = &geo.Point{Lat: lat, Lon: lon}
		}
	}

	if len(fields) > 0 {
		return proximity.Query{}, models.NewValidationError(fields...)
	}
	return q, nil
}

func (h *Handler) handleNearby(w http.ResponseWriter, r *http.Request) {
	q, err := parseNearbyQuery(r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, err, "list nearby users")
		return
	}
	if h.deps.Proximity == nil {
		h.writeUnavailable(w, "proximity")
		return
	}

	snap, err := h.deps.Proximity.Nearby(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		h.writeServiceError(w, r, err, "list nearby users")
		return
	}
	h.writeJSON(w, http.StatusOK, toNearbySnapshot(snap))
}

func (h *Handler) handleNearbyStream(w http.ResponseWriter, r *http.Request) {
	q, err := parseNearbyQuery(r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, err, "stream nearby users")
		return
	}
	if h.deps.Proximity == nil {
		h.writeUnavailable(w, "proximity")
		return
	}

	snapshots, err := h.deps.Proximity.Watch(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		h.writeServiceError(w, r, err, "stream nearby users")
		return
	}

	stream, ok := h.startStream(w)
	if !ok {
		return
	}
	streamEvents(r.Context(), stream, "nearby", snapshots, func(s proximity.Snapshot) any { return toNearbySnapshot(s) })
}
