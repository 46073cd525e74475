// Package proximity computes which active users are near a viewer.
package proximity

import (
	"sort"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
)

// Nearby is one user within the search radius of a viewer. InView is set when
// the user is also within the view radius.
type Nearby struct {
	User           models.User
	DistanceMeters float64
	InView         bool
}

// Filter keeps the active users, other than viewerID, whose location lies within
// radiusMeters of origin. Results are ordered by distance, then id.
func Filter(viewerID string, origin geo.Point, users []models.User, radiusMeters, viewRadiusMeters float64) []Nearby {
	out := make([]Nearby, 0, len(users))
	for _, u := range users {
		if u.ID == viewerID || !u.IsActive || !u.HasLocation() {
			continue
		}
		d := geo.Distance(origin, geo.Point{Lat: u.Location.Latitude, Lon: u.Location.Longitude})
		if d > radiusMeters {
			continue
		}
		out = append(out, Nearby{User: u, DistanceMeters: d, InView: d <= viewRadiusMeters})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].User.ID < out[j].User.ID
	})
	return out
}
