package httpapi

import (
	"time"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/proximity"
	"nearby/core-go/internal/social"
)

type location struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated time.Time `json:"last_updated"`
}

type user struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Description string    `json:"description"`
	Location    *location `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

type nearbyUser struct {
	User           user    `json:"user"`
	DistanceMeters float64 `json:"distance_meters"`
	Distance       string  `json:"distance"`
	InView         bool    `json:"in_view"`
}

type nearbySnapshot struct {
	Origin       geo.Point    `json:"origin"`
	RadiusMeters float64      `json:"radius_meters"`
	Users        []nearbyUser `json:"users"`
	ComputedAt   time.Time    `json:"computed_at"`
}

type recentUser struct {
	User           user      `json:"user"`
	LastSeen       time.Time `json:"last_seen"`
	DistanceMeters float64   `json:"distance_meters"`
	Distance       string    `json:"distance"`
	IsFriend       bool      `json:"is_friend"`
}

type sessionUpdate struct {
	State string `json:"state"`
}

type locationUpdate struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type viewRequest struct {
	Origin *geo.Point `json:"origin,omitempty"`
}

func toUser(u models.User) user {
	out := user{
		ID:          u.ID,
		Name:        u.Name,
		Phone:       u.Phone,
		Description: u.Description,
		CreatedAt:   u.CreatedAt,
		IsActive:    u.IsActive,
		LastSeenAt:  u.LastSeenAt,
	}
	if u.Location != nil {
		out.Location = &location{
			Latitude:    u.Location.Latitude,
			Longitude:   u.Location.Longitude,
			LastUpdated: u.Location.LastUpdated,
		}
	}
	return out
}

func toUsers(in []models.User) []user {
	out := make([]user, 0, len(in))
	for _, u := range in {
		out = append(out, toUser(u))
	}
	return out
}

func toNearbySnapshot(s proximity.Snapshot) nearbySnapshot {
	out := nearbySnapshot{
		Origin:       s.Origin,
		RadiusMeters: s.RadiusMeters,
		Users:        make([]nearbyUser, 0, len(s.Users)),
		ComputedAt:   s.ComputedAt,
	}
	for _, n := range s.Users {
		out.Users = append(out.Users, nearbyUser{
			User:           toUser(n.User),
			DistanceMeters: n.DistanceMeters,
			Distance:       geo.FormatDistance(n.DistanceMeters),
			InView:         n.InView,
		})
	}
	return out
}

func toRecentUser(r models.RecentUser, isFriend bool) recentUser {
	return recentUser{
		User:           toUser(r.User),
		LastSeen:       r.LastSeen,
		DistanceMeters: r.DistanceMeters,
		Distance:       geo.FormatDistance(r.DistanceMeters),
		IsFriend:       isFriend,
	}
}

func toRecentUsers(in []social.RecentEntry) []recentUser {
	out := make([]recentUser, 0, len(in))
	for _, r := range in {
		out = append(out, toRecentUser(r.RecentUser, r.IsFriend))
	}
	return out
}
