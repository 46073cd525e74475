// Package models holds the types shared by the store, the services and the HTTP API.
package models

import "time"

// Location is the last sampled device position of a user.
type Location struct {
	Latitude    float64
	Longitude   float64
	LastUpdated time.Time
}

// User is a registered participant. Location is nil until the first sample arrives.
type User struct {
	ID          string
	Name        string
	Phone       string
	Description string
	Location    *Location
	CreatedAt   time.Time
	IsActive    bool
	LastSeenAt  time.Time
}

// HasLocation reports whether the user has ever reported a position.
func (u User) HasLocation() bool {
	return u.Location != nil
}

// Profile holds the user-editable fields.
type Profile struct {
	Name        string
	Phone       string
	Description string
}

// NewUser is the input of a registration.
type NewUser struct {
	Profile
	Location Location
}

// RecentUser is a snapshot of a user taken when the owner looked at them.
type RecentUser struct {
	User
	LastSeen       time.Time
	DistanceMeters float64
}
