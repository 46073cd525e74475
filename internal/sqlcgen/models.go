package sqlcgen

import "time"

type User struct {
	ID                string
	Name              string
	Phone             string
	Description       string
	Latitude          *float64
	Longitude         *float64
	LocationUpdatedAt *time.Time
	CreatedAt         time.Time
	IsActive          bool
	LastSeenAt        time.Time
}

type RecentUser struct {
	OwnerID           string
	UserID            string
	Name              string
	Phone             string
	Description       string
	Latitude          float64
	Longitude         float64
	LocationUpdatedAt time.Time
	IsActive          bool
	CreatedAt         time.Time
	DistanceM         float64
	LastSeen          time.Time
}
