package store

import (
	"context"
	"time"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
)

// Store is the full persistence contract. Services depend on narrower interfaces.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByPhone(ctx context.Context, phone string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, id string, p models.Profile) (models.User, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) (models.User, error)
	UpdateLocation(ctx context.Context, id string, loc models.Location) (models.User, error)
	ListActiveNear(ctx context.Context, center geo.Point, radiusMeters float64) ([]models.User, error)
	// MarkStaleInactive deactivates active users last seen before cutoff, except the
	// ids in keep, and returns the ids it changed.
	MarkStaleInactive(ctx context.Context, cutoff time.Time, keep []string) ([]string, error)

	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
	UpsertRecentUser(ctx context.Context, ownerID string, r models.RecentUser) (models.RecentUser, error)
	ListRecentUsers(ctx context.Context, ownerID string) ([]models.RecentUser, error)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
