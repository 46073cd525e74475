package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/sqlcgen"
)

// Queries is the subset of *sqlcgen.Queries the Postgres store uses.
type Queries interface {
	CreateUser(ctx context.Context, arg sqlcgen.CreateUserParams) (sqlcgen.User, error)
	GetUser(ctx context.Context, id string) (sqlcgen.User, error)
	FindUserByPhone(ctx context.Context, phone string) (sqlcgen.User, error)
	ListUsers(ctx context.Context) ([]sqlcgen.User, error)
	ListActiveUsersInBox(ctx context.Context, arg sqlcgen.ListActiveUsersInBoxParams) ([]sqlcgen.User, error)
	UpdateUserProfile(ctx context.Context, arg sqlcgen.UpdateUserProfileParams) (sqlcgen.User, error)
	SetUserActive(ctx context.Context, arg sqlcgen.SetUserActiveParams) (sqlcgen.User, error)
	UpdateUserLocation(ctx context.Context, arg sqlcgen.UpdateUserLocationParams) (sqlcgen.User, error)
	MarkStaleUsersInactive(ctx context.Context, arg sqlcgen.MarkStaleUsersInactiveParams) ([]string, error)
	InsertFriend(ctx context.Context, arg sqlcgen.FriendParams) error
	DeleteFriend(ctx context.Context, arg sqlcgen.FriendParams) error
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
	UpsertRecentUser(ctx context.Context, arg sqlcgen.RecentUser) (sqlcgen.RecentUser, error)
	ListRecentUsers(ctx context.Context, ownerID string) ([]sqlcgen.RecentUser, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Postgres struct {
	q    Queries
	ping Pinger
}

func NewPostgres(q Queries, ping Pinger) *Postgres {
	return &Postgres{q: q, ping: ping}
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.ping == nil {
		return nil
	}
	return p.ping.Ping(ctx)
}

func (p *Postgres) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	arg := sqlcgen.CreateUserParams{
		Name:        u.Name,
		Phone:       u.Phone,
		Description: u.Description,
		CreatedAt:   u.CreatedAt,
	}
	if u.Location != nil {
		arg.Latitude = u.Location.Latitude
		arg.Longitude = u.Location.Longitude
		arg.LocationUpdatedAt = u.Location.LastUpdated
	}
	row, err := p.q.CreateUser(ctx, arg)
	if err != nil {
		return models.User{}, mapError(err)
	}
	return toUser(row), nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (models.User, error) {
	row, err := p.q.GetUser(ctx, id)
	if err != nil {
		return models.User{}, mapError(err)
	}
	return toUser(row), nil
}

func (p *Postgres) FindUserByPhone(ctx context.Context, phone string) (models.User, error) {
	row, err := p.q.FindUserByPhone(ctx, phone)
	if err != nil {
		return models.User{}, mapError(err)
	}
	return toUser(row), nil
}

func (p *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := p.q.ListUsers(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return toUsers(rows), nil
}

func (p *Postgres) UpdateProfile(ctx context.Context, id string, pr models.Profile) (models.User, error) {
	row, err := p.q.UpdateUserProfile(ctx, sqlcgen.UpdateUserProfileParams{
		ID:          id,
		Name:        pr.Name,
		Phone:       pr.Phone,
		Description: pr.Description,
	})
	if err != nil {
		return models.User{}, mapError(err)
	}
	return toUser(row), nil
}

func (p *Postgres) SetActive(ctx context.Context, id string, active bool, at time.Time) (models.User, error) {
	row, err := p.q.SetUserActive(ctx, sqlcgen.SetUserActiveParams{ID: id, IsActive: active, SeenAt: at})
	if err != nil {
		return models.User{}, mapError(err)
	}
	return toUser(row), nil
}

func (p *Postgres) UpdateLocation(ctx context.Context, id string, loc models.Location) (models.User, error) {
	row, err := p.q.UpdateUserLocation(ctx, sqlcgen.UpdateUserLocationParams{
		ID:        id,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		UpdatedAt: loc.LastUpdated,
	})
	if err != nil {
		return models.User{}, mapError(err)
	}
	return toUser(row), nil
}

// ListActiveNear prefilters with the disc's bounding box; the exact distance check
// happens in the caller.
func (p *Postgres) ListActiveNear(ctx context.Context, center geo.Point, radiusMeters float64) ([]models.User, error) {
	box := geo.BoundingBox(center, radiusMeters)
	rows, err := p.q.ListActiveUsersInBox(ctx, sqlcgen.ListActiveUsersInBoxParams{
		MinLat: box.MinLat,
		MaxLat: box.MaxLat,
		MinLon: box.MinLon,
		MaxLon: box.MaxLon,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return toUsers(rows), nil
}

func (p *Postgres) MarkStaleInactive(ctx context.Context, cutoff time.Time, keep []string) ([]string, error) {
	if keep == nil {
		keep = []string{}
	}
	ids, err := p.q.MarkStaleUsersInactive(ctx, sqlcgen.MarkStaleUsersInactiveParams{Cutoff: cutoff, Keep: keep})
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func (p *Postgres) AddFriend(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return models.ErrSelfReference
	}
	return mapError(p.q.InsertFriend(ctx, sqlcgen.FriendParams{UserID: userID, FriendID: friendID}))
}

func (p *Postgres) RemoveFriend(ctx context.Context, userID, friendID string) error {
	err := mapError(p.q.DeleteFriend(ctx, sqlcgen.FriendParams{UserID: userID, FriendID: friendID}))
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

func (p *Postgres) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := p.q.ListFriendIDs(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func (p *Postgres) UpsertRecentUser(ctx context.Context, ownerID string, r models.RecentUser) (models.RecentUser, error) {
	if r.Location == nil {
		return models.RecentUser{}, models.ErrNoLocation
	}
	row, err := p.q.UpsertRecentUser(ctx, sqlcgen.RecentUser{
		OwnerID:           ownerID,
		UserID:            r.ID,
		Name:              r.Name,
		Phone:             r.Phone,
		Description:       r.Description,
		Latitude:          r.Location.Latitude,
		Longitude:         r.Location.Longitude,
		LocationUpdatedAt: r.Location.LastUpdated,
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		DistanceM:         r.DistanceMeters,
		LastSeen:          r.LastSeen,
	})
	if err != nil {
		return models.RecentUser{}, mapError(err)
	}
	return toRecentUser(row), nil
}

func (p *Postgres) ListRecentUsers(ctx context.Context, ownerID string) ([]models.RecentUser, error) {
	rows, err := p.q.ListRecentUsers(ctx, ownerID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]models.RecentUser, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRecentUser(r))
	}
	return out, nil
}

// mapError translates driver errors into model errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrPhoneTaken
		case "22P02", "23503": // invalid uuid text, foreign_key_violation
			return models.ErrNotFound
		case "23514": // check_violation
			return models.ErrSelfReference
		}
	}
	return err
}

func toUser(r sqlcgen.User) models.User {
	u := models.User{
		ID:          r.ID,
		Name:        r.Name,
		Phone:       r.Phone,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		IsActive:    r.IsActive,
		LastSeenAt:  r.LastSeenAt,
	}
	if r.Latitude != nil && r.Longitude != nil {
		loc := models.Location{Latitude: *r.Latitude, Longitude: *r.Longitude}
		if r.LocationUpdatedAt != nil {
			loc.LastUpdated = *r.LocationUpdatedAt
		}
		u.Location = &loc
	}
	return u
}

func toUsers(rows []sqlcgen.User) []models.User {
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, toUser(r))
	}
	return out
}

func toRecentUser(r sqlcgen.RecentUser) models.RecentUser {
	return models.RecentUser{
		User: models.User{
			ID:          r.UserID,
			Name:        r.Name,
			Phone:       r.Phone,
			Description: r.Description,
			Location: &models.Location{
				Latitude:    r.Latitude,
				Longitude:   r.Longitude,
				LastUpdated: r.LocationUpdatedAt,
			},
			CreatedAt: r.CreatedAt,
			IsActive:  r.IsActive,
		},
		LastSeen:       r.LastSeen,
		DistanceMeters: r.DistanceM,
	}
}
