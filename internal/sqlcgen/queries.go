package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const userColumns = `id, name, phone, description, latitude, longitude, location_updated_at, created_at, is_active, last_seen_at`

func scanUser(row pgx.Row) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Phone,
		&i.Description,
		&i.Latitude,
		&i.Longitude,
		&i.LocationUpdatedAt,
		&i.CreatedAt,
		&i.IsActive,
		&i.LastSeenAt,
	)
	return i, err
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (name, phone, description, latitude, longitude, location_updated_at, created_at, is_active, last_seen_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, true, $7)
RETURNING ` + userColumns

type CreateUserParams struct {
	Name              string
	Phone             string
	Description       string
	Latitude          float64
	Longitude         float64
	LocationUpdatedAt time.Time
	CreatedAt         time.Time
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.Name,
		arg.Phone,
		arg.Description,
		arg.Latitude,
		arg.Longitude,
		arg.LocationUpdatedAt,
		arg.CreatedAt,
	)
	return scanUser(row)
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1::uuid
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUser, id))
}

const findUserByPhone = `-- name: FindUserByPhone :one
SELECT ` + userColumns + `
FROM users
WHERE phone = $1
`

func (q *Queries) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, findUserByPhone, phone))
}

const listUsers = `-- name: ListUsers :many
SELECT ` + userColumns + `
FROM users
ORDER BY created_at, id
`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

const listActiveUsersInBox = `-- name: ListActiveUsersInBox :many
SELECT ` + userColumns + `
FROM users
WHERE is_active
  AND latitude IS NOT NULL
  AND latitude BETWEEN $1 AND $2
  AND longitude BETWEEN $3 AND $4
ORDER BY id
`

type ListActiveUsersInBoxParams struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (q *Queries) ListActiveUsersInBox(ctx context.Context, arg ListActiveUsersInBoxParams) ([]User, error) {
	rows, err := q.db.Query(ctx, listActiveUsersInBox, arg.MinLat, arg.MaxLat, arg.MinLon, arg.MaxLon)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

const updateUserProfile = `-- name: UpdateUserProfile :one
UPDATE users
SET name = $2,
    phone = $3,
    description = $4
WHERE id = $1::uuid
RETURNING ` + userColumns

type UpdateUserProfileParams struct {
	ID          string
	Name        string
	Phone       string
	Description string
}

func (q *Queries) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUserProfile, arg.ID, arg.Name, arg.Phone, arg.Description))
}

const setUserActive = `-- name: SetUserActive :one
UPDATE users
SET is_active = $2,
    last_seen_at = GREATEST(last_seen_at, $3)
WHERE id = $1::uuid
RETURNING ` + userColumns

type SetUserActiveParams struct {
	ID       string
	IsActive bool
	SeenAt   time.Time
}

func (q *Queries) SetUserActive(ctx context.Context, arg SetUserActiveParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, setUserActive, arg.ID, arg.IsActive, arg.SeenAt))
}

const updateUserLocation = `-- name: UpdateUserLocation :one
UPDATE users
SET latitude = $2,
    longitude = $3,
    location_updated_at = $4,
    last_seen_at = GREATEST(last_seen_at, $4)
WHERE id = $1::uuid
RETURNING ` + userColumns

type UpdateUserLocationParams struct {
	ID        string
	Latitude  float64
	Longitude float64
	UpdatedAt time.Time
}

func (q *Queries) UpdateUserLocation(ctx context.Context, arg UpdateUserLocationParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUserLocation, arg.ID, arg.Latitude, arg.Longitude, arg.UpdatedAt))
}

const markStaleUsersInactive = `-- name: MarkStaleUsersInactive :many
UPDATE users
SET is_active = false
WHERE is_active
  AND last_seen_at < $1
  AND NOT (id::text = ANY(COALESCE($2::text[], '{}'::text[])))
RETURNING id
`

type MarkStaleUsersInactiveParams struct {
	Cutoff time.Time
	Keep   []string
}

func (q *Queries) MarkStaleUsersInactive(ctx context.Context, arg MarkStaleUsersInactiveParams) ([]string, error) {
	rows, err := q.db.Query(ctx, markStaleUsersInactive, arg.Cutoff, arg.Keep)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

const insertFriend = `-- name: InsertFriend :exec
INSERT INTO friends (user_id, friend_id)
VALUES ($1::uuid, $2::uuid)
ON CONFLICT (user_id, friend_id) DO NOTHING
`

type FriendParams struct {
	UserID   string
	FriendID string
}

func (q *Queries) InsertFriend(ctx context.Context, arg FriendParams) error {
	_, err := q.db.Exec(ctx, insertFriend, arg.UserID, arg.FriendID)
	return err
}

const deleteFriend = `-- name: DeleteFriend :exec
DELETE FROM friends
WHERE user_id = $1::uuid
  AND friend_id = $2::uuid
`

func (q *Queries) DeleteFriend(ctx context.Context, arg FriendParams) error {
	_, err := q.db.Exec(ctx, deleteFriend, arg.UserID, arg.FriendID)
	return err
}

const listFriendIDs = `-- name: ListFriendIDs :many
SELECT friend_id
FROM friends
WHERE user_id = $1::uuid
ORDER BY created_at, friend_id
`

func (q *Queries) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := q.db.Query(ctx, listFriendIDs, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

const recentUserColumns = `owner_id, user_id, name, phone, description, latitude, longitude, location_updated_at, is_active, created_at, distance_m, last_seen`

func scanRecentUser(row pgx.Row) (RecentUser, error) {
	var i RecentUser
	err := row.Scan(
		&i.OwnerID,
		&i.UserID,
		&i.Name,
		&i.Phone,
		&i.Description,
		&i.Latitude,
		&i.Longitude,
		&i.LocationUpdatedAt,
		&i.IsActive,
		&i.CreatedAt,
		&i.DistanceM,
		&i.LastSeen,
	)
	return i, err
}

const upsertRecentUser = `-- name: UpsertRecentUser :one
INSERT INTO recent_users (` + recentUserColumns + `)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (owner_id, user_id) DO UPDATE
SET name = EXCLUDED.name,
    phone = EXCLUDED.phone,
    description = EXCLUDED.description,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    location_updated_at = EXCLUDED.location_updated_at,
    is_active = EXCLUDED.is_active,
    created_at = EXCLUDED.created_at,
    distance_m = EXCLUDED.distance_m,
    last_seen = EXCLUDED.last_seen
RETURNING ` + recentUserColumns

func (q *Queries) UpsertRecentUser(ctx context.Context, arg RecentUser) (RecentUser, error) {
	row := q.db.QueryRow(ctx, upsertRecentUser,
		arg.OwnerID,
		arg.UserID,
		arg.Name,
		arg.Phone,
		arg.Description,
		arg.Latitude,
		arg.Longitude,
		arg.LocationUpdatedAt,
		arg.IsActive,
		arg.CreatedAt,
		arg.DistanceM,
		arg.LastSeen,
	)
	return scanRecentUser(row)
}

const listRecentUsers = `-- name: ListRecentUsers :many
SELECT ` + recentUserColumns + `
FROM recent_users
WHERE owner_id = $1::uuid
ORDER BY last_seen DESC, user_id
`

func (q *Queries) ListRecentUsers(ctx context.Context, ownerID string) ([]RecentUser, error) {
	rows, err := q.db.Query(ctx, listRecentUsers, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RecentUser
	for rows.Next() {
		i, err := scanRecentUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
