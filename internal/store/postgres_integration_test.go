package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"nearby/core-go/internal/db"
	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
)

func requireTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres integration test")
	}
	return dsn
}

func mustDeriveDatabaseURL(t *testing.T, baseURL, dbName string) string {
	t.Helper()

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		t.Skipf("TEST_DATABASE_URL must be a URL-style DSN (e.g. postgres://...); got %q", baseURL)
	}

	u.Path = "/" + dbName
	return u.String()
}

func execAdmin(ctx context.Context, adminURL, sql string) error {
	conn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}

func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	adminURL := requireTestDatabaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbName := fmt.Sprintf("nearby_test_%d", time.Now().UnixNano())
	if err := execAdmin(ctx, adminURL, "CREATE DATABASE "+dbName); err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() {
		_ = execAdmin(context.Background(), adminURL, "DROP DATABASE "+dbName+" WITH (FORCE)")
	})

	pool, err := db.Open(ctx, mustDeriveDatabaseURL(t, adminURL, dbName))
	if err != nil {
		t.Fatalf("open db pool: %v", err)
	}
	t.Cleanup(pool.Close)

	applied, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatalf("expected migrations to be applied")
	}
	again, err := pool.Migrate(ctx)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected second migrate to be a no-op, got %v, %v", again, err)
	}

	return NewPostgres(pool.Queries(), pool)
}

func TestPostgres_Integration_UserLifecycle(t *testing.T) {
	p := openTestPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	ana, err := p.CreateUser(ctx, models.User{
		Name:      "ana",
		Phone:     "+34600000001",
		Location:  &models.Location{Latitude: 40.4168, Longitude: -3.7038, LastUpdated: now},
		CreatedAt: now,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("create ana: %v", err)
	}
	bob, err := p.CreateUser(ctx, models.User{
		Name:      "bob",
		Phone:     "+34600000002",
		Location:  &models.Location{Latitude: 40.4170, Longitude: -3.7040, LastUpdated: now},
		CreatedAt: now,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	if _, err := p.CreateUser(ctx, models.User{Name: "dup", Phone: "+34600000001", CreatedAt: now, Location: &models.Location{LastUpdated: now}}); !errors.Is(err, models.ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
	if _, err := p.GetUser(ctx, "not-a-uuid"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	near, err := p.ListActiveNear(ctx, geo.Point{Lat: 40.4168, Lon: -3.7038}, 1000)
	if err != nil {
		t.Fatalf("list near: %v", err)
	}
	if len(near) != 2 {
		t.Fatalf("expected 2 nearby candidates, got %d", len(near))
	}

	if _, err := p.SetActive(ctx, bob.ID, false, now); err != nil {
		t.Fatalf("set inactive: %v", err)
	}
	near, err = p.ListActiveNear(ctx, geo.Point{Lat: 40.4168, Lon: -3.7038}, 1000)
	if err != nil || len(near) != 1 || near[0].ID != ana.ID {
		t.Fatalf("expected only ana active, got %+v, %v", near, err)
	}

	if err := p.AddFriend(ctx, ana.ID, bob.ID); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	if err := p.AddFriend(ctx, ana.ID, bob.ID); err != nil {
		t.Fatalf("add friend twice: %v", err)
	}
	ids, err := p.ListFriendIDs(ctx, ana.ID)
	if err != nil || len(ids) != 1 || ids[0] != bob.ID {
		t.Fatalf("unexpected friends %v, %v", ids, err)
	}

	if _, err := p.UpsertRecentUser(ctx, ana.ID, models.RecentUser{User: bob, LastSeen: now, DistanceMeters: 27}); err != nil {
		t.Fatalf("upsert recent: %v", err)
	}
	recents, err := p.ListRecentUsers(ctx, ana.ID)
	if err != nil || len(recents) != 1 || recents[0].DistanceMeters != 27 {
		t.Fatalf("unexpected recents %+v, %v", recents, err)
	}

	kept, err := p.MarkStaleInactive(ctx, now.Add(time.Hour), []string{ana.ID})
	if err != nil || len(kept) != 0 {
		t.Fatalf("expected ana to be kept, got %v, %v", kept, err)
	}
	stale, err := p.MarkStaleInactive(ctx, now.Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	if len(stale) != 1 || stale[0] != ana.ID {
		t.Fatalf("expected ana to be swept, got %v", stale)
	}
}
