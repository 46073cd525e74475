// Package social manages friends and the recently viewed users list.
package social

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/realtime"
)

type Store interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
	UpsertRecentUser(ctx context.Context, ownerID string, r models.RecentUser) (models.RecentUser, error)
	ListRecentUsers(ctx context.Context, ownerID string) ([]models.RecentUser, error)
}

type Publisher interface {
	Publish(path string)
}

// Subscriber opens change subscriptions. *realtime.Hub satisfies it.
type Subscriber interface {
	Subscribe(path string) *realtime.Subscription
}

// RecentEntry is a recently viewed user annotated with friendship.
type RecentEntry struct {
	models.RecentUser
	IsFriend bool
}

type Service struct {
	log   zerolog.Logger
	store Store
	pub   Publisher
	sub   Subscriber
	now   func() time.Time
}

type Options struct {
	// Subscriber enables WatchFriends and WatchRecents.
	Subscriber Subscriber
	Now        func() time.Time
}

func NewService(log zerolog.Logger, store Store, pub Publisher, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{log: log, store: store, pub: pub, sub: opts.Subscriber, now: now}
}

// AddFriend records friendID as a friend of id. Adding an existing friend is a no-op.
func (s *Service) AddFriend(ctx context.Context, id, friendID string) error {
	if id == friendID {
		return models.ErrSelfReference
	}
	if err := s.store.AddFriend(ctx, id, friendID); err != nil {
		return err
	}
	s.pub.Publish(realtime.FriendsPath(id))
	return nil
}

// RemoveFriend drops friendID from id's friends. Removing a non-friend is a no-op.
func (s *Service) RemoveFriend(ctx context.Context, id, friendID string) error {
	if err := s.store.RemoveFriend(ctx, id, friendID); err != nil {
		return err
	}
	s.pub.Publish(realtime.FriendsPath(id))
	return nil
}

// Friends loads the full record of every friend. Friends whose record no longer
// exists are skipped.
func (s *Service) Friends(ctx context.Context, id string) ([]models.User, error) {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return nil, err
	}
	ids, err := s.store.ListFriendIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}

	out := make([]models.User, 0, len(ids))
	for _, fid := range ids {
		u, err := s.store.GetUser(ctx, fid)
		if errors.Is(err, models.ErrNotFound) {
			s.log.Debug().Str("user_id", id).Str("friend_id", fid).Msg("skipping missing friend")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load friend %s: %w", fid, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// RecordView stores a snapshot of viewedID in viewerID's recents, with the distance
// from origin (the viewer's own location when nil) and the current time.
func (s *Service) RecordView(ctx context.Context, viewerID, viewedID string, origin *geo.Point) (RecentEntry, error) {
	if viewerID == viewedID {
		return RecentEntry{}, models.ErrSelfReference
	}

	from, err := s.origin(ctx, viewerID, origin)
	if err != nil {
		return RecentEntry{}, err
	}

	viewed, err := s.store.GetUser(ctx, viewedID)
	if err != nil {
		return RecentEntry{}, err
	}
	if !viewed.HasLocation() {
		return RecentEntry{}, models.ErrNoLocation
	}

	r, err := s.store.UpsertRecentUser(ctx, viewerID, models.RecentUser{
		User:           viewed,
		LastSeen:       s.now(),
		DistanceMeters: geo.Distance(from, geo.Point{Lat: viewed.Location.Latitude, Lon: viewed.Location.Longitude}),
	})
	if err != nil {
		return RecentEntry{}, err
	}
	s.pub.Publish(realtime.RecentUsersPath(viewerID))

	isFriend, err := s.isFriend(ctx, viewerID, viewedID)
	if err != nil {
		return RecentEntry{}, err
	}
	return RecentEntry{RecentUser: r, IsFriend: isFriend}, nil
}

// Recents lists the recently viewed users, most recent first.
func (s *Service) Recents(ctx context.Context, id string) ([]RecentEntry, error) {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return nil, err
	}
	recents, err := s.store.ListRecentUsers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list recents: %w", err)
	}
	friendIDs, err := s.store.ListFriendIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	friends := make(map[string]struct{}, len(friendIDs))
	for _, fid := range friendIDs {
		friends[fid] = struct{}{}
	}

	out := make([]RecentEntry, 0, len(recents))
	for _, r := range recents {
		_, ok := friends[r.ID]
		out = append(out, RecentEntry{RecentUser: r, IsFriend: ok})
	}
	return out, nil
}

func (s *Service) isFriend(ctx context.Context, id, otherID string) (bool, error) {
	ids, err := s.store.ListFriendIDs(ctx, id)
	if err != nil {
		return false, fmt.Errorf("list friends: %w", err)
	}
	for _, fid := range ids {
		if fid == otherID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) origin(ctx context.Context, viewerID string, origin *geo.Point) (geo.Point, error) {
	if origin != nil {
		if !geo.Valid(*origin) {
			return geo.Point{}, models.NewValidationError(models.FieldError{Field: "origin", Message: "is not a valid coordinate"})
		}
		if _, err := s.store.GetUser(ctx, viewerID); err != nil {
			return geo.Point{}, err
		}
		return *origin, nil
	}
	viewer, err := s.store.GetUser(ctx, viewerID)
	if err != nil {
		return geo.Point{}, err
	}
	if !viewer.HasLocation() {
		return geo.Point{}, models.ErrNoLocation
	}
	return geo.Point{Lat: viewer.Location.Latitude, Lon: viewer.Location.Longitude}, nil
}

// WatchFriends emits id's friends now and again whenever the list or any friend's
// record changes.
func (s *Service) WatchFriends(ctx context.Context, id string) (<-chan []models.User, error) {
	return watch(ctx, s, realtime.UsersPath, id, s.Friends)
}

// WatchRecents emits id's recents now and again whenever they or id's friends change.
func (s *Service) WatchRecents(ctx context.Context, id string) (<-chan []RecentEntry, error) {
	return watch(ctx, s, realtime.UserPath(id), id, s.Recents)
}

// watch reloads id's view on every change below path and emits it when it differs
// from the previous one. The channel closes when ctx is done or id disappears.
func watch[T any](ctx context.Context, s *Service, path, id string, load func(context.Context, string) (T, error)) (<-chan T, error) {
	if s.sub == nil {
		return nil, errors.New("social: watch needs a subscriber")
	}
	sub := s.sub.Subscribe(path)

	first, err := load(ctx, id)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan T, 1)
	out <- first

	go func() {
		defer close(out)
		defer sub.Close()

		prev := first
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
			}

			next, err := load(ctx, id)
			if errors.Is(err, models.ErrNotFound) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Str("user_id", id).Str("path", path).Msg("reload watched list")
				continue
			}
			if reflect.DeepEqual(prev, next) {
				continue
			}

			select {
			case out <- next:
				prev = next
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
