package proximity

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/realtime"
)

// Store is the read side the service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ListActiveNear(ctx context.Context, center geo.Point, radiusMeters float64) ([]models.User, error)
}

// Subscriber opens change subscriptions. *realtime.Hub satisfies it.
type Subscriber interface {
	Subscribe(path string) *realtime.Subscription
}

// Recorder observes proximity queries. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveNearbyQuery(mode string, results int)
}

// Query narrows a proximity lookup. Zero values fall back to the viewer's stored
// location and the configured radius.
type Query struct {
	Origin       *geo.Point
	RadiusMeters float64
}

// Snapshot is the proximity result at a point in time.
type Snapshot struct {
	Origin       geo.Point
	RadiusMeters float64
	Users        []Nearby
	ComputedAt   time.Time
}

type Options struct {
	RadiusMeters     float64
	ViewRadiusMeters float64
	Recorder         Recorder
	Now              func() time.Time
}

type Service struct {
	log        zerolog.Logger
	store      Store
	hub        Subscriber
	radius     float64
	viewRadius float64
	rec        Recorder
	now        func() time.Time
}

func NewService(log zerolog.Logger, store Store, hub Subscriber, opts Options) *Service {
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = 1000
	}
	if opts.ViewRadiusMeters <= 0 {
		opts.ViewRadiusMeters = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Service{
		log:        log,
		store:      store,
		hub:        hub,
		radius:     opts.RadiusMeters,
		viewRadius: opts.ViewRadiusMeters,
		rec:        opts.Recorder,
		now:        opts.Now,
	}
}

// Nearby returns the active users near the viewer.
func (s *Service) Nearby(ctx context.Context, viewerID string, q Query) (Snapshot, error) {
	snap, err := s.compute(ctx, viewerID, q)
	if err != nil {
		return Snapshot{}, err
	}
	s.rec.ObserveNearbyQuery("query", len(snap.Users))
	return snap, nil
}

// Watch emits a snapshot immediately and then again after every user change that
// alters the result. The channel is closed when ctx is done.
func (s *Service) Watch(ctx context.Context, viewerID string, q Query) (<-chan Snapshot, error) {
	// Subscribe first so no change between the initial read and the loop is lost.
	sub := s.hub.Subscribe(realtime.UsersPath)

	first, err := s.compute(ctx, viewerID, q)
	if err != nil {
		sub.Close()
		return nil, err
	}
	s.rec.ObserveNearbyQuery("stream", len(first.Users))

	out := make(chan Snapshot, 1)
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

			next, err := s.compute(ctx, viewerID, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Str("user_id", viewerID).Msg("recompute nearby users")
				continue
			}
			if sameResult(prev, next) {
				continue
			}
			s.rec.ObserveNearbyQuery("stream", len(next.Users))

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

func (s *Service) compute(ctx context.Context, viewerID string, q Query) (Snapshot, error) {
	radius := q.RadiusMeters
	if radius <= 0 {
		radius = s.radius
	}

	var origin geo.Point
	if q.Origin != nil {
		origin = *q.Origin
		if !geo.Valid(origin) {
			return Snapshot{}, models.NewValidationError(models.FieldError{Field: "origin", Message: "is not a valid coordinate"})
		}
	} else {
		viewer, err := s.store.GetUser(ctx, viewerID)
		if err != nil {
			return Snapshot{}, err
		}
		if !viewer.HasLocation() {
			return Snapshot{}, models.ErrNoLocation
		}
		origin = geo.Point{Lat: viewer.Location.Latitude, Lon: viewer.Location.Longitude}
	}

	candidates, err := s.store.ListActiveNear(ctx, origin, radius)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list active users: %w", err)
	}
	return Snapshot{
		Origin:       origin,
		RadiusMeters: radius,
		Users:        Filter(viewerID, origin, candidates, radius, s.viewRadius),
		ComputedAt:   s.now(),
	}, nil
}

func sameResult(a, b Snapshot) bool {
	return a.Origin == b.Origin && a.RadiusMeters == b.RadiusMeters && reflect.DeepEqual(a.Users, b.Users)
}

type nopRecorder struct{}

func (nopRecorder) ObserveNearbyQuery(string, int) {}
