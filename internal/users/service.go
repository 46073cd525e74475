// Package users implements registration and the writes a client makes to its own
// record: profile edits, presence and location.
package users

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/naming"
	"nearby/core-go/internal/realtime"
)

// Store is the persistence the service needs. *store.Memory and *store.Postgres
// satisfy it.
type Store interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByPhone(ctx context.Context, phone string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, id string, p models.Profile) (models.User, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) (models.User, error)
	UpdateLocation(ctx context.Context, id string, loc models.Location) (models.User, error)
}

// Publisher receives the path of every write.
type Publisher interface {
	Publish(path string)
}

// Subscriber opens change subscriptions. *realtime.Hub satisfies it.
type Subscriber interface {
	Subscribe(path string) *realtime.Subscription
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name        string   `json:"name" validate:"required,max=80"`
	Phone       string   `json:"phone" validate:"required,max=32"`
	Description string   `json:"description" validate:"max=500"`
	Latitude    *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// ProfileInput is the editable part of a user record.
type ProfileInput struct {
	Name        string `json:"name" validate:"required,max=80"`
	Phone       string `json:"phone" validate:"required,max=32"`
	Description string `json:"description" validate:"max=500"`
}

type Service struct {
	log   zerolog.Logger
	store Store
	pub   Publisher
	sub   Subscriber
	now   func() time.Time
}

type Options struct {
	// Subscriber enables Watch.
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

// Register looks the phone number up and returns the existing user unchanged, or
// creates a new active user at the given location. created reports which happened.
func (s *Service) Register(ctx context.Context, in RegisterInput) (u models.User, created bool, err error) {
	if err := validateStruct(in); err != nil {
		return models.User{}, false, err
	}
	profile, err := normalizeProfile(in.Name, in.Phone, in.Description)
	if err != nil {
		return models.User{}, false, err
	}

	existing, err := s.store.FindUserByPhone(ctx, profile.Phone)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return models.User{}, false, fmt.Errorf("find user by phone: %w", err)
	}

	now := s.now()
	u, err = s.store.CreateUser(ctx, models.User{
		Name:        profile.Name,
		Phone:       profile.Phone,
		Description: profile.Description,
		Location: &models.Location{
			Latitude:    *in.Latitude,
			Longitude:   *in.Longitude,
			LastUpdated: now,
		},
		CreatedAt:  now,
		IsActive:   true,
		LastSeenAt: now,
	})
	if errors.Is(err, models.ErrPhoneTaken) {
		// Lost a race with a concurrent registration of the same number.
		existing, ferr := s.store.FindUserByPhone(ctx, profile.Phone)
		if ferr != nil {
			return models.User{}, false, fmt.Errorf("find user by phone: %w", ferr)
		}
		return existing, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("create user: %w", err)
	}

	s.pub.Publish(realtime.UserPath(u.ID))
	s.log.Info().Str("user_id", u.ID).Msg("user registered")
	return u, true, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateProfile replaces name, phone and description. The phone stays unique.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (models.User, error) {
	if err := validateStruct(in); err != nil {
		return models.User{}, err
	}
	profile, err := normalizeProfile(in.Name, in.Phone, in.Description)
	if err != nil {
		return models.User{}, err
	}

	u, err := s.store.UpdateProfile(ctx, id, profile)
	if err != nil {
		return models.User{}, err
	}
	s.pub.Publish(realtime.UserPath(id))
	return u, nil
}

// SetActive flips the presence flag and refreshes the last-seen time.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (models.User, error) {
	u, err := s.store.SetActive(ctx, id, active, s.now())
	if err != nil {
		return models.User{}, err
	}
	s.pub.Publish(realtime.UserPath(id))
	return u, nil
}

// RecordLocation stores a location sample stamped with the current time.
func (s *Service) RecordLocation(ctx context.Context, id string, p geo.Point) (models.User, error) {
	if !geo.Valid(p) {
		return models.User{}, models.NewValidationError(models.FieldError{Field: "location", Message: "is not a valid coordinate"})
	}
	u, err := s.store.UpdateLocation(ctx, id, models.Location{
		Latitude:    p.Lat,
		Longitude:   p.Lon,
		LastUpdated: s.now(),
	})
	if err != nil {
		return models.User{}, err
	}
	s.pub.Publish(realtime.UserPath(id))
	return u, nil
}

// Watch emits the user's record immediately and again whenever it changes. The
// channel is closed when ctx is done or the user disappears.
func (s *Service) Watch(ctx context.Context, id string) (<-chan models.User, error) {
	if s.sub == nil {
		return nil, errors.New("users: watch needs a subscriber")
	}
	sub := s.sub.Subscribe(realtime.UserPath(id))

	first, err := s.store.GetUser(ctx, id)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan models.User, 1)
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

			next, err := s.store.GetUser(ctx, id)
			if errors.Is(err, models.ErrNotFound) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Str("user_id", id).Msg("reload watched user")
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

func normalizeProfile(name, phone, description string) (models.Profile, error) {
	var fields []models.FieldError

	n := naming.NormalizeName(name)
	if n == "" {
		fields = append(fields, models.FieldError{Field: "name", Message: "is required"})
	}
	p, ok := naming.NormalizePhone(phone)
	if !ok {
		fields = append(fields, models.FieldError{Field: "phone", Message: "must be a valid phone number"})
	}
	if len(fields) > 0 {
		return models.Profile{}, models.NewValidationError(fields...)
	}
	return models.Profile{Name: n, Phone: p, Description: naming.CleanDescription(description)}, nil
}
