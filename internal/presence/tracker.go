// Package presence tracks which users have the app in the foreground.
//
// Each user gets one session. Going to the background starts a grace timer, and
// the user is marked inactive only if the timer expires before the app returns to
// the foreground. Writes for one session are serialized, and every state change
// bumps a generation counter so that a timer racing a foreground transition sees
// it has been superseded and does nothing.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nearby/core-go/internal/models"
)

var ErrNoSession = errors.New("presence: no session for user")

// State is the application state reported by a client.
type State string

const (
	StateActive     State = "active"
	StateBackground State = "background"
	StateInactive   State = "inactive"
	StateUnknown    State = "unknown"
)

// ParseState maps a client-reported state. Anything unrecognised is StateUnknown.
func ParseState(s string) State {
	switch State(s) {
	case StateActive, StateBackground, StateInactive:
		return State(s)
	default:
		return StateUnknown
	}
}

// Activator writes the presence flag of a user.
type Activator interface {
	SetActive(ctx context.Context, id string, active bool) (models.User, error)
}

// Recorder observes presence activity. *metrics.Metrics satisfies it.
type Recorder interface {
	ObservePresence(state string)
	SetSessions(n int)
}

// Timer is the part of *time.Timer the tracker uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Options struct {
	GracePeriod  time.Duration
	WriteTimeout time.Duration
	AfterFunc    AfterFunc
	Recorder     Recorder
}

type Tracker struct {
	log          zerolog.Logger
	users        Activator
	grace        time.Duration
	writeTimeout time.Duration
	afterFunc    AfterFunc
	rec          Recorder

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

type session struct {
	id string

	mu    sync.Mutex
	gen   uint64
	state State
	timer Timer
	ended bool
}

func NewTracker(log zerolog.Logger, users Activator, opts Options) *Tracker {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 3 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Tracker{
		log:          log,
		users:        users,
		grace:        opts.GracePeriod,
		writeTimeout: opts.WriteTimeout,
		afterFunc:    opts.AfterFunc,
		rec:          opts.Recorder,
		sessions:     make(map[string]*session),
	}
}

// Enter opens (or resumes) the session for id and marks the user active.
func (t *Tracker) Enter(ctx context.Context, id string) error {
	for {
		s, fresh, err := t.lookupOrCreate(id)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.ended {
			// Raced a Leave; it has already removed s from the map.
			s.mu.Unlock()
			continue
		}
		s.cancelTimer()
		s.state = StateActive
		_, err = t.users.SetActive(ctx, id, true)
		if err != nil && fresh {
			s.ended = true
			t.remove(s)
		}
		s.mu.Unlock()

		if err != nil {
			return fmt.Errorf("enter: %w", err)
		}
		t.rec.ObservePresence(string(StateActive))
		return nil
	}
}

// Transition applies a client app-state change. Every change first cancels a
// pending grace timer. Background starts a new one and active marks the user
// active again. Other states only cancel.
func (t *Tracker) Transition(ctx context.Context, id string, state State) error {
	s := t.lookup(id)
	if s == nil {
		return ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrNoSession
	}

	s.cancelTimer()
	s.state = state

	switch state {
	case StateBackground:
		gen := s.gen
		s.timer = t.afterFunc(t.grace, func() { t.expire(s, gen) })
	case StateActive:
		if _, err := t.users.SetActive(ctx, id, true); err != nil {
			return fmt.Errorf("transition: %w", err)
		}
		t.rec.ObservePresence(string(StateActive))
	}
	return nil
}

// Leave closes the session and marks the user inactive.
func (t *Tracker) Leave(ctx context.Context, id string) error {
	s := t.lookup(id)
	if s == nil {
		return ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrNoSession
	}
	s.cancelTimer()
	_, err := t.users.SetActive(ctx, id, false)
	// Removed only after the write so a concurrent Enter waits for it.
	s.ended = true
	t.remove(s)

	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	t.rec.ObservePresence(string(StateInactive))
	return nil
}

// State reports the last client state of a session.
func (t *Tracker) State(id string) (State, bool) {
	s := t.lookup(id)
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return "", false
	}
	return s.state, true
}

// Foreground returns the ids of open sessions that are not in the background. Their
// users stay active regardless of how long ago they last reported a location.
func (t *Tracker) Foreground() []string {
	t.mu.Lock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	out := ids[:0]
	for _, id := range ids {
		if state, ok := t.State(id); ok && state != StateBackground {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Active returns the number of open sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Close stops every pending timer, marks the users of open sessions inactive and
// rejects later Enter calls. The writes share one WriteTimeout; failures are logged.
func (t *Tracker) Close() {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*session)
	t.closed = true
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	defer cancel()

	for _, s := range sessions {
		s.mu.Lock()
		if s.ended {
			s.mu.Unlock()
			continue
		}
		s.cancelTimer()
		s.ended = true
		_, err := t.users.SetActive(ctx, s.id, false)
		s.mu.Unlock()

		if err != nil {
			t.log.Warn().Err(err).Str("user_id", s.id).Msg("shutdown failed to mark user inactive")
			continue
		}
		t.rec.ObservePresence(string(StateInactive))
	}
	t.rec.SetSessions(0)
}

func (t *Tracker) expire(s *session, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.gen != gen {
		return
	}
	s.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	defer cancel()
	if _, err := t.users.SetActive(ctx, s.id, false); err != nil {
		t.log.Warn().Err(err).Str("user_id", s.id).Msg("grace expiry failed to mark user inactive")
		return
	}
	t.rec.ObservePresence(string(StateBackground))
	t.log.Debug().Str("user_id", s.id).Msg("grace period expired")
}

func (t *Tracker) lookup(id string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

func (t *Tracker) lookupOrCreate(id string) (*session, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false, errors.New("presence: tracker closed")
	}
	if s, ok := t.sessions[id]; ok {
		return s, false, nil
	}
	s := &session{id: id}
	t.sessions[id] = s
	t.rec.SetSessions(len(t.sessions))
	return s, true, nil
}

// remove drops s from the session map. Callers hold s.mu.
func (t *Tracker) remove(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions[s.id] == s {
		delete(t.sessions, s.id)
	}
	t.rec.SetSessions(len(t.sessions))
}

// cancelTimer supersedes any pending expiry. Callers hold s.mu.
func (s *session) cancelTimer() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

type nopRecorder struct{}

func (nopRecorder) ObservePresence(string) {}
func (nopRecorder) SetSessions(int)        {}
