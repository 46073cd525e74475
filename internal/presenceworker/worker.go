// Package presenceworker marks users inactive when their client stops reporting.
//
// A client that crashes or loses connectivity never sends the background or leave
// transition, so its user would stay active forever. The worker periodically sweeps
// users whose last activity is older than the stale threshold. Users with an open
// foreground session are never swept: a stationary device reports no samples.
package presenceworker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nearby/core-go/internal/realtime"
)

// Store is the minimal persistence the worker needs. *store.Memory and
// *store.Postgres satisfy it.
type Store interface {
	MarkStaleInactive(ctx context.Context, cutoff time.Time, keep []string) ([]string, error)
}

// Sessions lists users whose app is in the foreground. *presence.Tracker satisfies it.
type Sessions interface {
	Foreground() []string
}

type Publisher interface {
	Publish(path string)
}

// Forgetter drops per-user sampling state. *presence.SampleGate satisfies it.
type Forgetter interface {
	Forget(id string)
}

// Recorder observes sweep outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveStaleSweep(swept int, err error)
}

type Worker struct {
	log           zerolog.Logger
	store         Store
	pub           Publisher
	gate          Forgetter
	sessions      Sessions
	rec           Recorder
	sweepInterval time.Duration
	staleAfter    time.Duration
	sweepTimeout  time.Duration
	now           func() time.Time
}

type Options struct {
	SweepInterval time.Duration
	StaleAfter    time.Duration
	SweepTimeout  time.Duration
	Gate          Forgetter
	Sessions      Sessions
	Recorder      Recorder
	Now           func() time.Time
}

func New(log zerolog.Logger, store Store, pub Publisher, opts Options) *Worker {
	si := opts.SweepInterval
	if si <= 0 {
		si = 30 * time.Second
	}
	sa := opts.StaleAfter
	if sa <= 0 {
		sa = 5 * time.Minute
	}
	st := opts.SweepTimeout
	if st <= 0 {
		st = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	return &Worker{
		log:           log,
		store:         store,
		pub:           pub,
		gate:          opts.Gate,
		sessions:      opts.Sessions,
		rec:           rec,
		sweepInterval: si,
		staleAfter:    sa,
		sweepTimeout:  st,
		now:           now,
	}
}

// Run sweeps until ctx is done. Consecutive failures back off exponentially.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.store == nil {
		return
	}

	timer := time.NewTimer(w.sweepInterval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := w.sweepOnce(ctx); err != nil {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(w.sweepInterval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if failures <= 0 {
		return base
	}

	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

// sweepOnce marks every user idle for longer than staleAfter inactive, except those
// with a foreground session, and returns their ids.
func (w *Worker) sweepOnce(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.sweepTimeout)
	defer cancel()

	var keep []string
	if w.sessions != nil {
		keep = w.sessions.Foreground()
	}

	cutoff := w.now().Add(-w.staleAfter)
	ids, err := w.store.MarkStaleInactive(ctx, cutoff, keep)
	if err != nil {
		w.log.Error().Err(err).Msg("stale presence sweep failed")
		w.rec.ObserveStaleSweep(0, err)
		return nil, err
	}

	for _, id := range ids {
		if w.gate != nil {
			w.gate.Forget(id)
		}
		w.pub.Publish(realtime.UserPath(id))
	}
	w.rec.ObserveStaleSweep(len(ids), nil)

	if len(ids) > 0 {
		w.log.Info().Int("count", len(ids)).Time("cutoff", cutoff).Msg("marked stale users inactive")
	}
	return ids, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveStaleSweep(int, error) {}
