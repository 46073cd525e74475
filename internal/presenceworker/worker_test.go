package presenceworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"nearby/core-go/internal/models"
	"nearby/core-go/internal/presence"
	"nearby/core-go/internal/store"
	"nearby/core-go/internal/users"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	markFn func(ctx context.Context, cutoff time.Time, keep []string) ([]string, error)
}

func (f *fakeStore) MarkStaleInactive(ctx context.Context, cutoff time.Time, keep []string) ([]string, error) {
	return f.markFn(ctx, cutoff, keep)
}

type recordingPublisher struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPublisher) Publish(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
}

type forgetter struct {
	forgotten []string
}

func (f *forgetter) Forget(id string) {
	f.forgotten = append(f.forgotten, id)
}

type sweepRecorder struct {
	swept  int
	errors int
}

func (r *sweepRecorder) ObserveStaleSweep(swept int, err error) {
	if err != nil {
		r.errors++
		return
	}
	r.swept += swept
}

func TestBackoffDuration(t *testing.T) {
	base := time.Second
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{6, 64 * time.Second},
		{20, 64 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDuration(base, tc.failures); got != tc.want {
			t.Fatalf("failures=%d: expected %v, got %v", tc.failures, tc.want, got)
		}
	}
	if got := backoffDuration(time.Minute, 6); got != 10*time.Minute {
		t.Fatalf("expected cap at 10m, got %v", got)
	}
}

func TestWorker_SweepOnce_UsesCutoffAndPublishes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotCutoff time.Time
	st := &fakeStore{markFn: func(ctx context.Context, cutoff time.Time, keep []string) ([]string, error) {
		gotCutoff = cutoff
		return []string{"a", "b"}, nil
	}}
	pub := &recordingPublisher{}
	gate := &forgetter{}
	rec := &sweepRecorder{}

	w := New(zerolog.Nop(), st, pub, Options{
		StaleAfter: 5 * time.Minute,
		Gate:       gate,
		Recorder:   rec,
		Now:        func() time.Time { return now },
	})
	ids, err := w.sweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 swept users, got %v", ids)
	}
	if want := now.Add(-5 * time.Minute); !gotCutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, gotCutoff)
	}
	if len(pub.paths) != 2 || pub.paths[0] != "users/a" || pub.paths[1] != "users/b" {
		t.Fatalf("unexpected published paths %v", pub.paths)
	}
	if len(gate.forgotten) != 2 {
		t.Fatalf("expected sampler state dropped for both users, got %v", gate.forgotten)
	}
	if rec.swept != 2 {
		t.Fatalf("expected 2 recorded, got %d", rec.swept)
	}
}

func TestWorker_SweepOnce_Error(t *testing.T) {
	st := &fakeStore{markFn: func(ctx context.Context, cutoff time.Time, keep []string) ([]string, error) {
		return nil, errors.New("db down")
	}}
	pub := &recordingPublisher{}
	rec := &sweepRecorder{}

	w := New(zerolog.Nop(), st, pub, Options{Recorder: rec})
	if _, err := w.sweepOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(pub.paths) != 0 {
		t.Fatalf("expected nothing published, got %v", pub.paths)
	}
	if rec.errors != 1 {
		t.Fatalf("expected one recorded error, got %d", rec.errors)
	}
}

func TestWorker_SweepOnce_MemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()

	stale, err := mem.CreateUser(ctx, models.User{Name: "stale", Phone: "600000001", IsActive: true, LastSeenAt: now.Add(-10 * time.Minute)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mem.CreateUser(ctx, models.User{Name: "fresh", Phone: "600000002", IsActive: true, LastSeenAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := New(zerolog.Nop(), mem, &recordingPublisher{}, Options{StaleAfter: 5 * time.Minute, Now: func() time.Time { return now }})
	ids, err := w.sweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("expected only the stale user, got %v", ids)
	}
	got, err := mem.GetUser(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected stale user inactive")
	}
}

type staticSessions []string

func (s staticSessions) Foreground() []string { return s }

func TestWorker_SweepOnce_KeepsForegroundSessions(t *testing.T) {
	var gotKeep []string
	st := &fakeStore{markFn: func(ctx context.Context, cutoff time.Time, keep []string) ([]string, error) {
		gotKeep = keep
		return nil, nil
	}}

	w := New(zerolog.Nop(), st, &recordingPublisher{}, Options{Sessions: staticSessions{"a", "b"}})
	if _, err := w.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(gotKeep) != 2 || gotKeep[0] != "a" || gotKeep[1] != "b" {
		t.Fatalf("expected foreground sessions passed as keep list, got %v", gotKeep)
	}
}

// A foreground user who stops moving sends no samples; the sweep must leave them
// active until the app goes to the background.
func TestWorker_SweepOnce_StationaryForegroundUserStaysActive(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	pub := &recordingPublisher{}

	u, err := mem.CreateUser(ctx, models.User{Name: "ana", Phone: "600000001", IsActive: true, LastSeenAt: t0})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	svc := users.NewService(zerolog.Nop(), mem, pub, users.Options{Now: func() time.Time { return t0 }})
	tr := presence.NewTracker(zerolog.Nop(), svc, presence.Options{GracePeriod: time.Hour})
	defer tr.Close()

	if err := tr.Enter(ctx, u.ID); err != nil {
		t.Fatalf("enter: %v", err)
	}

	w := New(zerolog.Nop(), mem, pub, Options{
		StaleAfter: 5 * time.Minute,
		Sessions:   tr,
		Now:        func() time.Time { return t0.Add(6 * time.Minute) },
	})
	ids, err := w.sweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected foreground user kept, swept %v", ids)
	}
	got, err := mem.GetUser(ctx, u.ID)
	if err != nil || !got.IsActive {
		t.Fatalf("expected user still active, got %+v, %v", got, err)
	}

	// Once backgrounded the session no longer protects the user.
	if err := tr.Transition(ctx, u.ID, presence.StateBackground); err != nil {
		t.Fatalf("background: %v", err)
	}
	ids, err = w.sweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ids) != 1 || ids[0] != u.ID {
		t.Fatalf("expected backgrounded user swept, got %v", ids)
	}
}

func TestWorker_Run_StopsOnCancel(t *testing.T) {
	var mu sync.Mutex
	sweeps := 0
	st := &fakeStore{markFn: func(ctx context.Context, cutoff time.Time, keep []string) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		sweeps++
		return nil, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	w := New(zerolog.Nop(), st, &recordingPublisher{}, Options{SweepInterval: time.Millisecond})
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := sweeps
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected at least two sweeps, got %d", n)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestWorker_Run_NilIsNoop(t *testing.T) {
	var w *Worker
	w.Run(context.Background())
}
