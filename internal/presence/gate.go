package presence

import (
	"sync"
	"time"

	"nearby/core-go/internal/geo"
)

// GateOptions is the location sampling policy. Devices report every second with a
// one meter distance filter.
type GateOptions struct {
	MinInterval           time.Duration
	MinDisplacementMeters float64
	MaxSilence            time.Duration
}

// SampleGate decides which location samples are worth storing.
type SampleGate struct {
	opts GateOptions

	mu   sync.Mutex
	last map[string]sample
}

type sample struct {
	at time.Time
	p  geo.Point
}

func NewSampleGate(opts GateOptions) *SampleGate {
	return &SampleGate{opts: opts, last: make(map[string]sample)}
}

// Accept reports whether the sample should be stored and, if so, remembers it.
// A sample passes when it is the first for the user, when enough time has passed
// and the user moved far enough, or when nothing was stored for MaxSilence.
func (g *SampleGate) Accept(id string, p geo.Point, at time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, ok := g.last[id]
	if ok {
		elapsed := at.Sub(prev.at)
		moved := elapsed >= g.opts.MinInterval && geo.Distance(prev.p, p) >= g.opts.MinDisplacementMeters
		heartbeat := g.opts.MaxSilence > 0 && elapsed >= g.opts.MaxSilence
		if !moved && !heartbeat {
			return false
		}
	}
	g.last[id] = sample{at: at, p: p}
	return true
}

// Forget drops the remembered sample so the next one is always accepted.
func (g *SampleGate) Forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, id)
}

// Len is the number of users with a remembered sample.
func (g *SampleGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
