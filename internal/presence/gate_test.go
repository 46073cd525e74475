package presence

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"nearby/core-go/internal/geo"
)

func TestSampleGate(t *testing.T) {
	c := qt.New(t)
	g := NewSampleGate(GateOptions{
		MinInterval:           time.Second,
		MinDisplacementMeters: 1,
		MaxSilence:            30 * time.Second,
	})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	here := geo.Point{Lat: 40.4168, Lon: -3.7038}
	// Roughly 11 m north.
	there := geo.Point{Lat: 40.4169, Lon: -3.7038}

	c.Assert(g.Accept("u1", here, t0), qt.IsTrue)
	c.Assert(g.Accept("u1", there, t0.Add(500*time.Millisecond)), qt.IsFalse, qt.Commentf("too soon"))
	c.Assert(g.Accept("u1", here, t0.Add(2*time.Second)), qt.IsFalse, qt.Commentf("did not move"))
	c.Assert(g.Accept("u1", there, t0.Add(2*time.Second)), qt.IsTrue)
	c.Assert(g.Accept("u1", there, t0.Add(33*time.Second)), qt.IsTrue, qt.Commentf("heartbeat"))

	c.Assert(g.Accept("u2", here, t0), qt.IsTrue)
	c.Assert(g.Len(), qt.Equals, 2)

	g.Forget("u1")
	c.Assert(g.Len(), qt.Equals, 1)
	c.Assert(g.Accept("u1", there, t0.Add(34*time.Second)), qt.IsTrue)
}
