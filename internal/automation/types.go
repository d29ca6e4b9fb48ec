package automation

import (
	"fmt"
	"math/rand"
	"time"
)

// Region is the on-screen rectangle an instance delivers input to.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w" validate:"gte=0"`
	H int `json:"h" validate:"gte=0"`
}

// Center uses integer division, so a 1px wide region centers on its origin.
func (r Region) Center() (int, int) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Within reports whether the region's center lies inside b.
func (r Region) Within(b Bounds) bool {
	cx, cy := r.Center()
	return cx >= 0 && cx < b.W && cy >= 0 && cy < b.H
}

func (r Region) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.X, r.Y, r.W, r.H)
}

// Array returns the [x, y, w, h] form used by persistence.
func (r Region) Array() [4]int { return [4]int{r.X, r.Y, r.W, r.H} }

// RegionFromArray is the inverse of Array.
func RegionFromArray(a [4]int) Region { return Region{X: a[0], Y: a[1], W: a[2], H: a[3]} }

// Bounds is the display size input is delivered to.
type Bounds struct {
	W int
	H int
}

func (b Bounds) String() string { return fmt.Sprintf("%dx%d", b.W, b.H) }

// CadenceID indexes an instance's cadences. Lower ids fire first when several
// are due in the same cycle.
type CadenceID int

const (
	CadenceA CadenceID = iota
	CadenceB

	NumCadences = 2
)

func (c CadenceID) String() string {
	switch c {
	case CadenceA:
		return "a"
	case CadenceB:
		return "b"
	default:
		return fmt.Sprintf("cadence(%d)", int(c))
	}
}

// Cadence is one independently timed action slot.
// A zero LastFired means "never" and is due immediately.
type Cadence struct {
	Interval  time.Duration `validate:"gt=0"`
	LastFired time.Time
}

// Remaining returns max(0, Interval - (now - LastFired)).
func (c Cadence) Remaining(now time.Time) time.Duration {
	if c.LastFired.IsZero() {
		return 0
	}
	r := c.Interval - now.Sub(c.LastFired)
	if r < 0 {
		return 0
	}
	return r
}

// Due reports whether now - LastFired >= Interval.
func (c Cadence) Due(now time.Time) bool { return c.Remaining(now) <= 0 }

// CadenceSpec names a cadence and the payload it sends.
type CadenceSpec struct {
	Name    string
	Payload string
}

// DefaultCadences returns the stock payloads.
func DefaultCadences() [NumCadences]CadenceSpec {
	return [NumCadences]CadenceSpec{
		{Name: "w", Payload: "$w"},
		{Name: "rolls", Payload: "$rolls"},
	}
}

type RunState int

const (
	Stopped RunState = iota
	Running
	Paused
)

func (s RunState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Active reports whether a scheduling unit should exist for this state.
func (s RunState) Active() bool { return s == Running || s == Paused }

// Instance is a named automation target. Values handed out by the Registry
// are copies.
type Instance struct {
	Name     string               `validate:"required,max=128"`
	Region   Region               `validate:"-"`
	Cadences [NumCadences]Cadence `validate:"dive"`
	State    RunState
}

// Intervals returns the configured interval of every cadence.
func (in Instance) Intervals() [NumCadences]time.Duration {
	var out [NumCadences]time.Duration
	for i, c := range in.Cadences {
		out[i] = c.Interval
	}
	return out
}

// InstanceStatus is a read-only view for status displays.
type InstanceStatus struct {
	Name      string
	State     RunState
	Remaining [NumCadences]time.Duration
	Region    Region
}

// RemainingSeconds truncates Remaining to whole seconds.
func (s InstanceStatus) RemainingSeconds() [NumCadences]int {
	var out [NumCadences]int
	for i, d := range s.Remaining {
		out[i] = int(d / time.Second)
	}
	return out
}

// Timing holds the scheduler's wait bounds.
type Timing struct {
	// MaxSleep caps a cycle's sleep so stop/pause are observed promptly.
	MaxSleep time.Duration
	// MinSleep is the floor for a cycle's sleep; it also paces retries of
	// cadences whose action failed.
	MinSleep    time.Duration
	PausePoll   time.Duration
	JitterMin   time.Duration
	JitterMax   time.Duration
	StopTimeout time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		MaxSleep:    5 * time.Second,
		MinSleep:    time.Second,
		PausePoll:   time.Second,
		JitterMin:   time.Second,
		JitterMax:   3 * time.Second,
		StopTimeout: 2 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.MaxSleep <= 0 {
		t.MaxSleep = def.MaxSleep
	}
	if t.MinSleep <= 0 {
		t.MinSleep = def.MinSleep
	}
	if t.MinSleep > t.MaxSleep {
		t.MinSleep = t.MaxSleep
	}
	if t.PausePoll <= 0 {
		t.PausePoll = def.PausePoll
	}
	if t.JitterMin <= 0 {
		t.JitterMin = def.JitterMin
	}
	if t.JitterMax <= 0 {
		t.JitterMax = def.JitterMax
	}
	if t.JitterMax < t.JitterMin {
		t.JitterMax = t.JitterMin
	}
	if t.StopTimeout <= 0 {
		t.StopTimeout = def.StopTimeout
	}
	return t
}

// sleepFor clamps the time until the next deadline into [MinSleep, MaxSleep].
func (t Timing) sleepFor(next time.Duration) time.Duration {
	if next > t.MaxSleep {
		next = t.MaxSleep
	}
	if next < t.MinSleep {
		next = t.MinSleep
	}
	return next
}

func (t Timing) jitter(rng *rand.Rand) time.Duration {
	span := int64(t.JitterMax - t.JitterMin)
	if span <= 0 || rng == nil {
		return t.JitterMin
	}
	return t.JitterMin + time.Duration(rng.Int63n(span+1))
}
