// Package motor is the host runtime for per-axis motion drivers.
//
// A driver supplies one Axis per physical axis.  The runtime owns the axes,
// polls them on a moving/idle cadence, serializes every call to a given
// controller, and exposes the published Status of each axis to HTTP and
// prometheus.  Drivers publish into a Params store; they do not talk to
// either surface directly.
package motor

import (
	"io"
	"sort"
	"sync"
)

// Status is the published state of one axis
type Status struct {
	// Position is the last polled position, in engineering units
	Position float64 `json:"position"`

	// EncoderPosition mirrors Position; the drive reads the encoder directly
	EncoderPosition float64 `json:"encoderPosition"`

	Done        bool `json:"done"`
	Moving      bool `json:"moving"`
	HasEncoder  bool `json:"hasEncoder"`
	GainSupport bool `json:"gainSupport"`

	// CommsError is true when the transport failed
	CommsError bool `json:"commsError"`

	// Problem is true when the axis refused a motion request
	Problem bool `json:"problem"`

	PowerOn   bool `json:"powerOn"`
	LowLimit  bool `json:"lowLimit"`
	HighLimit bool `json:"highLimit"`
	Homed     bool `json:"homed"`
}

// PollResult is what one poll cycle learned about an axis
type PollResult struct {
	Moving   bool
	Done     bool
	Position float64
}

// Axis is the set of operations the runtime needs from a driver's axis.
// Calls on one Axis are never concurrent; the runtime guarantees it.
type Axis interface {
	// Poll queries the drive and publishes the result
	Poll() (PollResult, error)

	// Move starts an absolute move to pos
	Move(pos, minVelocity, maxVelocity, acceleration float64) error

	// Home starts a homing sequence
	Home(minVelocity, maxVelocity, acceleration float64, forwards bool) error

	// Stop aborts motion
	Stop(acceleration float64) error

	// SetClosedLoop enables or disables the axis
	SetClosedLoop(enable bool) error

	// Report writes a human readable description of the axis to w
	Report(w io.Writer, level int)
}

// EnabledQueryer is an Axis that can ask the drive if it is enabled
type EnabledQueryer interface {
	IsEnabled() bool
}

// Initializer is an Axis with a power-on sequence
type Initializer interface {
	Initialize() error
}

// Driver is a controller that owns a fixed list of axes
type Driver interface {
	Axes() []Axis
	Report(w io.Writer, level int)
}

// Publisher receives the status of an axis.  axis is the 0-based index.
type Publisher interface {
	Publish(axis int, s Status)
}

// Params is a concurrent safe Publisher that remembers the last Status of
// every axis
type Params struct {
	mu sync.RWMutex
	m  map[int]Status
}

// NewParams returns an empty parameter store
func NewParams() *Params {
	return &Params{m: make(map[int]Status)}
}

// Publish stores s as the status of axis
func (p *Params) Publish(axis int, s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[axis] = s
}

// Status returns the last published status of axis, and whether anything
// was published for it yet
func (p *Params) Status(axis int) (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.m[axis]
	return s, ok
}

// Snapshot returns a copy of every published status
func (p *Params) Snapshot() map[int]Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[int]Status, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return out
}

// Indices returns the axis indices with a published status, in order
func (p *Params) Indices() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int, 0, len(p.m))
	for k := range p.m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
