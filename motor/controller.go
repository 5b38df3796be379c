package motor

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownAxis is returned for an axis label that does not name an axis
	ErrUnknownAxis = errors.New("axis label does not name an axis, labels are 1-based integers")

	// ErrNotSupported is returned when the driver lacks an optional capability
	ErrNotSupported = errors.New("operation not supported by this driver")

	// ErrNoStatus is returned when an axis has never published its status
	ErrNoStatus = errors.New("axis has not been polled yet")
)

// AxisSettings holds the motion profile used for an axis.  Velocities are in
// engineering units per second, accelerations per second squared.
type AxisSettings struct {
	Velocity         float64
	BaseVelocity     float64
	Acceleration     float64
	HomeVelocity     float64
	HomeAcceleration float64
	HomeForwards     bool
}

// PollConfig is the polling cadence of a controller
type PollConfig struct {
	// MovingPeriod is the time between polls while any axis moves
	MovingPeriod time.Duration

	// IdlePeriod is the time between polls while no axis moves
	IdlePeriod time.Duration

	// ForcedFastPolls is the number of polls at MovingPeriod after a wake
	ForcedFastPolls int
}

// Controller adapts a Driver to the generic motion interfaces, which address
// axes by string label.  Labels are the drive's own 1-based numbering,
// "1".."N".  Every axis call made through a Controller, including polls,
// holds its mutex.
type Controller struct {
	name     string
	drv      Driver
	axes     []Axis
	params   *Params
	cfg      PollConfig
	poller   *Poller
	settings []AxisSettings
	lastErr  []string

	mu sync.Mutex
}

// NewController returns a Controller for drv.  params must be the store the
// driver's axes publish into.  The poller is not started until Start.
func NewController(name string, drv Driver, params *Params, cfg PollConfig) *Controller {
	axes := drv.Axes()
	c := &Controller{
		name:     name,
		drv:      drv,
		axes:     axes,
		params:   params,
		cfg:      cfg,
		settings: make([]AxisSettings, len(axes)),
		lastErr:  make([]string, len(axes)),
	}
	c.poller = NewPoller(c.pollAll, cfg.MovingPeriod, cfg.IdlePeriod, cfg.ForcedFastPolls)
	return c
}

// Name is the name of the controller
func (c *Controller) Name() string {
	return c.name
}

// AxisLabels returns the labels of every axis, "1".."N"
func (c *Controller) AxisLabels() []string {
	out := make([]string, len(c.axes))
	for i := range c.axes {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

// Params is the store the axes publish into
func (c *Controller) Params() *Params {
	return c.params
}

// Start begins polling
func (c *Controller) Start() {
	c.poller.Start()
}

// Close stops polling
func (c *Controller) Close() {
	c.poller.Stop()
}

// Wake forces an immediate poll
func (c *Controller) Wake() {
	c.poller.Wake()
}

// PollOnce polls every axis once and returns true if any is moving
func (c *Controller) PollOnce() bool {
	return c.pollAll()
}

func (c *Controller) pollAll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	anyMoving := false
	for i, a := range c.axes {
		res, err := a.Poll()
		if err != nil {
			// only log changes, a disconnected drive would flood the log
			if s := err.Error(); s != c.lastErr[i] {
				log.Printf("%s axis %d poll failed: %s", c.name, i+1, s)
				c.lastErr[i] = s
			}
			continue
		}
		if c.lastErr[i] != "" {
			log.Printf("%s axis %d poll recovered", c.name, i+1)
			c.lastErr[i] = ""
		}
		if res.Moving {
			anyMoving = true
		}
	}
	return anyMoving
}

func (c *Controller) index(label string) (int, error) {
	i, err := strconv.Atoi(label)
	if err != nil || i < 1 || i > len(c.axes) {
		return 0, errors.Wrapf(ErrUnknownAxis, "axis %q", label)
	}
	return i - 1, nil
}

// SetAxisSettings replaces the motion profile of an axis
func (c *Controller) SetAxisSettings(axis string, s AxisSettings) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings[i] = s
	return nil
}

// AxisSettings returns the motion profile of an axis
func (c *Controller) AxisSettings(axis string) (AxisSettings, error) {
	i, err := c.index(axis)
	if err != nil {
		return AxisSettings{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings[i], nil
}

// GetPos polls the axis and returns its position
func (c *Controller) GetPos(axis string) (float64, error) {
	i, err := c.index(axis)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.axes[i].Poll()
	if err != nil {
		return 0, err
	}
	return res.Position, nil
}

// MoveAbs moves an axis to an absolute position
func (c *Controller) MoveAbs(axis string, pos float64) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	err = c.moveTo(i, pos)
	if err == nil {
		c.poller.Wake()
	}
	return err
}

func (c *Controller) moveTo(i int, pos float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.settings[i]
	return c.axes[i].Move(pos, s.BaseVelocity, s.Velocity, s.Acceleration)
}

// MoveRel moves an axis by delta from its last polled position
func (c *Controller) MoveRel(axis string, delta float64) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	st, ok := c.params.Status(i)
	if !ok {
		return errors.Wrapf(ErrNoStatus, "axis %s", axis)
	}
	err = c.moveTo(i, st.Position+delta)
	if err == nil {
		c.poller.Wake()
	}
	return err
}

// Home homes an axis
func (c *Controller) Home(axis string) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	c.mu.Lock()
	s := c.settings[i]
	err = c.axes[i].Home(s.BaseVelocity, s.HomeVelocity, s.HomeAcceleration, s.HomeForwards)
	c.mu.Unlock()
	if err == nil {
		c.poller.Wake()
	}
	return err
}

// Stop aborts motion on an axis
func (c *Controller) Stop(axis string) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	c.mu.Lock()
	err = c.axes[i].Stop(c.settings[i].Acceleration)
	c.mu.Unlock()
	c.poller.Wake()
	return err
}

// Enable enables an axis
func (c *Controller) Enable(axis string) error {
	return c.setClosedLoop(axis, true)
}

// Disable disables an axis
func (c *Controller) Disable(axis string) error {
	return c.setClosedLoop(axis, false)
}

func (c *Controller) setClosedLoop(axis string, b bool) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.axes[i].SetClosedLoop(b)
}

// GetEnabled returns true if the axis is enabled.  If the driver cannot
// query it, the last published power state is returned.
func (c *Controller) GetEnabled(axis string) (bool, error) {
	i, err := c.index(axis)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.axes[i].(EnabledQueryer); ok {
		return q.IsEnabled(), nil
	}
	st, ok := c.params.Status(i)
	if !ok {
		return false, errors.Wrapf(ErrNoStatus, "axis %s", axis)
	}
	return st.PowerOn, nil
}

// SetVelocity sets the velocity used for subsequent moves
func (c *Controller) SetVelocity(axis string, v float64) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings[i].Velocity = v
	return nil
}

// GetVelocity returns the velocity used for moves
func (c *Controller) GetVelocity(axis string) (float64, error) {
	i, err := c.index(axis)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings[i].Velocity, nil
}

// GetInPosition polls the axis and returns true if it is done moving
func (c *Controller) GetInPosition(axis string) (bool, error) {
	i, err := c.index(axis)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.axes[i].Poll()
	if err != nil {
		return false, err
	}
	return res.Done, nil
}

// GetStatus returns the last published status of an axis
func (c *Controller) GetStatus(axis string) (Status, error) {
	i, err := c.index(axis)
	if err != nil {
		return Status{}, err
	}
	st, ok := c.params.Status(i)
	if !ok {
		return Status{}, errors.Wrapf(ErrNoStatus, "axis %s", axis)
	}
	return st, nil
}

// Initialize runs the power-on sequence of an axis
func (c *Controller) Initialize(axis string) error {
	i, err := c.index(axis)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	init, ok := c.axes[i].(Initializer)
	if !ok {
		return ErrNotSupported
	}
	return init.Initialize()
}

// Raw sends a command to the drive verbatim and returns the reply
func (c *Controller) Raw(s string) (string, error) {
	raw, ok := c.drv.(interface {
		Raw(string) (string, error)
	})
	if !ok {
		return "", ErrNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return raw.Raw(s)
}

// Report writes the polling configuration and the driver's report to w
func (c *Controller) Report(w io.Writer, level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, "%s\n", c.name)
	fmt.Fprintf(w, "  moving poll period: %v\n", c.cfg.MovingPeriod)
	fmt.Fprintf(w, "  idle poll period: %v\n", c.cfg.IdlePeriod)
	fmt.Fprintf(w, "  forced fast polls: %d\n", c.cfg.ForcedFastPolls)
	c.drv.Report(w, level)
}
