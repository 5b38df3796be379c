package kollmorgen

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/nasa-jpl/akd2g/motor"
	"github.com/pkg/errors"
)

// State is the derived state of an axis.  It is refreshed by polls and by
// the precondition checks of move and home.
type State struct {
	Enabled bool
	Homed   bool
	Moving  bool

	// PositionNative is in degrees
	PositionNative float64

	// PositionEngineering is in microdegrees
	PositionEngineering float64

	// LastError is the most recent transport or parse failure, nil if the
	// last operation succeeded
	LastError error
}

// Axis is one axis of an AKD2G drive.  It is not safe for concurrent use;
// the host serializes calls.
type Axis struct {
	ctl   Exchanger
	no    int // 0-based
	cmds  BoundCommands
	store motor.Publisher
	log   *log.Logger

	state  State
	status motor.Status
}

// NewAxis returns the axis with 0-based index axisNo, exchanging through ctl
// and publishing into store.  If logger is nil, one prefixed with the axis
// is made.
func NewAxis(ctl Exchanger, axisNo int, store motor.Publisher, logger *log.Logger) *Axis {
	if logger == nil {
		logger = log.New(os.Stderr, fmt.Sprintf("akd2g AXIS%d ", axisNo+1), log.LstdFlags)
	}
	a := &Axis{
		ctl:   ctl,
		no:    axisNo,
		cmds:  Bind(axisNo + 1),
		store: store,
		log:   logger,
	}
	a.status.HasEncoder = true
	a.status.GainSupport = true
	a.status.Done = true
	a.publish()
	return a
}

// Index is the 0-based index of the axis
func (a *Axis) Index() int {
	return a.no
}

// Commands returns the command table bound to this axis
func (a *Axis) Commands() BoundCommands {
	return a.cmds
}

// State returns a copy of the axis state
func (a *Axis) State() State {
	return a.state
}

// Status returns a copy of the published status
func (a *Axis) Status() motor.Status {
	return a.status
}

// Faulted is true when the last operation failed and the axis is disabled
func (a *Axis) Faulted() bool {
	return a.state.LastError != nil && !a.state.Enabled
}

func (a *Axis) publish() {
	a.status.Moving = a.state.Moving
	a.status.Done = !a.state.Moving
	a.status.Position = a.state.PositionEngineering
	a.status.EncoderPosition = a.state.PositionEngineering
	a.status.Homed = a.state.Homed
	if a.store != nil {
		a.store.Publish(a.no, a.status)
	}
}

// exchange performs one round trip.  Transport failures mark commsError.
func (a *Axis) exchange(cmd string) (string, error) {
	resp, err := a.ctl.Exchange(cmd)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Cmd: cmd, Err: err}
		}
		a.status.CommsError = true
		a.state.LastError = err
		return "", err
	}
	return resp, nil
}

// send is exchange for commands whose reply carries nothing
func (a *Axis) send(cmd string) error {
	a.log.Println(cmd)
	_, err := a.exchange(cmd)
	return err
}

// IsEnabled asks the drive if the axis is enabled.  Any failure reads as
// disabled.
func (a *Axis) IsEnabled() bool {
	defer a.publish()
	resp, err := a.exchange(a.cmds.Resolve(CmdIsActive))
	if err != nil {
		a.state.Enabled = false
		a.status.PowerOn = false
		return false
	}
	b, err := ParseBool(resp)
	if err != nil {
		a.log.Println(err)
		a.state.LastError = err
		b = false
	}
	a.state.Enabled = b
	a.status.PowerOn = b
	return b
}

func (a *Axis) requireEnabled() error {
	if !a.IsEnabled() {
		a.status.Problem = true
		return ErrNotEnabled
	}
	return nil
}

func (a *Axis) requireHomed() error {
	resp, err := a.exchange(a.cmds.Resolve(CmdHomeFound))
	if err != nil {
		return errors.Wrap(ErrStatusUnavailable, err.Error())
	}
	b, err := ParseBool(resp)
	if err != nil {
		a.log.Println(err)
		a.state.LastError = err
		return errors.Wrap(ErrStatusUnavailable, err.Error())
	}
	a.state.Homed = b
	if !b {
		a.status.Problem = true
		return ErrNotHomed
	}
	return nil
}

// run executes steps in order, stopping at the first failure
func (a *Axis) run(op string, steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return &MoveError{Axis: a.no + 1, Op: op, Err: err}
		}
	}
	return nil
}

// sendAll returns a step that sends cmds in order, stopping at the first failure
func (a *Axis) sendAll(cmds ...string) func() error {
	return func() error {
		for _, cmd := range cmds {
			if err := a.send(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

// Move starts motion task 0 toward pos.  pos, maxVelocity and acceleration
// are in engineering units and deceleration equals acceleration.
// minVelocity is accepted for the motion interface; the drive has no base
// velocity.  Nothing is sent unless the axis is enabled and homed.
func (a *Axis) Move(pos, minVelocity, maxVelocity, acceleration float64) error {
	defer a.publish()
	acc := ToNative(acceleration)
	err := a.run("move",
		a.requireEnabled,
		a.requireHomed,
		a.sendAll(
			a.cmds.Format(CmdMotionTaskControl, 0),
			a.cmds.Format(CmdMotionTaskPosition, ToNative(pos)),
			a.cmds.Format(CmdMotionTaskVelocity, ToNative(maxVelocity)),
			a.cmds.Format(CmdMotionTaskAccel, acc),
			a.cmds.Format(CmdMotionTaskDecel, acc),
			a.cmds.Resolve(CmdMotionTaskMove),
		))
	if err == nil {
		a.status.Problem = false
	}
	return err
}

// Home starts the drive's homing sequence in the given direction
func (a *Axis) Home(minVelocity, maxVelocity, acceleration float64, forwards bool) error {
	defer a.publish()
	acc := ToNative(acceleration)
	err := a.run("home",
		a.requireEnabled,
		a.sendAll(
			a.cmds.Format(CmdHomeVelocity, ToNative(maxVelocity)),
			a.cmds.Format(CmdHomeAccel, acc),
			a.cmds.Format(CmdHomeDecel, acc),
			a.cmds.Format(CmdHomeDir, forwards),
			a.cmds.Resolve(CmdHomeMove),
		))
	if err == nil {
		a.status.Problem = false
	}
	return err
}

// Stop halts the axis.  acceleration is ignored, the drive stops with its
// own deceleration.
func (a *Axis) Stop(acceleration float64) error {
	defer a.publish()
	return a.send(a.cmds.Resolve(CmdStop))
}

// SetClosedLoop enables or disables the axis.  The drive's acceptance is
// seen on the next IsEnabled.
func (a *Axis) SetClosedLoop(enable bool) error {
	defer a.publish()
	cmd := CmdDisable
	if enable {
		cmd = CmdEnable
	}
	if err := a.send(a.cmds.Resolve(cmd)); err != nil {
		return err
	}
	a.status.PowerOn = enable
	return nil
}

// Initialize clears drive faults and enables the axis
func (a *Axis) Initialize() error {
	defer a.publish()
	if err := a.send(a.cmds.Resolve(CmdDriveClearFaults)); err != nil {
		return err
	}
	if err := a.send(a.cmds.Resolve(CmdEnable)); err != nil {
		return err
	}
	a.status.PowerOn = true
	return nil
}

// Poll reads the motion task state, the position and the safe torque off
// state.  A transport failure ends the cycle early; what was read is still
// published.  Malformed replies leave the affected field as it was.
func (a *Axis) Poll() (motor.PollResult, error) {
	a.status.CommsError = false
	a.state.LastError = nil
	defer a.publish()

	resp, err := a.exchange(a.cmds.Resolve(CmdMotionTaskRunning))
	if err != nil {
		return a.result(), err
	}
	if b, perr := ParseBool(resp); perr != nil {
		a.log.Println(perr)
		a.state.LastError = perr
	} else {
		a.state.Moving = b
	}

	resp, err = a.exchange(a.cmds.Resolve(CmdPosition))
	if err != nil {
		return a.result(), err
	}
	if f, perr := ParseMeasurement(resp); perr != nil {
		a.log.Println(perr)
		a.state.LastError = perr
	} else {
		a.state.PositionNative = f
	}
	a.state.PositionEngineering = ToEngineering(a.state.PositionNative)

	resp, err = a.exchange(a.cmds.Resolve(CmdSTOActive))
	if err != nil {
		return a.result(), err
	}
	if b, perr := ParseBool(resp); perr != nil {
		a.log.Println(perr)
		a.state.LastError = perr
	} else {
		a.status.LowLimit = b
		a.status.HighLimit = b
		if b {
			a.status.PowerOn = false
		}
	}
	return a.result(), nil
}

func (a *Axis) result() motor.PollResult {
	return motor.PollResult{
		Moving:   a.state.Moving,
		Done:     !a.state.Moving,
		Position: a.state.PositionEngineering,
	}
}

// Report writes the axis number and state to w if level > 0.  Level > 1
// adds the published flags.
func (a *Axis) Report(w io.Writer, level int) {
	if level <= 0 {
		return
	}
	s := a.state
	fmt.Fprintf(w, "  axis %d (AXIS%d)\n", a.no, a.no+1)
	fmt.Fprintf(w, "    enabled: %t homed: %t moving: %t\n", s.Enabled, s.Homed, s.Moving)
	fmt.Fprintf(w, "    position: %f [deg] %f [EGU]\n", s.PositionNative, s.PositionEngineering)
	if s.LastError != nil {
		fmt.Fprintf(w, "    last error: %v\n", s.LastError)
	}
	if level > 1 {
		st := a.status
		fmt.Fprintf(w, "    commsError: %t problem: %t powerOn: %t lowLimit: %t highLimit: %t\n",
			st.CommsError, st.Problem, st.PowerOn, st.LowLimit, st.HighLimit)
	}
}
