package kollmorgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	mockNotFound  = "Error: [0001] Command not found."
	mockBadValue  = "Error: [0002] Value out of range."
	mockDisabled  = "Error: [0005] Axis is disabled."
	mockNotHomed  = "Error: [0006] Axis is not homed."
	mockNoFaults  = "No faults active"
	mockDriveName = "AKD2G-MOCK"
)

type mockAxis struct {
	enabled bool
	homed   bool
	sto     bool
	opmode  int
	units   [3]int // position, velocity, acceleration

	pos     float64 // degrees
	running int     // polls of MT.RUNNING left that answer 1

	mtPos, mtVel, mtAcc, mtDec float64
	mtCntl, mtNext, mtTNext    int

	homeVel, homeAcc, homeDec float64
	homeDir                   bool
}

// Mock is an in-process AKD2G.  It answers every command of the command
// table the way the drive's terminal does.  Moves complete instantly, but
// MT.RUNNING reports 1 for RunningPolls queries after a move or home.
type Mock struct {
	sync.Mutex

	// RunningPolls is how many running queries report motion after a move
	RunningPolls int

	axes []mockAxis
	sent []string
}

// NewMock returns a simulated drive with numAxes axes, all disabled and not
// homed
func NewMock(numAxes int) *Mock {
	return &Mock{RunningPolls: 2, axes: make([]mockAxis, numAxes)}
}

// NewControllerMock returns a Controller backed by a new Mock
func NewControllerMock(numAxes int, opts Options) (*Controller, *Mock) {
	m := NewMock(numAxes)
	if opts.Name == "" {
		opts.Name = "mock"
	}
	return NewControllerWithExchanger(m, numAxes, opts), m
}

// Sent returns every command received so far
func (m *Mock) Sent() []string {
	m.Lock()
	defer m.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// ResetSent forgets the received commands
func (m *Mock) ResetSent() {
	m.Lock()
	defer m.Unlock()
	m.sent = nil
}

// SetSTO sets the safe torque off input of an axis (0-based).  Asserting it
// disables the axis.
func (m *Mock) SetSTO(axis int, active bool) {
	m.Lock()
	defer m.Unlock()
	m.axes[axis].sto = active
	if active {
		m.axes[axis].enabled = false
		m.axes[axis].running = 0
	}
}

// SetHomed sets whether an axis (0-based) has found home
func (m *Mock) SetHomed(axis int, homed bool) {
	m.Lock()
	defer m.Unlock()
	m.axes[axis].homed = homed
}

// SetEnabled sets whether an axis (0-based) is enabled
func (m *Mock) SetEnabled(axis int, enabled bool) {
	m.Lock()
	defer m.Unlock()
	m.axes[axis].enabled = enabled
}

// SetPosition sets the position of an axis (0-based), in degrees
func (m *Mock) SetPosition(axis int, deg float64) {
	m.Lock()
	defer m.Unlock()
	m.axes[axis].pos = deg
}

// Exchange answers one command
func (m *Mock) Exchange(cmd string) (string, error) {
	m.Lock()
	defer m.Unlock()
	m.sent = append(m.sent, cmd)
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", nil
	}
	head, args := fields[0], fields[1:]
	if !strings.HasPrefix(head, "AXIS") {
		return m.drive(head), nil
	}
	dot := strings.IndexByte(head, '.')
	if dot < 0 {
		return mockNotFound, nil
	}
	n, err := strconv.Atoi(head[len("AXIS"):dot])
	if err != nil || n < 1 || n > len(m.axes) {
		return mockNotFound, nil
	}
	return m.axes[n-1].exchange(head[dot+1:], args, m.RunningPolls), nil
}

func (m *Mock) drive(head string) string {
	switch head {
	case "DRV.NAME":
		return mockDriveName
	case "DRV.FAULTS":
		for _, a := range m.axes {
			if a.sto {
				return "Warning: STO active"
			}
		}
		return mockNoFaults
	case "DRV.CLRFAULTS":
		return ""
	}
	return mockNotFound
}

func mockBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func mockDeg(f float64) string {
	return fmt.Sprintf("%f [deg]", f)
}

// exchange handles one axis command.  field is everything after "AXISn.".
func (a *mockAxis) exchange(field string, args []string, runningPolls int) string {
	// motion task commands carry the task number first
	if strings.HasPrefix(field, "MT.") {
		if len(args) == 0 || args[0] != "0" {
			return mockBadValue
		}
		args = args[1:]
	}
	setF := func(dst *float64) string {
		f, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return mockBadValue
		}
		*dst = f
		return ""
	}
	setI := func(dst *int) string {
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return mockBadValue
		}
		*dst = i
		return ""
	}
	query := len(args) == 0

	switch field {
	case "ACTIVE":
		return mockBool(a.enabled)
	case "EN":
		if a.sto {
			return mockDisabled
		}
		a.enabled = true
		return ""
	case "DIS":
		a.enabled = false
		a.running = 0
		return ""
	case "STOP":
		a.running = 0
		return ""
	case "PL.FB":
		return mockDeg(a.pos)
	case "SAFE.STO.ACTIVE":
		return mockBool(a.sto)
	case "MOTIONSTAT":
		stat := 0
		if a.running > 0 {
			stat |= 1
		}
		if a.homed {
			stat |= 1 << 1
		}
		return strconv.Itoa(stat)
	case "MOTIONSTAT.HOMEFOUND":
		return mockBool(a.homed)
	case "OPMODE":
		if query {
			return strconv.Itoa(a.opmode)
		}
		return setI(&a.opmode)
	case "UNIT.PROTARY", "UNIT.VROTARY", "UNIT.ACCROTARY":
		i := map[string]int{"UNIT.PROTARY": 0, "UNIT.VROTARY": 1, "UNIT.ACCROTARY": 2}[field]
		if query {
			return strconv.Itoa(a.units[i])
		}
		return setI(&a.units[i])

	case "HOME.V":
		if query {
			return strconv.FormatFloat(a.homeVel, 'f', 3, 64)
		}
		return setF(&a.homeVel)
	case "HOME.ACC":
		if query {
			return strconv.FormatFloat(a.homeAcc, 'f', 3, 64)
		}
		return setF(&a.homeAcc)
	case "HOME.DEC":
		if query {
			return strconv.FormatFloat(a.homeDec, 'f', 3, 64)
		}
		return setF(&a.homeDec)
	case "HOME.DIR":
		if query {
			return mockBool(a.homeDir)
		}
		a.homeDir = args[0] != "0"
		return ""
	case "HOME.MOVE":
		if !a.enabled {
			return mockDisabled
		}
		a.homed = true
		a.pos = 0
		a.running = runningPolls
		return ""

	case "MT.P":
		if query {
			return mockDeg(a.mtPos)
		}
		return setF(&a.mtPos)
	case "MT.V":
		if query {
			return strconv.FormatFloat(a.mtVel, 'f', 3, 64)
		}
		return setF(&a.mtVel)
	case "MT.ACC":
		if query {
			return strconv.FormatFloat(a.mtAcc, 'f', 3, 64)
		}
		return setF(&a.mtAcc)
	case "MT.DEC":
		if query {
			return strconv.FormatFloat(a.mtDec, 'f', 3, 64)
		}
		return setF(&a.mtDec)
	case "MT.CNTL":
		if query {
			return strconv.Itoa(a.mtCntl)
		}
		return setI(&a.mtCntl)
	case "MT.MTNEXT":
		if query {
			return strconv.Itoa(a.mtNext)
		}
		return setI(&a.mtNext)
	case "MT.TNEXT":
		if query {
			return strconv.Itoa(a.mtTNext)
		}
		return setI(&a.mtTNext)
	case "MT.Move":
		if !a.enabled {
			return mockDisabled
		}
		if !a.homed {
			return mockNotHomed
		}
		if a.mtCntl == 0 {
			a.pos = a.mtPos
		} else {
			a.pos += a.mtPos
		}
		a.running = runningPolls
		return ""
	case "MT.RUNNING":
		if a.running > 0 {
			a.running--
			return "1"
		}
		return "0"
	}
	return mockNotFound
}
