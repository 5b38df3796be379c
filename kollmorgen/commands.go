package kollmorgen

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder is the token in a command template that is replaced by the
// 1-based axis index when the template is bound to an axis
const Placeholder = "#"

// Command is a logical AKD2G operation.  The set is closed; every Command
// has exactly one template in the command table.
type Command int

const (
	// Misc.
	CmdOpMode Command = iota
	CmdUnitPRotary
	CmdUnitVRotary
	CmdUnitAccRotary
	CmdStop
	CmdEnable
	CmdDisable
	CmdIsActive
	CmdMotionStat
	CmdPosition
	CmdSTOActive

	// Homing
	CmdHomeMove
	CmdHomeVelocity
	CmdHomeAccel
	CmdHomeDecel
	CmdHomeDir
	CmdHomeFound

	// Motion task
	CmdMotionTaskPosition
	CmdMotionTaskVelocity
	CmdMotionTaskControl
	CmdMotionTaskAccel
	CmdMotionTaskDecel
	CmdMotionTaskNext
	CmdMotionTaskTimeNext
	CmdMotionTaskMove
	CmdMotionTaskRunning

	// Drive, not axis specific
	CmdDriveName
	CmdDriveFaults
	CmdDriveClearFaults
)

// template describes a command
type template struct {
	Cmd         Command
	Alias       string
	Text        string
	Description string
}

// commands is the prototype table.  It is never mutated; Bind copies it.
//
// Motion task commands address task 0, which is the only motion task this
// package uses.
var commands = []template{
	{CmdOpMode, "op-mode", "AXIS#.OPMODE", "operation mode"},
	{CmdUnitPRotary, "unit-position", "AXIS#.UNIT.PROTARY", "rotary position unit"},
	{CmdUnitVRotary, "unit-velocity", "AXIS#.UNIT.VROTARY", "rotary velocity unit"},
	{CmdUnitAccRotary, "unit-accel", "AXIS#.UNIT.ACCROTARY", "rotary acceleration unit"},
	{CmdStop, "stop", "AXIS#.STOP", "stop motion"},
	{CmdEnable, "enable", "AXIS#.EN", "enable the axis"},
	{CmdDisable, "disable", "AXIS#.DIS", "disable the axis"},
	{CmdIsActive, "is-active", "AXIS#.ACTIVE", "get if the axis is enabled"},
	{CmdMotionStat, "motion-stat", "AXIS#.MOTIONSTAT", "get motion status bitfield"},
	{CmdPosition, "get-position", "AXIS#.PL.FB", "get position feedback"},
	{CmdSTOActive, "sto-active", "AXIS#.SAFE.STO.ACTIVE", "get safe torque off state"},

	{CmdHomeMove, "home-move", "AXIS#.HOME.MOVE", "start homing"},
	{CmdHomeVelocity, "home-velocity", "AXIS#.HOME.V", "set homing velocity"},
	{CmdHomeAccel, "home-accel", "AXIS#.HOME.ACC", "set homing acceleration"},
	{CmdHomeDecel, "home-decel", "AXIS#.HOME.DEC", "set homing deceleration"},
	{CmdHomeDir, "home-dir", "AXIS#.HOME.DIR", "set homing direction"},
	{CmdHomeFound, "home-found", "AXIS#.MOTIONSTAT.HOMEFOUND", "get if the axis is homed"},

	{CmdMotionTaskPosition, "mt-position", "AXIS#.MT.P 0", "set motion task position"},
	{CmdMotionTaskVelocity, "mt-velocity", "AXIS#.MT.V 0", "set motion task velocity"},
	{CmdMotionTaskControl, "mt-control", "AXIS#.MT.CNTL 0", "set motion task control word"},
	{CmdMotionTaskAccel, "mt-accel", "AXIS#.MT.ACC 0", "set motion task acceleration"},
	{CmdMotionTaskDecel, "mt-decel", "AXIS#.MT.DEC 0", "set motion task deceleration"},
	{CmdMotionTaskNext, "mt-next", "AXIS#.MT.MTNEXT 0", "set next motion task"},
	{CmdMotionTaskTimeNext, "mt-time-next", "AXIS#.MT.TNEXT 0", "set delay before next motion task"},
	{CmdMotionTaskMove, "mt-move", "AXIS#.MT.Move 0", "start the motion task"},
	{CmdMotionTaskRunning, "mt-running", "AXIS#.MT.RUNNING 0", "get if the motion task is running"},

	{CmdDriveName, "drive-name", "DRV.NAME", "get drive name"},
	{CmdDriveFaults, "drive-faults", "DRV.FAULTS", "get active faults"},
	{CmdDriveClearFaults, "drive-clear-faults", "DRV.CLRFAULTS", "clear faults"},
}

func lookup(c Command) (template, bool) {
	for _, t := range commands {
		if t.Cmd == c {
			return t, true
		}
	}
	return template{}, false
}

// String returns the alias of the command
func (c Command) String() string {
	if t, ok := lookup(c); ok {
		return t.Alias
	}
	return "Command(" + strconv.Itoa(int(c)) + ")"
}

// Template returns the unbound template of a command
func Template(c Command) (string, bool) {
	t, ok := lookup(c)
	return t.Text, ok
}

// Unbound returns the text of an axis independent command, e.g. DRV.NAME.
// It panics if c is unknown or needs an axis.
func Unbound(c Command) string {
	t, ok := lookup(c)
	if !ok {
		panic(fmt.Sprintf("kollmorgen: unknown command %d", int(c)))
	}
	if strings.Contains(t.Text, Placeholder) {
		panic(fmt.Sprintf("kollmorgen: command %s is axis specific", t.Alias))
	}
	return t.Text
}

// BoundCommands is the command table of one axis, with the placeholder
// replaced by that axis' index.  It is read only once built.
type BoundCommands struct {
	index int
	cmds  map[Command]string
}

// Bind returns the command table for the axis with (1-based) index.  Only the
// first placeholder of each template is replaced; templates without one pass
// through unchanged.
func Bind(index int) BoundCommands {
	idx := strconv.Itoa(index)
	cmds := make(map[Command]string, len(commands))
	for _, t := range commands {
		cmds[t.Cmd] = strings.Replace(t.Text, Placeholder, idx, 1)
	}
	return BoundCommands{index: index, cmds: cmds}
}

// Index is the axis index the table was bound to
func (b BoundCommands) Index() int {
	return b.index
}

// Resolve returns the command string for c.  A missing entry is a
// programming error and panics.
func (b BoundCommands) Resolve(c Command) string {
	s, ok := b.cmds[c]
	if !ok {
		panic(fmt.Sprintf("kollmorgen: command %s not in table for AXIS%d", c, b.index))
	}
	return s
}

// Format returns the command string for c with args appended, space
// separated
func (b BoundCommands) Format(c Command, args ...interface{}) string {
	pieces := make([]string, 0, len(args)+1)
	pieces = append(pieces, b.Resolve(c))
	for _, a := range args {
		pieces = append(pieces, formatArg(a))
	}
	return strings.Join(pieces, " ")
}

func formatArg(a interface{}) string {
	switch v := a.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
