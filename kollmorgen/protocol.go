package kollmorgen

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotEnabled is returned when motion is requested of a disabled axis
	ErrNotEnabled = errors.New("axis is not enabled")

	// ErrNotHomed is returned when a move is requested of an axis that has
	// not found home
	ErrNotHomed = errors.New("axis is not homed")

	// ErrStatusUnavailable is returned when the homed state could not be read
	ErrStatusUnavailable = errors.New("axis status unavailable")
)

// Exchanger sends one command and returns one reply.  It blocks until the
// reply arrives or the transport gives up.
type Exchanger interface {
	Exchange(cmd string) (string, error)
}

// TransportError is an exchange that produced no reply
type TransportError struct {
	Cmd string
	Err error
}

func (e *TransportError) Error() string {
	return "kollmorgen: exchange " + strconv.Quote(e.Cmd) + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a reply that was not in the expected shape
type ParseError struct {
	Reply string
	Kind  string // "bool" or "measurement"
	Err   error
}

func (e *ParseError) Error() string {
	return "kollmorgen: reply " + strconv.Quote(e.Reply) + " is not a " + e.Kind + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error { return e.Err }

// MoveError is a move or home that was refused or failed part way.  Err is
// one of the sentinel errors of this package, or a *TransportError.
type MoveError struct {
	Axis int // 1-based
	Op   string
	Err  error
}

func (e *MoveError) Error() string {
	return "kollmorgen: AXIS" + strconv.Itoa(e.Axis) + " " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *MoveError) Unwrap() error { return e.Err }

// ParseBool interprets a reply as an integer, nonzero being true
func ParseBool(reply string) (bool, error) {
	s := strings.TrimSpace(reply)
	i, err := strconv.Atoi(s)
	if err != nil {
		return false, &ParseError{Reply: reply, Kind: "bool", Err: err}
	}
	return i != 0, nil
}

// ParseMeasurement parses a number with an optional unit annotation,
// e.g. "3.140000 [deg]"
func ParseMeasurement(reply string) (float64, error) {
	s := reply
	if idx := strings.IndexByte(s, '['); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Reply: reply, Kind: "measurement", Err: err}
	}
	return f, nil
}

// cleanReply trims line endings and the drive's prompt from a reply
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, Prompt)
	s = strings.TrimSuffix(s, Prompt)
	return strings.TrimSpace(s)
}
