package kollmorgen

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/nasa-jpl/akd2g/comm"
	"github.com/nasa-jpl/akd2g/motor"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

const (
	// Terminator ends every request and reply
	Terminator = '\n'

	// Prompt is printed by the drive's terminal interface ahead of a reply
	Prompt = "-->"

	// DefaultTimeout is the read/write timeout of an exchange
	DefaultTimeout = 3 * time.Second

	// idle connections are closed after this long
	poolTimeout = time.Minute

	// largest reply we expect
	replyBufSize = 1500
)

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string, timeout time.Duration) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        115200,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout}
}

// Options configure a Controller.  The zero value is usable.
type Options struct {
	// Name is used in log prefixes and reports
	Name string

	// Timeout is the exchange timeout, DefaultTimeout if zero
	Timeout time.Duration

	// CommandRate is the most exchanges per second, 0 for no limit
	CommandRate float64

	// Params receives the status of every axis.  A private store is made
	// if nil.
	Params motor.Publisher
}

// lineTransport exchanges newline terminated lines over a pooled connection
type lineTransport struct {
	pool    *comm.Pool
	timeout time.Duration
	lim     *rate.Limiter
}

// Exchange writes cmd and reads one line back
func (t *lineTransport) Exchange(cmd string) (string, error) {
	conn, err := t.pool.Get()
	if err != nil {
		return "", &TransportError{Cmd: cmd, Err: err}
	}
	defer func() { t.pool.ReturnWithError(conn, err) }()
	var rw io.ReadWriter = conn
	if tw, terr := comm.NewTimeout(conn, t.timeout); terr == nil {
		rw = tw
	}
	if t.lim != nil {
		rw = comm.NewThrottle(rw, t.lim)
	}
	wrap := comm.NewTerminator(rw, Terminator, Terminator)
	_, err = io.WriteString(wrap, cmd)
	if err != nil {
		return "", &TransportError{Cmd: cmd, Err: err}
	}
	buf := make([]byte, replyBufSize)
	n, err := wrap.Read(buf)
	if err != nil {
		return "", &TransportError{Cmd: cmd, Err: err}
	}
	return cleanReply(string(buf[:n])), nil
}

// Controller is an AKD2G drive with one or more axes.  Axis i (0-based) is
// addressed on the wire as AXIS<i+1>.
type Controller struct {
	name string
	xch  Exchanger
	axes []*Axis
}

// NewController returns a Controller for the drive at addr, a host:port or a
// serial device when serial is true
func NewController(addr string, serial bool, numAxes int, opts Options) *Controller {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	var maker comm.CreationFunc
	if serial {
		maker = comm.SerialConnMaker(makeSerConf(addr, opts.Timeout))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, opts.Timeout)
	}
	t := &lineTransport{
		// the drive serves one terminal session at a time
		pool:    comm.NewPool(1, poolTimeout, maker),
		timeout: opts.Timeout,
	}
	if opts.CommandRate > 0 {
		t.lim = rate.NewLimiter(rate.Limit(opts.CommandRate), 1)
	}
	if opts.Name == "" {
		opts.Name = addr
	}
	return NewControllerWithExchanger(t, numAxes, opts)
}

// NewControllerWithExchanger returns a Controller that talks through x
func NewControllerWithExchanger(x Exchanger, numAxes int, opts Options) *Controller {
	if opts.Params == nil {
		opts.Params = motor.NewParams()
	}
	c := &Controller{name: opts.Name, xch: x}
	for i := 0; i < numAxes; i++ {
		prefix := fmt.Sprintf("akd2g[%s] AXIS%d ", opts.Name, i+1)
		logger := log.New(os.Stderr, prefix, log.LstdFlags)
		c.axes = append(c.axes, NewAxis(x, i, opts.Params, logger))
	}
	return c
}

// Exchange sends one command and returns the reply
func (c *Controller) Exchange(cmd string) (string, error) {
	return c.xch.Exchange(cmd)
}

// Raw sends a command verbatim and returns the reply
func (c *Controller) Raw(s string) (string, error) {
	return c.xch.Exchange(s)
}

// NumAxes is the number of axes of the drive
func (c *Controller) NumAxes() int {
	return len(c.axes)
}

// Axis returns the axis with 0-based index i, or nil if there is none
func (c *Controller) Axis(i int) *Axis {
	if i < 0 || i >= len(c.axes) {
		return nil
	}
	return c.axes[i]
}

// Axes returns every axis, in index order
func (c *Controller) Axes() []motor.Axis {
	out := make([]motor.Axis, len(c.axes))
	for i, a := range c.axes {
		out[i] = a
	}
	return out
}

// Name queries the drive for its name
func (c *Controller) Name() (string, error) {
	return c.xch.Exchange(Unbound(CmdDriveName))
}

// Faults queries the drive for its active faults
func (c *Controller) Faults() (string, error) {
	return c.xch.Exchange(Unbound(CmdDriveFaults))
}

// ClearFaults clears the drive's faults
func (c *Controller) ClearFaults() error {
	_, err := c.xch.Exchange(Unbound(CmdDriveClearFaults))
	return err
}

// Report writes the drive name, the number of axes, and each axis to w
func (c *Controller) Report(w io.Writer, level int) {
	name, err := c.Name()
	if err != nil {
		name = "unknown (" + err.Error() + ")"
	}
	fmt.Fprintf(w, "AKD2G drive %s\n", c.name)
	fmt.Fprintf(w, "  drive name: %s\n", name)
	fmt.Fprintf(w, "  axes: %d\n", len(c.axes))
	for _, a := range c.axes {
		a.Report(w, level)
	}
}
