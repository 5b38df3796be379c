/*Package comm provides connection plumbing for ASCII line-protocol hardware.

Most usages of this package will boil down to:
	1.  build a CreationFunc with BackingOffTCPConnMaker or SerialConnMaker
	2.  put it in a Pool, usually of size 1 for devices that only accept a
		single client
	3.  for each request, Get a connection, wrap it with NewTimeout,
		NewThrottle and NewTerminator as needed, write the request and read
		one reply, then ReturnWithError

A minimal example for a drive that responds to "DRV.NAME" with its name:

	maker := comm.BackingOffTCPConnMaker("192.168.1.10:23", 3*time.Second)
	pool := comm.NewPool(1, time.Minute, maker)

	func name() (string, error) {
		conn, err := pool.Get()
		if err != nil {
			return "", err
		}
		defer func() { pool.ReturnWithError(conn, err) }()
		wrap := comm.NewTerminator(conn, '\n', '\n')
		_, err = io.WriteString(wrap, "DRV.NAME")
		if err != nil {
			return "", err
		}
		buf := make([]byte, 80)
		n, err := wrap.Read(buf)
		return string(buf[:n]), err
	}
*/
package comm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConnected is generated when a wrapper is used without a connection
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrTimeoutUnsupported is generated when NewTimeout is given a
	// ReadWriter that cannot have deadlines set, e.g. a serial port
	ErrTimeoutUnsupported = errors.New("connection does not support deadlines")
)

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Refused connections end the retry immediately, since
// a device that refuses will keep refusing; anything else (usually a dial
// timeout) is retried until the backoff gives up.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var (
			conn    net.Conn
			lastErr error
		)
		op := func() error {
			c, err := TCPSetup(addr, timeout)
			if err != nil {
				lastErr = err
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					return backoff.Permanent(err)
				}
				return err
			}
			conn = c
			return nil
		}
		// drives do not like being connection thrashed
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			if lastErr != nil && !strings.Contains(strings.ToLower(lastErr.Error()), "refused") {
				return nil, fmt.Errorf("connection timeout to %s: %w", addr, lastErr)
			}
			return nil, err
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by conf
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	}
}

// Terminator wraps a ReadWriter, appending the Tx terminator to every write
// and reading up to and stripping the Rx terminator on every read
type Terminator struct {
	rw     io.ReadWriter
	rx, tx byte
}

// NewTerminator returns a new Terminator wrapping rw
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, rx: rx, tx: tx}
}

// Write writes p with the Tx terminator appended.  The returned count
// excludes the terminator.
func (t *Terminator) Write(p []byte) (int, error) {
	if t.rw == nil {
		return 0, ErrNotConnected
	}
	buf := make([]byte, len(p), len(p)+1)
	copy(buf, p)
	buf = append(buf, t.tx)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read reads one Rx-terminated message into p, stripping the terminator.
// If p is too small, the message is truncated and io.ErrShortBuffer returned.
func (t *Terminator) Read(p []byte) (int, error) {
	if t.rw == nil {
		return 0, ErrNotConnected
	}
	buf, err := bufio.NewReader(t.rw).ReadBytes(t.rx)
	if err != nil {
		if len(buf) > 0 && err == io.EOF {
			return copy(p, buf), ErrTerminatorNotFound
		}
		return 0, err
	}
	buf = bytes.TrimSuffix(buf, []byte{t.rx})
	n := copy(p, buf)
	if n < len(buf) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Timeout wraps a ReadWriter that supports deadlines, refreshing the
// deadline before every read and write
type Timeout struct {
	rw      io.ReadWriter
	d       deadliner
	timeout time.Duration
}

// NewTimeout returns a new Timeout wrapping rw.  ErrTimeoutUnsupported is
// returned if rw cannot have deadlines set.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (*Timeout, error) {
	d, ok := rw.(deadliner)
	if !ok {
		return nil, ErrTimeoutUnsupported
	}
	return &Timeout{rw: rw, d: d, timeout: timeout}, nil
}

// Write sets the write deadline then writes p
func (t *Timeout) Write(p []byte) (int, error) {
	if err := t.d.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}

// Read sets the read deadline then reads into p
func (t *Timeout) Read(p []byte) (int, error) {
	if err := t.d.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}

// Throttle wraps a ReadWriter so that writes wait on a shared rate limiter.
// Reads are not limited.
type Throttle struct {
	rw  io.ReadWriter
	lim *rate.Limiter
}

// NewThrottle returns a new Throttle wrapping rw.  The limiter is usually
// shared by every connection to the same device.
func NewThrottle(rw io.ReadWriter, lim *rate.Limiter) *Throttle {
	return &Throttle{rw: rw, lim: lim}
}

// Write waits for the limiter, then writes p
func (t *Throttle) Write(p []byte) (int, error) {
	if err := t.lim.Wait(context.Background()); err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}

// Read reads into p
func (t *Throttle) Read(p []byte) (int, error) {
	return t.rw.Read(p)
}
