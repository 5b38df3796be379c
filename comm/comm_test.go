package comm_test

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/nasa-jpl/akd2g/comm"
	"golang.org/x/time/rate"
)

// tcpEchoServer starts a loopback server that echoes everything it reads and
// returns its address
func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen, test aborted:", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }() // use goroutines to handle multiple connections
		}
	}()
	return ln.Addr().String()
}

func echoMaker(addr string) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
}

func TestPoolToCapacity(t *testing.T) {
	addr := tcpEchoServer(t)
	poolSize := 3
	pool := comm.NewPool(poolSize, time.Second, echoMaker(addr))
	for i := 0; i < poolSize; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal("could not get connection:", err)
		}
	}
	if pool.Active() != poolSize {
		t.Errorf("expected %d connections on lease, got %d", poolSize, pool.Active())
	}
}

func TestPoolReleasesReuse(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(3, time.Second, echoMaker(addr))
	for i := 0; i < 3; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		pool.Put(conn)
	}
	if pool.Size() != 1 {
		t.Errorf("expected a single reused connection, pool holds %d", pool.Size())
	}
}

func TestPoolReleasesExpire(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(3, 10*time.Millisecond, echoMaker(addr))
	conn, err := pool.Get()
	if err != nil {
		t.Fatal("could not get connection:", err)
	}
	pool.Put(conn)
	time.Sleep(200 * time.Millisecond)
	if pool.Size() != 0 {
		t.Errorf("expected idle connections to be reclaimed, pool holds %d", pool.Size())
	}
}

func TestPoolMaintainsSize(t *testing.T) {
	addr := tcpEchoServer(t)
	poolSize := 2
	pool := comm.NewPool(poolSize, time.Second, echoMaker(addr))
	for i := 0; i < poolSize; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal("could not get connection:", err)
		}
	}
	newConn := make(chan io.ReadWriter, 1)
	// now that they are all taken out, try to get a new one
	go func() {
		rw, _ := pool.Get()
		newConn <- rw
	}()
	select {
	case <-newConn:
		t.Fatal("failed to prevent pool overflow")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReturnWithErrorDestroys(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(1, time.Second, echoMaker(addr))
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.ReturnWithError(conn, io.ErrUnexpectedEOF)
	if pool.Size() != 0 {
		t.Errorf("expected a destroyed connection to leave the pool empty, got %d", pool.Size())
	}
}

func TestTerminatorRoundTripOverEcho(t *testing.T) {
	addr := tcpEchoServer(t)
	conn, err := comm.TCPSetup(addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	tw, err := comm.NewTimeout(conn, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	wrap := comm.NewTerminator(tw, '\n', '\n')
	_, err = io.WriteString(wrap, "AXIS1.PL.FB")
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := wrap.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "AXIS1.PL.FB" {
		t.Errorf("expected terminator to be stripped from echo, got %q", got)
	}
}

func TestTerminatorShortBuffer(t *testing.T) {
	var rw bytes.Buffer
	rw.WriteString("3.140000 [deg]\n")
	wrap := comm.NewTerminator(&rw, '\n', '\n')
	buf := make([]byte, 4)
	n, err := wrap.Read(buf)
	if err != io.ErrShortBuffer {
		t.Errorf("expected io.ErrShortBuffer, got %v", err)
	}
	if string(buf[:n]) != "3.14" {
		t.Errorf("expected truncated read 3.14, got %q", buf[:n])
	}
}

func TestTimeoutUnsupported(t *testing.T) {
	var rw bytes.Buffer
	_, err := comm.NewTimeout(&rw, time.Second)
	if err != comm.ErrTimeoutUnsupported {
		t.Errorf("expected ErrTimeoutUnsupported for a bytes.Buffer, got %v", err)
	}
}

func TestThrottleSpacesWrites(t *testing.T) {
	var rw bytes.Buffer
	lim := rate.NewLimiter(rate.Limit(20), 1)
	wrap := comm.NewThrottle(&rw, lim)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := wrap.Write([]byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	// burst of 1 at 20/s => the 2nd and 3rd writes wait ~50ms each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected writes to be throttled, three took %v", elapsed)
	}
	if rw.String() != "xxx" {
		t.Errorf("expected all writes to pass through, got %q", rw.String())
	}
}
