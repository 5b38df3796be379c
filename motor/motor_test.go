package motor_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/akd2g/motor"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeAxis remembers what it was asked to do and publishes like a driver
type fakeAxis struct {
	mu      sync.Mutex
	idx     int
	store   *motor.Params
	polls   int
	moving  bool
	pos     float64
	enabled bool
	pollErr error
	moves   []string
}

func (a *fakeAxis) publish() {
	a.store.Publish(a.idx, motor.Status{Position: a.pos, Moving: a.moving, Done: !a.moving, PowerOn: a.enabled})
}

func (a *fakeAxis) Poll() (motor.PollResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polls++
	if a.pollErr != nil {
		return motor.PollResult{}, a.pollErr
	}
	a.publish()
	return motor.PollResult{Moving: a.moving, Done: !a.moving, Position: a.pos}, nil
}

func (a *fakeAxis) Move(pos, minV, maxV, acc float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moves = append(a.moves, fmt.Sprintf("move %g %g %g %g", pos, minV, maxV, acc))
	a.pos = pos
	return nil
}

func (a *fakeAxis) Home(minV, maxV, acc float64, forwards bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moves = append(a.moves, fmt.Sprintf("home %g %g %g %t", minV, maxV, acc, forwards))
	return nil
}

func (a *fakeAxis) Stop(acc float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moves = append(a.moves, "stop")
	return nil
}

func (a *fakeAxis) SetClosedLoop(b bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = b
	return nil
}

func (a *fakeAxis) Report(w io.Writer, level int) {
	fmt.Fprintf(w, "  fake axis %d\n", a.idx)
}

func (a *fakeAxis) pollCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polls
}

type fakeDriver struct {
	axes []motor.Axis
}

func (d *fakeDriver) Axes() []motor.Axis { return d.axes }

func (d *fakeDriver) Report(w io.Writer, level int) {
	fmt.Fprintln(w, "fake driver")
	for _, a := range d.axes {
		a.Report(w, level)
	}
}

func (d *fakeDriver) Raw(s string) (string, error) { return "echo " + s, nil }

func newFake(n int) (*motor.Controller, []*fakeAxis, *motor.Params) {
	p := motor.NewParams()
	var axes []*fakeAxis
	drv := &fakeDriver{}
	for i := 0; i < n; i++ {
		a := &fakeAxis{idx: i, store: p}
		axes = append(axes, a)
		drv.axes = append(drv.axes, a)
	}
	cfg := motor.PollConfig{MovingPeriod: 5 * time.Millisecond, IdlePeriod: time.Hour, ForcedFastPolls: 2}
	return motor.NewController("fake", drv, p, cfg), axes, p
}

func TestParamsSnapshotIsACopy(t *testing.T) {
	p := motor.NewParams()
	p.Publish(1, motor.Status{Position: 1})
	p.Publish(0, motor.Status{Position: 0})
	snap := p.Snapshot()
	snap[1] = motor.Status{Position: 99}
	st, _ := p.Status(1)
	if st.Position != 1 {
		t.Errorf("expected the store to be unaffected by a snapshot edit, got %v", st.Position)
	}
	if diff := cmp.Diff([]int{0, 1}, p.Indices()); diff != "" {
		t.Errorf("indices mismatch (-want +got):\n%s", diff)
	}
}

func TestPollerIdleThenWake(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	poll := func() bool {
		mu.Lock()
		defer mu.Unlock()
		count++
		return false
	}
	get := func() int {
		mu.Lock()
		defer mu.Unlock()
		return count
	}
	p := motor.NewPoller(poll, 5*time.Millisecond, time.Hour, 3)
	p.Start()
	defer p.Stop()
	time.Sleep(50 * time.Millisecond)
	if c := get(); c != 1 {
		t.Fatalf("expected a single poll while idle, got %d", c)
	}
	p.Wake()
	time.Sleep(100 * time.Millisecond)
	// the woken poll plus three forced fast polls
	if c := get(); c != 5 {
		t.Errorf("expected 5 polls after a wake, got %d", c)
	}
}

func TestPollerFastWhileMoving(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	poll := func() bool {
		mu.Lock()
		defer mu.Unlock()
		count++
		return count < 5
	}
	p := motor.NewPoller(poll, 2*time.Millisecond, time.Hour, 0)
	p.Start()
	time.Sleep(100 * time.Millisecond)
	p.Stop()
	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("expected fast polls until motion stopped then idle, got %d polls", count)
	}
}

func TestPollerStop(t *testing.T) {
	p := motor.NewPoller(func() bool { return true }, time.Millisecond, time.Millisecond, 0)
	p.Start()
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Stop to return")
	}
	p.Stop() // second stop is harmless
	p.Start()
}

func TestControllerLabels(t *testing.T) {
	c, _, _ := newFake(2)
	for _, label := range []string{"0", "3", "X", ""} {
		if _, err := c.GetPos(label); !errors.Is(err, motor.ErrUnknownAxis) {
			t.Errorf("expected ErrUnknownAxis for %q, got %v", label, err)
		}
	}
	if _, err := c.GetPos("2"); err != nil {
		t.Errorf("expected axis 2 to exist, got %v", err)
	}
}

func TestControllerMoveUsesSettings(t *testing.T) {
	c, axes, _ := newFake(1)
	s := motor.AxisSettings{Velocity: 5, BaseVelocity: 1, Acceleration: 2, HomeVelocity: 3, HomeAcceleration: 4, HomeForwards: true}
	if err := c.SetAxisSettings("1", s); err != nil {
		t.Fatal(err)
	}
	if err := c.MoveAbs("1", 10); err != nil {
		t.Fatal(err)
	}
	if err := c.Home("1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop("1"); err != nil {
		t.Fatal(err)
	}
	want := []string{"move 10 1 5 2", "home 1 3 4 true", "stop"}
	if diff := cmp.Diff(want, axes[0].moves); diff != "" {
		t.Errorf("axis calls mismatch (-want +got):\n%s", diff)
	}
}

func TestControllerMoveRel(t *testing.T) {
	c, axes, _ := newFake(1)
	if err := c.MoveRel("1", 1); !errors.Is(err, motor.ErrNoStatus) {
		t.Errorf("expected ErrNoStatus before any poll, got %v", err)
	}
	axes[0].pos = 100
	c.PollOnce()
	if err := c.MoveRel("1", -25); err != nil {
		t.Fatal(err)
	}
	if got := axes[0].moves[0]; !strings.HasPrefix(got, "move 75 ") {
		t.Errorf("expected an absolute move to 75, got %q", got)
	}
}

func TestControllerMoveWakesPoller(t *testing.T) {
	c, axes, _ := newFake(1)
	c.Start()
	defer c.Close()
	time.Sleep(20 * time.Millisecond)
	before := axes[0].pollCount()
	if err := c.MoveAbs("1", 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if after := axes[0].pollCount(); after < before+3 {
		t.Errorf("expected a wake and forced fast polls after a move, polls went %d -> %d", before, after)
	}
}

func TestControllerVelocityAndEnable(t *testing.T) {
	c, _, _ := newFake(1)
	if err := c.SetVelocity("1", 123); err != nil {
		t.Fatal(err)
	}
	v, _ := c.GetVelocity("1")
	if v != 123 {
		t.Errorf("expected velocity 123 got %v", v)
	}
	if err := c.Enable("1"); err != nil {
		t.Fatal(err)
	}
	c.PollOnce()
	en, err := c.GetEnabled("1")
	if err != nil {
		t.Fatal(err)
	}
	if !en {
		t.Error("expected the published power state to read enabled")
	}
	if err := c.Initialize("1"); !errors.Is(err, motor.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported for an axis without Initialize, got %v", err)
	}
}

func TestControllerInPositionAndStatus(t *testing.T) {
	c, axes, _ := newFake(1)
	axes[0].moving = true
	in, err := c.GetInPosition("1")
	if err != nil {
		t.Fatal(err)
	}
	if in {
		t.Error("expected not in position while moving")
	}
	st, err := c.GetStatus("1")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Moving {
		t.Errorf("expected the polled status to be moving, got %+v", st)
	}
}

func TestControllerPollErrorsDoNotStopOtherAxes(t *testing.T) {
	c, axes, _ := newFake(2)
	axes[0].pollErr = errors.New("link down")
	axes[1].moving = true
	if !c.PollOnce() {
		t.Error("expected the healthy moving axis to be seen")
	}
	if axes[1].pollCount() != 1 {
		t.Error("expected the second axis to be polled after the first failed")
	}
}

func TestControllerRawAndReport(t *testing.T) {
	c, _, _ := newFake(1)
	resp, err := c.Raw("DRV.NAME")
	if err != nil || resp != "echo DRV.NAME" {
		t.Errorf("expected echo DRV.NAME, got %q %v", resp, err)
	}
	var buf bytes.Buffer
	c.Report(&buf, 1)
	for _, s := range []string{"fake", "moving poll period: 5ms", "idle poll period: 1h0m0s", "fake axis 0"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("expected report to contain %q, got\n%s", s, buf.String())
		}
	}
}

func TestCollector(t *testing.T) {
	p := motor.NewParams()
	p.Publish(0, motor.Status{Position: 1500, Moving: true, PowerOn: true})
	p.Publish(1, motor.Status{CommsError: true})
	col := motor.NewCollector()
	col.Add("bench", p)
	if n := testutil.CollectAndCount(col); n != 10 {
		t.Errorf("expected 5 gauges for each of 2 axes, got %d", n)
	}
	expected := `
# HELP akd2g_axis_position_microdegrees last polled position of the axis
# TYPE akd2g_axis_position_microdegrees gauge
akd2g_axis_position_microdegrees{axis="1",controller="bench"} 1500
akd2g_axis_position_microdegrees{axis="2",controller="bench"} 0
`
	if err := testutil.CollectAndCompare(col, strings.NewReader(expected), "akd2g_axis_position_microdegrees"); err != nil {
		t.Error(err)
	}
}
