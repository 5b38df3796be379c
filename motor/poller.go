package motor

import (
	"sync"
	"time"
)

// Poller calls a poll function in its own goroutine.  It waits the moving
// period after a cycle in which anything moved and the idle period
// otherwise.  Wake forces an immediate cycle, followed by a number of
// cycles at the moving period so that a move which has not started yet is
// still seen.
type Poller struct {
	poll   func() bool
	moving time.Duration
	idle   time.Duration
	forced int

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPoller returns a Poller that is not yet running.  poll returns true
// if any axis is moving.
func NewPoller(poll func() bool, moving, idle time.Duration, forced int) *Poller {
	return &Poller{
		poll:   poll,
		moving: moving,
		idle:   idle,
		forced: forced,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the polling goroutine.  Calling it more than once, or
// after Stop, does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	go p.run()
}

// Wake requests an immediate poll.  It never blocks; wakes that arrive
// while one is already pending are merged.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop ends the polling goroutine and waits for the cycle in progress, if
// any, to finish
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	close(p.stop)
	p.mu.Unlock()
	if started {
		<-p.done
	}
}

func (p *Poller) run() {
	defer close(p.done)
	fast := 0
	for {
		moving := p.poll()
		period := p.idle
		if moving || fast > 0 {
			period = p.moving
		}
		if fast > 0 {
			fast--
		}
		timer := time.NewTimer(period)
		select {
		case <-p.stop:
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
			fast = p.forced
		case <-timer.C:
		}
	}
}
