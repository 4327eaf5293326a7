// Package grippertest provides a virtual clock and scripted device fakes
// for driving the gripper control loops without real time passing.
package grippertest

import (
	"sync"
	"time"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

// VirtualClock hands out tickers that fire back to back in virtual time.
// A tick is delivered as soon as the consumer is ready for it, carrying
// the time it would have fired at.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualClock starts at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *VirtualClock) observe(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
}

func (c *VirtualClock) NewTicker(d time.Duration) gripper.Ticker {
	t := &virtualTicker{
		ch:   make(chan time.Time),
		done: make(chan struct{}),
	}
	go t.run(c, c.Now(), d)
	return t
}

type virtualTicker struct {
	ch   chan time.Time
	done chan struct{}
	once sync.Once
}

func (t *virtualTicker) run(c *VirtualClock, start time.Time, d time.Duration) {
	next := start
	for {
		next = next.Add(d)
		select {
		case t.ch <- next:
			c.observe(next)
		case <-t.done:
			return
		}
	}
}

func (t *virtualTicker) C() <-chan time.Time {
	return t.ch
}

func (t *virtualTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}
