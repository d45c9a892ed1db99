package gesture_test

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/haivivi/ishe/pkg/gesture"
)

// fakeClock runs scheduled callbacks only when Advance is called.
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) gesture.Timer {
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	end := c.now + d
	for {
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at < c.timers[j].at })
		var next *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= end {
				next = t
				break
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = end
}

func TestLongPressFires(t *testing.T) {
	clk := &fakeClock{}
	fired := 0
	var last float64
	lp := gesture.NewLongPress(gesture.Config{
		Clock:      clk,
		OnFire:     func() { fired++ },
		OnProgress: func(p float64) { last = p },
	})

	lp.PressIn()
	clk.Advance(1500 * time.Millisecond)
	if lp.State() != gesture.Pressing {
		t.Fatalf("state = %v", lp.State())
	}
	if p := lp.Progress(); math.Abs(p-50) > 0.01 {
		t.Errorf("progress at half hold = %v, want 50", p)
	}
	clk.Advance(1500 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if lp.State() != gesture.Fired {
		t.Errorf("state = %v, want fired", lp.State())
	}
	if last < 96 {
		t.Errorf("last progress = %v", last)
	}

	// Holding longer or pressing again while fired does nothing.
	lp.PressIn()
	clk.Advance(5 * time.Second)
	if fired != 1 {
		t.Errorf("fired = %d after extra hold", fired)
	}

	lp.PressOut()
	if lp.State() != gesture.Idle || lp.Progress() != 0 {
		t.Errorf("after release: state=%v progress=%v", lp.State(), lp.Progress())
	}
}

func TestLongPressEarlyRelease(t *testing.T) {
	clk := &fakeClock{}
	fired := 0
	lp := gesture.NewLongPress(gesture.Config{Clock: clk, OnFire: func() { fired++ }})

	lp.PressIn()
	clk.Advance(2900 * time.Millisecond)
	lp.PressOut()
	clk.Advance(time.Second)
	if fired != 0 {
		t.Fatalf("fired after early release")
	}
	if lp.Progress() != 0 {
		t.Errorf("progress = %v after release", lp.Progress())
	}

	// A fresh press needs the full hold again.
	lp.PressIn()
	clk.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatal("second press fired early")
	}
	clk.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestLongPressCustomDurations(t *testing.T) {
	clk := &fakeClock{}
	fired := false
	lp := gesture.NewLongPress(gesture.Config{
		Clock:  clk,
		Hold:   time.Second,
		Tick:   250 * time.Millisecond,
		OnFire: func() { fired = true },
	})
	lp.PressIn()
	clk.Advance(500 * time.Millisecond)
	if p := lp.Progress(); p != 50 {
		t.Errorf("progress = %v, want 50", p)
	}
	clk.Advance(500 * time.Millisecond)
	if !fired {
		t.Error("did not fire")
	}
	lp.Reset()
	if lp.State() != gesture.Idle {
		t.Errorf("state after Reset = %v", lp.State())
	}
}
