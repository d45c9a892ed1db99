// Package gesture implements the long-press control that starts and stops a
// session.
package gesture

import (
	"sync"
	"time"
)

// Defaults for NewLongPress.
const (
	DefaultHold = 3 * time.Second
	DefaultTick = 100 * time.Millisecond
)

// State is the gesture state.
type State int

const (
	Idle State = iota
	Pressing
	Fired
)

func (s State) String() string {
	switch s {
	case Pressing:
		return "pressing"
	case Fired:
		return "fired"
	}
	return "idle"
}

// Timer is the part of *time.Timer the gesture uses.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The default uses time.AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Config configures a LongPress. Zero values take the defaults.
type Config struct {
	Hold  time.Duration
	Tick  time.Duration
	Clock Clock

	// OnFire runs once per completed hold, on a timer goroutine.
	OnFire func()
	// OnProgress reports progress in percent after every tick.
	OnProgress func(percent float64)
}

// LongPress fires after the press is held for the full hold duration.
// Releasing early cancels it and resets progress.
type LongPress struct {
	cfg Config

	mu       sync.Mutex
	state    State
	progress float64
	gen      int
	fire     Timer
	tick     Timer
}

// NewLongPress returns an idle gesture.
func NewLongPress(cfg Config) *LongPress {
	if cfg.Hold <= 0 {
		cfg.Hold = DefaultHold
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &LongPress{cfg: cfg}
}

// PressIn starts a hold. It is ignored unless the gesture is idle.
func (l *LongPress) PressIn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Idle {
		return
	}
	l.gen++
	gen := l.gen
	l.state = Pressing
	l.progress = 0
	l.fire = l.cfg.Clock.AfterFunc(l.cfg.Hold, func() { l.onFire(gen) })
	l.tick = l.cfg.Clock.AfterFunc(l.cfg.Tick, func() { l.onTick(gen) })
}

// PressOut ends the hold. Before the hold completes this cancels the fire;
// after firing it returns the gesture to idle.
func (l *LongPress) PressOut() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

// Reset cancels any pending timers and returns to idle.
func (l *LongPress) Reset() { l.PressOut() }

func (l *LongPress) resetLocked() {
	l.gen++
	l.stopTimersLocked()
	l.state = Idle
	l.progress = 0
}

func (l *LongPress) stopTimersLocked() {
	if l.fire != nil {
		l.fire.Stop()
		l.fire = nil
	}
	if l.tick != nil {
		l.tick.Stop()
		l.tick = nil
	}
}

// State returns the current state.
func (l *LongPress) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Progress returns the hold progress in percent, 0 to 100.
func (l *LongPress) Progress() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress
}

func (l *LongPress) onTick(gen int) {
	l.mu.Lock()
	if gen != l.gen || l.state != Pressing {
		l.mu.Unlock()
		return
	}
	l.progress += 100 * float64(l.cfg.Tick) / float64(l.cfg.Hold)
	if l.progress > 100 {
		l.progress = 100
	}
	p := l.progress
	if p < 100 {
		l.tick = l.cfg.Clock.AfterFunc(l.cfg.Tick, func() { l.onTick(gen) })
	} else {
		l.tick = nil
	}
	l.mu.Unlock()

	if l.cfg.OnProgress != nil {
		l.cfg.OnProgress(p)
	}
}

func (l *LongPress) onFire(gen int) {
	l.mu.Lock()
	if gen != l.gen || l.state != Pressing {
		l.mu.Unlock()
		return
	}
	l.state = Fired
	l.progress = 0
	l.stopTimersLocked()
	l.mu.Unlock()

	if l.cfg.OnFire != nil {
		l.cfg.OnFire()
	}
}
