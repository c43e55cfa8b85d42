package engine

import (
	"sort"
	"time"
)

// TimerKind names a countdown in the Scheduler table.
type TimerKind int

const (
	TimerClock TimerKind = iota
	TimerSpawn
	TimerHint
	TimerTeleport
	TimerFreeze
	TimerInversion
)

var timerNames = [...]string{
	TimerClock:     "clock",
	TimerSpawn:     "spawn",
	TimerHint:      "hint",
	TimerTeleport:  "teleport",
	TimerFreeze:    "freeze",
	TimerInversion: "inversion",
}

func (k TimerKind) String() string {
	if k < 0 || int(k) >= len(timerNames) {
		return "unknown"
	}
	return timerNames[k]
}

// effectTimer maps a timed power-up to its countdown kind.
func effectTimer(k PowerUpKind) (TimerKind, bool) {
	switch k {
	case Hint:
		return TimerHint, true
	case Teleport:
		return TimerTeleport, true
	case Freeze:
		return TimerFreeze, true
	case Inversion:
		return TimerInversion, true
	}
	return 0, false
}

// effect is the inverse of effectTimer.
func (k TimerKind) effect() (PowerUpKind, bool) {
	switch k {
	case TimerHint:
		return Hint, true
	case TimerTeleport:
		return Teleport, true
	case TimerFreeze:
		return Freeze, true
	case TimerInversion:
		return Inversion, true
	}
	return 0, false
}

// TimerKey identifies one countdown. Player is NoPlayer for global timers.
type TimerKey struct {
	Kind   TimerKind
	Player int
}

type timer struct {
	remaining time.Duration
	period    time.Duration
	running   bool
	fire      func()
}

// Scheduler is a table of countdowns advanced explicitly by Advance. A
// one-shot timer is removed from the table before it fires, so pausing and
// resuming only ever touches pending timers.
type Scheduler struct {
	timers  map[TimerKey]*timer
	paused  bool
	stopped bool
}

// NewScheduler returns an empty, running scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[TimerKey]*timer)}
}

// After arms a one-shot timer, replacing any timer under the same key.
func (s *Scheduler) After(key TimerKey, d time.Duration, fire func()) {
	s.arm(key, d, 0, fire)
}

// Every arms a repeating timer, replacing any timer under the same key.
func (s *Scheduler) Every(key TimerKey, period time.Duration, fire func()) {
	s.arm(key, period, period, fire)
}

func (s *Scheduler) arm(key TimerKey, d, period time.Duration, fire func()) {
	if s.stopped {
		return
	}
	s.timers[key] = &timer{remaining: d, period: period, running: !s.paused, fire: fire}
}

// Cancel removes a timer. It reports whether one was pending.
func (s *Scheduler) Cancel(key TimerKey) bool {
	_, ok := s.timers[key]
	delete(s.timers, key)
	return ok
}

// CancelKind removes every timer of the given kind.
func (s *Scheduler) CancelKind(kind TimerKind) {
	for key := range s.timers {
		if key.Kind == kind {
			delete(s.timers, key)
		}
	}
}

// Active reports whether a timer is pending under key.
func (s *Scheduler) Active(key TimerKey) bool {
	_, ok := s.timers[key]
	return ok
}

// Remaining returns the time left on a pending timer.
func (s *Scheduler) Remaining(key TimerKey) (time.Duration, bool) {
	t, ok := s.timers[key]
	if !ok {
		return 0, false
	}
	return t.remaining, true
}

// Keys returns the pending keys ordered by kind, then player.
func (s *Scheduler) Keys() []TimerKey {
	keys := make([]TimerKey, 0, len(s.timers))
	for key := range s.timers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Player < keys[j].Player
	})
	return keys
}

// Advance moves every running timer forward by d and fires the ones that
// reach zero, in key order. Callbacks may arm, cancel or stop timers.
func (s *Scheduler) Advance(d time.Duration) {
	if s.paused || s.stopped {
		return
	}
	var due []TimerKey
	for _, key := range s.Keys() {
		t := s.timers[key]
		if !t.running {
			continue
		}
		t.remaining -= d
		if t.remaining <= 0 {
			due = append(due, key)
		}
	}
	for _, key := range due {
		if s.stopped {
			return
		}
		t, ok := s.timers[key]
		if !ok || t.remaining > 0 {
			continue
		}
		if t.period > 0 {
			t.remaining += t.period
		} else {
			delete(s.timers, key)
		}
		t.fire()
	}
}

// Pause suspends every pending timer. It reports whether the state changed.
func (s *Scheduler) Pause() bool {
	if s.paused || s.stopped {
		return false
	}
	s.paused = true
	for _, t := range s.timers {
		t.running = false
	}
	return true
}

// Resume restarts every timer still in the table.
func (s *Scheduler) Resume() bool {
	if !s.paused || s.stopped {
		return false
	}
	s.paused = false
	for _, t := range s.timers {
		t.running = true
	}
	return true
}

// Paused reports whether the scheduler is suspended.
func (s *Scheduler) Paused() bool { return s.paused }

// Stop cancels every timer for good.
func (s *Scheduler) Stop() {
	s.stopped = true
	clear(s.timers)
}

// Stopped reports whether Stop was called.
func (s *Scheduler) Stopped() bool { return s.stopped }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
