// Package engine provides the tick scheduler and the simulation wiring
// that drives the market.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Display calendar: one tick is one sim-minute.
const (
	TicksPerSimHour = 60
	TicksPerSimDay  = 1440
)

// DeltaTime is the logical time every tick carries, in sim-minutes.
const DeltaTime = 1.0

// ErrTickPanicked wraps a panic raised by a tickable.
var ErrTickPanicked = errors.New("tickable panicked")

// Tickable is anything advanced by the scheduler. A returned error aborts
// the remainder of the tick.
type Tickable interface {
	Tick(dt float64) error
}

type funcTickable struct {
	name string
	fn   func(dt float64) error
}

func (f *funcTickable) Tick(dt float64) error { return f.fn(dt) }
func (f *funcTickable) String() string        { return f.name }

// Func wraps fn as a named Tickable. Keep the returned value to Unregister it.
func Func(name string, fn func(dt float64) error) Tickable {
	return &funcTickable{name: name, fn: fn}
}

// TickError reports which tickable failed in which tick.
type TickError struct {
	Tick  uint64
	Index int    // Position in registration order
	Name  string // fmt.Stringer name when the tickable has one
	Err   error
}

func (e *TickError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("tick %d: %s (#%d): %v", e.Tick, e.Name, e.Index, e.Err)
	}
	return fmt.Sprintf("tick %d: tickable #%d: %v", e.Tick, e.Index, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }

// Scheduler delivers one synchronous tick to every registered tickable,
// strictly in registration order.
type Scheduler struct {
	Interval time.Duration // Base tick interval at speed 1

	mu          sync.Mutex
	tick        uint64 // Monotonic, never resets
	speed       float64
	running     bool
	subscribers []Tickable
}

// NewScheduler creates a scheduler with the default one-second interval.
func NewScheduler() *Scheduler {
	return &Scheduler{
		Interval: time.Second,
		speed:    1.0,
	}
}

// Register appends t. Registering the same tickable twice is a no-op.
// Tickables must be comparable; wrap functions with Func.
func (s *Scheduler) Register(t Tickable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.subscribers, t) {
		return
	}
	s.subscribers = append(s.subscribers, t)
}

// Unregister removes t. During a tick, the change applies from the next one.
func (s *Scheduler) Unregister(t Tickable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.subscribers, t); i >= 0 {
		s.subscribers = slices.Delete(s.subscribers, i, i+1)
	}
}

// Len returns the number of registered tickables.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Tick returns the number of the last tick started.
func (s *Scheduler) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// SetTick sets the counter, for resuming a saved run.
func (s *Scheduler) SetTick(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = tick
}

// Speed returns the run multiplier: 1.0 = Interval per tick, 0 = paused.
func (s *Scheduler) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// SetSpeed changes the run multiplier.
func (s *Scheduler) SetSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = speed
}

// Running reports whether Run is looping.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Step advances by one tick. The first failing tickable ends the tick and
// its error is returned as a *TickError; later tickables do not run.
func (s *Scheduler) Step() error {
	s.mu.Lock()
	s.tick++
	tick := s.tick
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for i, sub := range subs {
		if err := safeTick(sub); err != nil {
			te := &TickError{Tick: tick, Index: i, Err: err}
			if n, ok := sub.(fmt.Stringer); ok {
				te.Name = n.String()
			}
			return te
		}
	}
	return nil
}

func safeTick(t Tickable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTickPanicked, r)
		}
	}()
	return t.Tick(DeltaTime)
}

// StepN runs n ticks back to back, stopping at the first error.
func (s *Scheduler) StepN(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Run loops until Stop is called or a tick fails. Blocks.
func (s *Scheduler) Run() error {
	s.mu.Lock()
	s.running = true
	tick := s.tick
	s.mu.Unlock()
	slog.Info("scheduler started", "tick", tick, "speed", s.Speed())

	for s.Running() {
		speed := s.Speed()
		if speed <= 0 {
			// Paused; poll again shortly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		if err := s.Step(); err != nil {
			s.Stop()
			slog.Error("scheduler stopped on failed tick", "error", err)
			return err
		}

		elapsed := time.Since(start)
		target := time.Duration(float64(s.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("scheduler stopped", "tick", s.Tick())
	return nil
}

// Stop halts Run after the current tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// SimTime returns a display time string for a tick.
func SimTime(tick uint64) string {
	minutes := tick % 60
	hours := (tick / TicksPerSimHour) % 24
	days := tick/TicksPerSimDay + 1
	return fmt.Sprintf("Day %d, %d:%02d", days, hours, minutes)
}
