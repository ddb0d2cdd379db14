package engine

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func recorder(log *[]string, name string) Tickable {
	return Func(name, func(dt float64) error {
		if dt != DeltaTime {
			return errors.New("unexpected dt")
		}
		*log = append(*log, name)
		return nil
	})
}

func TestSchedulerOrder(t *testing.T) {
	var log []string
	s := NewScheduler()
	a, b, c := recorder(&log, "a"), recorder(&log, "b"), recorder(&log, "c")
	s.Register(a)
	s.Register(b)
	s.Register(c)
	s.Register(a)

	if err := s.StepN(2); err != nil {
		t.Fatalf("StepN: %v", err)
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	if !slices.Equal(log, want) {
		t.Errorf("order = %v, want %v", log, want)
	}
	if s.Tick() != 2 {
		t.Errorf("tick = %d, want 2", s.Tick())
	}

	log = nil
	s.Unregister(b)
	s.Step()
	if !slices.Equal(log, []string{"a", "c"}) {
		t.Errorf("after unregister = %v", log)
	}
}

func TestSchedulerUnregisterDuringTick(t *testing.T) {
	var log []string
	s := NewScheduler()
	later := recorder(&log, "later")
	s.Register(Func("remover", func(float64) error {
		s.Unregister(later)
		return nil
	}))
	s.Register(later)

	s.Step()
	if !slices.Equal(log, []string{"later"}) {
		t.Errorf("tick 1 = %v, removal should apply from the next tick", log)
	}
	log = nil
	s.Step()
	if len(log) != 0 {
		t.Errorf("tick 2 = %v", log)
	}
}

func TestSchedulerFailureAbortsTick(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	s := NewScheduler()
	s.Register(recorder(&log, "first"))
	s.Register(Func("broken", func(float64) error { return boom }))
	s.Register(recorder(&log, "after"))

	err := s.Step()
	if !errors.Is(err, boom) {
		t.Fatalf("Step error = %v, want boom", err)
	}
	var te *TickError
	if !errors.As(err, &te) || te.Tick != 1 || te.Index != 1 || te.Name != "broken" {
		t.Errorf("TickError = %+v", te)
	}
	if !slices.Equal(log, []string{"first"}) {
		t.Errorf("ran %v, later tickables must not run", log)
	}
}

func TestSchedulerPanicBecomesError(t *testing.T) {
	s := NewScheduler()
	s.Register(Func("panics", func(float64) error { panic("nil map") }))
	err := s.Step()
	if !errors.Is(err, ErrTickPanicked) || !strings.Contains(err.Error(), "nil map") {
		t.Fatalf("Step error = %v", err)
	}
}

func TestSchedulerRunStops(t *testing.T) {
	s := NewScheduler()
	s.Interval = time.Millisecond
	s.SetSpeed(10)
	s.Register(Func("stopper", func(float64) error {
		if s.Tick() >= 3 {
			s.Stop()
		}
		return nil
	}))

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Tick() != 3 || s.Running() {
		t.Errorf("tick %d running %v", s.Tick(), s.Running())
	}
}

func TestSchedulerRunReturnsTickError(t *testing.T) {
	s := NewScheduler()
	s.Interval = time.Millisecond
	boom := errors.New("boom")
	s.Register(Func("broken", func(float64) error { return boom }))

	if err := s.Run(); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	if s.Running() {
		t.Error("scheduler still running after failure")
	}
}

func TestSimTime(t *testing.T) {
	if got := SimTime(0); got != "Day 1, 0:00" {
		t.Errorf("SimTime(0) = %q", got)
	}
	if got := SimTime(TicksPerSimDay + 61); got != "Day 2, 1:01" {
		t.Errorf("SimTime = %q", got)
	}
}
