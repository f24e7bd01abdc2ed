package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewChecker(t *testing.T) {
	c := NewChecker(time.Hour, Check{Name: "a", CheckFn: func(context.Context) error { return nil }})
	if c == nil {
		t.Fatal("NewChecker() returned nil")
	}
	if len(c.checks) != 1 {
		t.Errorf("checks = %d, want 1", len(c.checks))
	}
}

func TestRunAllHealthy(t *testing.T) {
	c := NewChecker(time.Hour,
		Check{Name: "a", CheckFn: func(context.Context) error { return nil }},
		Check{Name: "b", CheckFn: func(context.Context) error { return nil }},
	)
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
}

func TestIsHealthyBeforeRun(t *testing.T) {
	c := NewChecker(time.Hour, Check{Name: "a", CheckFn: func(context.Context) error { return nil }})

	// Before any run, there are no statuses — IsHealthy returns true (vacuously)
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestFailingCheckTripsRecover(t *testing.T) {
	recovered := false
	c := NewChecker(time.Hour, Check{
		Name:      "always_fail",
		CheckFn:   func(context.Context) error { return errors.New("boom") },
		RecoverFn: func(context.Context) error { recovered = true; return nil },
	})
	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("error message should be populated")
	}
	if !recovered {
		t.Error("RecoverFn should have been called")
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false when a check failed")
	}
}

func TestStatusesCopy(t *testing.T) {
	c := NewChecker(time.Hour, Check{Name: "a", CheckFn: func(context.Context) error { return nil }})
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()

	if len(s1) > 0 {
		s1[0].Healthy = false
		if !s2[0].Healthy {
			t.Error("Statuses() should return a copy, not a reference")
		}
	}
}

func TestRun(t *testing.T) {
	c := NewChecker(time.Hour, Check{Name: "a", CheckFn: func(context.Context) error { return nil }})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx) // should run the checks once and return promptly

	if !c.IsHealthy() {
		t.Error("expected IsHealthy() true after an immediate-cancel Run")
	}
}
