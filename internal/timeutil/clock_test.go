package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since should never be negative for a past time")
	}
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewFakeClock(start)

	if !c.Now().Equal(start) {
		t.Errorf("expected %v, got %v", start, c.Now())
	}
	if d := c.Since(start); d != 0 {
		t.Errorf("expected zero duration, got %v", d)
	}

	c.Advance(90 * time.Second)
	if d := c.Since(start); d != 90*time.Second {
		t.Errorf("expected 90s, got %v", d)
	}
	if !c.Now().Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now did not advance")
	}
}
