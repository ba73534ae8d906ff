package loopguard

import (
	"errors"
	"testing"
	"time"
)

func TestTrackDepthExactlyAtMaxAllowed(t *testing.T) {
	g := New(Config{MaxDepth: 5})
	for i := 1; i <= 5; i++ {
		depth, err := g.TrackDepth("conv-1")
		if err != nil {
			t.Fatalf("TrackDepth call %d: unexpected error: %v", i, err)
		}
		if depth != i {
			t.Fatalf("TrackDepth call %d: depth = %d, want %d", i, depth, i)
		}
	}
}

func TestTrackDepthRejectsOneOverMax(t *testing.T) {
	g := New(Config{MaxDepth: 5})
	for i := 0; i < 5; i++ {
		if _, err := g.TrackDepth("conv-1"); err != nil {
			t.Fatalf("unexpected error priming depth: %v", err)
		}
	}
	if _, err := g.TrackDepth("conv-1"); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
	// rejection must roll back, not leave depth incremented past max.
	if got := g.CurrentDepth("conv-1"); got != 5 {
		t.Fatalf("CurrentDepth = %d, want 5 (rollback on rejection)", got)
	}
}

func TestResetDepthClearsCounter(t *testing.T) {
	g := New(Config{MaxDepth: 2})
	g.TrackDepth("conv-1")
	g.TrackDepth("conv-1")
	g.ResetDepth("conv-1")
	depth, err := g.TrackDepth("conv-1")
	if err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
	if depth != 1 {
		t.Fatalf("depth after reset = %d, want 1", depth)
	}
}

func TestCheckRejectsAtExactlyMaxRate(t *testing.T) {
	g := New(Config{MaxRate: 3, Window: time.Minute})
	for i := 0; i < 3; i++ {
		if err := g.Check("a", "b"); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if err := g.Check("a", "b"); !errors.Is(err, ErrRateExceeded) {
		t.Fatalf("expected ErrRateExceeded on 4th call, got %v", err)
	}
}

func TestCheckResetsAfterWindowElapses(t *testing.T) {
	g := New(Config{MaxRate: 1, Window: 10 * time.Millisecond})
	if err := g.Check("a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Check("a", "b"); !errors.Is(err, ErrRateExceeded) {
		t.Fatalf("expected ErrRateExceeded before window elapses, got %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	if err := g.Check("a", "b"); err != nil {
		t.Fatalf("expected window reset to allow message, got %v", err)
	}
}

func TestCheckKeysAreIndependentPerPair(t *testing.T) {
	g := New(Config{MaxRate: 1, Window: time.Minute})
	if err := g.Check("a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Check("a", "c"); err != nil {
		t.Fatalf("distinct recipient should have its own budget: %v", err)
	}
	if err := g.Check("z", "b"); err != nil {
		t.Fatalf("distinct sender should have its own budget: %v", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	g := New(Config{})
	if g.cfg.MaxDepth != DefaultMaxDepth || g.cfg.MaxRate != DefaultMaxRate || g.cfg.Window != DefaultWindow {
		t.Fatalf("defaults not applied: %+v", g.cfg)
	}
}
