package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.Allow() {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Errorf("expected state open after 3 failures, got %s", b.State())
	}
	if b.Allow() {
		t.Error("expected Allow() to return false while open")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	if b.Failures() != 0 {
		t.Errorf("expected failure count reset, got %d", b.Failures())
	}
	if b.State() != Closed {
		t.Errorf("expected state closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe to be allowed after cooldown")
	}
	if b.State() != HalfOpen {
		t.Errorf("expected half-open, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})

	// Failed probe goes back to open.
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordFailure()
	if b.State() != Open {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}

	// Successful probe closes the circuit.
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordSuccess()
	if b.State() != Closed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: time.Minute})

	b.RecordFailure()
	b.Reset()

	if b.State() != Closed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow() after reset")
	}
}

func TestBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := New(Config{})

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != Closed {
		t.Errorf("expected closed below default threshold, got %s", b.State())
	}
	b.RecordFailure()
	if b.State() != Open {
		t.Errorf("expected open at default threshold of 5, got %s", b.State())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRegistry_GetCreatesLazily(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{Threshold: 2, Cooldown: time.Minute})

	b1 := r.Get("api.example.com")
	b2 := r.Get("api.example.com")
	if b1 != b2 {
		t.Error("expected the same breaker for the same key")
	}

	other := r.Get("other.example.com")
	if other == b1 {
		t.Error("expected distinct breakers for distinct keys")
	}

	stats := r.Stats()
	if stats.Total != 2 {
		t.Errorf("expected 2 breakers, got %d", stats.Total)
	}
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Minute})

	r.Get("healthy")
	r.Get("failing").RecordFailure()

	stats := r.Stats()
	if stats.Open != 1 {
		t.Errorf("expected 1 open breaker, got %d", stats.Open)
	}
	if stats.Closed != 1 {
		t.Errorf("expected 1 closed breaker, got %d", stats.Closed)
	}

	r.Reset()
	stats = r.Stats()
	if stats.Open != 0 || stats.Closed != 2 {
		t.Errorf("expected all breakers closed after reset, got %+v", stats)
	}
}
