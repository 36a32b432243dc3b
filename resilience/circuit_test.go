package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreakerSet_OpensAfterThreshold(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	if err := bs.Allow("primary", "fetch"); err != nil {
		t.Fatalf("Allow() on fresh breaker error = %v", err)
	}

	bs.RecordFailure("primary", "fetch")
	if got := bs.State("primary", "fetch"); got != StateClosed {
		t.Errorf("state after 1 failure = %v, want closed", got)
	}

	bs.RecordFailure("primary", "fetch")
	if got := bs.State("primary", "fetch"); got != StateOpen {
		t.Errorf("state after 2 failures = %v, want open", got)
	}

	if err := bs.Allow("primary", "fetch"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() on open circuit error = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSet_SuccessResetsFailureCount(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	bs.RecordFailure("primary", "fetch")
	bs.RecordSuccess("primary", "fetch")
	bs.RecordFailure("primary", "fetch")

	if got := bs.State("primary", "fetch"); got != StateClosed {
		t.Errorf("state = %v, want closed (success resets the streak)", got)
	}
}

func TestBreakerSet_HalfOpenTrial(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	bs.RecordFailure("primary", "fetch")
	if err := bs.Allow("primary", "fetch"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() inside cooldown error = %v, want ErrCircuitOpen", err)
	}

	time.Sleep(15 * time.Millisecond)

	// One trial attempt after the cooldown, not two.
	if err := bs.Allow("primary", "fetch"); err != nil {
		t.Fatalf("trial Allow() error = %v", err)
	}
	if err := bs.Allow("primary", "fetch"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second Allow() in half-open error = %v, want ErrCircuitOpen", err)
	}

	t.Run("successful trial closes", func(t *testing.T) {
		bs.RecordSuccess("primary", "fetch")
		if got := bs.State("primary", "fetch"); got != StateClosed {
			t.Errorf("state = %v, want closed", got)
		}
		if err := bs.Allow("primary", "fetch"); err != nil {
			t.Errorf("Allow() after close error = %v", err)
		}
	})
}

func TestBreakerSet_FailedTrialReopens(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	bs.RecordFailure("primary", "fetch")
	time.Sleep(15 * time.Millisecond)

	if err := bs.Allow("primary", "fetch"); err != nil {
		t.Fatalf("trial Allow() error = %v", err)
	}
	bs.RecordFailure("primary", "fetch")

	if got := bs.State("primary", "fetch"); got != StateOpen {
		t.Errorf("state after failed trial = %v, want open", got)
	}
	if err := bs.Allow("primary", "fetch"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() after failed trial error = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSet_CancelTrialReleasesPermit(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	bs.RecordFailure("primary", "fetch")
	time.Sleep(15 * time.Millisecond)

	if err := bs.Allow("primary", "fetch"); err != nil {
		t.Fatalf("trial Allow() error = %v", err)
	}

	// The admitted attempt aborted before running; the permit comes back.
	bs.CancelTrial("primary", "fetch")

	if err := bs.Allow("primary", "fetch"); err != nil {
		t.Fatalf("Allow() after CancelTrial error = %v, want a fresh trial", err)
	}
	bs.RecordSuccess("primary", "fetch")
	if got := bs.State("primary", "fetch"); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreakerSet_CancelTrialNoopWhenClosed(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	bs.CancelTrial("primary", "fetch")
	if got := bs.State("primary", "fetch"); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
	if err := bs.Allow("primary", "fetch"); err != nil {
		t.Errorf("Allow() error = %v", err)
	}
}

func TestBreakerSet_KeysAreIndependent(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	bs.RecordFailure("primary", "fetch")

	if got := bs.State("primary", "parse"); got != StateClosed {
		t.Errorf("other operation state = %v, want closed", got)
	}
	if got := bs.State("secondary", "fetch"); got != StateClosed {
		t.Errorf("other strategy state = %v, want closed", got)
	}
}

func TestBreakerSet_Reset(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	bs.RecordFailure("primary", "fetch")
	bs.Reset("primary", "fetch")

	if got := bs.State("primary", "fetch"); got != StateClosed {
		t.Errorf("state after Reset = %v, want closed", got)
	}
	if err := bs.Allow("primary", "fetch"); err != nil {
		t.Errorf("Allow() after Reset error = %v", err)
	}
}

func TestBreakerSet_States(t *testing.T) {
	bs := NewBreakerSet(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	bs.Allow("a", "op")
	bs.RecordFailure("b", "op")

	states := bs.States()
	if states["a@op"] != StateClosed {
		t.Errorf("states[a@op] = %v, want closed", states["a@op"])
	}
	if states["b@op"] != StateOpen {
		t.Errorf("states[b@op] = %v, want open", states["b@op"])
	}
}

func TestBreakerSet_OnStateChange(t *testing.T) {
	type transition struct {
		strategy, operation string
		from, to            State
	}
	var got []transition

	bs := NewBreakerSet(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		OnStateChange: func(strategy, operation string, from, to State) {
			got = append(got, transition{strategy, operation, from, to})
		},
	})

	bs.RecordFailure("primary", "fetch")
	time.Sleep(15 * time.Millisecond)
	bs.Allow("primary", "fetch")
	bs.RecordSuccess("primary", "fetch")

	want := []transition{
		{"primary", "fetch", StateClosed, StateOpen},
		{"primary", "fetch", StateOpen, StateHalfOpen},
		{"primary", "fetch", StateHalfOpen, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
