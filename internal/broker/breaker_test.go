package broker

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("test", max, reset)
	cb.now = clk.now
	return cb, clk
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	errFail := errors.New("fail")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("expected rejection without call, got err=%v called=%v", err, called)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	errFail := errors.New("fail")
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	clk.advance(2 * time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	errFail := errors.New("fail")
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	clk.advance(2 * time.Second)
	cb.Execute(func() error { return errFail })
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed probe, got %v", cb.CurrentState())
	}

	// The reopen restarts the timeout.
	clk.advance(500 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected still open, got %v", err)
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.Execute(func() error { return errors.New("fail") })
	clk.advance(2 * time.Second)

	var inner error
	cb.Execute(func() error {
		inner = cb.Execute(func() error { return nil })
		return nil
	})
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("expected concurrent probe to be rejected, got %v", inner)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	errFail := errors.New("fail")

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", cb.CurrentState())
	}
	if cb.Failures() != 2 {
		t.Errorf("expected 2 failures, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_UncountedErrors(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Second)
	rejected := errors.New("rejected")

	err := cb.ExecuteCounting(func() error { return rejected }, func(error) bool { return false })
	if err != rejected {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("uncounted error tripped the breaker")
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	var transitions []State
	cb.OnStateChange = func(name string, from, to State) {
		if name != "test" {
			t.Errorf("unexpected breaker name %q", name)
		}
		transitions = append(transitions, to)
	}

	cb.Execute(func() error { return errors.New("fail") })
	clk.advance(2 * time.Second)
	cb.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], transitions[i])
		}
	}
}
