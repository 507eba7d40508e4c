package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type permanentErr struct{}

func (permanentErr) Error() string   { return "rejected" }
func (permanentErr) Permanent() bool { return true }

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	retries := 0
	err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	}, func(int, error) { retries++ })

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("calls=%d retries=%d, want 3/2", calls, retries)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	errFail := errors.New("down")
	err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return errFail
	}, nil)
	if err != errFail || calls != 3 {
		t.Errorf("err=%v calls=%d, want errFail/3", err, calls)
	}
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return permanentErr{}
	}, nil)
	if err == nil || calls != 1 {
		t.Errorf("err=%v calls=%d, want error after 1 call", err, calls)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, Multiplier: 1}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, p, func(ctx context.Context) error {
			calls++
			return errors.New("down")
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error")
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("x"), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{ErrCircuitOpen, false},
		{permanentErr{}, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
