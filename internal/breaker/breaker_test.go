package breaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int) (*Breaker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New(
		WithThreshold(threshold),
		WithCooldown(30*time.Second, 5*time.Minute),
		WithClock(func() time.Time { return now }),
	)
	return b, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	errUpstream := errors.New("upstream down")
	b.RecordFailure(errUpstream)
	b.RecordFailure(errUpstream)
	if b.Status().State != StateClosed {
		t.Fatal("breaker opened before threshold")
	}
	if !b.Allow() {
		t.Fatal("closed breaker must allow requests")
	}

	b.RecordFailure(errUpstream)
	if b.Status().State != StateOpen {
		t.Fatal("breaker did not open at threshold")
	}
	if b.Allow() {
		t.Fatal("open breaker must reject requests during cooldown")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3)

	errUpstream := errors.New("upstream down")
	b.RecordFailure(errUpstream)
	b.RecordFailure(errUpstream)
	b.RecordSuccess()
	b.RecordFailure(errUpstream)
	b.RecordFailure(errUpstream)

	if b.Status().State != StateClosed {
		t.Fatal("non-consecutive failures must not open the breaker")
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, now := newTestBreaker(1)

	b.RecordFailure(errors.New("boom"))
	if b.Allow() {
		t.Fatal("expected open breaker to reject")
	}

	*now = now.Add(31 * time.Second)
	if !b.Allow() {
		t.Fatal("expected a probe after cooldown")
	}
	if got := b.Status().State; got != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", got)
	}
	if b.Allow() {
		t.Fatal("only one probe may pass while half-open")
	}

	b.RecordSuccess()
	if b.Status().State != StateClosed {
		t.Fatal("successful probe must close the breaker")
	}
	if !b.Allow() {
		t.Fatal("closed breaker must allow requests")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1)

	b.RecordFailure(errors.New("boom"))
	*now = now.Add(31 * time.Second)
	if !b.Allow() {
		t.Fatal("expected a probe after cooldown")
	}

	b.RecordFailure(errors.New("still down"))
	st := b.Status()
	if st.State != StateOpen {
		t.Fatal("failed probe must reopen the breaker")
	}
	// Second opening doubles the cooldown.
	if got, want := st.ReopensAfter.Sub(*now), 60*time.Second; got != want {
		t.Fatalf("expected cooldown %s after second open, got %s", want, got)
	}
}

func TestBreakerRetryAfterOverride(t *testing.T) {
	b, now := newTestBreaker(1)

	banErr := &RetryAfterError{
		RetryAfter: 3 * time.Minute,
		Err:        errors.New("ip banned"),
	}
	b.RecordFailure(banErr)

	st := b.Status()
	if got, want := st.ReopensAfter.Sub(*now), 3*time.Minute; got != want {
		t.Fatalf("expected retry-after cooldown %s, got %s", want, got)
	}

	*now = now.Add(2 * time.Minute)
	if b.Allow() {
		t.Fatal("breaker must stay open until the mandated cooldown elapses")
	}
	*now = now.Add(90 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe after mandated cooldown")
	}
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(1)

	b.RecordFailure(errors.New("boom"))
	b.Reset()

	st := b.Status()
	if st.State != StateClosed || st.Failures != 0 {
		t.Fatalf("reset must close and clear the breaker, got %+v", st)
	}
}
