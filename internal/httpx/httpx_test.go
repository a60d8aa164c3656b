package httpx

import (
	"testing"
	"time"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("expected closed breaker to allow call %d", i)
		}
		cb.RecordFailure()
	}
	if cb.Allow() {
		t.Fatalf("expected breaker open after threshold failures")
	}
	time.Sleep(15 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("expected half-open probe allowed after cooldown")
	}
	cb.RecordSuccess()
	if cb.State() != "closed" {
		t.Fatalf("expected closed after success, got %s", cb.State())
	}
}

func TestSuggestBackoff_Caps(t *testing.T) {
	d := SuggestBackoff(10, 500*time.Millisecond, 5*time.Second)
	if d != 5*time.Second {
		t.Fatalf("expected backoff capped at max, got %v", d)
	}
	if SuggestBackoff(0, time.Second, time.Minute) != 0 {
		t.Fatalf("expected zero backoff for zero failures")
	}
}
