package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestLockoutTriggersAtThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := newLockoutTracker(clock)

	for i := 0; i < lockoutThreshold-1; i++ {
		tr.recordFailure("prof-1")
	}
	if locked, _ := tr.check("prof-1"); locked {
		t.Fatal("should not be locked out below threshold")
	}

	tr.recordFailure("prof-1")
	locked, remaining := tr.check("prof-1")
	if !locked {
		t.Fatal("expected lockout at threshold")
	}
	if remaining <= 0 || remaining > int(lockoutWindow.Seconds())+1 {
		t.Fatalf("unexpected remaining seconds: %d", remaining)
	}
}

func TestLockoutExpiresAfterWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := newLockoutTracker(clock)

	for i := 0; i < lockoutThreshold; i++ {
		tr.recordFailure("prof-1")
	}
	clock.Advance(lockoutWindow + time.Second)

	if locked, _ := tr.check("prof-1"); locked {
		t.Fatal("lockout should have expired")
	}
}

func TestClearResetsFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := newLockoutTracker(clock)

	for i := 0; i < lockoutThreshold; i++ {
		tr.recordFailure("prof-1")
	}
	tr.clear("prof-1")

	if locked, _ := tr.check("prof-1"); locked {
		t.Fatal("lockout should be cleared")
	}
}

func TestLockoutIsPerProfile(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := newLockoutTracker(clock)

	for i := 0; i < lockoutThreshold; i++ {
		tr.recordFailure("prof-1")
	}
	if locked, _ := tr.check("prof-2"); locked {
		t.Fatal("lockout must not leak across profiles")
	}
}
