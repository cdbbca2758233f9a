package testutil

import (
	"testing"
	"time"
)

func TestWaitForImmediateSuccess(t *testing.T) {
	t.Parallel()
	if !WaitFor(t, func() bool { return true }, WithTimeout(time.Second)) {
		t.Error("WaitFor() = false for immediately true condition")
	}
}

func TestWaitForEventualSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	ok := WaitFor(t, func() bool {
		calls++
		return calls >= 3
	}, WithTimeout(time.Second), WithInterval(5*time.Millisecond))

	if !ok {
		t.Error("WaitFor() = false for eventually true condition")
	}
}

func TestWaitForTimeout(t *testing.T) {
	t.Parallel()
	ok := WaitFor(t, func() bool { return false },
		WithTimeout(30*time.Millisecond), WithInterval(5*time.Millisecond))
	if ok {
		t.Error("WaitFor() = true for never-true condition")
	}
}
