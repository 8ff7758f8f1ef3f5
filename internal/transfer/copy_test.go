package transfer

import (
	"bytes"
	"testing"
	"time"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/events"
)

func TestCopyLoopCopiesAllBytesAndReportsProgress(t *testing.T) {
	bus := events.New(nil)
	tk := &task{id: "t1"}
	tracker := newProgressTracker(bus, tk, 26, time.Unix(0, 0))

	src := bytes.NewReader([]byte("abcdefghijklmnopqrstuvwxyz"))
	dst := &bytes.Buffer{}
	buf := make([]byte, 4)
	cancel := newCancelToken()

	now := time.Unix(0, 0)
	err := copyLoop(src, dst, buf, tracker, cancel, func() time.Time { return now }, func() {}, "src", "dst", true)
	if err != nil {
		t.Fatalf("copyLoop: %v", err)
	}
	if dst.String() != "abcdefghijklmnopqrstuvwxyz" {
		t.Fatalf("got %q, want full alphabet", dst.String())
	}
	if tracker.transferred != 26 {
		t.Fatalf("tracker recorded %d bytes, want 26", tracker.transferred)
	}
}

func TestCopyLoopStopsOnCancelAndRunsOnCancelHook(t *testing.T) {
	bus := events.New(nil)
	tk := &task{id: "t1"}
	tracker := newProgressTracker(bus, tk, 0, time.Unix(0, 0))

	src := bytes.NewReader(bytes.Repeat([]byte("x"), 1024))
	dst := &bytes.Buffer{}
	buf := make([]byte, 4)
	cancel := newCancelToken()
	cancel.Cancel()

	cleanedUp := false
	err := copyLoop(src, dst, buf, tracker, cancel, func() time.Time { return time.Unix(0, 0) },
		func() { cleanedUp = true }, "src", "dst", false)

	if corerrors.CodeOf(err) != corerrors.CodeCanceled {
		t.Fatalf("got error %v, want Canceled", err)
	}
	if !cleanedUp {
		t.Fatal("expected the onCancel hook to run for a canceled download")
	}
}
