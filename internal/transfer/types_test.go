package transfer

import "testing"

func TestCancelTokenIsIdempotent(t *testing.T) {
	c := newCancelToken()
	if c.Canceled() {
		t.Fatal("fresh token must not be canceled")
	}
	c.Cancel()
	c.Cancel()
	if !c.Canceled() {
		t.Fatal("expected token to report canceled")
	}
}

func TestTaskSnapshotReflectsStatus(t *testing.T) {
	tk := &task{id: "t1", status: StatusWaiting}
	tk.setStatus(StatusRunning)
	snap := tk.snapshot()
	if snap.Status != StatusRunning {
		t.Fatalf("got status %v, want Running", snap.Status)
	}
	if snap.TaskID != "t1" {
		t.Fatalf("got task id %q, want t1", snap.TaskID)
	}
}
