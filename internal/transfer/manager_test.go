package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/sftp"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/events"
)

func newTestManager(t *testing.T, sessions SessionProvider) *Manager {
	t.Helper()
	if sessions == nil {
		sessions = func(string) (*sftp.Client, error) {
			return nil, corerrors.NotFound("no session")
		}
	}
	mgr, err := New(Config{
		Sessions: sessions,
		Bus:      events.New(nil),
		Clock:    clockwork.NewFakeClock(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mgr
}

func TestCreateUploadRejectsDirectory(t *testing.T) {
	mgr := newTestManager(t, nil)
	dir := t.TempDir()
	if _, err := mgr.CreateUpload("sess-1", dir, "/remote"); err == nil {
		t.Fatal("expected an error uploading a directory as a file")
	}
}

func TestCreateUploadRegistersWaitingTaskWithTotal(t *testing.T) {
	mgr := newTestManager(t, nil)
	dir := t.TempDir()
	local := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(local, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id, err := mgr.CreateUpload("sess-1", local, "/remote/dir")
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}

	snap, err := mgr.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Status != StatusWaiting {
		t.Fatalf("got status %v, want Waiting", snap.Status)
	}
	if snap.RemotePath != "/remote/dir/file.txt" {
		t.Fatalf("got remote path %q", snap.RemotePath)
	}
	if snap.Total == nil || *snap.Total != 5 {
		t.Fatalf("got total %v, want 5", snap.Total)
	}
}

func TestCreateDownloadRejectsMissingLocalDir(t *testing.T) {
	mgr := newTestManager(t, nil)
	if _, err := mgr.CreateDownload("sess-1", "/remote/file.txt", "/does/not/exist"); err == nil {
		t.Fatal("expected an error for a missing local directory")
	}
}

func TestGetReturnsNotFoundForUnknownTask(t *testing.T) {
	mgr := newTestManager(t, nil)
	if _, err := mgr.Get("missing"); err == nil {
		t.Fatal("expected NotFound for an unknown task id")
	}
}

func TestCancelIsIdempotentAndUnknownTaskErrors(t *testing.T) {
	mgr := newTestManager(t, nil)
	dir := t.TempDir()
	local := filepath.Join(dir, "f.txt")
	os.WriteFile(local, []byte("x"), 0o644)

	id, _ := mgr.CreateUpload("sess-1", local, "/remote")
	if err := mgr.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := mgr.Cancel(id); err != nil {
		t.Fatalf("second Cancel should be idempotent: %v", err)
	}
	if err := mgr.Cancel("missing"); err == nil {
		t.Fatal("expected error canceling an unknown task")
	}
}

func TestRetryOnlyAllowedFromFailed(t *testing.T) {
	mgr := newTestManager(t, nil)
	dir := t.TempDir()
	local := filepath.Join(dir, "f.txt")
	os.WriteFile(local, []byte("x"), 0o644)
	id, _ := mgr.CreateUpload("sess-1", local, "/remote")

	if _, err := mgr.Retry(id); err == nil {
		t.Fatal("expected Retry to refuse a Waiting task")
	}
}

func TestRetryProducesFreshTaskFromFailed(t *testing.T) {
	mgr := newTestManager(t, nil)
	dir := t.TempDir()
	local := filepath.Join(dir, "f.txt")
	os.WriteFile(local, []byte("hello world"), 0o644)
	id, _ := mgr.CreateUpload("sess-1", local, "/remote")

	mgr.mu.RLock()
	tk := mgr.tasks[id]
	mgr.mu.RUnlock()
	tk.mu.Lock()
	tk.status = StatusFailed
	tk.mu.Unlock()

	newID, err := mgr.Retry(id)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if newID == id {
		t.Fatal("expected a fresh task id")
	}
	snap, err := mgr.Get(newID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Status != StatusWaiting || snap.RetryCount != 0 {
		t.Fatalf("got snapshot %+v, want fresh Waiting task", snap)
	}
	if snap.RemotePath != "/remote/f.txt" {
		t.Fatalf("got remote path %q, want carried over from original", snap.RemotePath)
	}
}

func TestCleanupCompletedRemovesOnlyTerminalSuccessOrCanceled(t *testing.T) {
	mgr := newTestManager(t, nil)
	dir := t.TempDir()
	local := filepath.Join(dir, "f.txt")
	os.WriteFile(local, []byte("x"), 0o644)

	waitingID, _ := mgr.CreateUpload("sess-1", local, "/remote")
	successID, _ := mgr.CreateUpload("sess-1", local, "/remote")
	canceledID, _ := mgr.CreateUpload("sess-1", local, "/remote")
	failedID, _ := mgr.CreateUpload("sess-1", local, "/remote")

	setStatus := func(id string, s Status) {
		mgr.mu.RLock()
		tk := mgr.tasks[id]
		mgr.mu.RUnlock()
		tk.mu.Lock()
		tk.status = s
		tk.mu.Unlock()
	}
	setStatus(successID, StatusSuccess)
	setStatus(canceledID, StatusCanceled)
	setStatus(failedID, StatusFailed)

	n := mgr.CleanupCompleted()
	if n != 2 {
		t.Fatalf("got %d removed, want 2", n)
	}

	remaining := map[string]bool{}
	for _, s := range mgr.List() {
		remaining[s.TaskID] = true
	}
	if !remaining[waitingID] || !remaining[failedID] {
		t.Fatal("expected Waiting and Failed tasks to survive cleanup")
	}
	if remaining[successID] || remaining[canceledID] {
		t.Fatal("expected Success and Canceled tasks to be removed")
	}
}

func TestExecuteRefusesNonWaitingTask(t *testing.T) {
	mgr := newTestManager(t, nil)
	dir := t.TempDir()
	local := filepath.Join(dir, "f.txt")
	os.WriteFile(local, []byte("x"), 0o644)
	id, _ := mgr.CreateUpload("sess-1", local, "/remote")

	mgr.mu.RLock()
	tk := mgr.tasks[id]
	mgr.mu.RUnlock()
	tk.mu.Lock()
	tk.status = StatusRunning
	tk.mu.Unlock()

	if err := mgr.Execute(context.Background(), id); err == nil {
		t.Fatal("expected Execute to refuse a non-Waiting task")
	}
}

func TestExecuteFailsTaskWhenSessionMissing(t *testing.T) {
	mgr := newTestManager(t, func(string) (*sftp.Client, error) {
		return nil, corerrors.NotFound("session gone")
	})
	dir := t.TempDir()
	local := filepath.Join(dir, "f.txt")
	os.WriteFile(local, []byte("x"), 0o644)
	id, _ := mgr.CreateUpload("sess-1", local, "/remote")

	if err := mgr.Execute(context.Background(), id); err == nil {
		t.Fatal("expected Execute to surface the session lookup error")
	}

	snap, _ := mgr.Get(id)
	if snap.Status != StatusFailed {
		t.Fatalf("got status %v, want Failed", snap.Status)
	}
	if snap.Err == nil || snap.Err.Code != string(corerrors.CodeNotFound) {
		t.Fatalf("got err detail %+v, want NotFound", snap.Err)
	}
}
