package terminal

import (
	"context"
	"testing"

	"golang.org/x/crypto/ssh"

	"sshterm-core/internal/events"
)

type fakeSessionSource struct {
	calls int
}

func (f *fakeSessionSource) CreateTerminalChild(context.Context, string) (*ssh.Client, error) {
	f.calls++
	return nil, errUnsupportedInTest
}

var errUnsupportedInTest = &testErr{"fake session source cannot produce a real ssh.Client"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func newTestManager(t *testing.T) (*Manager, *fakeSessionSource) {
	t.Helper()
	src := &fakeSessionSource{}
	mgr, err := New(Config{Sessions: src, Bus: events.New(nil)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mgr, src
}

func TestOpenIsIdempotentPerSession(t *testing.T) {
	mgr, src := newTestManager(t)

	mgr.mu.Lock()
	mgr.bySession["sess-1"] = "term-1"
	mgr.mu.Unlock()

	info, err := mgr.Open(context.Background(), "sess-1", 80, 24)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if info.TerminalID != "term-1" {
		t.Fatalf("got terminal id %q, want term-1", info.TerminalID)
	}
	if src.calls != 0 {
		t.Fatalf("expected CreateTerminalChild not to be called for an existing terminal, got %d calls", src.calls)
	}
}

func TestOpenPropagatesSessionSourceError(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.Open(context.Background(), "sess-2", 80, 24); err == nil {
		t.Fatal("expected error from CreateTerminalChild to propagate")
	}
}

func TestGetBySessionUnknown(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, ok := mgr.GetBySession("missing"); ok {
		t.Fatal("expected ok=false for unknown session")
	}
}

func TestCloseUnknownTerminalIsSuccess(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.Close("missing"); err != nil {
		t.Fatalf("closing an unknown terminal id should succeed, got %v", err)
	}
}

func TestCloseBySessionWithNoTerminalIsSuccess(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.CloseBySession("missing"); err != nil {
		t.Fatalf("closing by unknown session should succeed, got %v", err)
	}
}

func TestWriteInputUnknownTerminal(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.WriteInput("missing", []byte("ls\n")); err == nil {
		t.Fatal("expected NotFound error for unknown terminal")
	}
}

func TestResizeUnknownTerminal(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.Resize("missing", 100, 40); err == nil {
		t.Fatal("expected NotFound error for unknown terminal")
	}
}
