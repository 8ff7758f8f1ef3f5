// Package terminal implements the PTY terminal subsystem: one
// SSH-backed child session per terminal, a dedicated non-blocking
// reader goroutine, throttled output coalescing, resize, and graceful
// shutdown. Grounded in
// _examples/other_examples/a121f907_yzhelezko-thermic__ssh_manager.go.go's
// StartSSHShell/handleSSHOutput/WriteToSSHSession/ResizeSSHSession/
// CloseSSHSession shape, generalized from its single global App-owned
// session into a keyed registry per spec.md §4.4.
package terminal

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultCols = 80
	defaultRows = 24
)

// ManagedTerminal is one PTY-backed child SSH session.
type ManagedTerminal struct {
	ID        string
	SessionID string

	client     *ssh.Client
	sshSession *ssh.Session
	stdin      io.WriteCloser
	stdout     io.Reader

	cols int
	rows int

	createdAt time.Time

	mu           sync.Mutex // guards the channel (writer vs reader contention)
	lastActivity time.Time

	shutdown int32 // atomic bool

	closeOnce sync.Once
	done      chan struct{}
}

func (t *ManagedTerminal) touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// LastActivity returns the last recorded activity time.
func (t *ManagedTerminal) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

func (t *ManagedTerminal) isShuttingDown() bool {
	return atomic.LoadInt32(&t.shutdown) == 1
}

func (t *ManagedTerminal) markShuttingDown() {
	atomic.StoreInt32(&t.shutdown, 1)
}

// Info is the {terminal_id, session_id} pair returned by Open.
type Info struct {
	TerminalID string
	SessionID  string
}
