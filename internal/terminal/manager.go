package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"sshterm-core/internal/bufpool"
	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/events"
)

const readBufferSize = 8 * 1024

// SessionSource is the subset of the Session Manager's surface Terminal
// Manager depends on: a dedicated child SSH session authenticated with
// the parent session's cached credentials.
type SessionSource interface {
	CreateTerminalChild(ctx context.Context, sessionID string) (*ssh.Client, error)
}

// Config configures a Manager.
type Config struct {
	Sessions SessionSource
	Bus      *events.Bus
	Log      logrus.FieldLogger
}

func (c *Config) checkAndSetDefaults() error {
	if c.Sessions == nil {
		return trace.BadParameter("terminal: Config.Sessions is required")
	}
	if c.Bus == nil {
		return trace.BadParameter("terminal: Config.Bus is required")
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return nil
}

// Manager owns the terminal registry and the session_id -> terminal_id
// mapping (at most one terminal per session).
type Manager struct {
	sessions SessionSource
	bus      *events.Bus
	log      logrus.FieldLogger
	readPool *bufpool.Pool

	mu         sync.RWMutex
	terminals  map[string]*ManagedTerminal
	bySession  map[string]string
}

// New constructs a Manager.
func New(cfg Config) (*Manager, error) {
	if err := cfg.checkAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Manager{
		sessions:  cfg.Sessions,
		bus:       cfg.Bus,
		log:       cfg.Log.WithField("component", "terminal"),
		readPool:  bufpool.New(readBufferSize),
		terminals: make(map[string]*ManagedTerminal),
		bySession: make(map[string]string),
	}, nil
}

var ptyModes = ssh.TerminalModes{
	ssh.ECHO:          1,
	ssh.TTY_OP_ISPEED: 14400,
	ssh.TTY_OP_OSPEED: 14400,
	ssh.ICRNL:         1,
	ssh.OPOST:         1,
	ssh.ONLCR:         1,
	ssh.ICANON:        1,
	ssh.ISIG:          1,
	ssh.IEXTEN:        1,
}

// Open returns the existing terminal for sessionID if one exists
// (idempotent), otherwise opens a PTY-backed shell on a dedicated child
// session and starts its reader goroutine.
func (m *Manager) Open(ctx context.Context, sessionID string, cols, rows int) (Info, error) {
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	m.mu.RLock()
	if existingID, ok := m.bySession[sessionID]; ok {
		m.mu.RUnlock()
		return Info{TerminalID: existingID, SessionID: sessionID}, nil
	}
	m.mu.RUnlock()

	client, err := m.sessions.CreateTerminalChild(ctx, sessionID)
	if err != nil {
		return Info{}, err
	}

	sshSession, err := client.NewSession()
	if err != nil {
		client.Close()
		return Info{}, corerrors.RemoteIoError(err, "opening terminal channel")
	}

	if err := sshSession.RequestPty("xterm-256color", rows, cols, ptyModes); err != nil {
		sshSession.Close()
		client.Close()
		return Info{}, corerrors.RemoteIoError(err, "requesting pty")
	}

	stdin, err := sshSession.StdinPipe()
	if err != nil {
		sshSession.Close()
		client.Close()
		return Info{}, corerrors.RemoteIoError(err, "opening terminal stdin")
	}
	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		sshSession.Close()
		client.Close()
		return Info{}, corerrors.RemoteIoError(err, "opening terminal stdout")
	}

	if err := sshSession.Shell(); err != nil {
		sshSession.Close()
		client.Close()
		return Info{}, corerrors.RemoteIoError(err, "starting shell")
	}

	id := uuid.NewString()
	now := time.Now()
	t := &ManagedTerminal{
		ID:           id,
		SessionID:    sessionID,
		client:       client,
		sshSession:   sshSession,
		stdin:        stdin,
		stdout:       stdout,
		cols:         cols,
		rows:         rows,
		createdAt:    now,
		lastActivity: now,
		done:         make(chan struct{}),
	}

	m.mu.Lock()
	m.terminals[id] = t
	m.bySession[sessionID] = id
	m.mu.Unlock()

	go m.runReader(t)

	m.bus.Publish(events.Event{Kind: events.KindTerminalStatus, Subject: id, Payload: "connected"})

	return Info{TerminalID: id, SessionID: sessionID}, nil
}

// WriteInput writes data to terminalID's PTY and refreshes its
// activity. ssh.Channel writes are unbuffered at this layer, so there is
// no separate flush step.
func (m *Manager) WriteInput(terminalID string, data []byte) error {
	t, err := m.get(terminalID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	_, werr := t.stdin.Write(data)
	t.mu.Unlock()
	if werr != nil {
		return corerrors.RemoteIoError(werr, "writing terminal input")
	}
	t.touch()
	return nil
}

// Resize issues a PTY resize request.
func (m *Manager) Resize(terminalID string, cols, rows int) error {
	t, err := m.get(terminalID)
	if err != nil {
		return err
	}
	if err := t.sshSession.WindowChange(rows, cols); err != nil {
		return corerrors.RemoteIoError(err, "resizing terminal")
	}
	return nil
}

// Close removes terminalID from the registry, signals its reader
// goroutine to stop, and closes the underlying channel. Closing an
// unknown id is success.
func (m *Manager) Close(terminalID string) error {
	m.mu.Lock()
	t, ok := m.terminals[terminalID]
	if ok {
		delete(m.terminals, terminalID)
		delete(m.bySession, t.SessionID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	t.markShuttingDown()
	t.closeOnce.Do(func() {
		t.sshSession.Close()
		t.client.Close()
	})
	return nil
}

// CloseBySession closes the terminal (if any) associated with
// sessionID.
func (m *Manager) CloseBySession(sessionID string) error {
	m.mu.RLock()
	id, ok := m.bySession[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return m.Close(id)
}

// GetBySession returns the terminal id for sessionID, if any.
func (m *Manager) GetBySession(sessionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySession[sessionID]
	return id, ok
}

func (m *Manager) get(terminalID string) (*ManagedTerminal, error) {
	m.mu.RLock()
	t, ok := m.terminals[terminalID]
	m.mu.RUnlock()
	if !ok {
		return nil, corerrors.NotFound("terminal not found")
	}
	return t, nil
}
