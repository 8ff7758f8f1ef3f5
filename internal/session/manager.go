package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/hostkey"
	"sshterm-core/internal/store"
	"sshterm-core/internal/vault"
)

// Config configures a Manager. Follows the teacher's
// Config.CheckAndSetDefaults() convention (lib/teleterm/config.go).
type Config struct {
	DB       store.DB
	Vault    *vault.Adapter
	HostKeys *hostkey.Verifier
	Clock    clockwork.Clock
	Log      logrus.FieldLogger

	// LockFilePath is the advisory single-instance lock acquired at
	// construction, guarding the vault and host-key fail-open cache from
	// two daemon instances writing concurrently.
	LockFilePath      string
	KeepaliveInterval time.Duration
}

// CheckAndSetDefaults validates required fields and fills defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.DB == nil {
		return trace.BadParameter("session: Config.DB is required")
	}
	if c.Vault == nil {
		return trace.BadParameter("session: Config.Vault is required")
	}
	if c.HostKeys == nil {
		return trace.BadParameter("session: Config.HostKeys is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if c.LockFilePath == "" {
		c.LockFilePath = "sessions.lock"
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 60 * time.Second
	}
	return nil
}

// Manager owns the registry of live sessions.
type Manager struct {
	db       store.DB
	vault    *vault.Adapter
	hostkeys *hostkey.Verifier
	clock    clockwork.Clock
	log      logrus.FieldLogger
	lock     *flock.Flock

	keepaliveInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*ManagedSession

	keepaliveMu    sync.Mutex
	keepaliveStops map[string]chan struct{}

	lockout *lockoutTracker
}

// New constructs a Manager, acquiring the single-instance advisory lock.
// Failure to acquire it is a construction-time error.
func New(cfg Config) (*Manager, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	fl := flock.New(cfg.LockFilePath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !locked {
		return nil, trace.BadParameter("another instance already holds the lock at %s", cfg.LockFilePath)
	}

	return &Manager{
		db:                cfg.DB,
		vault:             cfg.Vault,
		hostkeys:          cfg.HostKeys,
		clock:             cfg.Clock,
		log:               cfg.Log.WithField("component", "session"),
		lock:              fl,
		keepaliveInterval: cfg.KeepaliveInterval,
		sessions:          make(map[string]*ManagedSession),
		keepaliveStops:    make(map[string]chan struct{}),
		lockout:           newLockoutTracker(cfg.Clock),
	}, nil
}

// Shutdown closes every live session and releases the single-instance
// lock.
func (m *Manager) Shutdown() error {
	for _, id := range m.List() {
		m.CloseSession(id)
	}
	return trace.Wrap(m.lock.Unlock())
}

// errHostKeyRejected is returned by the capturing HostKeyCallback to
// abort the handshake before userauth begins, whenever the verifier's
// result is not Matched. It never escapes dial as a user-visible error.
var errHostKeyRejected = errors.New("session: host key not trusted")

// dial performs the TCP connect, SSH handshake, and host-key
// verification in one pass. The host-key callback runs during key
// exchange, before userauth — so verification naturally happens before
// authentication is attempted, matching spec steps 2-5 for free.
func (m *Manager) dial(ctx context.Context, profile *store.Profile, password, passphrase string, timeout time.Duration, skipVerify bool) (client *ssh.Client, fingerprint, keyType string, verifyResult hostkey.Result, creds CachedCredentials, err error) {
	authMethods, creds, err := m.resolveAuth(ctx, profile, password, passphrase)
	if err != nil {
		return nil, "", "", hostkey.Result{}, CachedCredentials{}, err
	}

	var verifyErr error
	hostKeyRejected := false

	callback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		keyType = key.Type()
		fingerprint = hostkey.Fingerprint(key)
		if skipVerify {
			return nil
		}
		res, vErr := m.hostkeys.Verify(ctx, profile.Host, profile.Port, keyType, fingerprint)
		if vErr != nil {
			verifyErr = vErr
			return vErr
		}
		verifyResult = res
		if res.Kind != hostkey.Matched {
			hostKeyRejected = true
			return errHostKeyRejected
		}
		return nil
	}

	config := &ssh.ClientConfig{
		User:            profile.Username,
		Auth:            authMethods,
		HostKeyCallback: callback,
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", profile.Host, profile.Port)
	conn, dialErr := net.DialTimeout("tcp", addr, timeout)
	if dialErr != nil {
		return nil, "", "", hostkey.Result{}, CachedCredentials{}, classifyDialError(dialErr)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	sshConn, chans, reqs, hsErr := ssh.NewClientConn(conn, addr, config)
	if hsErr != nil {
		conn.Close()
		if hostKeyRejected {
			// Not a real failure: the caller inspects verifyResult.
			return nil, fingerprint, keyType, verifyResult, CachedCredentials{}, nil
		}
		if verifyErr != nil {
			return nil, "", "", hostkey.Result{}, CachedCredentials{}, trace.Wrap(verifyErr)
		}
		return nil, "", "", hostkey.Result{}, CachedCredentials{}, classifyDialError(hsErr)
	}
	conn.SetDeadline(time.Time{})

	client = ssh.NewClient(sshConn, chans, reqs)
	return client, fingerprint, keyType, verifyResult, creds, nil
}

// classifyDialError maps a net/ssh dial failure onto the closed error
// taxonomy. "unable to authenticate" is the stable substring
// golang.org/x/crypto/ssh has used for auth-phase handshake failures
// since the package's introduction.
func classifyDialError(err error) *corerrors.Error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return corerrors.AuthFailed(err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return corerrors.Timeout(err, "connection timed out")
	}
	return corerrors.NetworkLost(err, "ssh connection failed")
}

// resolveAuth builds the ssh.AuthMethod list for profile, reading the
// vault only when no explicit secret was supplied.
func (m *Manager) resolveAuth(ctx context.Context, profile *store.Profile, password, passphrase string) ([]ssh.AuthMethod, CachedCredentials, error) {
	switch profile.AuthType {
	case store.AuthPassword:
		secret := password
		if secret == "" {
			stored, ok, err := m.vault.GetPassword(ctx, profile.ID)
			if err != nil {
				return nil, CachedCredentials{}, trace.Wrap(err)
			}
			if ok {
				secret = stored
			}
		}
		if secret == "" {
			return nil, CachedCredentials{}, corerrors.AuthFailed("no password available for profile")
		}
		return []ssh.AuthMethod{ssh.Password(secret)}, CachedCredentials{AuthType: "password", Password: secret}, nil

	case store.AuthKey:
		keyBytes, err := os.ReadFile(profile.PrivateKeyPath)
		if err != nil {
			return nil, CachedCredentials{}, corerrors.LocalIoError(err, "reading private key file")
		}
		if info, statErr := os.Stat(profile.PrivateKeyPath); statErr == nil {
			if info.Mode().Perm()&0o077 != 0 {
				m.log.WithField("path", profile.PrivateKeyPath).
					Warn("private key file permits group or other access")
			}
		}

		pass := passphrase
		if pass == "" {
			stored, ok, verr := m.vault.GetPassphrase(ctx, profile.ID)
			if verr != nil {
				return nil, CachedCredentials{}, trace.Wrap(verr)
			}
			if ok {
				pass = stored
			}
		}

		var signer ssh.Signer
		if pass != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(pass))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, CachedCredentials{}, corerrors.AuthFailed("invalid private key or passphrase")
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, CachedCredentials{AuthType: "key", Passphrase: pass, PrivateKey: keyBytes}, nil

	default:
		return nil, CachedCredentials{}, corerrors.InvalidArgument("unknown auth type %q", profile.AuthType)
	}
}

// Connect runs the full connect algorithm, stopping short of
// authentication if the host key has never been seen or has changed.
func (m *Manager) Connect(ctx context.Context, profile *store.Profile, password, passphrase string, timeout time.Duration) (ConnectOutcome, error) {
	return m.connect(ctx, profile, password, passphrase, timeout, false)
}

// ConnectAfterTrust skips host-key verification; the caller must have
// already persisted trust via the Host-Key Verifier.
func (m *Manager) ConnectAfterTrust(ctx context.Context, profile *store.Profile, password, passphrase string, timeout time.Duration) (ConnectOutcome, error) {
	return m.connect(ctx, profile, password, passphrase, timeout, true)
}

func (m *Manager) connect(ctx context.Context, profile *store.Profile, password, passphrase string, timeout time.Duration, skipVerify bool) (ConnectOutcome, error) {
	if locked, remaining := m.lockout.check(profile.ID); locked {
		return ConnectOutcome{}, corerrors.AuthFailed(fmt.Sprintf("account locked out, retry in %ds", remaining))
	}

	client, fingerprint, keyType, verifyResult, creds, err := m.dial(ctx, profile, password, passphrase, timeout, skipVerify)
	if err != nil {
		if corerrors.CodeOf(err) == corerrors.CodeAuthFailed {
			m.lockout.recordFailure(profile.ID)
		}
		return ConnectOutcome{}, err
	}

	if !skipVerify && verifyResult.Kind != hostkey.Matched {
		if verifyResult.Kind == hostkey.Mismatch {
			return ConnectOutcome{}, corerrors.HostkeyMismatch(verifyResult.Stored, verifyResult.Received)
		}
		return ConnectOutcome{
			NeedHostKeyConfirm: true,
			Fingerprint:        fingerprint,
			PendingHost:        profile.Host,
			PendingPort:        profile.Port,
			PendingKeyType:     keyType,
		}, nil
	}

	m.lockout.clear(profile.ID)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return ConnectOutcome{}, corerrors.RemoteIoError(err, "opening sftp channel")
	}

	home, err := execHome(client)
	if err != nil {
		m.log.WithError(err).Warn("failed to resolve remote home directory, defaulting to /")
		home = "/"
	}
	if home == "" {
		home = "/"
	}

	id := uuid.NewString()
	now := m.clock.Now()
	sess := &ManagedSession{
		ID:           id,
		ProfileID:    profile.ID,
		Host:         profile.Host,
		Port:         profile.Port,
		Username:     profile.Username,
		Fingerprint:  fingerprint,
		HomePath:     home,
		CreatedAt:    now,
		lastActivity: now,
		client:       client,
		sftpClient:   sftpClient,
		creds:        creds,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.startKeepalive(sess)

	if rcErr := m.db.RecentConnectionAdd(ctx, &store.RecentConnection{
		ProfileID:   profile.ID,
		Host:        profile.Host,
		Port:        profile.Port,
		Username:    profile.Username,
		ConnectedAt: now,
	}); rcErr != nil {
		m.log.WithError(rcErr).Warn("failed to record recent connection")
	}

	return ConnectOutcome{Connected: true, SessionID: id, HomePath: home, Fingerprint: fingerprint}, nil
}

func execHome(client *ssh.Client) (string, error) {
	sshSession, err := client.NewSession()
	if err != nil {
		return "", trace.Wrap(err)
	}
	defer sshSession.Close()
	out, err := sshSession.Output("echo $HOME")
	if err != nil {
		return "", trace.Wrap(err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Get returns the session for id, refreshing its last-activity time.
func (m *Manager) Get(id string) (*ManagedSession, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, corerrors.NotFound(fmt.Sprintf("session %s not found", id))
	}
	if sess.IsNetworkLost() {
		return nil, corerrors.NetworkLost(nil, "session lost keepalive contact")
	}
	sess.touch()
	return sess, nil
}

// CloseSession removes and closes the session for id. Idempotent.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.stopKeepalive(id)
	sess.close()
	return nil
}

// List returns every currently registered session id.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// IsAlive performs a cheap SFTP probe (listing ".") against the session.
func (m *Manager) IsAlive(id string) bool {
	sess, err := m.Get(id)
	if err != nil {
		return false
	}
	sftpClient := sess.SFTP()
	if sftpClient == nil {
		return false
	}
	if _, err := sftpClient.ReadDir("."); err != nil {
		return false
	}
	return true
}

// CleanupStale closes every session whose idle time exceeds
// idleTimeout, returning how many were closed.
func (m *Manager) CleanupStale(idleTimeout time.Duration) int {
	m.mu.RLock()
	now := m.clock.Now()
	var stale []string
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) > idleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.CloseSession(id)
	}
	return len(stale)
}

// CreateTerminalChild opens a second SSH session to the same host using
// the parent's cached credentials only, never the vault. Returns an
// AuthFailed error if no credentials were cached (e.g. a restored
// session).
func (m *Manager) CreateTerminalChild(ctx context.Context, sessionID string) (*ssh.Client, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	creds, ok := sess.Credentials()
	if !ok {
		return nil, corerrors.AuthFailed("credentials unavailable")
	}

	var authMethods []ssh.AuthMethod
	switch creds.AuthType {
	case "password":
		authMethods = []ssh.AuthMethod{ssh.Password(creds.Password)}
	case "key":
		var signer ssh.Signer
		var perr error
		if creds.Passphrase != "" {
			signer, perr = ssh.ParsePrivateKeyWithPassphrase(creds.PrivateKey, []byte(creds.Passphrase))
		} else {
			signer, perr = ssh.ParsePrivateKey(creds.PrivateKey)
		}
		if perr != nil {
			return nil, corerrors.AuthFailed("cached key credentials are no longer valid")
		}
		authMethods = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	default:
		return nil, corerrors.AuthFailed("credentials unavailable")
	}

	expectedFingerprint := sess.Fingerprint
	config := &ssh.ClientConfig{
		User: sess.Username,
		Auth: authMethods,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if hostkey.Fingerprint(key) != expectedFingerprint {
				return errors.New("session: host key changed since parent session was established")
			}
			return nil
		},
		Timeout: 30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", sess.Host, sess.Port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, classifyDialError(err)
	}
	return client, nil
}

func (m *Manager) startKeepalive(sess *ManagedSession) {
	stop := make(chan struct{})
	m.keepaliveMu.Lock()
	m.keepaliveStops[sess.ID] = stop
	m.keepaliveMu.Unlock()

	go func() {
		ticker := time.NewTicker(m.keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				client := sess.SSHClient()
				if client == nil {
					return
				}
				if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
					m.log.WithField("session", sess.ID).Warn("keepalive failed, marking session network-lost")
					sess.markNetworkLost()
					return
				}
			}
		}
	}()
}

func (m *Manager) stopKeepalive(id string) {
	m.keepaliveMu.Lock()
	stop, ok := m.keepaliveStops[id]
	if ok {
		delete(m.keepaliveStops, id)
	}
	m.keepaliveMu.Unlock()
	if ok {
		close(stop)
	}
}
