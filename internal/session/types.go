// Package session owns the registry of live SSH sessions: it drives the
// connect/authenticate/verify handshake, caches credentials for child
// session creation, tracks auth-failure lockout, and provides idle
// cleanup and aliveness probing. Grounded in
// _examples/zmb3-teleport/lib/client/client.go's NodeClient/connect
// shape, generalized from teleport's certificate-authority trust model
// to the plain TOFU model spec.md describes.
package session

import (
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// CachedCredentials holds the secret(s) used to authenticate, retained
// only so a terminal child session can reauthenticate without touching
// the vault. Zeroed on Close.
type CachedCredentials struct {
	Password   string
	Passphrase string
	AuthType   string // "password" or "key"
	PrivateKey []byte // raw key bytes, needed to re-derive ssh.Signer for child sessions
}

func (c *CachedCredentials) zero() {
	if c == nil {
		return
	}
	zeroString(&c.Password)
	zeroString(&c.Passphrase)
	for i := range c.PrivateKey {
		c.PrivateKey[i] = 0
	}
	c.PrivateKey = nil
}

func zeroString(s *string) {
	if *s == "" {
		return
	}
	b := []byte(*s)
	for i := range b {
		b[i] = 0
	}
	*s = ""
}

// ManagedSession is one authenticated SSH connection, the unit the rest
// of the core (Terminal Manager, Transfer Manager) references.
type ManagedSession struct {
	ID        string
	ProfileID string
	Host      string
	Port      int
	Username  string
	Fingerprint string
	HomePath  string
	CreatedAt time.Time

	mu           sync.RWMutex
	client       *ssh.Client
	sftpClient   *sftp.Client
	lastActivity time.Time
	creds        CachedCredentials
	closed       bool
	networkLost  bool
}

// markNetworkLost flags the session as having missed its keepalive
// reply, so the next operation against it fails fast instead of
// hanging.
func (s *ManagedSession) markNetworkLost() {
	s.mu.Lock()
	s.networkLost = true
	s.mu.Unlock()
}

// IsNetworkLost reports whether keepalive has detected a dead
// connection.
func (s *ManagedSession) IsNetworkLost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.networkLost
}

// touch refreshes last_activity.
func (s *ManagedSession) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the last recorded activity time.
func (s *ManagedSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// SFTP returns the borrowed SFTP client handle for this session.
func (s *ManagedSession) SFTP() *sftp.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sftpClient
}

// SSHClient returns the underlying *ssh.Client.
func (s *ManagedSession) SSHClient() *ssh.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Credentials returns a copy of the cached credentials and whether any
// were recorded at all.
func (s *ManagedSession) Credentials() (CachedCredentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.AuthType == "" {
		return CachedCredentials{}, false
	}
	return s.creds, true
}

// IsClosed reports whether Close has already run.
func (s *ManagedSession) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// close releases the network handles and zeroes cached credentials.
// Idempotent.
func (s *ManagedSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.sftpClient != nil {
		s.sftpClient.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	s.creds.zero()
}

// ConnectOutcome is the two-valued result of Connect: either a
// usable session, or a pending host-key confirmation the caller must
// resolve via Trust + ConnectAfterTrust.
type ConnectOutcome struct {
	Connected         bool
	SessionID         string
	HomePath          string
	Fingerprint       string
	NeedHostKeyConfirm bool
	PendingHost       string
	PendingPort       int
	PendingKeyType    string
}
