package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"sshterm-core/internal/hostkey"
	"sshterm-core/internal/store"
	"sshterm-core/internal/vault"
)

type fakeDB struct {
	knownHosts map[string]string
	recent     []*store.RecentConnection
}

func newFakeDB() *fakeDB {
	return &fakeDB{knownHosts: map[string]string{}}
}

func (f *fakeDB) ProfileGet(context.Context, string) (*store.Profile, error)    { return nil, nil }
func (f *fakeDB) ProfileUpsert(context.Context, *store.Profile) error           { return nil }
func (f *fakeDB) ProfileDelete(context.Context, string) error                   { return nil }
func (f *fakeDB) ProfileList(context.Context) ([]*store.Profile, error)         { return nil, nil }

func (f *fakeDB) KnownHostCheck(_ context.Context, host string, port int) (string, bool, error) {
	fp, ok := f.knownHosts[host]
	return fp, ok, nil
}
func (f *fakeDB) KnownHostTrust(_ context.Context, host string, port int, keyType, fingerprint string) error {
	f.knownHosts[host] = fingerprint
	return nil
}
func (f *fakeDB) KnownHostRemove(_ context.Context, host string, port int) error {
	delete(f.knownHosts, host)
	return nil
}
func (f *fakeDB) RecentConnectionAdd(_ context.Context, rec *store.RecentConnection) error {
	f.recent = append(f.recent, rec)
	return nil
}
func (f *fakeDB) SettingsLoad(context.Context) (*store.Settings, error) {
	return &store.Settings{DefaultConcurrency: 3, IdleTimeoutSecs: 900, KeepaliveIntervalSecs: 60}, nil
}

type fakeVaultBackend struct {
	entries map[string]string
}

func newFakeVaultBackend() *fakeVaultBackend {
	return &fakeVaultBackend{entries: map[string]string{}}
}

func (f *fakeVaultBackend) Store(_ context.Context, key, secret string) error {
	f.entries[key] = secret
	return nil
}
func (f *fakeVaultBackend) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.entries[key]
	return v, ok, nil
}
func (f *fakeVaultBackend) Delete(_ context.Context, key string) (bool, error) {
	_, ok := f.entries[key]
	delete(f.entries, key)
	return ok, nil
}

func newTestManager(t *testing.T) (*Manager, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	db := newFakeDB()
	v := vault.New(newFakeVaultBackend())
	hk := hostkey.New(db, nil)

	lockPath := filepath.Join(t.TempDir(), "sessions.lock")
	mgr, err := New(Config{
		DB:           db,
		Vault:        v,
		HostKeys:     hk,
		Clock:        clock,
		LockFilePath: lockPath,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { mgr.Shutdown() })
	return mgr, clock
}

func insertFakeSession(mgr *Manager, id string, lastActivity time.Time) *ManagedSession {
	sess := &ManagedSession{
		ID:           id,
		lastActivity: lastActivity,
	}
	mgr.mu.Lock()
	mgr.sessions[id] = sess
	mgr.mu.Unlock()
	return sess
}

func TestGetReturnsNotFoundForUnknownID(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.Get("missing"); err == nil {
		t.Fatal("expected error for unknown session id")
	}
}

func TestGetRefreshesActivity(t *testing.T) {
	mgr, clock := newTestManager(t)
	insertFakeSession(mgr, "s1", clock.Now().Add(-time.Hour))

	clock.Advance(time.Minute)
	sess, err := mgr.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.LastActivity().Before(clock.Now().Add(-time.Second)) {
		t.Fatalf("last activity not refreshed: %v", sess.LastActivity())
	}
}

func TestGetFailsFastOnNetworkLost(t *testing.T) {
	mgr, clock := newTestManager(t)
	sess := insertFakeSession(mgr, "s1", clock.Now())
	sess.markNetworkLost()

	if _, err := mgr.Get("s1"); err == nil {
		t.Fatal("expected NetworkLost error")
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	mgr, clock := newTestManager(t)
	insertFakeSession(mgr, "s1", clock.Now())

	if err := mgr.CloseSession("s1"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := mgr.CloseSession("s1"); err != nil {
		t.Fatalf("second close should be a no-op success: %v", err)
	}
	if _, err := mgr.Get("s1"); err == nil {
		t.Fatal("session should be gone after close")
	}
}

func TestListReturnsAllSessions(t *testing.T) {
	mgr, clock := newTestManager(t)
	insertFakeSession(mgr, "a", clock.Now())
	insertFakeSession(mgr, "b", clock.Now())

	ids := mgr.List()
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
}

func TestCleanupStaleClosesOnlyIdleSessions(t *testing.T) {
	mgr, clock := newTestManager(t)
	insertFakeSession(mgr, "stale", clock.Now())
	clock.Advance(20 * time.Minute)
	insertFakeSession(mgr, "fresh", clock.Now())

	n := mgr.CleanupStale(15 * time.Minute)
	if n != 1 {
		t.Fatalf("got %d cleaned up, want 1", n)
	}
	ids := mgr.List()
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Fatalf("unexpected remaining sessions: %v", ids)
	}
}

func TestCreateTerminalChildFailsWithoutCachedCredentials(t *testing.T) {
	mgr, clock := newTestManager(t)
	insertFakeSession(mgr, "s1", clock.Now())

	if _, err := mgr.CreateTerminalChild(context.Background(), "s1"); err == nil {
		t.Fatal("expected AuthFailed when no credentials were cached")
	}
}

func TestNewRefusesSecondInstanceOnSameLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "sessions.lock")
	db := newFakeDB()
	v := vault.New(newFakeVaultBackend())
	hk := hostkey.New(db, nil)

	mgr1, err := New(Config{DB: db, Vault: v, HostKeys: hk, LockFilePath: lockPath})
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	defer mgr1.Shutdown()

	if _, err := New(Config{DB: db, Vault: v, HostKeys: hk, LockFilePath: lockPath}); err == nil {
		t.Fatal("expected second instance to fail acquiring the lock")
	}
}
