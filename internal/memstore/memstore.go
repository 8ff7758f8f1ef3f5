// Package memstore is a volatile, process-lifetime implementation of
// store.DB and store.Vault, used only by cmd/sshtermctl: the real
// persistence store and OS credential vault are external collaborators
// per spec.md §1, out of scope for this core, but the demo driver needs
// something to hand daemon.New.
package memstore

import (
	"context"
	"sync"

	"sshterm-core/internal/store"
)

// DB is an in-memory store.DB. Nothing it holds survives past the
// process exiting.
type DB struct {
	mu         sync.Mutex
	profiles   map[string]*store.Profile
	knownHosts map[string]store.HostKeyRecord
	recent     []*store.RecentConnection
}

// NewDB returns an empty DB.
func NewDB() *DB {
	return &DB{
		profiles:   make(map[string]*store.Profile),
		knownHosts: make(map[string]store.HostKeyRecord),
	}
}

func hostKey(host string, port int) string {
	return host + ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (d *DB) ProfileGet(_ context.Context, id string) (*store.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[id]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (d *DB) ProfileUpsert(_ context.Context, p *store.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
	return nil
}

func (d *DB) ProfileDelete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.profiles, id)
	return nil
}

func (d *DB) ProfileList(_ context.Context) ([]*store.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*store.Profile, 0, len(d.profiles))
	for _, p := range d.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (d *DB) KnownHostCheck(_ context.Context, host string, port int) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.knownHosts[hostKey(host, port)]
	return rec.Fingerprint, ok, nil
}

func (d *DB) KnownHostTrust(_ context.Context, host string, port int, keyType, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.knownHosts[hostKey(host, port)] = store.HostKeyRecord{Host: host, Port: port, KeyType: keyType, Fingerprint: fingerprint}
	return nil
}

func (d *DB) KnownHostRemove(_ context.Context, host string, port int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.knownHosts, hostKey(host, port))
	return nil
}

func (d *DB) RecentConnectionAdd(_ context.Context, rec *store.RecentConnection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent = append(d.recent, rec)
	return nil
}

func (d *DB) SettingsLoad(_ context.Context) (*store.Settings, error) {
	return &store.Settings{DefaultConcurrency: 3, IdleTimeoutSecs: 1800, KeepaliveIntervalSecs: 60}, nil
}

// Vault is an in-memory store.Vault.
type Vault struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewVault returns an empty Vault.
func NewVault() *Vault {
	return &Vault{entries: make(map[string]string)}
}

func (v *Vault) Store(_ context.Context, key, secret string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[key] = secret
	return nil
}

func (v *Vault) Get(_ context.Context, key string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	secret, ok := v.entries[key]
	return secret, ok, nil
}

func (v *Vault) Delete(_ context.Context, key string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, existed := v.entries[key]
	delete(v.entries, key)
	return existed, nil
}
