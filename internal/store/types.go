// Package store declares the data types and external-collaborator
// contracts the core consumes: the persistence store (profiles,
// known-hosts, transfer history, recent connections, settings) and the
// OS credential vault. Neither is implemented here — per spec.md §1 both
// are external collaborators specified only by the operations the core
// invokes against them.
package store

import "time"

// AuthType is the authentication method a Profile uses.
type AuthType string

const (
	AuthPassword AuthType = "password"
	AuthKey      AuthType = "key"
)

// Profile is a saved connection profile, owned and persisted by the
// external store. The core treats it as read-only.
type Profile struct {
	ID              string
	Name            string
	Host            string
	Port            int
	Username        string
	AuthType        AuthType
	PasswordRef     string // opaque vault key, set when AuthType == AuthPassword and a secret was saved
	PrivateKeyPath  string
	PassphraseRef   string // opaque vault key, set when the private key is encrypted
	InitialPath     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HostKeyRecord is a trusted host-key entry as stored by the known-hosts
// table.
type HostKeyRecord struct {
	Host        string
	Port        int
	KeyType     string
	Fingerprint string
}

// RecentConnection is appended to the connection history on every
// successful connect.
type RecentConnection struct {
	ProfileID   string
	Host        string
	Port        int
	Username    string
	ConnectedAt time.Time
}

// Settings holds the handful of operator-tunable values the core reads
// at startup. Everything else (UI preferences, window layout, ...) lives
// entirely outside the core's concern.
type Settings struct {
	DefaultConcurrency    int
	IdleTimeoutSecs       int
	KeepaliveIntervalSecs int
}
