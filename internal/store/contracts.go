package store

import "context"

// DB is the persistence-store contract the core invokes. The concrete
// implementation (a relational embedded database, per spec.md §1) lives
// entirely outside this module.
type DB interface {
	ProfileGet(ctx context.Context, id string) (*Profile, error)
	ProfileUpsert(ctx context.Context, p *Profile) error
	ProfileDelete(ctx context.Context, id string) error
	ProfileList(ctx context.Context) ([]*Profile, error)

	// KnownHostCheck returns the stored fingerprint for (host, port), or
	// ("", false) if there is no record. A database failure here must
	// fail open to TOFU (spec.md §4.1) — callers never treat a DB error
	// as a cached "no record" silently; they log and then behave as if
	// this returned ("", false).
	KnownHostCheck(ctx context.Context, host string, port int) (fingerprint string, ok bool, err error)
	KnownHostTrust(ctx context.Context, host string, port int, keyType, fingerprint string) error
	KnownHostRemove(ctx context.Context, host string, port int) error

	RecentConnectionAdd(ctx context.Context, rec *RecentConnection) error
	SettingsLoad(ctx context.Context) (*Settings, error)
}

// Vault is the OS credential-vault contract. Keys are namespaced
// "password:<profile_id>" and "passphrase:<profile_id>" per spec.md §4.6.
type Vault interface {
	Store(ctx context.Context, key, secret string) error
	Get(ctx context.Context, key string) (secret string, ok bool, err error)
	Delete(ctx context.Context, key string) (existed bool, err error)
}
