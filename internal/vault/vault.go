// Package vault is a thin facade over the OS credential vault (an
// external collaborator, spec.md §4.6): it namespaces keys as
// "password:<profile_id>" / "passphrase:<profile_id>" and composes the
// two-secret delete used when a profile is removed.
package vault

import (
	"context"
	"fmt"

	"github.com/gravitational/trace"

	"sshterm-core/internal/store"
)

// Adapter wraps a store.Vault with the key-naming convention the rest of
// the core relies on.
type Adapter struct {
	backend store.Vault
}

// New wraps backend, the externally supplied OS credential vault.
func New(backend store.Vault) *Adapter {
	return &Adapter{backend: backend}
}

func passwordKey(profileID string) string   { return fmt.Sprintf("password:%s", profileID) }
func passphraseKey(profileID string) string { return fmt.Sprintf("passphrase:%s", profileID) }

// StorePassword saves the password for profileID.
func (a *Adapter) StorePassword(ctx context.Context, profileID, secret string) error {
	return trace.Wrap(a.backend.Store(ctx, passwordKey(profileID), secret))
}

// GetPassword returns the stored password for profileID, if any.
func (a *Adapter) GetPassword(ctx context.Context, profileID string) (string, bool, error) {
	secret, ok, err := a.backend.Get(ctx, passwordKey(profileID))
	return secret, ok, trace.Wrap(err)
}

// StorePassphrase saves the private-key passphrase for profileID.
func (a *Adapter) StorePassphrase(ctx context.Context, profileID, secret string) error {
	return trace.Wrap(a.backend.Store(ctx, passphraseKey(profileID), secret))
}

// GetPassphrase returns the stored passphrase for profileID, if any.
func (a *Adapter) GetPassphrase(ctx context.Context, profileID string) (string, bool, error) {
	secret, ok, err := a.backend.Get(ctx, passphraseKey(profileID))
	return secret, ok, trace.Wrap(err)
}

// DeleteForProfile deletes both the password and passphrase entries for
// profileID, swallowing "missing entry" results from either delete since
// a profile may only ever have used one of the two.
func (a *Adapter) DeleteForProfile(ctx context.Context, profileID string) error {
	if _, err := a.backend.Delete(ctx, passwordKey(profileID)); err != nil {
		return trace.Wrap(err)
	}
	if _, err := a.backend.Delete(ctx, passphraseKey(profileID)); err != nil {
		return trace.Wrap(err)
	}
	return nil
}
