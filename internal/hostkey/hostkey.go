// Package hostkey implements trust-on-first-use host-key verification:
// a known-hosts lookup combined with a fingerprint comparison, grounded
// in the teacher's transport-layer host-key handling in
// lib/client/client.go (HostKeyCallback construction) but generalized
// away from teleport's CA-based trust model to the plain TOFU model
// spec.md §4.1 describes.
package hostkey

import (
	"context"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"sshterm-core/internal/store"
)

// ResultKind is the three-valued outcome of Verify.
type ResultKind int

const (
	FirstConnection ResultKind = iota
	Matched
	Mismatch
)

// Result is the outcome of a Verify call.
type Result struct {
	Kind     ResultKind
	Host     string
	Port     int
	KeyType  string
	Stored   string // only set on Mismatch
	Received string
}

// Verifier combines a known-hosts lookup with a fingerprint comparison.
type Verifier struct {
	db  store.DB
	log logrus.FieldLogger
}

// New returns a Verifier backed by db.
func New(db store.DB, log logrus.FieldLogger) *Verifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Verifier{db: db, log: log.WithField("component", "hostkey")}
}

// Fingerprint computes the canonical "SHA256:<base64>" form of pubKey,
// delegating to the library primitive rather than recomputing the hash
// by hand.
func Fingerprint(pubKey ssh.PublicKey) string {
	return ssh.FingerprintSHA256(pubKey)
}

// Verify looks up the stored fingerprint for (host, port) and compares
// it against received. A database lookup failure fails open to TOFU: it
// is logged, never silently trusted, and treated as "absent" so the
// caller still requires an explicit trust() before the connection
// proceeds.
func (v *Verifier) Verify(ctx context.Context, host string, port int, keyType, received string) (Result, error) {
	stored, ok, err := v.db.KnownHostCheck(ctx, host, port)
	if err != nil {
		v.log.WithError(err).WithField("host", host).
			Warn("known-hosts lookup failed, falling open to trust-on-first-use")
		ok = false
	}

	if !ok {
		return Result{Kind: FirstConnection, Host: host, Port: port, KeyType: keyType, Received: received}, nil
	}
	if stored == received {
		return Result{Kind: Matched, Host: host, Port: port, KeyType: keyType, Received: received}, nil
	}
	return Result{Kind: Mismatch, Host: host, Port: port, KeyType: keyType, Stored: stored, Received: received}, nil
}

// Trust upserts the known-hosts record for (host, port).
func (v *Verifier) Trust(ctx context.Context, host string, port int, keyType, fingerprint string) error {
	return trace.Wrap(v.db.KnownHostTrust(ctx, host, port, keyType, fingerprint))
}

// Remove deletes the known-hosts record for (host, port).
func (v *Verifier) Remove(ctx context.Context, host string, port int) error {
	return trace.Wrap(v.db.KnownHostRemove(ctx, host, port))
}
