package hostkey

import (
	"context"
	"errors"
	"testing"

	"sshterm-core/internal/store"
)

type fakeDB struct {
	store.DB
	fingerprint string
	has         bool
	lookupErr   error

	trusted struct {
		host, keyType, fingerprint string
		port                       int
	}
}

func (f *fakeDB) KnownHostCheck(_ context.Context, host string, port int) (string, bool, error) {
	if f.lookupErr != nil {
		return "", false, f.lookupErr
	}
	return f.fingerprint, f.has, nil
}

func (f *fakeDB) KnownHostTrust(_ context.Context, host string, port int, keyType, fingerprint string) error {
	f.trusted.host, f.trusted.port, f.trusted.keyType, f.trusted.fingerprint = host, port, keyType, fingerprint
	return nil
}

func TestVerifyFirstConnection(t *testing.T) {
	db := &fakeDB{has: false}
	v := New(db, nil)

	res, err := v.Verify(context.Background(), "h", 22, "ssh-ed25519", "SHA256:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != FirstConnection {
		t.Fatalf("got kind %v, want FirstConnection", res.Kind)
	}
}

func TestVerifyMatched(t *testing.T) {
	db := &fakeDB{has: true, fingerprint: "SHA256:abc"}
	v := New(db, nil)

	res, err := v.Verify(context.Background(), "h", 22, "ssh-ed25519", "SHA256:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Matched {
		t.Fatalf("got kind %v, want Matched", res.Kind)
	}
}

func TestVerifyMismatch(t *testing.T) {
	db := &fakeDB{has: true, fingerprint: "SHA256:OLD"}
	v := New(db, nil)

	res, err := v.Verify(context.Background(), "h", 22, "ssh-ed25519", "SHA256:NEW")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Mismatch {
		t.Fatalf("got kind %v, want Mismatch", res.Kind)
	}
	if res.Stored != "SHA256:OLD" || res.Received != "SHA256:NEW" {
		t.Fatalf("detail mismatch: stored=%q received=%q", res.Stored, res.Received)
	}
}

func TestVerifyFailsOpenOnDBError(t *testing.T) {
	db := &fakeDB{lookupErr: errors.New("db unreachable")}
	v := New(db, nil)

	res, err := v.Verify(context.Background(), "h", 22, "ssh-ed25519", "SHA256:abc")
	if err != nil {
		t.Fatalf("Verify must fail open, not return an error: %v", err)
	}
	if res.Kind != FirstConnection {
		t.Fatalf("got kind %v, want FirstConnection on DB failure", res.Kind)
	}
}

func TestTrustUpsertsRecord(t *testing.T) {
	db := &fakeDB{}
	v := New(db, nil)

	if err := v.Trust(context.Background(), "h", 22, "ssh-ed25519", "SHA256:abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.trusted.host != "h" || db.trusted.port != 22 || db.trusted.fingerprint != "SHA256:abc" {
		t.Fatalf("trust record not stored correctly: %+v", db.trusted)
	}
}
