// Package daemon aggregates the Session, Terminal, and Transfer
// Managers behind a single Service, exposing spec.md §6's front-end
// command surface as plain Go methods. Grounded in
// lib/teleterm/daemon/daemon.go's Service{Config, clusters}/New(cfg)
// shape, generalized from "one Service per set of clusters" to "one
// Service per local daemon process" since this core serves a single
// operator, not a multi-cluster front end.
package daemon

import (
	"context"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"sshterm-core/internal/store"
)

// Config configures a Service. Follows the teacher's
// Config.CheckAndSetDefaults() convention (lib/teleterm/config.go).
type Config struct {
	DB    store.DB
	Vault store.Vault
	Clock clockwork.Clock
	Log   logrus.FieldLogger

	// LockFilePath is forwarded to the Session Manager, guarding against
	// two daemon instances racing on the vault and host-key cache.
	LockFilePath string

	ConnectTimeout      time.Duration
	KeepaliveInterval   time.Duration
	IdleSessionTimeout  time.Duration
	TransferConcurrency int

	// EventBufferPerSubscriber is defaulted here but not passed to the
	// event bus: New does not read it, and every subscriber channel uses
	// the bus's own fixed buffer size.
	EventBufferPerSubscriber int
}

func (c *Config) checkAndSetDefaults() error {
	if c.DB == nil {
		return trace.BadParameter("daemon: Config.DB is required")
	}
	if c.Vault == nil {
		return trace.BadParameter("daemon: Config.Vault is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if c.LockFilePath == "" {
		c.LockFilePath = "sshterm-core.lock"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 60 * time.Second
	}
	if c.IdleSessionTimeout <= 0 {
		c.IdleSessionTimeout = 30 * time.Minute
	}
	if c.TransferConcurrency <= 0 {
		c.TransferConcurrency = 3
	}
	if c.EventBufferPerSubscriber <= 0 {
		c.EventBufferPerSubscriber = 64
	}
	return nil
}

// loadSettings pulls operator-tunable overrides from the persistence
// store (spec.md §4.6) and folds them into cfg in place, DB values
// winning over constructor-supplied defaults. A load failure is
// non-fatal: the daemon falls back to cfg's existing defaults, logging
// the failure, following hostkey.Verifier's fail-open discipline for
// the same external collaborator.
func (c *Config) loadSettings(log logrus.FieldLogger) {
	settings, err := c.DB.SettingsLoad(context.Background())
	if err != nil {
		log.WithError(err).Warn("failed to load settings, using defaults")
		return
	}
	if settings == nil {
		return
	}
	if settings.DefaultConcurrency > 0 {
		c.TransferConcurrency = settings.DefaultConcurrency
	}
	if settings.IdleTimeoutSecs > 0 {
		c.IdleSessionTimeout = time.Duration(settings.IdleTimeoutSecs) * time.Second
	}
	if settings.KeepaliveIntervalSecs > 0 {
		c.KeepaliveInterval = time.Duration(settings.KeepaliveIntervalSecs) * time.Second
	}
}
