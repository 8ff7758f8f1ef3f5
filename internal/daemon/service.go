package daemon

import (
	"context"
	"os"
	"time"

	"github.com/gravitational/trace"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/events"
	"sshterm-core/internal/hostkey"
	"sshterm-core/internal/session"
	"sshterm-core/internal/sftpops"
	"sshterm-core/internal/store"
	"sshterm-core/internal/terminal"
	"sshterm-core/internal/transfer"
	"sshterm-core/internal/vault"
)

// Service is the single entry point the front end drives: it owns the
// Session, Terminal, and Transfer Managers plus the event bus they all
// publish to, and exposes spec.md §6's command surface as methods.
type Service struct {
	cfg Config
	log logrus.FieldLogger

	bus       *events.Bus
	sessions  *session.Manager
	terminals *terminal.Manager
	transfers *transfer.Manager

	idleStop chan struct{}
}

// New constructs a Service, wiring the Terminal and Transfer Managers'
// dependencies on the Session Manager through the narrow seams each
// declares (terminal.SessionSource is satisfied by *session.Manager
// directly; transfer.SessionProvider is a closure over it, since
// Manager.Get returns *session.ManagedSession, a concrete type an
// interface method can't name covariantly).
func New(cfg Config) (*Service, error) {
	if err := cfg.checkAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	cfg.loadSettings(cfg.Log)

	bus := events.New(cfg.Log)
	hostKeys := hostkey.New(cfg.DB, cfg.Log)
	credVault := vault.New(cfg.Vault)

	sessions, err := session.New(session.Config{
		DB:                cfg.DB,
		Vault:             credVault,
		HostKeys:          hostKeys,
		Clock:             cfg.Clock,
		Log:               cfg.Log,
		LockFilePath:      cfg.LockFilePath,
		KeepaliveInterval: cfg.KeepaliveInterval,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	terminals, err := terminal.New(terminal.Config{
		Sessions: sessions,
		Bus:      bus,
		Log:      cfg.Log,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	sftpProvider := func(sessionID string) (*sftp.Client, error) {
		sess, err := sessions.Get(sessionID)
		if err != nil {
			return nil, err
		}
		client := sess.SFTP()
		if client == nil {
			return nil, corerrors.NetworkLost(nil, "sftp channel unavailable for session")
		}
		return client, nil
	}

	transfers, err := transfer.New(transfer.Config{
		Sessions:    sftpProvider,
		Bus:         bus,
		Log:         cfg.Log,
		Concurrency: cfg.TransferConcurrency,
		Clock:       cfg.Clock,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	svc := &Service{
		cfg:       cfg,
		log:       cfg.Log.WithField("component", "daemon"),
		bus:       bus,
		sessions:  sessions,
		terminals: terminals,
		transfers: transfers,
		idleStop:  make(chan struct{}),
	}
	go svc.runIdleSweep()
	return svc, nil
}

// runIdleSweep closes sessions idle past cfg.IdleSessionTimeout once a
// minute, mirroring lib/teleterm/daemon/daemon.go's periodic cleanup
// goroutine pattern.
func (s *Service) runIdleSweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.sessions.CleanupStale(s.cfg.IdleSessionTimeout); n > 0 {
				s.log.WithField("count", n).Info("closed idle sessions")
			}
		case <-s.idleStop:
			return
		}
	}
}

// Shutdown closes every live session and terminal and stops the idle
// sweep. Safe to call once, at process shutdown.
func (s *Service) Shutdown() error {
	close(s.idleStop)
	for _, id := range s.sessions.List() {
		s.terminals.CloseBySession(id)
	}
	return trace.Wrap(s.sessions.Shutdown())
}

// Events returns the shared bus so a front end can subscribe to
// terminal output, transfer progress, and session lifecycle events.
func (s *Service) Events() *events.Bus {
	return s.bus
}

// --- profile ---

func (s *Service) ProfileList(ctx context.Context) ([]*store.Profile, error) {
	return s.cfg.DB.ProfileList(ctx)
}

func (s *Service) ProfileGet(ctx context.Context, id string) (*store.Profile, error) {
	return s.cfg.DB.ProfileGet(ctx, id)
}

func (s *Service) ProfileUpsert(ctx context.Context, p *store.Profile) error {
	return s.cfg.DB.ProfileUpsert(ctx, p)
}

// ProfileDelete removes a profile and its vaulted secrets together, per
// spec.md §4.6's two-secret delete.
func (s *Service) ProfileDelete(ctx context.Context, id string) error {
	if err := s.cfg.DB.ProfileDelete(ctx, id); err != nil {
		return err
	}
	if err := vault.New(s.cfg.Vault).DeleteForProfile(ctx, id); err != nil {
		s.log.WithError(err).WithField("profile_id", id).Warn("failed to delete vaulted secrets")
	}
	return nil
}

// --- session ---

func (s *Service) SessionConnect(ctx context.Context, profile *store.Profile, password, passphrase string) (session.ConnectOutcome, error) {
	return s.sessions.Connect(ctx, profile, password, passphrase, s.cfg.ConnectTimeout)
}

func (s *Service) SessionConnectAfterTrust(ctx context.Context, profile *store.Profile, password, passphrase string) (session.ConnectOutcome, error) {
	return s.sessions.ConnectAfterTrust(ctx, profile, password, passphrase, s.cfg.ConnectTimeout)
}

func (s *Service) SessionDisconnect(sessionID string) error {
	s.terminals.CloseBySession(sessionID)
	return s.sessions.CloseSession(sessionID)
}

func (s *Service) SessionInfo(sessionID string) (*session.ManagedSession, error) {
	return s.sessions.Get(sessionID)
}

func (s *Service) SessionList() []string {
	return s.sessions.List()
}

// --- security (host-key trust) ---

func (s *Service) SecurityTrustHostkey(ctx context.Context, host string, port int, keyType, fingerprint string) error {
	return hostkey.New(s.cfg.DB, s.log).Trust(ctx, host, port, keyType, fingerprint)
}

func (s *Service) SecurityRemoveHostkey(ctx context.Context, host string, port int) error {
	return hostkey.New(s.cfg.DB, s.log).Remove(ctx, host, port)
}

func (s *Service) SecurityCheckHostkey(ctx context.Context, host string, port int, keyType, fingerprint string) (hostkey.Result, error) {
	return hostkey.New(s.cfg.DB, s.log).Verify(ctx, host, port, keyType, fingerprint)
}

// --- sftp ---

func (s *Service) sftpClientFor(sessionID string) (*sftp.Client, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	client := sess.SFTP()
	if client == nil {
		return nil, corerrors.NetworkLost(nil, "sftp channel unavailable for session")
	}
	return client, nil
}

func (s *Service) SftpListDir(sessionID, dir string, opts sftpops.ListOptions) ([]sftpops.Entry, error) {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return nil, err
	}
	return sftpops.ListDir(client, dir, opts)
}

func (s *Service) SftpStat(sessionID, path string) (sftpops.Entry, error) {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return sftpops.Entry{}, err
	}
	return sftpops.Stat(client, path)
}

func (s *Service) SftpMkdir(sessionID, path string) error {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return err
	}
	return sftpops.Mkdir(client, path)
}

func (s *Service) SftpRename(sessionID, from, to string) error {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return err
	}
	return sftpops.Rename(client, from, to)
}

func (s *Service) SftpDelete(sessionID, path string, isDir bool) error {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return err
	}
	return sftpops.Delete(client, path, isDir)
}

func (s *Service) SftpChmod(sessionID, path string, mode os.FileMode) error {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return err
	}
	return sftpops.Chmod(client, path, mode)
}

func (s *Service) SftpGetDirStats(sessionID, path string) (sftpops.DirStats, error) {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return sftpops.DirStats{}, err
	}
	return sftpops.GetDirectoryStats(client, path)
}

func (s *Service) SftpDeleteRecursive(sessionID, path string, progress sftpops.ProgressFunc) (sftpops.DeleteResult, error) {
	client, err := s.sftpClientFor(sessionID)
	if err != nil {
		return sftpops.DeleteResult{}, err
	}
	publish := func(root string, deleted, total int, current string) {
		s.bus.Publish(events.Event{
			Kind:    events.KindDeleteProgress,
			Subject: sessionID,
			Payload: map[string]interface{}{"path": root, "deleted_count": deleted, "total_count": total, "current_path": current},
		})
		if progress != nil {
			progress(root, deleted, total, current)
		}
	}
	return sftpops.DeleteRecursive(client, path, publish, s.cfg.Clock.Now)
}

// --- transfer ---

func (s *Service) TransferUpload(ctx context.Context, sessionID, localPath, remoteDir string) (string, error) {
	return s.transfers.Upload(ctx, sessionID, localPath, remoteDir)
}

func (s *Service) TransferDownload(ctx context.Context, sessionID, remotePath, localDir string) (string, error) {
	return s.transfers.Download(ctx, sessionID, remotePath, localDir)
}

func (s *Service) TransferUploadDir(ctx context.Context, sessionID, localDir, remoteDir string) ([]string, error) {
	return s.transfers.UploadDir(ctx, sessionID, localDir, remoteDir)
}

func (s *Service) TransferDownloadDir(ctx context.Context, sessionID, remoteDir, localDir string) ([]string, error) {
	return s.transfers.DownloadDir(ctx, sessionID, remoteDir, localDir)
}

func (s *Service) TransferCancel(taskID string) error {
	return s.transfers.Cancel(taskID)
}

// TransferRetry constructs a fresh task from a failed one and schedules
// it immediately, returning the new task's id.
func (s *Service) TransferRetry(ctx context.Context, taskID string) (string, error) {
	newID, err := s.transfers.Retry(taskID)
	if err != nil {
		return "", err
	}
	go s.transfers.Execute(ctx, newID)
	return newID, nil
}

func (s *Service) TransferList() []transfer.Snapshot {
	return s.transfers.List()
}

func (s *Service) TransferGet(taskID string) (transfer.Snapshot, error) {
	return s.transfers.Get(taskID)
}

func (s *Service) TransferCleanup() int {
	return s.transfers.CleanupCompleted()
}

// --- terminal ---

func (s *Service) TerminalOpen(ctx context.Context, sessionID string, cols, rows int) (terminal.Info, error) {
	return s.terminals.Open(ctx, sessionID, cols, rows)
}

func (s *Service) TerminalInput(terminalID string, data []byte) error {
	return s.terminals.WriteInput(terminalID, data)
}

func (s *Service) TerminalResize(terminalID string, cols, rows int) error {
	return s.terminals.Resize(terminalID, cols, rows)
}

func (s *Service) TerminalClose(terminalID string) error {
	return s.terminals.Close(terminalID)
}

func (s *Service) TerminalGetBySession(sessionID string) (string, bool) {
	return s.terminals.GetBySession(sessionID)
}
