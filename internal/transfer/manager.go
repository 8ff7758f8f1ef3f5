package transfer

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"sshterm-core/internal/bufpool"
	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/events"
	"sshterm-core/internal/sftpops"
)

const (
	minConcurrency     = 1
	maxConcurrency     = 6
	defaultConcurrency = 3
	maxRetries         = 2
)

// SessionProvider resolves a session id to the SFTP client backing it.
// Modeled as a func type (the http.HandlerFunc pattern) rather than an
// interface, since the only thing callers ever have is a closure over
// the Session Manager's Get method returning a different concrete type.
type SessionProvider func(sessionID string) (*sftp.Client, error)

// Config configures a Manager.
type Config struct {
	Sessions    SessionProvider
	Bus         *events.Bus
	Log         logrus.FieldLogger
	Concurrency int
	Clock       clockwork.Clock
}

func (c *Config) checkAndSetDefaults() error {
	if c.Sessions == nil {
		return trace.BadParameter("transfer: Config.Sessions is required")
	}
	if c.Bus == nil {
		return trace.BadParameter("transfer: Config.Bus is required")
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if c.Concurrency < minConcurrency {
		c.Concurrency = defaultConcurrency
	}
	if c.Concurrency > maxConcurrency {
		c.Concurrency = maxConcurrency
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Manager owns the transfer task registry, a semaphore bounding
// concurrent Running tasks, and the chunked-copy buffer pool.
type Manager struct {
	sessions SessionProvider
	bus      *events.Bus
	log      logrus.FieldLogger
	clock    clockwork.Clock

	sem     *semaphore.Weighted
	bufPool *bufpool.Pool

	mu    sync.RWMutex
	tasks map[string]*task
}

// New constructs a Manager.
func New(cfg Config) (*Manager, error) {
	if err := cfg.checkAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Manager{
		sessions: cfg.Sessions,
		bus:      cfg.Bus,
		log:      cfg.Log.WithField("component", "transfer"),
		clock:    cfg.Clock,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		bufPool:  bufpool.New(chunkSize),
		tasks:    make(map[string]*task),
	}, nil
}

func (m *Manager) register(t *task) {
	m.mu.Lock()
	m.tasks[t.id] = t
	m.mu.Unlock()
}

// CreateUpload registers a Waiting upload task for a single local file.
func (m *Manager) CreateUpload(sessionID, localPath, remoteDir string) (string, error) {
	info, err := statLocal(localPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", corerrors.InvalidArgument("%q is a directory, not a file", localPath)
	}

	fileName := filepath.Base(localPath)
	remotePath := strings.TrimRight(remoteDir, "/") + "/" + fileName
	total := info.Size()

	t := &task{
		id:         uuid.NewString(),
		sessionID:  sessionID,
		direction:  DirectionUpload,
		localPath:  localPath,
		remotePath: remotePath,
		fileName:   fileName,
		status:     StatusWaiting,
		total:      &total,
		createdAt:  m.clock.Now(),
		cancel:     newCancelToken(),
	}
	m.register(t)
	return t.id, nil
}

// CreateDownload registers a Waiting download task for a single remote
// file; Total is unknown until execute resolves it via stat.
func (m *Manager) CreateDownload(sessionID, remotePath, localDir string) (string, error) {
	if _, err := statLocal(localDir); err != nil {
		return "", err
	}

	fileName := path.Base(remotePath)
	localPath := filepath.Join(localDir, fileName)

	t := &task{
		id:         uuid.NewString(),
		sessionID:  sessionID,
		direction:  DirectionDownload,
		localPath:  localPath,
		remotePath: remotePath,
		fileName:   fileName,
		status:     StatusWaiting,
		createdAt:  m.clock.Now(),
		cancel:     newCancelToken(),
	}
	m.register(t)
	return t.id, nil
}

// CreateUploadDir lists localDir recursively, pre-creates every
// required destination subdirectory exactly once, and registers one
// Waiting task per file under a containing directory named after
// localDir's basename. An empty source is not an error.
func (m *Manager) CreateUploadDir(sessionID, localDir, remoteDir string) ([]string, error) {
	client, err := m.sessions(sessionID)
	if err != nil {
		return nil, err
	}

	files, err := sftpops.ListLocalDirRecursive(localDir)
	if err != nil {
		return nil, err
	}

	containing := strings.TrimRight(remoteDir, "/") + "/" + filepath.Base(filepath.Clean(localDir))
	dirsSeen := map[string]bool{}
	var ids []string

	for _, f := range files {
		relDir := path.Dir(f.Rel)
		destDir := containing
		if relDir != "." {
			destDir = containing + "/" + relDir
		}
		if !dirsSeen[destDir] {
			if err := sftpops.EnsureRemoteDir(client, destDir); err != nil {
				return nil, err
			}
			dirsSeen[destDir] = true
		}

		remotePath := destDir + "/" + path.Base(f.Rel)
		info, err := statLocal(f.Abs)
		if err != nil {
			return nil, err
		}
		total := info.Size()

		t := &task{
			id:         uuid.NewString(),
			sessionID:  sessionID,
			direction:  DirectionUpload,
			localPath:  f.Abs,
			remotePath: remotePath,
			fileName:   path.Base(remotePath),
			status:     StatusWaiting,
			total:      &total,
			createdAt:  m.clock.Now(),
			cancel:     newCancelToken(),
		}
		m.register(t)
		ids = append(ids, t.id)
	}
	return ids, nil
}

// CreateDownloadDir lists remoteDir recursively, pre-creates every
// required local subdirectory exactly once, and registers one Waiting
// task per file under a containing directory named after remoteDir's
// basename.
func (m *Manager) CreateDownloadDir(sessionID, remoteDir, localDir string) ([]string, error) {
	client, err := m.sessions(sessionID)
	if err != nil {
		return nil, err
	}

	files, err := sftpops.ListDirRecursive(client, remoteDir)
	if err != nil {
		return nil, err
	}

	containing := filepath.Join(localDir, filepath.Base(path.Clean(remoteDir)))
	dirsSeen := map[string]bool{}
	var ids []string

	for _, f := range files {
		destDir := filepath.Join(containing, filepath.Dir(filepath.FromSlash(f.Rel)))
		if !dirsSeen[destDir] {
			if err := ensureLocalDir(destDir); err != nil {
				return nil, err
			}
			dirsSeen[destDir] = true
		}

		localPath := filepath.Join(destDir, filepath.Base(filepath.FromSlash(f.Rel)))
		remotePath := strings.TrimRight(remoteDir, "/") + "/" + filepath.ToSlash(f.Rel)

		t := &task{
			id:         uuid.NewString(),
			sessionID:  sessionID,
			direction:  DirectionDownload,
			localPath:  localPath,
			remotePath: remotePath,
			fileName:   filepath.Base(localPath),
			status:     StatusWaiting,
			createdAt:  m.clock.Now(),
			cancel:     newCancelToken(),
		}
		m.register(t)
		ids = append(ids, t.id)
	}
	return ids, nil
}

// Upload creates and immediately schedules a single-file upload task,
// returning its id without waiting for completion.
func (m *Manager) Upload(ctx context.Context, sessionID, localPath, remoteDir string) (string, error) {
	id, err := m.CreateUpload(sessionID, localPath, remoteDir)
	if err != nil {
		return "", err
	}
	go m.Execute(ctx, id)
	return id, nil
}

// Download creates and immediately schedules a single-file download
// task.
func (m *Manager) Download(ctx context.Context, sessionID, remotePath, localDir string) (string, error) {
	id, err := m.CreateDownload(sessionID, remotePath, localDir)
	if err != nil {
		return "", err
	}
	go m.Execute(ctx, id)
	return id, nil
}

// UploadDir creates and schedules one task per file under localDir.
func (m *Manager) UploadDir(ctx context.Context, sessionID, localDir, remoteDir string) ([]string, error) {
	ids, err := m.CreateUploadDir(sessionID, localDir, remoteDir)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		go m.Execute(ctx, id)
	}
	return ids, nil
}

// DownloadDir creates and schedules one task per file under remoteDir.
func (m *Manager) DownloadDir(ctx context.Context, sessionID, remoteDir, localDir string) ([]string, error) {
	ids, err := m.CreateDownloadDir(sessionID, remoteDir, localDir)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		go m.Execute(ctx, id)
	}
	return ids, nil
}

// Get returns a snapshot of taskID.
func (m *Manager) Get(taskID string) (Snapshot, error) {
	t, err := m.lookup(taskID)
	if err != nil {
		return Snapshot{}, err
	}
	return t.snapshot(), nil
}

// List returns a snapshot of every known task.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// Cancel signals taskID's cancellation token. Idempotent on terminal
// tasks; the actual transition to Canceled happens inside the running
// copy loop once it observes the token.
func (m *Manager) Cancel(taskID string) error {
	t, err := m.lookup(taskID)
	if err != nil {
		return err
	}
	t.cancel.Cancel()
	return nil
}

// Retry constructs a brand new task from a Failed task's paths and
// direction, with fresh id and zeroed counters, and returns its new id.
// It does not itself schedule execution.
func (m *Manager) Retry(taskID string) (string, error) {
	t, err := m.lookup(taskID)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	if t.status != StatusFailed {
		t.mu.Unlock()
		return "", corerrors.InvalidArgument("task %s is not Failed", taskID)
	}
	direction, sessionID, localPath, remotePath, fileName, total := t.direction, t.sessionID, t.localPath, t.remotePath, t.fileName, t.total
	t.mu.Unlock()

	nt := &task{
		id:         uuid.NewString(),
		sessionID:  sessionID,
		direction:  direction,
		localPath:  localPath,
		remotePath: remotePath,
		fileName:   fileName,
		status:     StatusWaiting,
		total:      total,
		createdAt:  m.clock.Now(),
		cancel:     newCancelToken(),
	}
	m.register(nt)
	return nt.id, nil
}

// CleanupCompleted removes every Success and Canceled task from the
// registry, retaining Waiting, Running, and Failed.
func (m *Manager) CleanupCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tasks {
		t.mu.Lock()
		status := t.status
		t.mu.Unlock()
		if status == StatusSuccess || status == StatusCanceled {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

func (m *Manager) lookup(taskID string) (*task, error) {
	m.mu.RLock()
	t, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return nil, corerrors.NotFound("task not found: " + taskID)
	}
	return t, nil
}
