// Package transfer implements the concurrency-limited file transfer
// engine: a task registry with a strict state machine, chunked streaming
// copy, throttled progress, cooperative cancellation, and
// exponential-backoff retry. Grounded in
// _examples/zmb3-teleport/lib/teleterm/clusters/cluster_file_transfer.go's
// fileTransferProgress (percentage throttling) generalized into a full
// task lifecycle instead of a single fire-and-forget stream.
package transfer

import (
	"sync"
	"time"
)

// Direction names which side of the copy the remote server is on.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// Status is a task's position in its state machine. Transitions are
// Waiting -> Running -> {Success|Failed|Canceled}, except that an
// automatic retry after a retryable error moves a Running task back to
// Waiting; Failed is only revived by Retry, which produces a brand new
// task.
type Status string

const (
	StatusWaiting   Status = "Waiting"
	StatusRunning   Status = "Running"
	StatusSuccess   Status = "Success"
	StatusFailed    Status = "Failed"
	StatusCanceled  Status = "Canceled"
)

// TaskErr is the terminal error detail attached to a Failed task.
type TaskErr struct {
	Message   string
	Code      string
	Retryable bool
}

// Snapshot is an immutable point-in-time view of a task, returned by
// Get/List so callers never hold the live, mutex-guarded task.
type Snapshot struct {
	TaskID      string
	SessionID   string
	Direction   Direction
	LocalPath   string
	RemotePath  string
	FileName    string
	Status      Status
	Transferred int64
	Total       *int64
	Speed       *float64
	Percent     *int
	Err         *TaskErr
	CreatedAt   time.Time
	CompletedAt *time.Time
	RetryCount  int
}

// task is the live, mutable task record. All field access outside of
// construction goes through the mutex.
type task struct {
	mu sync.Mutex

	id         string
	sessionID  string
	direction  Direction
	localPath  string
	remotePath string
	fileName   string

	status      Status
	transferred int64
	total       *int64
	speed       *float64
	percent     *int
	err         *TaskErr

	createdAt   time.Time
	completedAt *time.Time
	retryCount  int

	cancel *cancelToken
}

func (t *task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		TaskID:      t.id,
		SessionID:   t.sessionID,
		Direction:   t.direction,
		LocalPath:   t.localPath,
		RemotePath:  t.remotePath,
		FileName:    t.fileName,
		Status:      t.status,
		Transferred: t.transferred,
		Total:       t.total,
		Speed:       t.speed,
		Percent:     t.percent,
		Err:         t.err,
		CreatedAt:   t.createdAt,
		CompletedAt: t.completedAt,
		RetryCount:  t.retryCount,
	}
}

func (t *task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// cancelToken is a one-shot, idempotent cancellation signal checked once
// per copy chunk.
type cancelToken struct {
	once sync.Once
	ch   chan struct{}
}

func newCancelToken() *cancelToken {
	return &cancelToken{ch: make(chan struct{})}
}

func (c *cancelToken) Cancel() {
	c.once.Do(func() { close(c.ch) })
}

func (c *cancelToken) Canceled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}
