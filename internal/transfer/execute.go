package transfer

import (
	"context"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/events"
)

func statLocal(p string) (os.FileInfo, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, corerrors.FromIOError(p, err)
	}
	return info, nil
}

func ensureLocalDir(p string) error {
	if err := os.MkdirAll(p, 0o755); err != nil {
		return corerrors.FromIOError(p, err)
	}
	return nil
}

// Execute runs taskID's copy to completion, retrying up to twice on a
// Retryable error with exponential backoff (1s, 2s) before marking it
// Failed. It refuses tasks that are not Waiting, so it is safe to call
// at most once per task except via its own internal retry loop.
func (m *Manager) Execute(ctx context.Context, taskID string) error {
	t, err := m.lookup(taskID)
	if err != nil {
		return err
	}

	for {
		done, err := m.runOnce(ctx, t)
		if done {
			return err
		}
	}
}

// runOnce executes a single attempt. The first return value (done) is
// false only when the attempt ended in a Retryable error with retries
// remaining, in which case the task has been reset to Waiting and the
// caller should loop.
func (m *Manager) runOnce(ctx context.Context, t *task) (done bool, err error) {
	t.mu.Lock()
	if t.status != StatusWaiting {
		t.mu.Unlock()
		return true, corerrors.InvalidArgument("task %s is not Waiting", t.id)
	}
	sessionID, direction, localPath, remotePath, retryCount := t.sessionID, t.direction, t.localPath, t.remotePath, t.retryCount
	var total int64
	if t.total != nil {
		total = *t.total
	}
	t.mu.Unlock()

	client, err := m.sessions(sessionID)
	if err != nil {
		m.fail(t, toTaskErr(err))
		return true, err
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		te := toTaskErr(corerrors.Canceled("canceled while queued"))
		m.fail(t, te)
		return true, err
	}
	released := false
	release := func() {
		if !released {
			released = true
			m.sem.Release(1)
		}
	}
	defer release()

	t.setStatus(StatusRunning)
	m.bus.Publish(events.Event{
		Kind:    events.KindTransferStatus,
		Subject: t.id,
		Payload: Snapshot{TaskID: t.id, Status: StatusRunning},
	})

	buf := m.bufPool.Get()
	defer m.bufPool.Put(buf)

	tracker := newProgressTracker(m.bus, t, total, m.clock.Now())

	var copyErr error
	if direction == DirectionUpload {
		copyErr = copyUpload(client, localPath, remotePath, buf, tracker, t.cancel, m.clock.Now)
	} else {
		copyErr = copyDownload(client, remotePath, localPath, buf, tracker, t.cancel, m.clock.Now)
	}

	if copyErr == nil {
		tracker.finish(m.clock.Now())
		t.mu.Lock()
		t.status = StatusSuccess
		now := m.clock.Now()
		t.completedAt = &now
		transferred := t.transferred
		elapsed := now.Sub(t.createdAt)
		t.mu.Unlock()
		m.bus.Publish(events.Event{
			Kind:    events.KindTransferStatus,
			Subject: t.id,
			Payload: Snapshot{TaskID: t.id, Status: StatusSuccess},
		})
		m.log.WithField("task_id", t.id).Debugf("transfer complete: %s in %s", humanize.Bytes(uint64(transferred)), elapsed.Round(time.Millisecond))
		return true, nil
	}

	if corerrors.CodeOf(copyErr) == corerrors.CodeCanceled {
		t.mu.Lock()
		t.status = StatusCanceled
		now := m.clock.Now()
		t.completedAt = &now
		t.mu.Unlock()
		m.bus.Publish(events.Event{
			Kind:    events.KindTransferStatus,
			Subject: t.id,
			Payload: Snapshot{TaskID: t.id, Status: StatusCanceled},
		})
		return true, copyErr
	}

	if corerrors.IsRetryable(copyErr) && retryCount < maxRetries {
		t.mu.Lock()
		t.status = StatusWaiting
		t.transferred = 0
		t.retryCount++
		t.mu.Unlock()

		release()
		backoff := time.Duration(1<<uint(retryCount)) * time.Second
		m.clock.Sleep(backoff)
		return false, nil
	}

	m.fail(t, toTaskErr(copyErr))
	return true, copyErr
}

func (m *Manager) fail(t *task, te *TaskErr) {
	t.mu.Lock()
	t.status = StatusFailed
	t.err = te
	now := m.clock.Now()
	t.completedAt = &now
	t.mu.Unlock()

	m.bus.Publish(events.Event{
		Kind:    events.KindTransferStatus,
		Subject: t.id,
		Payload: Snapshot{TaskID: t.id, Status: StatusFailed, Err: te},
	})
}

func toTaskErr(err error) *TaskErr {
	return &TaskErr{
		Message:   err.Error(),
		Code:      string(corerrors.CodeOf(err)),
		Retryable: corerrors.IsRetryable(err),
	}
}
