package transfer

import (
	"sync"
	"time"

	"sshterm-core/internal/events"
)

const progressInterval = 200 * time.Millisecond

// progressTracker accumulates transferred bytes for one task and emits
// throttled transfer:progress events, exactly as
// fileTransferProgress.shouldSendProgress throttles on a 100ms interval
// gated by percentage change, generalized here to a 200ms interval per
// spec and carrying speed alongside percent.
type progressTracker struct {
	mu sync.Mutex

	bus   *events.Bus
	t     *task
	total int64 // 0 means unknown until resolved

	transferred int64
	startedAt   time.Time
	lastEmitAt  time.Time
}

func newProgressTracker(bus *events.Bus, t *task, total int64, now time.Time) *progressTracker {
	return &progressTracker{bus: bus, t: t, total: total, startedAt: now, lastEmitAt: now}
}

// setTotal resolves Total once it becomes known (download: after the
// remote stat call).
func (p *progressTracker) setTotal(total int64) {
	p.mu.Lock()
	p.total = total
	p.mu.Unlock()
}

// add records n more transferred bytes and emits a throttled progress
// event if the interval has elapsed.
func (p *progressTracker) add(n int, now time.Time) {
	p.mu.Lock()
	p.transferred += int64(n)
	shouldEmit := now.Sub(p.lastEmitAt) >= progressInterval
	if shouldEmit {
		p.lastEmitAt = now
	}
	p.mu.Unlock()

	if shouldEmit {
		p.emit(now, false)
	}
}

// finish emits a final, forced 100% progress event on success.
func (p *progressTracker) finish(now time.Time) {
	p.emit(now, true)
}

func (p *progressTracker) emit(now time.Time, final bool) {
	p.mu.Lock()
	transferred := p.transferred
	total := p.total
	elapsed := now.Sub(p.startedAt).Seconds()
	p.mu.Unlock()

	var speed float64
	if elapsed > 0 {
		speed = float64(transferred) / elapsed
	}

	var percent int
	var totalPtr *int64
	if total > 0 {
		totalPtr = &total
		if final {
			percent = 100
			transferred = total
		} else {
			percent = int(transferred * 100 / total)
		}
	} else if final {
		percent = 100
	}

	p.t.mu.Lock()
	p.t.transferred = transferred
	p.t.total = totalPtr
	p.t.speed = &speed
	p.t.percent = &percent
	p.t.mu.Unlock()

	p.bus.Publish(events.Event{
		Kind:    events.KindTransferProgress,
		Subject: p.t.id,
		Payload: Snapshot{
			TaskID:      p.t.id,
			Transferred: transferred,
			Total:       totalPtr,
			Speed:       &speed,
			Percent:     &percent,
		},
	})
}
