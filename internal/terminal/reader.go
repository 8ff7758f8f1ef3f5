package terminal

import (
	"encoding/base64"
	"time"

	"sshterm-core/internal/events"
)

const (
	emitMinInterval = 16 * time.Millisecond
	emitMaxBytes    = 4 * 1024
	pollInterval    = time.Millisecond
)

type readResult struct {
	n   int
	err error
}

// runReader is the dedicated reader goroutine for one terminal: it owns
// a single pooled read buffer and an accumulating byte buffer, emitting
// base64-encoded terminal:output events throttled at 16ms/4KiB. The
// underlying ssh.Channel has no deadline/non-blocking mode of its own,
// so "non-blocking" is implemented with a helper goroutine feeding reads
// over a channel and a select/timeout loop standing in for WouldBlock.
func (m *Manager) runReader(t *ManagedTerminal) {
	buf := m.readPool.Get()
	defer m.readPool.Put(buf)

	reads := make(chan readResult)
	resume := make(chan struct{})
	go func() {
		for {
			n, err := t.stdout.Read(buf)
			reads <- readResult{n: n, err: err}
			if err != nil {
				return
			}
			<-resume
		}
	}()

	var acc []byte
	lastEmit := time.Now()

	emit := func() {
		if len(acc) == 0 {
			return
		}
		m.bus.Publish(events.Event{
			Kind:    events.KindTerminalOutput,
			Subject: t.ID,
			Payload: base64.StdEncoding.EncodeToString(acc),
		})
		acc = nil
		lastEmit = time.Now()
	}

	exit := func() {
		emit()
		m.bus.Publish(events.Event{
			Kind:    events.KindTerminalStatus,
			Subject: t.ID,
			Payload: "disconnected",
		})
	}

	for {
		if t.isShuttingDown() {
			exit()
			return
		}

		select {
		case res := <-reads:
			if res.err != nil {
				exit()
				return
			}
			if res.n == 0 {
				exit()
				return
			}
			acc = append(acc, buf[:res.n]...)
			t.touch()
			resume <- struct{}{}
		case <-time.After(pollInterval):
			// WouldBlock equivalent: fall through to the emit-policy check.
		}

		if len(acc) > 0 && (time.Since(lastEmit) >= emitMinInterval || len(acc) >= emitMaxBytes) {
			emit()
		}
	}
}
