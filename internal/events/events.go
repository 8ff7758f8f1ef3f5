// Package events implements the advisory, lossy, per-subject-FIFO event
// bus the front-end consumes (spec.md §6). It is a generalization of
// lib/teleterm/clusters.Cluster's single unbuffered
// "outgoingClusterEventsC chan<- struct{}" signal channel into a typed,
// multi-subscriber bus: each subscriber gets its own bounded buffered
// channel, and a slow subscriber drops its oldest queued event rather
// than blocking the publisher (events are advisory, never a durable
// queue — spec.md §5, §9).
package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Kind names an event's topic, matching the wire contract in spec.md §6.
type Kind string

const (
	KindSessionStatus  Kind = "session:status"
	KindTransferProgress Kind = "transfer:progress"
	KindTransferStatus Kind = "transfer:status"
	KindTerminalOutput Kind = "terminal:output"
	KindTerminalStatus Kind = "terminal:status"
	KindDeleteProgress Kind = "delete:progress"
)

// Event is one published message. Subject is the session/terminal/task
// id (or path, for delete:progress) events for a single subject are FIFO
// relative to each other; there is no ordering guarantee across subjects.
type Event struct {
	Kind    Kind
	Subject string
	Payload interface{}
}

// defaultBufferSize bounds how many events a slow subscriber can fall
// behind before the bus starts dropping its oldest queued events.
const defaultBufferSize = 256

// Bus fans out published events to every current subscriber.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	log  logrus.FieldLogger
}

// New returns an empty Bus.
func New(log logrus.FieldLogger) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{subs: make(map[int]chan Event), log: log.WithField("component", "events")}
}

// Subscribe registers a new subscriber and returns its channel and an
// unsubscribe function. The returned channel is closed by Unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, defaultBufferSize)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

// Publish fans out ev to every current subscriber. It never blocks: a
// full subscriber channel has its oldest event dropped to make room,
// which is logged at debug level since it means that subscriber missed
// an advisory update (status events remain authoritative and can always
// be re-queried, per spec.md §5).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
				b.log.WithField("subscriber", id).WithField("kind", ev.Kind).
					Debug("subscriber channel full, dropped its oldest event")
			default:
			}
			select {
			case ch <- ev:
			default:
				b.log.WithField("subscriber", id).WithField("kind", ev.Kind).
					Debug("dropping event, subscriber channel still full after eviction")
			}
		}
	}
}

// SubscriberCount reports the current number of live subscribers, used
// only for diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
