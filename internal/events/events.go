// Package events provides best-effort event publication from background
// workers to observers. Publication never blocks: a slow or absent
// subscriber drops events rather than stalling a download or output pump.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event types published by the core.
const (
	TypeDownloadProgress   = "download-progress"
	TypeDownloadComplete   = "download-complete"
	TypeExtractionProgress = "extraction-progress"
	TypeProcessStarted     = "process-started"
	TypeProcessStopped     = "process-stopped"
)

// Event is a single notification from a background task.
type Event struct {
	// Type is one of the Type* constants.
	Type string

	// ID identifies the download job or process the event belongs to.
	ID string

	// Payload carries a snapshot of the relevant status record.
	Payload any
}

// Publisher delivers events to observers. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Bus fans events out to subscriber channels. Each subscriber has its own
// buffered channel; when a buffer is full the event is dropped for that
// subscriber only.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new observer and returns its channel along with an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := make([]chan Event, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full, drop.
		}
	}
}

// LogSink is a Publisher that writes events to a structured logger.
type LogSink struct {
	Logger logrus.FieldLogger
}

// Publish logs the event at debug level.
func (s LogSink) Publish(ev Event) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"type": ev.Type,
		"id":   ev.ID,
	}).Debug("event")
}

// Multi returns a Publisher that forwards each event to all of ps.
func Multi(ps ...Publisher) Publisher {
	return multi(ps)
}

type multi []Publisher

func (m multi) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}
