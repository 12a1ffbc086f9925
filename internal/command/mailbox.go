// Package command carries motion intents from producers (manual control, the
// autonomous agent, the websocket relay) to the control loop.
//
// The mailbox is a single slot with last-write-wins semantics: a robot should
// act on the newest instruction, never a backlog. The gateway is the textual
// ingestion boundary, where emergency keywords are matched before any other
// interpretation happens.
package command

import (
	"sync"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/safety"
)

// Mailbox is a thread-safe single-slot relay of the newest motion intent.
// Any number of producers may publish concurrently; the only contract is
// that a concurrent publish and read never return a torn value.
type Mailbox struct {
	mu     sync.RWMutex
	intent safety.Intent
}

// NewMailbox returns an empty mailbox. Latest returns the zero intent until
// the first publish.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Publish overwrites the slot with the given intent. It never blocks on a
// consumer and never queues: older intents are semantically obsolete.
func (m *Mailbox) Publish(intent safety.Intent) {
	m.mu.Lock()
	m.intent = intent
	m.mu.Unlock()
}

// Latest returns the most recently published intent, or the zero intent if
// none has ever been published.
func (m *Mailbox) Latest() safety.Intent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intent
}
