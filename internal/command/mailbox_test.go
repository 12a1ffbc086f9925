package command

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/safety"
)

func TestMailbox_ZeroIntentBeforeFirstPublish(t *testing.T) {
	t.Parallel()

	mailbox := NewMailbox()
	assert.Equal(t, safety.Intent{}, mailbox.Latest())
}

func TestMailbox_LastWriteWins(t *testing.T) {
	t.Parallel()

	mailbox := NewMailbox()
	mailbox.Publish(safety.Intent{Left: 100, Right: 100})
	mailbox.Publish(safety.Intent{Left: -300, Right: 500})

	got := mailbox.Latest()
	assert.Equal(t, -300, got.Left)
	assert.Equal(t, 500, got.Right)
}

// Concurrent publishes and reads must never yield a torn value: every read
// observes some complete published intent.
func TestMailbox_NoTornReads(t *testing.T) {
	t.Parallel()

	mailbox := NewMailbox()
	published := map[safety.Intent]bool{{}: true}
	var intents []safety.Intent
	for i := 1; i <= 16; i++ {
		intent := safety.Intent{Left: i * 10, Right: i * -10}
		intents = append(intents, intent)
		published[intent] = true
	}

	var wg sync.WaitGroup
	for _, intent := range intents {
		wg.Add(1)
		go func(in safety.Intent) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				mailbox.Publish(in)
			}
		}(intent)
	}

	var torn bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if !published[mailbox.Latest()] {
				torn = true
				return
			}
		}
	}()

	wg.Wait()
	assert.False(t, torn, "observed an intent that was never published")
}
