package litbuddy

import (
	"encoding/json"
	"sync"
	"time"
)

// ============================================================================
// Publish Outbox
// ============================================================================

// outboxEntry is a publish captured while disconnected.
type outboxEntry struct {
	destination string
	body        json.RawMessage
	enqueuedAt  time.Time
	retries     int
}

// publishOutbox is a bounded FIFO of publishes made while disconnected. The
// realtime client drains it after every successful (re)connect, oldest
// first. When the buffer is full the oldest entry gives way to the newest:
// in a chat the latest send is the one the user still cares about.
type publishOutbox struct {
	mu      sync.Mutex
	entries []outboxEntry
	limit   int
}

func newPublishOutbox(limit int) *publishOutbox {
	return &publishOutbox{limit: limit}
}

// enqueue appends an entry, evicting the oldest when full. Reports whether
// an eviction happened.
func (o *publishOutbox) enqueue(destination string, body json.RawMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	dropped := false
	if len(o.entries) >= o.limit {
		o.entries = o.entries[1:]
		dropped = true
	}
	o.entries = append(o.entries, outboxEntry{
		destination: destination,
		body:        body,
		enqueuedAt:  time.Now(),
	})
	return dropped
}

// drain removes and returns all entries in FIFO order.
func (o *publishOutbox) drain() []outboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := o.entries
	o.entries = nil
	return entries
}

// requeue puts a failed entry back at the head so order is preserved on the
// next flush.
func (o *publishOutbox) requeue(entry outboxEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry.retries++
	o.entries = append([]outboxEntry{entry}, o.entries...)
}

func (o *publishOutbox) pendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
