// Package capture keeps a bounded in-memory trail of protocol lines and
// operator events for troubleshooting: every line written to or received
// from the DCC command generator is recorded here with a tag describing
// how it was interpreted.
package capture

import (
	"sync"
	"time"
)

// Record is one captured diagnostic entry
type Record struct {
	Time  time.Time `json:"time"`
	Topic string    `json:"topic"` // Originating module (PIDCC, VEHICLE, ...)
	Tag   string    `json:"tag"`   // Interpretation (WRITE, IDLE, BUSY, FULL, ERROR, ...)
	Text  string    `json:"text"`  // Verbatim line or event details
}

// Listener receives each record as it is captured. Listeners must not
// block: they are invoked inline on the capturing goroutine.
type Listener func(Record)

// Trail is a fixed-depth ring of capture records with listener fan-out
type Trail struct {
	mu        sync.RWMutex
	records   []Record
	next      int
	filled    bool
	listeners []Listener
}

// NewTrail creates a capture trail keeping the most recent depth records
func NewTrail(depth int) *Trail {
	if depth <= 0 {
		depth = 256
	}
	return &Trail{
		records: make([]Record, depth),
	}
}

// Record captures one entry and fans it out to listeners
func (t *Trail) Record(topic, tag, text string) {
	record := Record{
		Time:  time.Now(),
		Topic: topic,
		Tag:   tag,
		Text:  text,
	}

	t.mu.Lock()
	t.records[t.next] = record
	t.next++
	if t.next == len(t.records) {
		t.next = 0
		t.filled = true
	}
	listeners := t.listeners
	t.mu.Unlock()

	for _, listener := range listeners {
		listener(record)
	}
}

// AddListener registers a listener for future records
func (t *Trail) AddListener(listener Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, listener)
}

// Recent returns the captured records, oldest first
func (t *Trail) Recent() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.filled {
		out := make([]Record, t.next)
		copy(out, t.records[:t.next])
		return out
	}

	out := make([]Record, 0, len(t.records))
	out = append(out, t.records[t.next:]...)
	out = append(out, t.records[:t.next]...)
	return out
}

// Len returns the number of records currently held
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.filled {
		return len(t.records)
	}
	return t.next
}
