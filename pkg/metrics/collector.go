package metrics

import (
	"sync"
)

// Collector collects DCC-Pilot channel metrics
type Collector struct {
	mu sync.RWMutex

	// Command metrics
	commandsSent     uint64
	commandsRejected map[string]uint64 // key: rejection reason
	writeErrors      uint64

	// Inbound stream metrics
	linesDecoded map[string]uint64 // key: status tag (IDLE, BUSY, ...)
	bytesRead    uint64

	// Supervision metrics
	relaunches       uint64
	readinessExpired uint64
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		commandsRejected: make(map[string]uint64),
		linesDecoded:     make(map[string]uint64),
	}
}

// CommandSent records a command line handed to the transport
func (c *Collector) CommandSent() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commandsSent++
}

// CommandRejected records a command rejected before transmission
func (c *Collector) CommandRejected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commandsRejected[reason]++
}

// WriteError records a failed transport write
func (c *Collector) WriteError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeErrors++
}

// LineDecoded records a decoded inbound status line
func (c *Collector) LineDecoded(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.linesDecoded[tag]++
}

// BytesRead records raw bytes drained from the inbound stream
func (c *Collector) BytesRead(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bytesRead += uint64(n)
}

// Relaunch records a generator relaunch attempt
func (c *Collector) Relaunch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.relaunches++
}

// ReadinessExpired records a stale readiness state forced back to idle
func (c *Collector) ReadinessExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readinessExpired++
}

// GetCommandsSent returns the total commands sent
func (c *Collector) GetCommandsSent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.commandsSent
}

// GetCommandsRejected returns the total rejected commands across reasons
func (c *Collector) GetCommandsRejected() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total uint64
	for _, n := range c.commandsRejected {
		total += n
	}
	return total
}

// GetCommandsRejectedByReason returns a copy of the per-reason counts
func (c *Collector) GetCommandsRejectedByReason() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]uint64, len(c.commandsRejected))
	for reason, n := range c.commandsRejected {
		out[reason] = n
	}
	return out
}

// GetWriteErrors returns the total failed writes
func (c *Collector) GetWriteErrors() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writeErrors
}

// GetLinesDecoded returns the total decoded lines across tags
func (c *Collector) GetLinesDecoded() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total uint64
	for _, n := range c.linesDecoded {
		total += n
	}
	return total
}

// GetLinesDecodedByTag returns a copy of the per-tag counts
func (c *Collector) GetLinesDecodedByTag() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]uint64, len(c.linesDecoded))
	for tag, n := range c.linesDecoded {
		out[tag] = n
	}
	return out
}

// GetBytesRead returns the total raw bytes read
func (c *Collector) GetBytesRead() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytesRead
}

// GetRelaunches returns the total relaunch attempts
func (c *Collector) GetRelaunches() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relaunches
}

// GetReadinessExpired returns the total forced readiness fallbacks
func (c *Collector) GetReadinessExpired() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readinessExpired
}
