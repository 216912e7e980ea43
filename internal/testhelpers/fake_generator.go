// Package testhelpers provides a scriptable stand-in for the DCC
// command generator so integration tests can exercise the full service
// without hardware or a child process.
package testhelpers

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// FakeGenerator implements the station transport with a scripted
// generator behind it: written command lines are recorded, and tests
// feed status lines back through the inbound stream.
type FakeGenerator struct {
	mu     sync.Mutex
	lines  []string
	opens  int
	dead   bool
	closed bool

	// OpenErr, when set, makes the next Open fail with it.
	OpenErr error

	reader *io.PipeReader
	writer *io.PipeWriter
}

// NewFakeGenerator creates a fake generator ready to be opened
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{}
}

// Open establishes the scripted inbound stream
func (g *FakeGenerator) Open() (io.ReadCloser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.OpenErr != nil {
		return nil, g.OpenErr
	}
	g.opens++
	g.dead = false
	g.closed = false
	g.reader, g.writer = io.Pipe()
	return g.reader, nil
}

// WriteLine records one outbound command line
func (g *FakeGenerator) WriteLine(line string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dead || g.closed {
		return fmt.Errorf("generator gone")
	}
	g.lines = append(g.lines, line)
	return nil
}

// Alive reports the scripted liveness
func (g *FakeGenerator) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.dead && !g.closed
}

// Close tears down the inbound stream
func (g *FakeGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	if g.writer != nil {
		_ = g.writer.Close()
	}
	return nil
}

// Emit feeds raw bytes into the inbound status stream. Include the
// newline terminator; the station reassembles lines itself.
func (g *FakeGenerator) Emit(data string) {
	g.mu.Lock()
	w := g.writer
	g.mu.Unlock()

	if w != nil {
		_, _ = w.Write([]byte(data))
	}
}

// EmitIdle reports the generator idle
func (g *FakeGenerator) EmitIdle() { g.Emit("# idle\n") }

// EmitBusy reports the generator busy
func (g *FakeGenerator) EmitBusy() { g.Emit("% processing\n") }

// EmitFull reports the generator queue full
func (g *FakeGenerator) EmitFull() { g.Emit("* queue full\n") }

// Die simulates generator death: writes start failing and the inbound
// stream ends, leaving relaunch to the supervisor.
func (g *FakeGenerator) Die() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dead = true
	if g.writer != nil {
		_ = g.writer.Close()
	}
}

// Lines returns a copy of every command line written so far
func (g *FakeGenerator) Lines() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.lines...)
}

// LastLine returns the most recent command line, or ""
func (g *FakeGenerator) LastLine() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.lines) == 0 {
		return ""
	}
	return g.lines[len(g.lines)-1]
}

// Opens returns how many times the channel was (re)opened
func (g *FakeGenerator) Opens() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opens
}

// Sent reports whether any written line contains the given fragment
func (g *FakeGenerator) Sent(fragment string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, line := range g.lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
