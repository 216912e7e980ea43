// Package station owns the channel to the external DCC command
// generator: it encodes control intents into command lines, writes them
// to the generator, tracks the generator's readiness from its
// asynchronous status stream, and supervises the generator's lifetime.
package station

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/capture"
	"github.com/trackworks/dcc-pilot/pkg/dcc"
	"github.com/trackworks/dcc-pilot/pkg/logger"
	"github.com/trackworks/dcc-pilot/pkg/metrics"
)

// captureTopic tags every record this package writes to the trail
const captureTopic = "PIDCC"

// Config holds the command channel configuration
type Config struct {
	Transport     string // "subprocess" or "serial"
	Executable    string // Subprocess transport: generator binary
	SerialDevice  string // Serial transport: device path
	SerialBaud    int    // Serial transport: baud rate
	LivenessTicks int    // Check generator liveness every N ticks
	PinA          int    // Generator output pin A (0 = unassigned)
	PinB          int    // Generator output pin B (0 = unassigned)
}

// Station is the command channel to the DCC generator. All commands are
// synchronous and report only whether the line was accepted for
// transmission, never whether the hardware acted on it: the inbound
// protocol carries no per-command acknowledgement.
//
// One mutex serializes callers, the transport reader and the periodic
// tick; nothing here blocks while holding it beyond a single bounded
// write.
type Station struct {
	mu sync.Mutex

	cfg     Config
	log     *logger.Logger
	trail   *capture.Trail
	metrics *metrics.Collector

	transportFactory func() Transport
	transport        Transport
	generation       int // invalidates readers of torn-down transports

	readiness readiness
	pinA      int
	pinB      int
	ticks     int
}

// New creates a station for the configured transport. Initialize must
// be called before commands are accepted.
func New(cfg Config, trail *capture.Trail, collector *metrics.Collector, log *logger.Logger) *Station {
	if cfg.LivenessTicks <= 0 {
		cfg.LivenessTicks = 5
	}
	s := &Station{
		cfg:     cfg,
		log:     log,
		trail:   trail,
		metrics: collector,
		pinA:    cfg.PinA,
		pinB:    cfg.PinB,
	}
	if strings.ToLower(cfg.Transport) == "serial" {
		s.transportFactory = func() Transport {
			return newSerialTransport(cfg.SerialDevice, cfg.SerialBaud)
		}
	} else {
		s.transportFactory = func() Transport {
			return newProcessTransport(cfg.Executable)
		}
	}
	return s
}

// SetTransportFactory overrides the transport constructor. Tests use
// this to substitute a scripted generator; call before Initialize.
func (s *Station) SetTransportFactory(factory func() Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportFactory = factory
}

// Initialize launches the generator. A failed launch is not fatal: the
// channel stays down and the next liveness check retries.
func (s *Station) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launch()
}

// Shutdown tears down the channel
func (s *Station) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
		s.generation++
	}
}

// launch spawns a fresh transport and wires its status stream into the
// readiness machine. Caller holds s.mu.
func (s *Station) launch() error {
	t := s.transportFactory()
	r, err := t.Open()
	if err != nil {
		s.transport = nil
		s.trail.Record(captureTopic, "ERROR", fmt.Sprintf("launch: %v", err))
		s.log.Event(captureTopic, s.channelName(), "FAILED", err.Error())
		return err
	}

	s.transport = t
	s.generation++

	if pt, ok := t.(*processTransport); ok {
		s.log.Event(captureTopic, s.channelName(), "START", fmt.Sprintf("PID %d", pt.Pid()))
	} else {
		s.log.Event(captureTopic, s.channelName(), "START", "")
	}

	go s.readLoop(r, s.generation)

	// A fresh generator knows nothing: push the pin assignment.
	if s.enabled() {
		s.writeLine(dcc.PinLine(s.pinA, s.pinB))
	}
	return nil
}

func (s *Station) channelName() string {
	if strings.ToLower(s.cfg.Transport) == "serial" {
		return s.cfg.SerialDevice
	}
	return s.cfg.Executable
}

// enabled reports whether the channel is administratively enabled.
// With no pins assigned, commands are rendered for diagnostics but
// never written. Caller holds s.mu.
func (s *Station) enabled() bool {
	return s.pinA > 0 || s.pinB > 0
}

// writeLine records and transmits one command line. With the channel
// disabled the line is recorded as BUILT and the call succeeds without
// writing. Caller holds s.mu.
func (s *Station) writeLine(line string) bool {
	submit := s.enabled()
	if submit {
		s.trail.Record(captureTopic, "WRITE", line)
	} else {
		s.trail.Record(captureTopic, "BUILT", line)
		return true
	}

	if s.transport == nil {
		s.metrics.WriteError()
		s.trail.Record(captureTopic, "ERROR", "write: channel not running")
		return false
	}
	if err := s.transport.WriteLine(line); err != nil {
		// No retry, no buffering: the command is simply dropped and
		// the caller may retry.
		s.metrics.WriteError()
		s.trail.Record(captureTopic, "ERROR", fmt.Sprintf("write: %v", err))
		return false
	}
	s.metrics.CommandSent()
	return true
}

// ConfigurePins updates the generator output pin assignment
func (s *Station) ConfigurePins(a, b int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pinA = a
	s.pinB = b
	if !s.enabled() {
		return
	}
	s.writeLine(dcc.PinLine(a, b))
}

// ExportConfig returns the current pin assignment for persistence
func (s *Station) ExportConfig() (pinA, pinB int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinA, s.pinB
}

// Readiness returns the current channel readiness state
func (s *Station) Readiness() ReadinessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readiness.state
}

// Alive reports whether the generator channel is currently up
func (s *Station) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil && s.transport.Alive()
}

// Move commands one locomotive's speed and direction. The speed sign
// encodes direction; the magnitude is clamped to the 28-step range.
func (s *Station) Move(address, speed int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !dcc.ValidLocomotiveAddress(address) {
		s.metrics.CommandRejected("address")
		return false
	}
	if s.readiness.gated() {
		s.metrics.CommandRejected("full")
		return false
	}
	return s.writeLine(dcc.SendLine(address, dcc.SpeedInstruction(speed)))
}

// Stop orders one locomotive, or all of them (address 0), to stop.
// A stop is a safety command: it is never gated by a full generator.
func (s *Station) Stop(address int, emergency bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !dcc.ValidStopAddress(address) {
		s.metrics.CommandRejected("address")
		return false
	}
	return s.writeLine(dcc.SendLine(address, dcc.StopInstruction(emergency)))
}

// SetFunction transmits a pre-encoded function group instruction to one
// vehicle. The fleet layer owns the function mask and group selection.
func (s *Station) SetFunction(address int, instruction byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !dcc.ValidLocomotiveAddress(address) {
		s.metrics.CommandRejected("address")
		return false
	}
	if s.readiness.gated() {
		s.metrics.CommandRejected("full")
		return false
	}
	return s.writeLine(dcc.SendLine(address, instruction))
}

// SetAccessory switches one device (signal, turnout) of an accessory
// decoder on or off.
func (s *Station) SetAccessory(address, device int, value bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	low, high, err := dcc.AccessoryInstruction(address, device, value)
	if err != nil {
		s.metrics.CommandRejected("address")
		return false
	}
	if s.readiness.gated() {
		s.metrics.CommandRejected("full")
		return false
	}
	return s.writeLine(dcc.SendLine(int(low), high))
}

// PeriodicTick drives the supervisor. Call at a steady cadence (1s):
// it expires stale readiness states on every tick and polls generator
// liveness every LivenessTicks ticks, relaunching on death.
func (s *Station) PeriodicTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.readiness.state
	if s.readiness.expire(now) {
		s.metrics.ReadinessExpired()
		s.trail.Record(captureTopic, "TIMEOUT", "no status while "+prior.String())
	}

	s.ticks++
	if s.ticks%s.cfg.LivenessTicks != 0 {
		return
	}

	if s.transport != nil {
		if s.transport.Alive() {
			return
		}
		// Tear down before anything new is created: no descriptor
		// leaks across generations.
		_ = s.transport.Close()
		s.transport = nil
		s.generation++
		s.trail.Record(captureTopic, "ERROR", "generator died")
		s.log.Event(captureTopic, s.channelName(), "DIED", "")
	}

	s.metrics.Relaunch()
	_ = s.launch() // failure already recorded; next check retries
}

// readLoop drains the generator's status stream, reassembling lines in
// a bounded buffer. A read error or EOF ends the loop but does not by
// itself relaunch: liveness detection is the supervisor's job.
func (s *Station) readLoop(r io.ReadCloser, generation int) {
	var buf lineBuffer
	for {
		n, err := r.Read(buf.tail())
		if n > 0 {
			s.metrics.BytesRead(n)
			buf.advance(n)
			buf.scan(func(line string) {
				s.decode(line, generation)
			})
			if buf.overflowed() {
				// A single line larger than the buffer: drop the span,
				// resynchronize at the next terminator.
				buf.reset()
				s.trail.Record(captureTopic, "ERROR", "status line exceeds buffer, discarded")
			}
		}
		if err != nil {
			s.trail.Record(captureTopic, "ERROR", fmt.Sprintf("read: %v", err))
			return
		}
	}
}

// decode interprets one status line: first character is the tag, the
// rest (after a separating space) is free-form text kept only for the
// capture trail. Unknown tags are ignored.
func (s *Station) decode(line string, generation int) {
	tag := line[0]
	name := captureTag(tag)
	if name == "" {
		return
	}
	text := strings.TrimLeft(line[1:], " ")
	s.trail.Record(captureTopic, name, text)
	s.metrics.LineDecoded(name)

	s.mu.Lock()
	if generation == s.generation {
		s.readiness.apply(tag, time.Now())
	}
	s.mu.Unlock()
}
