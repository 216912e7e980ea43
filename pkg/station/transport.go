package station

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.bug.st/serial"
)

// Transport owns the byte channel to the DCC command generator: a write
// endpoint for outbound command lines and a read endpoint for the
// asynchronous status stream. Implementations must make WriteLine a
// single bounded write with no retry or buffering.
type Transport interface {
	// Open establishes the channel and returns the inbound byte stream.
	Open() (io.ReadCloser, error)
	// WriteLine writes one line, appending the terminator, in a single
	// write. At-most-once delivery: a short write is an error.
	WriteLine(line string) error
	// Alive reports whether the channel endpoint is still usable.
	Alive() bool
	// Close tears down both endpoints. Safe to call more than once.
	Close() error
}

// processTransport runs the generator as a child process wired through
// its standard input and output.
type processTransport struct {
	executable string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	exited bool
}

func newProcessTransport(executable string) *processTransport {
	return &processTransport{executable: executable}
}

func (p *processTransport) Open() (io.ReadCloser, error) {
	cmd := exec.Command(p.executable)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.executable, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.exited = false
	p.mu.Unlock()

	// Reap the child as soon as it exits. The exited flag is the
	// non-blocking liveness answer the supervisor polls for.
	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		p.exited = true
		p.mu.Unlock()
	}()

	return stdout, nil
}

// Pid returns the child process ID, or 0 when not running
func (p *processTransport) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *processTransport) WriteLine(line string) error {
	p.mu.Lock()
	stdin := p.stdin
	exited := p.exited
	p.mu.Unlock()

	if stdin == nil || exited {
		return fmt.Errorf("generator process not running")
	}

	data := []byte(line + "\n")
	n, err := stdin.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return nil
}

func (p *processTransport) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil && !p.exited
}

func (p *processTransport) Close() error {
	p.mu.Lock()
	cmd := p.cmd
	stdin := p.stdin
	exited := p.exited
	p.cmd = nil
	p.stdin = nil
	p.stdout = nil
	p.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil && !exited {
		_ = cmd.Process.Kill()
	}
	return nil
}

// serialTransport talks to a generator attached over a serial port, for
// setups where the waveform generator runs on its own microcontroller.
type serialTransport struct {
	device string
	baud   int

	mu   sync.Mutex
	port serial.Port
}

func newSerialTransport(device string, baud int) *serialTransport {
	return &serialTransport{device: device, baud: baud}
}

func (s *serialTransport) Open() (io.ReadCloser, error) {
	port, err := serial.Open(s.device, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.device, err)
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	// A serial port has no exit status: a read failure is the only
	// death signal, so it marks the transport dead for the supervisor.
	return &serialReader{transport: s, port: port}, nil
}

type serialReader struct {
	transport *serialTransport
	port      serial.Port
}

func (r *serialReader) Read(p []byte) (int, error) {
	n, err := r.port.Read(p)
	if err != nil {
		r.transport.mu.Lock()
		if r.transport.port == r.port {
			r.transport.port = nil
		}
		r.transport.mu.Unlock()
	}
	return n, err
}

func (r *serialReader) Close() error {
	return r.port.Close()
}

func (s *serialTransport) WriteLine(line string) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return fmt.Errorf("serial port %s not open", s.device)
	}

	data := []byte(line + "\n")
	n, err := port.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return nil
}

func (s *serialTransport) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

func (s *serialTransport) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port != nil {
		return port.Close()
	}
	return nil
}
