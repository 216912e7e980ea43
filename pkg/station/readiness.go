package station

import "time"

// ReadinessState models whether the command generator can currently
// accept more work. The inbound protocol has no per-command
// acknowledgements, so status lines describe the channel as a whole.
type ReadinessState int

const (
	StateIdle ReadinessState = iota
	StateBusy
	StateFull
)

// String returns the state name
func (s ReadinessState) String() string {
	switch s {
	case StateBusy:
		return "busy"
	case StateFull:
		return "full"
	default:
		return "idle"
	}
}

// Status line tags, first character of each inbound line
const (
	tagIdle  = '#' // Generator idle
	tagBusy  = '%' // Generator busy
	tagFull  = '*' // Generator queue full
	tagError = '!' // Generator reported an error
	tagDebug = '$' // Generator debug message
)

// staleAfter is how long a busy/full report stays trusted without a
// newer status line before the supervisor falls back to idle.
const staleAfter = 3 * time.Second

// readiness is the channel readiness state machine. Busy and Full
// always carry a deadline; Idle never does.
type readiness struct {
	state    ReadinessState
	deadline time.Time
}

// captureTag maps a status line tag to the capture trail tag, or ""
// when the tag is unknown and the line must be ignored.
func captureTag(tag byte) string {
	switch tag {
	case tagIdle:
		return "IDLE"
	case tagBusy:
		return "BUSY"
	case tagFull:
		return "FULL"
	case tagError:
		return "ERROR"
	case tagDebug:
		return "DEBUG"
	default:
		return ""
	}
}

// apply consumes one decoded status line tag. Error and debug lines
// leave the state unchanged.
func (r *readiness) apply(tag byte, now time.Time) {
	switch tag {
	case tagIdle:
		r.state = StateIdle
		r.deadline = time.Time{}
	case tagBusy:
		r.state = StateBusy
		r.deadline = now.Add(staleAfter)
	case tagFull:
		r.state = StateFull
		r.deadline = now.Add(staleAfter)
	}
}

// expire falls a stale non-idle state back to idle, compensating for a
// lost or corrupted status line. Returns true when a fallback happened.
func (r *readiness) expire(now time.Time) bool {
	if r.state == StateIdle {
		return false
	}
	if now.Before(r.deadline) {
		return false
	}
	r.state = StateIdle
	r.deadline = time.Time{}
	return true
}

// gated reports whether non-safety commands must be rejected. Busy does
// not gate; only a full generator queue does.
func (r *readiness) gated() bool {
	return r.state == StateFull
}
