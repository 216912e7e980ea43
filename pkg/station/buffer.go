package station

// Inbound reassembly buffer sizing. The buffer is fixed so a silent or
// misbehaving generator cannot grow memory without bound; compaction
// keeps at least compactMargin bytes of room for a partial line.
const (
	bufferCapacity = 1024
	compactMargin  = 128
)

// lineBuffer reassembles newline-terminated lines from a raw byte
// stream using a fixed compacting buffer. consumer marks the start of
// the oldest unconsumed byte, producer the end of valid data; the
// invariant consumer <= producer <= capacity always holds.
//
// Only one goroutine (the transport reader) may touch a lineBuffer.
type lineBuffer struct {
	data     [bufferCapacity]byte
	consumer int
	producer int
}

// tail returns the free region new bytes must be read into
func (b *lineBuffer) tail() []byte {
	return b.data[b.producer:]
}

// advance records that n bytes were read into the tail
func (b *lineBuffer) advance(n int) {
	b.producer += n
}

// scan extracts every complete line from the unconsumed span, in
// arrival order, and hands each to emit. A line ends at '\n' or '\r';
// empty lines are skipped. After the scan the buffer is reset when
// drained, or compacted when free space runs below compactMargin.
// Compaction is positional only: it never drops a complete line.
func (b *lineBuffer) scan(emit func(line string)) {
	for i := b.consumer; i < b.producer; i++ {
		c := b.data[i]
		if c != '\n' && c != '\r' {
			continue
		}
		if i > b.consumer {
			emit(string(b.data[b.consumer:i]))
		}
		b.consumer = i + 1
	}

	if b.consumer >= b.producer {
		// Empty buffer.
		b.consumer = 0
		b.producer = 0
		return
	}

	if b.producer >= bufferCapacity-compactMargin {
		// Shift the partial line left to make room for the next read.
		length := copy(b.data[:], b.data[b.consumer:b.producer])
		b.consumer = 0
		b.producer = length
	}
}

// overflowed reports that a single unterminated line has filled the
// whole buffer. The caller discards the span: line reassembly cannot
// recover until the next terminator arrives.
func (b *lineBuffer) overflowed() bool {
	return b.producer == bufferCapacity && b.consumer == 0
}

// reset discards all buffered bytes
func (b *lineBuffer) reset() {
	b.consumer = 0
	b.producer = 0
}
