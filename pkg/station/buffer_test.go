package station

import (
	"reflect"
	"strings"
	"testing"
)

// feed pushes data into the buffer in chunks of the given size,
// collecting every decoded line.
func feed(t *testing.T, data []byte, chunkSize int) []string {
	t.Helper()

	var buf lineBuffer
	var lines []string
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		for len(chunk) > 0 {
			tail := buf.tail()
			if len(tail) == 0 {
				t.Fatal("buffer tail exhausted")
			}
			n := copy(tail, chunk)
			buf.advance(n)
			buf.scan(func(line string) { lines = append(lines, line) })
			if buf.overflowed() {
				buf.reset()
			}
			chunk = chunk[n:]
		}
	}
	return lines
}

func TestLineBuffer_SplitsLines(t *testing.T) {
	data := []byte("# idle\n% busy\n* full\n")
	lines := feed(t, data, len(data))
	want := []string{"# idle", "% busy", "* full"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %v, want %v", lines, want)
	}
}

func TestLineBuffer_CarriageReturnTerminates(t *testing.T) {
	lines := feed(t, []byte("# one\r# two\r\n# three\n"), 1024)
	want := []string{"# one", "# two", "# three"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %v, want %v", lines, want)
	}
}

func TestLineBuffer_SkipsEmptyLines(t *testing.T) {
	lines := feed(t, []byte("\n\n# only\n\r\n"), 1024)
	want := []string{"# only"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %v, want %v", lines, want)
	}
}

func TestLineBuffer_ChunkBoundaryIdempotence(t *testing.T) {
	// The same byte stream split at arbitrary boundaries must always
	// yield the same decoded lines.
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("% queued command ")
		sb.WriteString(strings.Repeat("x", i))
		sb.WriteString("\n")
	}
	data := []byte(sb.String())

	reference := feed(t, data, len(data))
	if len(reference) != 50 {
		t.Fatalf("expected 50 lines, got %d", len(reference))
	}

	for _, chunkSize := range []int{1, 2, 3, 7, 16, 100, 333} {
		lines := feed(t, data, chunkSize)
		if !reflect.DeepEqual(lines, reference) {
			t.Errorf("chunk size %d: decoded lines differ", chunkSize)
		}
	}
}

func TestLineBuffer_PartialLineHeldAcrossReads(t *testing.T) {
	var buf lineBuffer
	var lines []string
	emit := func(line string) { lines = append(lines, line) }

	copy(buf.tail(), "# par")
	buf.advance(5)
	buf.scan(emit)
	if len(lines) != 0 {
		t.Fatalf("no terminator yet, got %v", lines)
	}

	copy(buf.tail(), "tial\n")
	buf.advance(5)
	buf.scan(emit)
	if len(lines) != 1 || lines[0] != "# partial" {
		t.Errorf("got %v, want [# partial]", lines)
	}
}

func TestLineBuffer_CompactionPreservesPartialLine(t *testing.T) {
	var buf lineBuffer
	var lines []string

	// Fill most of the buffer with complete lines, then leave a partial
	// line that forces compaction.
	filler := "$ " + strings.Repeat("y", 97) + "\n" // 100 bytes per line
	for i := 0; i < 9; i++ {
		copy(buf.tail(), filler)
		buf.advance(len(filler))
	}
	partial := "% not yet terminated"
	copy(buf.tail(), partial)
	buf.advance(len(partial))

	buf.scan(func(line string) { lines = append(lines, line) })

	if len(lines) != 9 {
		t.Fatalf("expected 9 complete lines, got %d", len(lines))
	}
	if buf.consumer != 0 || buf.producer != len(partial) {
		t.Errorf("expected compaction to offset 0, consumer=%d producer=%d", buf.consumer, buf.producer)
	}

	// The partial line terminates on the next read and decodes whole.
	copy(buf.tail(), "!\n")
	buf.advance(2)
	buf.scan(func(line string) { lines = append(lines, line) })
	if lines[len(lines)-1] != partial+"!" {
		t.Errorf("partial line corrupted: %q", lines[len(lines)-1])
	}
}

func TestLineBuffer_ResetWhenDrained(t *testing.T) {
	var buf lineBuffer
	copy(buf.tail(), "# done\n")
	buf.advance(7)
	buf.scan(func(string) {})
	if buf.consumer != 0 || buf.producer != 0 {
		t.Errorf("drained buffer should reset, consumer=%d producer=%d", buf.consumer, buf.producer)
	}
}

func TestLineBuffer_OverflowDiscardsUnterminatedLine(t *testing.T) {
	// One giant line with no terminator fills the whole buffer; the
	// stream still recovers at the next terminator.
	giant := strings.Repeat("z", bufferCapacity+50)
	data := []byte(giant + "\n# recovered\n")
	lines := feed(t, data, 512)

	last := lines[len(lines)-1]
	if last != "# recovered" {
		t.Errorf("stream did not resynchronize, last line %q", last)
	}
}

func TestLineBuffer_Invariant(t *testing.T) {
	var buf lineBuffer
	data := []byte(strings.Repeat("# a\n% b\n$ c", 100))
	for i := 0; i < len(data); i += 13 {
		end := i + 13
		if end > len(data) {
			end = len(data)
		}
		n := copy(buf.tail(), data[i:end])
		buf.advance(n)
		buf.scan(func(string) {})
		if buf.consumer > buf.producer || buf.producer > bufferCapacity {
			t.Fatalf("invariant violated: consumer=%d producer=%d", buf.consumer, buf.producer)
		}
	}
}
