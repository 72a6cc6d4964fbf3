package godot

import "bytes"

// lineBuffer accumulates raw socket bytes and yields complete
// newline-terminated lines. A trailing partial line is retained across
// receive events. bufio.Scanner is not used here: its default token limit
// is far smaller than a screenshot response encoded on a single line.
type lineBuffer struct {
	buf []byte
}

// append adds a chunk of received bytes to the buffer.
func (b *lineBuffer) append(p []byte) {
	b.buf = append(b.buf, p...)
}

// next returns the next complete line with its terminator stripped.
// A trailing carriage return is stripped as well, and whitespace-only
// lines are skipped. The returned slice is only valid until the next
// call to append. ok is false when no complete line remains.
func (b *lineBuffer) next() (line []byte, ok bool) {
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return nil, false
		}
		line = b.buf[:i]
		b.buf = b.buf[i+1:]

		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, true
	}
}

// pending reports how many buffered bytes await a terminator.
func (b *lineBuffer) pending() int {
	return len(b.buf)
}

// reset discards all buffered bytes.
func (b *lineBuffer) reset() {
	b.buf = nil
}
