package sandbox

import (
	"sync"
	"unicode/utf8"
)

// TruncationMarker is appended to output that exceeded the capture limit.
const TruncationMarker = "\n... [output truncated]"

// boundedBuffer keeps the first max bytes written to it and drops the rest.
// Writes never fail, so a chatty child is not killed by EPIPE.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func newBoundedBuffer(max int64) *boundedBuffer {
	if max <= 0 {
		max = 1 << 20
	}
	return &boundedBuffer{max: int(max)}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.max - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the captured text, with the marker when bytes were dropped.
func (b *boundedBuffer) String() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.truncated {
		return string(b.buf), false
	}
	return truncateOutput(b.buf, b.max), true
}

// truncateOutput cuts at max bytes without splitting a UTF-8 sequence.
func truncateOutput(s []byte, max int) string {
	if len(s) > max {
		s = s[:max]
	}
	for cut := 0; cut < utf8.UTFMax && len(s) > 0; cut++ {
		r, size := utf8.DecodeLastRune(s)
		if r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return string(s) + TruncationMarker
}
