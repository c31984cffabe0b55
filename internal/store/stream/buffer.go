package stream

import "sync"

const (
	defaultBufferSize = 500000
	// lowWaterMark is the remaining capacity below which the write cursor
	// rewinds to the start, bounding long-run growth from fragmentation.
	// The rewind happens only between submissions; see Store.
	lowWaterMark = 1000
)

// scratch is a growable serialization buffer with an explicit write cursor.
// Encoded records are handed out as sub-slices instead of copies, so the
// bytes of a segment must be flushed before the cursor wraps past it. A
// scratch is owned by exactly one store operation at a time.
type scratch struct {
	buf []byte
	pos int
}

func newScratch(size int) *scratch {
	return &scratch{buf: make([]byte, size)}
}

func (s *scratch) Write(p []byte) (int, error) {
	if need := s.pos + len(p); need > len(s.buf) {
		size := len(s.buf) * 2
		if size < need {
			size = need
		}
		grown := make([]byte, size)
		copy(grown, s.buf[:s.pos])
		s.buf = grown
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *scratch) position() int {
	return s.pos
}

func (s *scratch) remaining() int {
	return len(s.buf) - s.pos
}

// segment returns the bytes between two saved cursor positions. The full
// slice expression keeps appends on the segment from clobbering the buffer.
func (s *scratch) segment(start, end int) []byte {
	return s.buf[start:end:end]
}

func (s *scratch) rewind() {
	s.pos = 0
}

// bufferPool checks one scratch out per concurrent store operation and
// reuses it across sequential operations on the same worker.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() any { return newScratch(size) },
		},
	}
}

func (p *bufferPool) get() *scratch {
	return p.pool.Get().(*scratch)
}

func (p *bufferPool) put(b *scratch) {
	p.pool.Put(b)
}
