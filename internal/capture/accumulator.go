package capture

// Accumulator collects variable-length PCM chunks into fixed-size blocks.
// It is owned by a single goroutine and never allocates after construction.
type Accumulator struct {
	buf []byte
	off int
}

// NewAccumulator creates an accumulator for blocks of capacity bytes
func NewAccumulator(capacity int) *Accumulator {
	if capacity <= 0 {
		panic("capture: accumulator capacity must be positive")
	}
	return &Accumulator{buf: make([]byte, capacity)}
}

// Len is the number of bytes waiting for the current block
func (a *Accumulator) Len() int { return a.off }

// Empty reports whether no partial block is buffered
func (a *Accumulator) Empty() bool { return a.off == 0 }

// Absorb appends chunk, calling ready once for every block it completes.
// The block passed to ready is only valid until ready returns. Absorb returns
// the number of completed blocks.
func (a *Accumulator) Absorb(chunk []byte, ready func(block []byte)) int {
	blocks := 0
	for len(chunk) > 0 {
		n := copy(a.buf[a.off:], chunk)
		a.off += n
		chunk = chunk[n:]

		if a.off == len(a.buf) {
			a.off = 0
			ready(a.buf)
			blocks++
		}
	}
	return blocks
}

// Reset discards any partial block
func (a *Accumulator) Reset() { a.off = 0 }
