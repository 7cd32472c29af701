package upload

import (
	"io"

	"github.com/cockroachdb/errors"
)

// accumulator collects a source stream into one fixed-size block. The block
// is allocated once and reused for every part.
type accumulator struct {
	buf []byte
	n   int
}

func newAccumulator(size int) *accumulator {
	return &accumulator{buf: make([]byte, size)}
}

// fill reads from r in chunks of at most chunk bytes until the block is full
// or r is exhausted. It reports eof once r returned io.EOF.
func (a *accumulator) fill(r io.Reader, chunk int) (eof bool, err error) {
	for a.n < len(a.buf) {
		end := min(a.n+chunk, len(a.buf))
		m, err := r.Read(a.buf[a.n:end])
		a.n += m
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
	return false, nil
}

func (a *accumulator) full() bool    { return a.n == len(a.buf) }
func (a *accumulator) len() int      { return a.n }
func (a *accumulator) bytes() []byte { return a.buf[:a.n] }
func (a *accumulator) reset()        { a.n = 0 }
