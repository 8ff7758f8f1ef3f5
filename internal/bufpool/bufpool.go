// Package bufpool provides fixed-size, zero-on-release []byte pools
// shared by the Terminal Manager's 8 KiB reader buffer and the Transfer
// Manager's 64 KiB chunked-copy buffer, so neither component allocates
// on every read/write iteration and neither leaves stale terminal output
// or file contents lingering in freed memory.
package bufpool

import "sync"

// Pool is a pool of byte slices of a single fixed size.
type Pool struct {
	pool      sync.Pool
	sliceSize int
	zero      []byte
}

// New returns a Pool that hands out slices of exactly sliceSize bytes.
func New(sliceSize int) *Pool {
	p := &Pool{sliceSize: sliceSize, zero: make([]byte, sliceSize)}
	p.pool.New = func() interface{} {
		b := make([]byte, sliceSize)
		return &b
	}
	return p
}

// Get returns a slice of Size() bytes, either freshly allocated or
// reused from the pool.
func (p *Pool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return *b
}

// Put zeroes b and returns it to the pool. b must have been obtained
// from Get and not resliced beyond its original length.
func (p *Pool) Put(b []byte) {
	if len(b) == p.sliceSize {
		copy(b, p.zero)
	} else {
		for i := range b {
			b[i] = 0
		}
	}
	p.pool.Put(&b)
}

// Size returns the fixed slice size this pool hands out.
func (p *Pool) Size() int { return p.sliceSize }
