package generic

import "sync"

// Pool is a typed sync.Pool.
type Pool[T any] struct {
	pool sync.Pool
}

func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}

// BufferPool hands out byte slices with at least the configured capacity and
// refuses to keep slices that grew past maxKeep.
type BufferPool struct {
	pool    *Pool[*[]byte]
	maxKeep int
}

func NewBufferPool(size, maxKeep int) *BufferPool {
	return &BufferPool{
		pool: NewPool(func() *[]byte {
			b := make([]byte, 0, size)
			return &b
		}),
		maxKeep: maxKeep,
	}
}

// Get returns an empty slice.
func (p *BufferPool) Get() *[]byte {
	b := p.pool.Get()
	*b = (*b)[:0]
	return b
}

func (p *BufferPool) Put(b *[]byte) {
	if b == nil || (p.maxKeep > 0 && cap(*b) > p.maxKeep) {
		return
	}
	p.pool.Put(b)
}
