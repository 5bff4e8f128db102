package vpio

import (
	"sync"
	"sync/atomic"
)

// framePool recycles the scratch sample buffers the real-time callback path
// fills on every input or render cycle. Two size classes cover the frame
// counts the platform units actually request; anything larger is allocated
// directly and not pooled.
type framePool struct {
	small *sync.Pool // <= 1024 samples
	large *sync.Pool // <= 8192 samples

	hits   atomic.Int64
	misses atomic.Int64
}

const (
	smallFrameSamples = 1024
	largeFrameSamples = 8192
)

var defaultFramePool = newFramePool()

func newFramePool() *framePool {
	p := &framePool{}
	p.small = &sync.Pool{
		New: func() interface{} {
			p.misses.Add(1)
			buf := make([]int16, smallFrameSamples)
			return &buf
		},
	}
	p.large = &sync.Pool{
		New: func() interface{} {
			p.misses.Add(1)
			buf := make([]int16, largeFrameSamples)
			return &buf
		},
	}
	return p
}

// get returns a buffer with length n. Buffers over the large class size are
// allocated fresh and will not be retained by put.
func (p *framePool) get(n int) []int16 {
	if n <= 0 {
		return nil
	}
	if n > largeFrameSamples {
		return make([]int16, n)
	}

	var buf *[]int16
	if n <= smallFrameSamples {
		buf = p.small.Get().(*[]int16)
	} else {
		buf = p.large.Get().(*[]int16)
	}
	p.hits.Add(1)
	return (*buf)[:n]
}

// put returns a buffer to its size class. Contents are zeroed so stale
// audio never leaks into the next frame.
func (p *framePool) put(buf []int16) {
	c := cap(buf)
	if c == 0 || c > largeFrameSamples {
		return
	}
	full := buf[:c]
	for i := range full {
		full[i] = 0
	}
	if c <= smallFrameSamples {
		p.small.Put(&full)
	} else {
		p.large.Put(&full)
	}
}

// stats reports pool activity since process start. The miss count includes
// the initial allocation of every pooled buffer.
func (p *framePool) stats() (hits, misses int64) {
	return p.hits.Load(), p.misses.Load()
}
