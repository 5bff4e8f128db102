package vpio

import "testing"

func TestFramePoolSizing(t *testing.T) {
	p := newFramePool()

	tests := []struct {
		name string
		size int
	}{
		{"Small", 256},
		{"Small Boundary", smallFrameSamples},
		{"Large", 2048},
		{"Large Boundary", largeFrameSamples},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := p.get(tt.size)
			if len(buf) != tt.size {
				t.Errorf("expected length %d, got %d", tt.size, len(buf))
			}
			p.put(buf)
		})
	}
}

func TestFramePoolZeroesOnPut(t *testing.T) {
	p := newFramePool()

	buf := p.get(128)
	for i := range buf {
		buf[i] = 1234
	}
	p.put(buf)

	again := p.get(smallFrameSamples)
	for i, v := range again {
		if v != 0 {
			t.Fatalf("sample %d not zeroed: %d", i, v)
		}
	}
}

func TestFramePoolOversize(t *testing.T) {
	p := newFramePool()

	buf := p.get(largeFrameSamples * 2)
	if len(buf) != largeFrameSamples*2 {
		t.Fatalf("expected direct allocation of %d, got %d", largeFrameSamples*2, len(buf))
	}
	// Oversized buffers are not retained.
	p.put(buf)

	if got := p.get(0); got != nil {
		t.Errorf("expected nil for non-positive size, got length %d", len(got))
	}
}

func TestFramePoolStats(t *testing.T) {
	p := newFramePool()

	first := p.get(512)
	p.put(first)
	p.get(512)

	hits, misses := p.stats()
	if hits != 2 {
		t.Errorf("expected 2 hits, got %d", hits)
	}
	if misses < 1 {
		t.Errorf("expected at least the initial allocation miss, got %d", misses)
	}
}
