package vpio

import (
	"sync"
	"time"
)

// Teardown stage indices recorded by MockUnit.Stop.
const (
	mockStageStopGraph = iota
	mockStageUninitialize
	mockStageDispose
	mockStageCount
)

// MockUnit is an in-process Unit for tests and for hosts without audio
// hardware. It records the configuration applied at Start, can synthesize
// frames either on demand or on a timer, and can be told to fail at any
// start or teardown stage with an injected status code.
type MockUnit struct {
	// FrameSamples is the number of samples per synthesized frame.
	// Defaults to 256.
	FrameSamples int

	// Interval enables timed frame generation while the unit runs. Zero
	// leaves generation entirely to Emit.
	Interval time.Duration

	// StartStatus, when non-zero, makes Start fail with that status.
	StartStatus int32

	// StopStatus holds per-stage teardown failure injections, indexed
	// stop-graph, uninitialize, dispose. The first non-zero entry fails
	// Stop at that stage and halts the later stages.
	StopStatus [mockStageCount]int32

	mu       sync.Mutex
	running  bool
	cfg      UnitConfig
	started  int
	stages   [mockStageCount]bool
	sequence int16

	done chan struct{}
	wg   sync.WaitGroup
}

var _ Unit = (*MockUnit)(nil)

// Start records the configuration and, if Interval is set, begins timed
// frame generation.
func (m *MockUnit) Start(cfg UnitConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StartStatus != 0 {
		return &StatusError{Op: "MockUnit.Start", Status: m.StartStatus}
	}

	m.cfg = cfg
	m.running = true
	m.started++
	m.stages = [mockStageCount]bool{}
	m.done = make(chan struct{})

	if m.Interval > 0 {
		m.wg.Add(1)
		go m.generate(m.Interval, m.done)
	}
	return nil
}

// Stop walks the three teardown stages, honoring injected failures: the
// first failing stage is reported and the remaining stages never run.
func (m *MockUnit) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return &StatusError{Op: "MockUnit.Stop", Status: -1}
	}
	m.running = false
	done := m.done
	m.mu.Unlock()

	close(done)
	m.wg.Wait()

	ops := [mockStageCount]string{"MockUnit.StopGraph", "MockUnit.Uninitialize", "MockUnit.Dispose"}
	m.mu.Lock()
	defer m.mu.Unlock()
	for stage := 0; stage < mockStageCount; stage++ {
		if s := m.StopStatus[stage]; s != 0 {
			return &StatusError{Op: ops[stage], Status: s}
		}
		m.stages[stage] = true
	}
	return nil
}

// Emit synthesizes n frames synchronously through the configured input
// callback, pulling render samples first when rendering is enabled, the way
// the platform services the output bus before the input side observes the
// echo. No-op unless the unit is running.
func (m *MockUnit) Emit(n int) {
	m.mu.Lock()
	cfg := m.cfg
	running := m.running
	m.mu.Unlock()
	if !running {
		return
	}

	samples := m.FrameSamples
	if samples <= 0 {
		samples = 256
	}

	for i := 0; i < n; i++ {
		if cfg.Render != nil {
			out := defaultFramePool.get(samples)
			cfg.Render(out)
			defaultFramePool.put(out)
		}

		buf := defaultFramePool.get(samples)
		m.mu.Lock()
		for j := range buf {
			buf[j] = m.sequence
			m.sequence++
		}
		m.mu.Unlock()

		frame := make([]int16, samples)
		copy(frame, buf)
		defaultFramePool.put(buf)
		cfg.OnInput(frame)
	}
}

func (m *MockUnit) generate(interval time.Duration, done chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Emit(1)
		case <-done:
			return
		}
	}
}

// AppliedBypass returns the bypass value applied at the last Start.
func (m *MockUnit) AppliedBypass() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Bypass
}

// RenderEnabled reports whether the last Start configured the output bus.
func (m *MockUnit) RenderEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Render != nil
}

// StartCount returns how many times the unit was successfully started.
func (m *MockUnit) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// TeardownComplete reports whether all three teardown stages ran.
func (m *MockUnit) TeardownComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stages[mockStageStopGraph] && m.stages[mockStageUninitialize] && m.stages[mockStageDispose]
}

// StagesRun returns which teardown stages completed, in order stop-graph,
// uninitialize, dispose.
func (m *MockUnit) StagesRun() [3]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stages
}
