package storage

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, maxSessions int) *SessionStore {
	t.Helper()

	store, err := NewSessionStore(filepath.Join(t.TempDir(), "test.db"), maxSessions)
	if err != nil {
		t.Fatalf("Failed to create session store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t, 100)

	id, err := store.BeginSession(16000, true)
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}

	s, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %v", s.SampleRate)
	}
	if !s.EchoCancel {
		t.Error("Expected echo_cancel true")
	}
	if s.StoppedAt != nil {
		t.Error("Expected open session to have no stop time")
	}

	if err := store.EndSession(id, 1500, 3, "/tmp/out.wav"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	s, err = store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession after end failed: %v", err)
	}
	if s.StoppedAt == nil {
		t.Error("Expected stop time after EndSession")
	}
	if s.Frames != 1500 || s.Dropped != 3 {
		t.Errorf("Expected 1500/3 frame counters, got %d/%d", s.Frames, s.Dropped)
	}
	if s.OutputFile != "/tmp/out.wav" {
		t.Errorf("Expected output file recorded, got %q", s.OutputFile)
	}
}

func TestEndUnknownSession(t *testing.T) {
	store := newTestStore(t, 100)

	if err := store.EndSession(9999, 0, 0, ""); err == nil {
		t.Error("Expected error ending unknown session")
	}
}

func TestGetSessionsOrder(t *testing.T) {
	store := newTestStore(t, 100)

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := store.BeginSession(16000, i%2 == 0)
		if err != nil {
			t.Fatalf("BeginSession %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	sessions, err := store.GetSessions(3)
	if err != nil {
		t.Fatalf("GetSessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(sessions))
	}
	// Newest first
	if sessions[0].ID != ids[4] {
		t.Errorf("Expected newest session %d first, got %d", ids[4], sessions[0].ID)
	}
}

func TestPruneOldSessions(t *testing.T) {
	store := newTestStore(t, 3)

	for i := 0; i < 6; i++ {
		if _, err := store.BeginSession(16000, true); err != nil {
			t.Fatalf("BeginSession %d failed: %v", i, err)
		}
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count > 3 {
		t.Errorf("Expected at most 3 sessions after pruning, got %d", count)
	}
}
