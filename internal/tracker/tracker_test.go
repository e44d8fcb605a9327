package tracker

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "delta-job-tracker.json"))
}

func TestStore_GetMissingKey(t *testing.T) {
	s := newTestStore(t)

	state, ok := s.Get("acme.myshopify.com-products-6702-production")
	if ok {
		t.Fatalf("Get on empty store returned ok, state=%+v", state)
	}
	if state.IsRunning || state.LastSuccessfulRun != nil {
		t.Errorf("zero state expected, got %+v", state)
	}
}

func TestStore_RoundTripTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")
	s := New(path)

	key := "acme.myshopify.com-products-6702-production"
	ts := time.Date(2025, 7, 16, 9, 50, 0, 0, time.UTC)

	if err := s.UpdateLastSuccessfulRun(key, ts); err != nil {
		t.Fatalf("UpdateLastSuccessfulRun: %v", err)
	}

	// Reload through a fresh store to prove the state survives restarts.
	reloaded := New(path)
	state, ok := reloaded.Get(key)
	if !ok {
		t.Fatal("state missing after reload")
	}
	if state.LastSuccessfulRun == nil || !state.LastSuccessfulRun.Equal(ts) {
		t.Errorf("LastSuccessfulRun = %v, want %s", state.LastSuccessfulRun, ts)
	}
	if state.IsRunning {
		t.Error("UpdateLastSuccessfulRun must clear the running flag")
	}
}

func TestStore_AcquireIsSingleFlight(t *testing.T) {
	s := newTestStore(t)
	key := "k"

	ok, err := s.Acquire(key)
	if err != nil || !ok {
		t.Fatalf("first Acquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = s.Acquire(key)
	if err != nil {
		t.Fatalf("second Acquire error: %v", err)
	}
	if ok {
		t.Fatal("second Acquire succeeded while running flag set")
	}

	if err := s.SetRunning(key, false); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	ok, err = s.Acquire(key)
	if err != nil || !ok {
		t.Fatalf("Acquire after release = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestStore_AcquireConcurrent(t *testing.T) {
	s := newTestStore(t)
	key := "k"

	const goroutines = 16
	var wg sync.WaitGroup
	acquired := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Acquire(key)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			acquired <- ok
		}()
	}
	wg.Wait()
	close(acquired)

	wins := 0
	for ok := range acquired {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("%d concurrent Acquires succeeded, want exactly 1", wins)
	}
}

func TestStore_IndependentKeys(t *testing.T) {
	s := newTestStore(t)

	if ok, _ := s.Acquire("a"); !ok {
		t.Fatal("Acquire(a) failed")
	}
	if ok, _ := s.Acquire("b"); !ok {
		t.Fatal("Acquire(b) blocked by unrelated key")
	}

	ts := time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC)
	if err := s.UpdateLastSuccessfulRun("a", ts); err != nil {
		t.Fatalf("UpdateLastSuccessfulRun: %v", err)
	}

	b, _ := s.Get("b")
	if b.LastSuccessfulRun != nil {
		t.Errorf("key b timestamp modified by write to key a: %v", b.LastSuccessfulRun)
	}
	if !b.IsRunning {
		t.Error("key b running flag cleared by write to key a")
	}
}

func TestStore_CorruptDocumentTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	if _, ok := s.Get("k"); ok {
		t.Fatal("corrupt document should read as empty")
	}

	// Writes must still go through, replacing the corrupt file.
	if ok, err := s.Acquire("k"); err != nil || !ok {
		t.Fatalf("Acquire over corrupt file = (%v, %v)", ok, err)
	}
	state, ok := s.Get("k")
	if !ok || !state.IsRunning {
		t.Errorf("state after recovery = (%+v, %v)", state, ok)
	}
}

func TestStore_UnknownFieldsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")
	doc := `{"k": {"last_successful_run": "2025-07-16T09:50:00Z", "is_running": false, "lease_owner": "other-node"}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	state, ok := s.Get("k")
	if !ok {
		t.Fatal("state missing")
	}
	want := time.Date(2025, 7, 16, 9, 50, 0, 0, time.UTC)
	if state.LastSuccessfulRun == nil || !state.LastSuccessfulRun.Equal(want) {
		t.Errorf("LastSuccessfulRun = %v, want %s", state.LastSuccessfulRun, want)
	}
}

func TestStore_ForceAcquire(t *testing.T) {
	s := newTestStore(t)
	key := "k"

	if ok, _ := s.Acquire(key); !ok {
		t.Fatal("Acquire failed")
	}
	if ok, _ := s.Acquire(key); ok {
		t.Fatal("Acquire should fail while running")
	}

	// Stale-flag takeover path.
	if err := s.ForceAcquire(key); err != nil {
		t.Fatalf("ForceAcquire: %v", err)
	}
	state, _ := s.Get(key)
	if !state.IsRunning {
		t.Error("ForceAcquire did not set running flag")
	}
}
