package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go_lpp/internal/model"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	s, err := Open(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, path
}

func TestOpenFreshSeedsPolicies(t *testing.T) {
	s, path := openTestStore(t)

	var count int
	s.View(func(st *model.State) {
		count = len(st.Policies)
	})
	if count != 2 {
		t.Errorf("Expected 2 seed policies, got %d", count)
	}

	// A fresh store writes its initial document immediately.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected state file to exist: %v", err)
	}
}

func TestOpenCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s, err := Open(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Open failed on corrupt file: %v", err)
	}

	var count int
	s.View(func(st *model.State) {
		count = len(st.Policies)
	})
	if count != 2 {
		t.Errorf("Expected fresh seeded state, got %d policies", count)
	}
}

func TestOpenBackfillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	partial := `{"customers":[{"id":"cus_1","name":"A"}],"devices":[{"id":"dev_1","hostname":"h"}]}`
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s, err := Open(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	s.View(func(st *model.State) {
		if st.Customers[0].PolicyIDs == nil {
			t.Error("Expected customer policyIds backfilled")
		}
		if st.Devices[0].PolicyIDs == nil {
			t.Error("Expected device policyIds backfilled")
		}
		if st.AgentMap == nil || st.Tokens == nil {
			t.Error("Expected maps backfilled")
		}
		if st.Seq.Device != 1 || st.Seq.Agent != 1 {
			t.Errorf("Expected seq counters initialized, got %+v", st.Seq)
		}
	})
}

func TestSaveImmediatePersists(t *testing.T) {
	s, path := openTestStore(t)

	s.Mutate(func(st *model.State) {
		st.Customers = append(st.Customers, model.Customer{ID: "cus_x", Name: "X", PolicyIDs: []string{}})
	})
	s.Save(true)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var st model.State
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(st.Customers) != 1 || st.Customers[0].ID != "cus_x" {
		t.Errorf("Expected persisted customer, got %+v", st.Customers)
	}
}

func TestSaveDebounceCoalesces(t *testing.T) {
	s, path := openTestStore(t)

	for i := 0; i < 10; i++ {
		s.Mutate(func(st *model.State) {
			st.Seq.Device++
		})
		s.Save(false)
	}

	// Before the quiet interval elapses the file still holds the seed state.
	raw, _ := os.ReadFile(path)
	var before model.State
	if err := json.Unmarshal(raw, &before); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if before.Seq.Device != 1 {
		t.Errorf("Expected flush to be deferred, got seq.device=%d", before.Seq.Device)
	}

	time.Sleep(100 * time.Millisecond)

	raw, _ = os.ReadFile(path)
	var after model.State
	if err := json.Unmarshal(raw, &after); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if after.Seq.Device != 11 {
		t.Errorf("Expected coalesced flush with seq.device=11, got %d", after.Seq.Device)
	}
}

func TestCloseFlushesPendingState(t *testing.T) {
	s, path := openTestStore(t)

	s.Mutate(func(st *model.State) {
		st.Seq.Agent = 42
	})
	s.Save(false)
	s.Close()

	raw, _ := os.ReadFile(path)
	var st model.State
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if st.Seq.Agent != 42 {
		t.Errorf("Expected Close to flush, got seq.agent=%d", st.Seq.Agent)
	}
}

func TestConcurrentFlushesSerialize(t *testing.T) {
	s, path := openTestStore(t)

	// Inflate the document so each flush takes long enough to overlap.
	s.Mutate(func(st *model.State) {
		for i := 0; i < 2000; i++ {
			st.Devices = append(st.Devices, model.Device{
				ID:        "dev_" + string(rune('a'+i%26)) + "_pad",
				Hostname:  "host-padding-padding-padding",
				PolicyIDs: []string{"pol-ufw-enable", "pol-ssh-baseline"},
			})
		}
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.Mutate(func(st *model.State) {
					st.Seq.Device++
				})
				s.Save(i%2 == 0)
			}
		}()
	}

	// Synchronous flushes must stay durable while timer flushes race them:
	// every read of the canonical file sees a complete JSON document.
	for i := 0; i < 20; i++ {
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("state file missing mid-flush: %v", err)
		}
		var st model.State
		if err := json.Unmarshal(raw, &st); err != nil {
			t.Fatalf("state file not a complete document: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	s.Save(true)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var st model.State
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if st.Seq.Device != 101 {
		t.Errorf("Expected final flush durable with seq.device=101, got %d", st.Seq.Device)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	s, path := openTestStore(t)
	s.Save(true)
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Expected temp file to be renamed away, stat err=%v", err)
	}
}
