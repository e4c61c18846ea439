package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go_lpp/internal/model"

	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the coalescing window for background flushes.
const DefaultDebounce = 150 * time.Millisecond

// Store holds the authoritative in-memory state document and persists it to
// a single JSON file. All reads and writes go through View/Mutate so no
// caller ever observes a partially-applied mutation.
//
// Persistence is decoupled from the mutation path: Save(false) schedules a
// debounced flush that collapses bursts of mutations into one disk write,
// Save(true) flushes synchronously before returning. Write failures are
// logged and never surfaced; the in-memory state stays authoritative.
type Store struct {
	mu    sync.RWMutex
	state *model.State

	path     string
	debounce time.Duration
	logger   *logrus.Entry

	timerMu sync.Mutex
	timer   *time.Timer

	flushMu sync.Mutex
}

// Open loads the state document at path, initializing a fresh seeded state
// if the file is absent or corrupt. A corrupt file is logged, never fatal.
func Open(path string, debounce time.Duration, logger *logrus.Entry) (*Store, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Store{
		path:     path,
		debounce: debounce,
		logger:   logger,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.state = model.DefaultState()
		s.writeNow()
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		state := model.DefaultState()
		if uerr := json.Unmarshal(raw, state); uerr != nil {
			logger.WithError(uerr).Error("state file corrupt, starting fresh")
			state = model.DefaultState()
		}
		normalize(state)
		s.state = state
	}

	return s, nil
}

// normalize backfills fields that older or hand-edited state files may lack,
// so the rest of the code never has to nil-check collections.
func normalize(st *model.State) {
	if st.Customers == nil {
		st.Customers = []model.Customer{}
	}
	if st.Devices == nil {
		st.Devices = []model.Device{}
	}
	if len(st.Policies) == 0 {
		st.Policies = model.SeedPolicies()
	}
	if st.AgentMap == nil {
		st.AgentMap = map[string]string{}
	}
	if st.Tokens == nil {
		st.Tokens = map[string]model.EnrollmentToken{}
	}
	if st.LastResults == nil {
		st.LastResults = map[string]json.RawMessage{}
	}
	if st.Seq.Device < 1 {
		st.Seq.Device = 1
	}
	if st.Seq.Agent < 1 {
		st.Seq.Agent = 1
	}
	for i := range st.Customers {
		if st.Customers[i].PolicyIDs == nil {
			st.Customers[i].PolicyIDs = []string{}
		}
	}
	for i := range st.Devices {
		if st.Devices[i].PolicyIDs == nil {
			st.Devices[i].PolicyIDs = []string{}
		}
	}
}

// View runs fn with read access to the state. fn must not retain or mutate
// the state.
func (s *Store) View(fn func(st *model.State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Mutate runs fn with exclusive access to the state. The whole transition is
// applied before any concurrent View is serviced, so multi-step mutations
// (revision bump plus device fan-out) are atomic to readers.
func (s *Store) Mutate(fn func(st *model.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Save persists the state. With immediate=false the flush is debounced:
// a pending timer is cancelled and rescheduled so mutation bursts coalesce
// into one write. With immediate=true the state is flushed synchronously
// before returning, for operations the caller treats as durably committed
// (token issuance, enrollment).
func (s *Store) Save(immediate bool) {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if immediate {
		s.timerMu.Unlock()
		s.writeNow()
		return
	}
	s.timer = time.AfterFunc(s.debounce, s.writeNow)
	s.timerMu.Unlock()
}

// Close cancels any pending flush and writes the state out synchronously.
func (s *Store) Close() {
	s.Save(true)
}

// writeNow marshals the full state and atomically replaces the canonical
// file via a temp file + rename, so the persisted document is always either
// the previous or the new complete state, even across a crash. Flushes are
// serialized: the debounce timer goroutine and synchronous Save(true) callers
// share one temp path, and a synchronous flush must not lose the rename race
// to a concurrent timer flush.
func (s *Store) writeNow() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	raw, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal state")
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		s.logger.WithError(err).Error("failed to write temp state file")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.WithError(err).Error("failed to replace state file")
	}
}
