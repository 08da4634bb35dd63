package epoch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PeriodStore persists the last epoch each pool was touched in, as an
// address-keyed integer map on disk. Loaded at startup, flushed at
// shutdown.
type PeriodStore struct {
	path string

	mu      sync.Mutex
	periods map[string]int64
}

func NewPeriodStore(path string) *PeriodStore {
	return &PeriodStore{
		path:    path,
		periods: make(map[string]int64),
	}
}

// Load reads the persisted map. A missing file starts empty; a corrupt
// file is an error so state is not silently reset.
func (s *PeriodStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	periods := make(map[string]int64)
	if err := json.Unmarshal(data, &periods); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.periods = periods
	s.mu.Unlock()
	return nil
}

// Flush writes the map atomically via a temp file rename.
func (s *PeriodStore) Flush() error {
	s.mu.Lock()
	data, err := json.Marshal(s.periods)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal periods: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Get returns the last recorded period for a pool address.
func (s *PeriodStore) Get(poolAddress string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	period, ok := s.periods[strings.ToLower(poolAddress)]
	return period, ok
}

// Set records the period for a pool address.
func (s *PeriodStore) Set(poolAddress string, period int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods[strings.ToLower(poolAddress)] = period
}
