// Package registry owns the merged crystal registry: a process-wide,
// moment-descending, key-unique collection with a content seal that
// changes exactly when the registry does.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/synccore-backend/internal/domain"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
)

// Store is the single writer boundary around the registry.
//
// ApplyBatch runs under the exclusive lock and swaps in a fully built
// replacement state, so readers either see the registry as it was
// before a merge or after it, never in between, and always paired with
// the matching seal. Nothing inside the critical section does I/O.
type Store struct {
	log  *logger.Logger
	keep int

	mu      sync.RWMutex
	entries []domain.Crystal
	seal    string
}

// NewStore builds an empty registry. keep > 0 caps the registry to the
// newest keep entries after every merge; 0 disables pruning.
func NewStore(log *logger.Logger, keep int) *Store {
	seal, err := computeSeal(nil)
	if err != nil {
		// Only reachable if blake2b rejects its own digest size.
		panic(fmt.Sprintf("registry: empty seal: %v", err))
	}
	return &Store{
		log:  log.With("component", "registry"),
		keep: keep,
		seal: seal,
	}
}

// ApplyBatch merges candidates into the registry as one atomic unit
// and returns how many were merged. A candidate whose moment collides
// with an existing entry (or an earlier candidate in the same batch)
// replaces it: last applied wins, which keeps moments unique. On error
// the registry and seal are left exactly as they were.
func (s *Store) ApplyBatch(candidates []domain.Crystal) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[domain.Moment]domain.Crystal, len(s.entries)+len(candidates))
	for _, e := range s.entries {
		merged[e.Moment()] = e
	}
	for _, c := range candidates {
		merged[c.Moment()] = c
	}

	next := make([]domain.Crystal, 0, len(merged))
	for _, c := range merged {
		next = append(next, c)
	}
	sort.Slice(next, func(i, j int) bool {
		return next[i].Moment().After(next[j].Moment())
	})
	if s.keep > 0 && len(next) > s.keep {
		next = next[:s.keep]
	}

	seal, err := computeSeal(next)
	if err != nil {
		return 0, fmt.Errorf("compute seal: %w", err)
	}

	s.entries = next
	s.seal = seal
	s.log.Debug("batch applied", "candidates", len(candidates), "size", len(next), "seal", seal)
	return len(candidates), nil
}

// Replace swaps the whole registry content, re-establishing order,
// uniqueness and the seal. Used to seed the store from persistence.
func (s *Store) Replace(entries []domain.Crystal) error {
	s.mu.Lock()
	s.entries = nil
	seal, err := computeSeal(nil)
	if err == nil {
		s.seal = seal
	}
	s.mu.Unlock()
	_, err = s.ApplyBatch(entries)
	return err
}

// Seal returns the fingerprint of the current registry content.
func (s *Store) Seal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seal
}

// Len returns the current number of registry entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns the full registry state as one consistent pair of
// content and seal. The returned slices are copies; payload maps are
// shared and must be treated as read-only.
func (s *Store) Snapshot() domain.RegistryState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.Crystal, len(s.entries))
	copy(entries, s.entries)

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.URL != "" {
			urls = append(urls, e.URL)
		}
	}

	latest := domain.Moment{}
	if len(entries) > 0 {
		latest = entries[0].Moment()
	}

	return domain.RegistryState{
		Spec:      domain.SpecVersion,
		TotalURLs: len(entries),
		Latest:    latest,
		Seal:      s.seal,
		Registry:  entries,
		URLs:      urls,
	}
}
