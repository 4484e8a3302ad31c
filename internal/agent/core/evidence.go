package core

import (
	"fmt"
	"strings"
	"sync"
)

// EvidenceStore is an append-only, deduplicating container of findings.
// It is safe for concurrent use; writers are serialized by its mutex.
type EvidenceStore struct {
	mu    sync.RWMutex
	items []Evidence
	seen  map[EvidenceKey]struct{}
}

// NewEvidenceStore returns an empty store.
func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{seen: make(map[EvidenceKey]struct{})}
}

// Add inserts ev unless an item with the same (source, fact) pair is already
// stored. Items with an empty fact are dropped. It reports whether ev was stored.
func (s *EvidenceStore) Add(ev Evidence) bool {
	if strings.TrimSpace(ev.Fact) == "" {
		return false
	}
	ev.Confidence = clampConfidence(ev.Confidence)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := ev.Key()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, ev)
	return true
}

// Extend applies Add to each element in order and returns how many were stored.
func (s *EvidenceStore) Extend(list []Evidence) int {
	added := 0
	for _, ev := range list {
		if s.Add(ev) {
			added++
		}
	}
	return added
}

// All returns an insertion-ordered snapshot.
func (s *EvidenceStore) All() []Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Evidence(nil), s.items...)
}

// BySource returns the stored items produced by source.
func (s *EvidenceStore) BySource(source string) []Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Evidence
	for _, ev := range s.items {
		if ev.Source == source {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of stored items.
func (s *EvidenceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Summary renders one line per finding.
func (s *EvidenceStore) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]string, 0, len(s.items))
	for _, ev := range s.items {
		lines = append(lines, fmt.Sprintf("- (%.2f) %s: %s", ev.Confidence, ev.Source, ev.Fact))
	}
	return strings.Join(lines, "\n")
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
