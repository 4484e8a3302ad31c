package core

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEvidenceStoreDeduplicatesBySourceAndFact(t *testing.T) {
	s := NewEvidenceStore()
	if !s.Add(NewEvidence("a", "fact one", 0.5)) {
		t.Fatalf("expected first insert to be stored")
	}
	if s.Add(NewEvidence("a", "fact one", 0.9)) {
		t.Fatalf("expected duplicate (source, fact) to be rejected")
	}
	if !s.Add(NewEvidence("b", "fact one", 0.5)) {
		t.Fatalf("same fact from another source must be kept")
	}
	if got := s.All()[0].Confidence; got != 0.5 {
		t.Fatalf("first occurrence must win, got confidence %v", got)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", s.Len())
	}
}

func TestEvidenceStoreDropsEmptyFactsAndClamps(t *testing.T) {
	s := NewEvidenceStore()
	added := s.Extend([]Evidence{
		{Source: "a", Fact: "   "},
		{Source: "a", Fact: "high", Confidence: 1.7},
		{Source: "a", Fact: "low", Confidence: -0.3},
		{Source: "a", Fact: "high", Confidence: 0.1},
	})
	if added != 2 {
		t.Fatalf("expected 2 stored items, got %d", added)
	}
	got := s.All()
	if got[0].Confidence != 1 || got[1].Confidence != 0 {
		t.Fatalf("confidence not clamped: %+v", got)
	}
}

func TestEvidenceStoreSnapshotsAreIndependent(t *testing.T) {
	s := NewEvidenceStore()
	s.Add(NewEvidence("a", "one", 0.5))
	snap := s.All()
	snap[0].Fact = "mutated"
	s.Add(NewEvidence("a", "two", 0.5))

	want := []string{"one", "two"}
	var got []string
	for _, ev := range s.All() {
		got = append(got, ev.Fact)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("store changed through a snapshot (-want +got):\n%s", diff)
	}
	if len(s.BySource("a")) != 2 || len(s.BySource("b")) != 0 {
		t.Fatalf("unexpected BySource result")
	}
}

func TestEvidenceStoreConcurrentAdds(t *testing.T) {
	s := NewEvidenceStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Add(NewEvidence("worker", strings.Repeat("x", j+1), 0.5))
			}
		}()
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("expected 50 unique items, got %d", s.Len())
	}
}

func TestEvidenceStoreSummary(t *testing.T) {
	s := NewEvidenceStore()
	s.Add(NewEvidence("whois", "Run whois", 0.35))
	if got, want := s.Summary(), "- (0.35) whois: Run whois"; got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
}
