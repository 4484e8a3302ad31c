package runlog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

// evidenceDoc is the indexed form of one evidence item.
type evidenceDoc struct {
	RunID      string  `json:"run_id"`
	Source     string  `json:"source"`
	Fact       string  `json:"fact"`
	Confidence float64 `json:"confidence"`
}

// SearchHit is one match returned by Index.Search.
type SearchHit struct {
	DocID      string  `json:"doc_id"`
	RunID      string  `json:"run_id"`
	Source     string  `json:"source"`
	Fact       string  `json:"fact"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// DefaultIndexRuns is the number of runs kept searchable when no limit is set.
const DefaultIndexRuns = 1000

// Index keeps an in-memory full text index over the evidence of the most
// recent runs. Older runs are evicted once maxRuns is exceeded.
type Index struct {
	bleve   bleve.Index
	meta    map[string]evidenceDoc
	runs    []string            // run IDs, oldest first
	docs    map[string][]string // run ID -> doc IDs
	maxRuns int
	mu      sync.RWMutex
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithMaxRuns bounds how many runs stay indexed. Non-positive values keep the default.
func WithMaxRuns(n int) IndexOption {
	return func(x *Index) {
		if n > 0 {
			x.maxRuns = n
		}
	}
}

// NewIndex creates an empty memory-only index.
func NewIndex(opts ...IndexOption) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create evidence index: %w", err)
	}
	x := &Index{
		bleve:   idx,
		meta:    make(map[string]evidenceDoc),
		docs:    make(map[string][]string),
		maxRuns: DefaultIndexRuns,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Report implements core.Sink by indexing every evidence fact of the run.
func (x *Index) Report(_ context.Context, record core.RunRecord) error {
	batch := x.bleve.NewBatch()
	docs := make(map[string]evidenceDoc, len(record.Evidence))
	ids := make([]string, 0, len(record.Evidence))
	for i, ev := range record.Evidence {
		doc := evidenceDoc{RunID: record.ID, Source: ev.Source, Fact: ev.Fact, Confidence: ev.Confidence}
		id := fmt.Sprintf("%s/%d", record.ID, i)
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("index evidence %s: %w", id, err)
		}
		docs[id] = doc
		ids = append(ids, id)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, seen := x.docs[record.ID]; !seen {
		x.runs = append(x.runs, record.ID)
	}
	x.docs[record.ID] = ids
	var evicted []string
	for len(x.runs) > x.maxRuns {
		oldest := x.runs[0]
		x.runs = x.runs[1:]
		for _, id := range x.docs[oldest] {
			batch.Delete(id)
			evicted = append(evicted, id)
		}
		delete(x.docs, oldest)
	}
	if err := x.bleve.Batch(batch); err != nil {
		return fmt.Errorf("index run %s: %w", record.ID, err)
	}
	for _, id := range evicted {
		delete(x.meta, id)
	}
	for id, doc := range docs {
		x.meta[id] = doc
	}
	return nil
}

// Runs returns the number of runs currently indexed.
func (x *Index) Runs() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.runs)
}

// Search runs a query-string query over indexed facts and returns at most k hits.
func (x *Index) Search(q string, k int) ([]SearchHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 || k > 50 {
		k = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)

	x.mu.RLock()
	defer x.mu.RUnlock()
	res, err := x.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, 0, len(res.Hits))
	for i, hit := range res.Hits {
		doc := x.meta[hit.ID]
		out = append(out, SearchHit{
			DocID:      hit.ID,
			RunID:      doc.RunID,
			Source:     doc.Source,
			Fact:       doc.Fact,
			Confidence: doc.Confidence,
			Score:      hit.Score,
			Rank:       i + 1,
		})
	}
	return out, nil
}

// Len returns the number of indexed evidence items.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.meta)
}

// Close releases the index.
func (x *Index) Close() error { return x.bleve.Close() }
