// Package memory is an in-memory vector backend using brute-force
// cosine distance. It backs tests and small deployments that do not
// need the index to survive a restart.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/studyware/coursechat/internal/vectorstore"
)

// Backend stores records per collection, guarded by a single RWMutex.
type Backend struct {
	mu          sync.RWMutex
	collections map[string][]vectorstore.Record
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{collections: map[string][]vectorstore.Record{}}
}

// Upsert inserts records, replacing any existing record with the same ID.
func (b *Backend) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.collections[collection]
	for _, rec := range records {
		replaced := false
		for i := range existing {
			if existing[i].ID == rec.ID {
				existing[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, rec)
		}
	}
	b.collections[collection] = existing
	return nil
}

// Query returns up to limit records closest to vector, after applying
// the metadata filter.
func (b *Backend) Query(ctx context.Context, collection string, vector []float32, limit int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matches []vectorstore.Match
	for _, rec := range b.collections[collection] {
		if !matchesFilter(rec, filter) {
			continue
		}
		matches = append(matches, vectorstore.Match{
			Record:   rec,
			Distance: cosineDistance(rec.Vector, vector),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Get returns the record with the given ID, or nil when absent.
func (b *Backend) Get(ctx context.Context, collection, id string) (*vectorstore.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, rec := range b.collections[collection] {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

// IDs lists all record IDs in a collection.
func (b *Backend) IDs(ctx context.Context, collection string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	recs := b.collections[collection]
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

// Count returns the number of records in a collection.
func (b *Backend) Count(ctx context.Context, collection string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.collections[collection]), nil
}

// Clear drops every collection.
func (b *Backend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collections = map[string][]vectorstore.Record{}
	return nil
}

func matchesFilter(rec vectorstore.Record, filter vectorstore.Filter) bool {
	if filter.CourseTitle != "" && rec.CourseTitle != filter.CourseTitle {
		return false
	}
	if filter.LessonNumber != nil {
		if rec.LessonNumber == nil || *rec.LessonNumber != *filter.LessonNumber {
			return false
		}
	}
	return true
}

func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
