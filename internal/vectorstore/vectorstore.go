// Package vectorstore owns the two logical collections behind semantic
// search: a course catalog with one record per course, used for fuzzy
// title resolution, and a content collection with one record per chunk.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studyware/coursechat/internal/domain"
)

// Collection names.
const (
	CollectionCatalog = "course_catalog"
	CollectionContent = "course_content"
)

// Embedder converts text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Record is one stored row: an embedded document plus its metadata.
// Catalog rows fill the course fields, content rows the chunk fields.
type Record struct {
	ID           string
	Document     string
	Vector       []float32
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
	CourseLink   string
	Instructor   string
	LessonsJSON  string
}

// Filter restricts query matches by exact metadata equality. Zero
// values leave the corresponding field unconstrained.
type Filter struct {
	CourseTitle  string
	LessonNumber *int
}

// Match is a query hit with its cosine distance (lower is closer).
type Match struct {
	Record   Record
	Distance float64
}

// Backend persists embedded records and answers filtered
// nearest-neighbor queries. Implementations must be safe for concurrent
// reads.
type Backend interface {
	Upsert(ctx context.Context, collection string, records []Record) error
	Query(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]Match, error)
	Get(ctx context.Context, collection, id string) (*Record, error)
	IDs(ctx context.Context, collection string) ([]string, error)
	Count(ctx context.Context, collection string) (int, error)
	Clear(ctx context.Context) error
}

// SearchResults is the outcome of one content search. Error and empty
// results are distinct states: an unresolvable course filter produces an
// Error the model can react to, while an empty Documents slice means the
// search ran and found nothing.
type SearchResults struct {
	Documents []string
	Metadata  []ResultMeta
	Distances []float64
	Error     string
}

// ResultMeta is the provenance of one search hit.
type ResultMeta struct {
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
}

// IsEmpty reports whether the search produced no documents.
func (r *SearchResults) IsEmpty() bool { return len(r.Documents) == 0 }

func errorResults(format string, args ...any) *SearchResults {
	return &SearchResults{Error: fmt.Sprintf(format, args...)}
}

// Options tune a Store.
type Options struct {
	// MaxResults caps search results when the caller passes no limit.
	MaxResults int
	// ResolveThreshold is the maximum cosine distance at which a fuzzy
	// course name still resolves to a catalog entry.
	ResolveThreshold float64
}

// Store is the vector index adapter over a Backend and an Embedder.
type Store struct {
	backend          Backend
	embedder         Embedder
	maxResults       int
	resolveThreshold float64
}

// New creates a Store. Zero option fields fall back to defaults.
func New(backend Backend, embedder Embedder, opts Options) *Store {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.ResolveThreshold <= 0 {
		opts.ResolveThreshold = 0.8
	}
	return &Store{
		backend:          backend,
		embedder:         embedder,
		maxResults:       opts.MaxResults,
		resolveThreshold: opts.ResolveThreshold,
	}
}

// AddCourseMetadata upserts one catalog record keyed by course title.
// The full lesson list is stored as JSON metadata so lesson links can be
// recovered later without touching the content collection.
func (s *Store) AddCourseMetadata(ctx context.Context, course *domain.Course) error {
	vectors, err := s.embedder.Embed(ctx, []string{course.Title})
	if err != nil {
		return fmt.Errorf("failed to embed course title: %w", err)
	}

	lessonsJSON, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("failed to marshal lessons: %w", err)
	}

	rec := Record{
		ID:          course.Title,
		Document:    course.Title,
		Vector:      vectors[0],
		CourseTitle: course.Title,
		CourseLink:  course.Link,
		Instructor:  course.Instructor,
		LessonsJSON: string(lessonsJSON),
	}
	if err := s.backend.Upsert(ctx, CollectionCatalog, []Record{rec}); err != nil {
		return fmt.Errorf("failed to store course metadata: %w", err)
	}
	return nil
}

// AddChunks embeds and appends a batch of chunks to the content
// collection. Chunk identity is "{course_title}_{chunk_index}".
func (s *Store) AddChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	records := make([]Record, len(chunks))
	for i, ch := range chunks {
		records[i] = Record{
			ID:           fmt.Sprintf("%s_%d", ch.CourseTitle, ch.Index),
			Document:     ch.Content,
			Vector:       vectors[i],
			CourseTitle:  ch.CourseTitle,
			LessonNumber: ch.LessonNumber,
			ChunkIndex:   ch.Index,
		}
	}
	if err := s.backend.Upsert(ctx, CollectionContent, records); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// ResolveCourseTitle maps a user-supplied partial or misspelled course
// name to the exact indexed title via nearest-neighbor matching.
// Returns domain.ErrNotFound when nothing matches closely enough.
func (s *Store) ResolveCourseTitle(ctx context.Context, name string) (string, error) {
	vectors, err := s.embedder.Embed(ctx, []string{name})
	if err != nil {
		return "", fmt.Errorf("failed to embed course name: %w", err)
	}

	matches, err := s.backend.Query(ctx, CollectionCatalog, vectors[0], 1, Filter{})
	if err != nil {
		return "", fmt.Errorf("failed to query course catalog: %w", err)
	}
	if len(matches) == 0 || matches[0].Distance > s.resolveThreshold {
		return "", domain.ErrNotFound
	}
	return matches[0].Record.CourseTitle, nil
}

// Search embeds the query and returns the closest chunks, optionally
// restricted to one course (fuzzy name, resolved first) and/or one
// lesson number. limit <= 0 uses the configured maximum. Failures are
// reported through SearchResults.Error so the caller can hand them to
// the language model as a tool result.
func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber *int, limit int) *SearchResults {
	filter := Filter{LessonNumber: lessonNumber}
	if courseName != "" {
		title, err := s.ResolveCourseTitle(ctx, courseName)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errorResults("No course found matching '%s'", courseName)
			}
			return errorResults("Search error: %v", err)
		}
		filter.CourseTitle = title
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return errorResults("Search error: %v", err)
	}

	if limit <= 0 {
		limit = s.maxResults
	}
	matches, err := s.backend.Query(ctx, CollectionContent, vectors[0], limit, filter)
	if err != nil {
		return errorResults("Search error: %v", err)
	}

	results := &SearchResults{}
	for _, m := range matches {
		results.Documents = append(results.Documents, m.Record.Document)
		results.Metadata = append(results.Metadata, ResultMeta{
			CourseTitle:  m.Record.CourseTitle,
			LessonNumber: m.Record.LessonNumber,
			ChunkIndex:   m.Record.ChunkIndex,
		})
		results.Distances = append(results.Distances, m.Distance)
	}
	return results
}

// CourseOutline returns the catalog entry for an exact course title.
func (s *Store) CourseOutline(ctx context.Context, title string) (*domain.Course, error) {
	rec, err := s.backend.Get(ctx, CollectionCatalog, title)
	if err != nil {
		return nil, fmt.Errorf("failed to read course catalog: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}

	course := &domain.Course{
		Title:      rec.CourseTitle,
		Link:       rec.CourseLink,
		Instructor: rec.Instructor,
	}
	if rec.LessonsJSON != "" {
		if err := json.Unmarshal([]byte(rec.LessonsJSON), &course.Lessons); err != nil {
			return nil, fmt.Errorf("failed to decode lessons metadata: %w", err)
		}
	}
	return course, nil
}

// GetLessonLink returns the link recorded for one lesson of a course,
// or empty when unknown.
func (s *Store) GetLessonLink(ctx context.Context, title string, lessonNumber int) (string, error) {
	course, err := s.CourseOutline(ctx, title)
	if err != nil {
		return "", err
	}
	for _, l := range course.Lessons {
		if l.Number == lessonNumber {
			return l.Link, nil
		}
	}
	return "", nil
}

// ExistingCourseTitles lists every course title present in the catalog.
func (s *Store) ExistingCourseTitles(ctx context.Context) ([]string, error) {
	return s.backend.IDs(ctx, CollectionCatalog)
}

// CourseCount returns the number of indexed courses.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	return s.backend.Count(ctx, CollectionCatalog)
}

// ClearAll destroys both collections. Used only for forced re-ingestion.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.backend.Clear(ctx)
}
