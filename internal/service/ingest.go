package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/studyware/coursechat/internal/parser"
)

// IngestDirectory parses and indexes every course document in dir.
// Ingestion is idempotent per course title: a course whose title is
// already present in the catalog is skipped, so neither AddCourseMetadata
// nor AddChunks runs for it again. A malformed document is logged and
// skipped without aborting the rest of the corpus. Returns the number of
// courses and chunks added.
func (s *RAGService) IngestDirectory(ctx context.Context, dir string) (int, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read docs directory: %w", err)
	}

	existingTitles, err := s.store.ExistingCourseTitles(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list existing courses: %w", err)
	}
	existing := make(map[string]bool, len(existingTitles))
	for _, title := range existingTitles {
		existing[title] = true
	}

	var coursesAdded, chunksAdded int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".txt") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		course, err := parser.ParseFile(path)
		if err != nil {
			s.logger.Warn("skipping malformed course document",
				zap.String("file", path),
				zap.Error(err),
			)
			continue
		}
		if existing[course.Title] {
			s.logger.Debug("course already indexed, skipping",
				zap.String("title", course.Title),
			)
			continue
		}

		chunks := s.chunker.ChunkCourse(course)
		if err := s.store.AddCourseMetadata(ctx, course); err != nil {
			return coursesAdded, chunksAdded,
				fmt.Errorf("failed to index course %q: %w", course.Title, err)
		}
		if err := s.store.AddChunks(ctx, chunks); err != nil {
			return coursesAdded, chunksAdded,
				fmt.Errorf("failed to index chunks of %q: %w", course.Title, err)
		}

		existing[course.Title] = true
		coursesAdded++
		chunksAdded += len(chunks)
		s.logger.Info("indexed course",
			zap.String("title", course.Title),
			zap.Int("lessons", len(course.Lessons)),
			zap.Int("chunks", len(chunks)),
		)
	}

	return coursesAdded, chunksAdded, nil
}

// Reindex clears both collections and re-ingests the corpus from
// scratch. Used by the admin surface for forced re-ingestion.
func (s *RAGService) Reindex(ctx context.Context, dir string) (int, int, error) {
	if err := s.store.ClearAll(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to clear index: %w", err)
	}
	return s.IngestDirectory(ctx, dir)
}
