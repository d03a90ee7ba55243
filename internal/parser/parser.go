// Package parser turns structured course documents into the typed course
// model. A document carries a header block (Course Title, optional
// Course Link and Course Instructor) followed by lesson blocks, each
// opened by a "Lesson <N>: <title>" marker line.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/studyware/coursechat/internal/domain"
)

const (
	titlePrefix      = "Course Title:"
	courseLinkPrefix = "Course Link:"
	instructorPrefix = "Course Instructor:"
	lessonLinkPrefix = "Lesson Link:"
)

var lessonMarker = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

// ParseError describes a malformed course document. Ingestion skips the
// offending file and continues with the rest of the corpus.
type ParseError struct {
	File   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("invalid course document: %s", e.Reason)
	}
	return fmt.Sprintf("invalid course document %s: %s", e.File, e.Reason)
}

// ParseFile parses a single course document from disk.
func ParseFile(path string) (*domain.Course, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open course document: %w", err)
	}
	defer f.Close()
	return Parse(path, f)
}

// Parse parses a course document. name is used in error messages only.
// The course title line is required; link and instructor lines are
// optional. Lesson numbers need not start at 0 or be contiguous.
func Parse(name string, r io.Reader) (*domain.Course, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read course document: %w", err)
	}

	course := &domain.Course{}
	i := 0

	// Skip leading blank lines before the header block.
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || !strings.HasPrefix(lines[i], titlePrefix) {
		return nil, &ParseError{File: name, Reason: "missing Course Title header"}
	}
	course.Title = strings.TrimSpace(strings.TrimPrefix(lines[i], titlePrefix))
	if course.Title == "" {
		return nil, &ParseError{File: name, Reason: "empty course title"}
	}
	i++

	// Link and instructor may follow in either order; both are optional.
	for i < len(lines) {
		line := lines[i]
		if strings.HasPrefix(line, courseLinkPrefix) {
			course.Link = strings.TrimSpace(strings.TrimPrefix(line, courseLinkPrefix))
			i++
			continue
		}
		if strings.HasPrefix(line, instructorPrefix) {
			course.Instructor = strings.TrimSpace(strings.TrimPrefix(line, instructorPrefix))
			i++
			continue
		}
		break
	}

	var (
		current *domain.Lesson
		buf     []string
		seen    = map[int]bool{}
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(buf, "\n"))
		course.Lessons = append(course.Lessons, *current)
		current = nil
		buf = nil
	}

	var preamble []string
	for ; i < len(lines); i++ {
		line := lines[i]
		if m := lessonMarker.FindStringSubmatch(line); m != nil {
			number, err := strconv.Atoi(m[1])
			if err == nil && !seen[number] {
				seen[number] = true
				flush()
				current = &domain.Lesson{Number: number, Title: strings.TrimSpace(m[2])}
				// An optional link line may directly follow the marker.
				if i+1 < len(lines) && strings.HasPrefix(lines[i+1], lessonLinkPrefix) {
					current.Link = strings.TrimSpace(strings.TrimPrefix(lines[i+1], lessonLinkPrefix))
					i++
				}
				continue
			}
			// Duplicate lesson numbers fall through as plain body text.
		}
		if current != nil {
			buf = append(buf, line)
		} else {
			preamble = append(preamble, line)
		}
	}
	flush()

	// Text between the header and the first lesson marker belongs to no
	// lesson. Keep it so it can still be indexed.
	if text := strings.TrimSpace(strings.Join(preamble, "\n")); text != "" {
		course.Preamble = text
	}

	return course, nil
}
