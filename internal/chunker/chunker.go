// Package chunker splits lesson text into overlapping, context-prefixed
// chunks sized for embedding. Sentence boundaries are preferred split
// points; a sentence larger than the chunk size is hard-split.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/studyware/coursechat/internal/domain"
)

// Size units.
const (
	UnitChars  = "chars"
	UnitTokens = "tokens"
)

var sentenceSplitter = regexp.MustCompile(`[^.!?]+[.!?]+[\s"')\]]*|[^.!?]+$`)

// Config configures a Chunker.
type Config struct {
	Size    int
	Overlap int
	Unit    string // UnitChars (default) or UnitTokens
}

// Chunker produces overlapping text chunks.
type Chunker struct {
	size    int
	overlap int
	enc     *tiktoken.Tiktoken // nil in character mode
}

// New creates a Chunker. Overlap must be smaller than size; this is a
// configuration error and is rejected here rather than clamped.
func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.Size)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got overlap=%d size=%d",
			cfg.Overlap, cfg.Size)
	}

	c := &Chunker{size: cfg.Size, overlap: cfg.Overlap}
	switch cfg.Unit {
	case "", UnitChars:
	case UnitTokens:
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to load token encoding: %w", err)
		}
		c.enc = enc
	default:
		return nil, fmt.Errorf("unknown chunk size unit %q", cfg.Unit)
	}
	return c, nil
}

// length measures text in the configured unit.
func (c *Chunker) length(text string) int {
	if c.enc == nil {
		return len(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// tail returns the last n units of text.
func (c *Chunker) tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if c.enc == nil {
		if n >= len(text) {
			return text
		}
		return text[len(text)-n:]
	}
	tokens := c.enc.Encode(text, nil, nil)
	if n >= len(tokens) {
		return text
	}
	return c.enc.Decode(tokens[len(tokens)-n:])
}

// head returns the first n units of text.
func (c *Chunker) head(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if c.enc == nil {
		if n >= len(text) {
			return text
		}
		return text[:n]
	}
	tokens := c.enc.Encode(text, nil, nil)
	if n >= len(tokens) {
		return text
	}
	return c.enc.Decode(tokens[:n])
}

// ChunkText splits text into raw chunks without context prefixes. Each
// chunk begins with the configured overlap taken from the tail of the
// previous chunk; the carried overlap is shortened when it would push a
// chunk past the size limit. Whitespace is normalized to single spaces.
// Empty input yields no chunks.
func (c *Chunker) ChunkText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	text = strings.Join(strings.Fields(text), " ")

	sentences := sentenceSplitter.FindAllString(text, -1)

	var (
		chunks     []string
		carry      string // overlap tail of the last emitted chunk
		cur        string // chunk under construction, starts with carry
		hasContent bool   // cur holds content beyond the carried overlap
	)

	emit := func() {
		chunks = append(chunks, cur)
		carry = c.tail(cur, c.overlap)
		cur = carry
		hasContent = false
	}

	for _, raw := range sentences {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if c.length(s) > c.size {
			if hasContent {
				emit()
			}
			pieces := c.hardSplit(carry, s)
			chunks = append(chunks, pieces...)
			carry = c.tail(pieces[len(pieces)-1], c.overlap)
			cur = carry
			hasContent = false
			continue
		}
		candidate := join(cur, s)
		if cur != "" && c.length(candidate) > c.size {
			if hasContent {
				emit()
			}
			candidate = join(c.fitCarry(cur, s), s)
		}
		cur = candidate
		hasContent = true
	}
	if hasContent {
		chunks = append(chunks, cur)
	}
	return chunks
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

// fitCarry shortens a carried overlap so that carry+sentence stays
// within the chunk size.
func (c *Chunker) fitCarry(carry, sentence string) string {
	room := c.size - c.length(sentence) - 1
	if room <= 0 {
		return ""
	}
	return c.tail(carry, room)
}

// hardSplit cuts a sentence that exceeds the chunk size into size-length
// windows. carry is the overlap carried in from the previous chunk,
// prepended to the first window.
func (c *Chunker) hardSplit(carry, sentence string) []string {
	var pieces []string
	rest := sentence
	prefix := carry
	for {
		room := c.size - c.length(prefix)
		if prefix != "" {
			room-- // separating space
		}
		if room <= 0 {
			room = c.size
			prefix = ""
		}
		piece := c.head(rest, room)
		pieces = append(pieces, join(prefix, piece))
		if len(piece) >= len(rest) {
			return pieces
		}
		rest = rest[len(piece):]
		prefix = c.tail(pieces[len(pieces)-1], c.overlap)
	}
}

// ChunkLesson produces context-prefixed chunks for one lesson (or for
// course preamble text when lessonNumber is nil). The first chunk of a
// lesson is prefixed "Course <title> Lesson <N> content:"; later chunks
// carry only "Course <title> content:" since the lesson context lives in
// metadata. startIndex is the course-wide index of the first chunk.
func (c *Chunker) ChunkLesson(courseTitle string, lessonNumber *int, text string, startIndex int) []domain.Chunk {
	raw := c.ChunkText(text)
	chunks := make([]domain.Chunk, 0, len(raw))
	for i, content := range raw {
		var prefixed string
		if i == 0 && lessonNumber != nil {
			prefixed = fmt.Sprintf("Course %s Lesson %d content: %s", courseTitle, *lessonNumber, content)
		} else {
			prefixed = fmt.Sprintf("Course %s content: %s", courseTitle, content)
		}
		chunks = append(chunks, domain.Chunk{
			Content:      prefixed,
			CourseTitle:  courseTitle,
			LessonNumber: lessonNumber,
			Index:        startIndex + i,
		})
	}
	return chunks
}

// ChunkCourse chunks every lesson of a course, assigning monotonically
// increasing chunk indexes across the whole course.
func (c *Chunker) ChunkCourse(course *domain.Course) []domain.Chunk {
	var chunks []domain.Chunk
	if course.Preamble != "" {
		chunks = append(chunks, c.ChunkLesson(course.Title, nil, course.Preamble, 0)...)
	}
	for i := range course.Lessons {
		lesson := &course.Lessons[i]
		n := lesson.Number
		chunks = append(chunks, c.ChunkLesson(course.Title, &n, lesson.Content, len(chunks))...)
	}
	return chunks
}
