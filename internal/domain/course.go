package domain

// Course represents one ingested course document. Title is the stable
// identity used for dedup and metadata filtering.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"course_link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons"`
	// Preamble is body text that appears before the first lesson marker.
	// It is indexed without a lesson number.
	Preamble string `json:"-"`
}

// Lesson is a single lesson within a course, ordered by Number.
// Numbers are unique within a course but need not be contiguous.
type Lesson struct {
	Number  int    `json:"lesson_number"`
	Title   string `json:"lesson_title"`
	Link    string `json:"lesson_link,omitempty"`
	Content string `json:"-"`
}

// Chunk is a bounded slice of lesson text used as the unit of semantic
// search. Content includes a human-readable course/lesson context prefix
// that is embedded and stored together with the body text.
type Chunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	Index        int
}
