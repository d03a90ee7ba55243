package domain

// Message is one entry in a session's conversation history.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Source is a citation attached to an answer.
type Source struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// QueryRequest is the request to ask a question.
type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse is the answer to a question.
type QueryResponse struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"session_id"`
}

// Stats is a read-only projection of the course catalog.
type Stats struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}
