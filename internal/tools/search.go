package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/studyware/coursechat/internal/domain"
	"github.com/studyware/coursechat/internal/llm"
	"github.com/studyware/coursechat/internal/vectorstore"
)

// CourseSearchTool searches course content with fuzzy course name
// matching and optional lesson filtering. Each result it formats is also
// recorded as a citation source; sources from every call since the last
// reset are kept, so two searches in one tool round both contribute to
// the answer's source list.
type CourseSearchTool struct {
	store *vectorstore.Store
	sourceStore
}

// NewCourseSearchTool creates the search tool over a vector store.
func NewCourseSearchTool(store *vectorstore.Store) *CourseSearchTool {
	return &CourseSearchTool{store: store}
}

// Definition returns the tool schema. The field names are part of the
// contract with the language model and must not change.
func (t *CourseSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.Function{
			Name:        "search_course_content",
			Description: "Search course materials with smart course name matching and lesson filtering",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to search for in the course content",
					},
					"course_name": map[string]any{
						"type":        "string",
						"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
					},
					"lesson_number": map[string]any{
						"type":        "integer",
						"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Execute runs the search and formats the results with provenance
// headers. Store errors (including an unresolvable course name) are
// returned verbatim so the model can retry or inform the user.
func (t *CourseSearchTool) Execute(ctx context.Context, args map[string]any) string {
	query := stringArg(args, "query")
	courseName := stringArg(args, "course_name")
	lessonNumber := intArg(args, "lesson_number")

	results := t.store.Search(ctx, query, courseName, lessonNumber, 0)
	if results.Error != "" {
		return results.Error
	}
	if results.IsEmpty() {
		var filterInfo strings.Builder
		if courseName != "" {
			fmt.Fprintf(&filterInfo, " in course '%s'", courseName)
		}
		if lessonNumber != nil {
			fmt.Fprintf(&filterInfo, " in lesson %d", *lessonNumber)
		}
		return fmt.Sprintf("No relevant content found%s.", filterInfo.String())
	}
	return t.formatResults(ctx, results)
}

func (t *CourseSearchTool) formatResults(ctx context.Context, results *vectorstore.SearchResults) string {
	var formatted []string
	var sources []domain.Source

	for i, doc := range results.Documents {
		meta := results.Metadata[i]

		header := "[" + meta.CourseTitle
		sourceText := meta.CourseTitle
		var link string
		if meta.LessonNumber != nil {
			header += fmt.Sprintf(" - Lesson %d", *meta.LessonNumber)
			sourceText += fmt.Sprintf(" - Lesson %d", *meta.LessonNumber)
			// Lesson links are best effort; a missing link still yields
			// a usable citation.
			link, _ = t.store.GetLessonLink(ctx, meta.CourseTitle, *meta.LessonNumber)
		}
		header += "]"

		sources = append(sources, domain.Source{Text: sourceText, URL: link})
		formatted = append(formatted, header+"\n"+doc)
	}

	t.add(sources...)
	return strings.Join(formatted, "\n\n")
}
