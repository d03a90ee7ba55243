package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/studyware/coursechat/internal/domain"
	"github.com/studyware/coursechat/internal/llm"
	"github.com/studyware/coursechat/internal/vectorstore"
)

// CourseOutlineTool returns a course's structure: title, link,
// instructor and the complete lesson list.
type CourseOutlineTool struct {
	store *vectorstore.Store
}

// NewCourseOutlineTool creates the outline tool over a vector store.
func NewCourseOutlineTool(store *vectorstore.Store) *CourseOutlineTool {
	return &CourseOutlineTool{store: store}
}

// Definition returns the tool schema.
func (t *CourseOutlineTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.Function{
			Name:        "get_course_outline",
			Description: "Get complete course outline with lesson list for a specific course",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"course_title": map[string]any{
						"type":        "string",
						"description": "Course title to get outline for (partial matches work)",
					},
				},
				"required": []string{"course_title"},
			},
		},
	}
}

// Execute resolves the course in the catalog and formats its outline.
func (t *CourseOutlineTool) Execute(ctx context.Context, args map[string]any) string {
	courseTitle := stringArg(args, "course_title")

	resolved, err := t.store.ResolveCourseTitle(ctx, courseTitle)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Sprintf("No course found matching '%s'", courseTitle)
		}
		return fmt.Sprintf("Error retrieving course outline: %v", err)
	}

	course, err := t.store.CourseOutline(ctx, resolved)
	if err != nil {
		return fmt.Sprintf("Error retrieving course outline: %v", err)
	}

	var parts []string
	parts = append(parts, "Course: "+course.Title)
	if course.Link != "" {
		parts = append(parts, "Course Link: "+course.Link)
	}
	if course.Instructor != "" {
		parts = append(parts, "Instructor: "+course.Instructor)
	}
	parts = append(parts, fmt.Sprintf("Total Lessons: %d", len(course.Lessons)))
	parts = append(parts, "", "Lesson Outline:")

	if len(course.Lessons) == 0 {
		parts = append(parts, "No lessons available")
	}
	for _, lesson := range course.Lessons {
		parts = append(parts, fmt.Sprintf("Lesson %d: %s", lesson.Number, lesson.Title))
	}

	return strings.Join(parts, "\n")
}
