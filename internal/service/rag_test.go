package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/studyware/coursechat/internal/chunker"
	"github.com/studyware/coursechat/internal/domain"
	"github.com/studyware/coursechat/internal/llm"
	"github.com/studyware/coursechat/internal/session"
	"github.com/studyware/coursechat/internal/vectorstore"
	"github.com/studyware/coursechat/internal/vectorstore/memory"
)

type fakeEmbedder struct{}

// Embed hashes each text into a small vector so equal texts embed
// equally and the course title embeds identically in catalog and query.
func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var v [4]float32
		for j, r := range t {
			v[j%4] += float32(r % 13)
		}
		var norm float32
		for _, x := range v {
			norm += x * x
		}
		if norm == 0 {
			v[0] = 1
		}
		out[i] = v[:]
	}
	return out, nil
}

// scriptedChat replays canned responses and records every call it sees.
type scriptedChat struct {
	responses []*llm.Message
	err       error
	errOn     int // 1-based call index that fails; 0 disables

	calls []chatCall
}

type chatCall struct {
	system   string
	messages []llm.Message
	tools    []llm.ToolDefinition
}

func (c *scriptedChat) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Message, error) {
	c.calls = append(c.calls, chatCall{system: system, messages: messages, tools: tools})
	if c.errOn != 0 && len(c.calls) == c.errOn {
		return nil, errors.New("model unavailable")
	}
	if c.err != nil {
		return nil, c.err
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func newTestService(t *testing.T, chat ChatModel) *RAGService {
	t.Helper()
	store := vectorstore.New(memory.New(), fakeEmbedder{}, vectorstore.Options{
		MaxResults:       5,
		ResolveThreshold: 0.5,
	})
	ck, err := chunker.New(chunker.Config{Size: 200, Overlap: 20, Unit: chunker.UnitChars})
	if err != nil {
		t.Fatalf("failed to build chunker: %v", err)
	}
	svc, err := New(zap.NewNop(), store, chat, ck, session.NewStore(2))
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}

func seedCourse(t *testing.T, svc *RAGService) {
	t.Helper()
	ctx := context.Background()
	course := &domain.Course{
		Title: "Intro to Go",
		Lessons: []domain.Lesson{
			{Number: 1, Title: "Basics", Link: "https://example.com/go/1"},
		},
	}
	if err := svc.store.AddCourseMetadata(ctx, course); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	chunks := []domain.Chunk{{
		Content:      "Course Intro to Go Lesson 1 content: goroutines and channels",
		CourseTitle:  "Intro to Go",
		LessonNumber: func() *int { n := 1; return &n }(),
		Index:        0,
	}}
	if err := svc.store.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("failed to seed content: %v", err)
	}
}

func TestQueryWithoutToolUse(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Message{
		{Role: "assistant", Content: "Go is a programming language."},
	}}
	svc := newTestService(t, chat)

	resp, err := svc.Query(context.Background(), "what is Go?", "")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if resp.Answer != "Go is a programming language." {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("direct answers must carry no sources, got %+v", resp.Sources)
	}
	if resp.SessionID == "" {
		t.Fatal("empty session id should be replaced with a fresh one")
	}
	if len(chat.calls) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(chat.calls))
	}
	if len(chat.calls[0].tools) != 2 {
		t.Fatalf("first call should offer both tools, got %d", len(chat.calls[0].tools))
	}
}

func TestQueryWithOneToolRound(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Message{
		{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: llm.FunctionCall{
					Name:      "search_course_content",
					Arguments: `{"query": "goroutines", "course_name": "Intro to Go", "lesson_number": 1}`,
				},
			}},
		},
		{Role: "assistant", Content: "Goroutines are lightweight threads."},
	}}
	svc := newTestService(t, chat)
	seedCourse(t, svc)

	resp, err := svc.Query(context.Background(), "tell me about goroutines", "")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if resp.Answer != "Goroutines are lightweight threads." {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("expected 1 source, got %+v", resp.Sources)
	}
	if resp.Sources[0].Text != "Intro to Go - Lesson 1" {
		t.Fatalf("unexpected source: %+v", resp.Sources[0])
	}
	if resp.Sources[0].URL != "https://example.com/go/1" {
		t.Fatalf("unexpected source link: %+v", resp.Sources[0])
	}

	if len(chat.calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(chat.calls))
	}
	// The follow-up call must withhold tool definitions so the model is
	// forced into a final text answer.
	if chat.calls[1].tools != nil {
		t.Fatalf("second call must not offer tools, got %+v", chat.calls[1].tools)
	}
	// It must carry the assistant tool-call message plus the tool result.
	last := chat.calls[1].messages
	if len(last) != 3 {
		t.Fatalf("expected user + assistant + tool messages, got %d", len(last))
	}
	if last[2].Role != "tool" || last[2].ToolCallID != "call_1" {
		t.Fatalf("tool result message malformed: %+v", last[2])
	}
	if !strings.Contains(last[2].Content, "[Intro to Go - Lesson 1]") {
		t.Fatalf("tool result should carry formatted search output: %q", last[2].Content)
	}
}

func TestQuerySourcesResetBetweenQueries(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Message{
		{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: llm.FunctionCall{Name: "search_course_content", Arguments: `{"query": "goroutines"}`},
			}},
		},
		{Role: "assistant", Content: "First answer."},
		{Role: "assistant", Content: "Second answer, no search."},
	}}
	svc := newTestService(t, chat)
	seedCourse(t, svc)
	ctx := context.Background()

	first, err := svc.Query(ctx, "goroutines?", "")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(first.Sources) == 0 {
		t.Fatal("first query should have sources")
	}

	second, err := svc.Query(ctx, "thanks", first.SessionID)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(second.Sources) != 0 {
		t.Fatalf("sources must reset between queries, got %+v", second.Sources)
	}
}

func TestQueryCarriesHistoryIntoSystemPrompt(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Message{
		{Role: "assistant", Content: "First."},
		{Role: "assistant", Content: "Second."},
	}}
	svc := newTestService(t, chat)
	ctx := context.Background()

	first, err := svc.Query(ctx, "question one", "")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if strings.Contains(chat.calls[0].system, "Previous conversation:") {
		t.Fatal("fresh session must not carry history")
	}

	if _, err := svc.Query(ctx, "question two", first.SessionID); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	system := chat.calls[1].system
	if !strings.Contains(system, "Previous conversation:") ||
		!strings.Contains(system, "User: question one") ||
		!strings.Contains(system, "Assistant: First.") {
		t.Fatalf("follow-up system prompt missing history:\n%s", system)
	}
}

func TestQueryFailedFollowUpDoesNotLeakSources(t *testing.T) {
	// The model requests a search, the tools run, then the follow-up
	// completion fails. The sources recorded by the failed query must
	// not surface on the next query's answer.
	chat := &scriptedChat{
		errOn: 2,
		responses: []*llm.Message{
			{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: llm.FunctionCall{Name: "search_course_content", Arguments: `{"query": "goroutines"}`},
				}},
			},
			{Role: "assistant", Content: "Plain answer."},
		},
	}
	svc := newTestService(t, chat)
	seedCourse(t, svc)
	ctx := context.Background()

	if _, err := svc.Query(ctx, "tell me about goroutines", ""); err == nil {
		t.Fatal("follow-up failure must propagate")
	}

	resp, err := svc.Query(ctx, "what is Go?", "")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if resp.Answer != "Plain answer." {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("no-tool answer carries sources from the failed query: %+v", resp.Sources)
	}
}

func TestQueryModelError(t *testing.T) {
	chat := &scriptedChat{err: errors.New("upstream unavailable")}
	svc := newTestService(t, chat)

	if _, err := svc.Query(context.Background(), "anything", ""); err == nil {
		t.Fatal("model failure must propagate")
	}
}

func TestQueryBadToolArguments(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Message{
		{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: llm.FunctionCall{Name: "search_course_content", Arguments: `{not json`},
			}},
		},
		{Role: "assistant", Content: "Recovered."},
	}}
	svc := newTestService(t, chat)

	resp, err := svc.Query(context.Background(), "anything", "")
	if err != nil {
		t.Fatalf("malformed tool arguments must not fail the query: %v", err)
	}
	if resp.Answer != "Recovered." {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	result := chat.calls[1].messages[2].Content
	if !strings.Contains(result, "Tool execution error") {
		t.Fatalf("tool result should report the decode failure: %q", result)
	}
}

func TestGetStats(t *testing.T) {
	svc := newTestService(t, &scriptedChat{})
	ctx := context.Background()

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalCourses != 0 || stats.CourseTitles == nil {
		t.Fatalf("empty catalog should yield zero count and non-nil titles: %+v", stats)
	}

	seedCourse(t, svc)
	stats, err = svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalCourses != 1 || stats.CourseTitles[0] != "Intro to Go" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

const sampleDoc = `Course Title: Intro to Go
Course Link: https://example.com/go
Course Instructor: Rob

Lesson 1: Basics
Lesson Link: https://example.com/go/1
Variables, types and control flow. Functions and methods come next.

Lesson 2: Concurrency
Goroutines are lightweight threads managed by the runtime. Channels connect them.
`

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write doc: %v", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	svc := newTestService(t, &scriptedChat{})
	dir := t.TempDir()
	writeDoc(t, dir, "go.txt", sampleDoc)
	writeDoc(t, dir, "notes.md", "not a course document")
	ctx := context.Background()

	courses, chunks, err := svc.IngestDirectory(ctx, dir)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if courses != 1 {
		t.Fatalf("expected 1 course, got %d", courses)
	}
	if chunks == 0 {
		t.Fatal("expected chunks to be indexed")
	}

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalCourses != 1 || stats.CourseTitles[0] != "Intro to Go" {
		t.Fatalf("unexpected stats after ingest: %+v", stats)
	}
}

func TestIngestDirectoryIsIdempotent(t *testing.T) {
	svc := newTestService(t, &scriptedChat{})
	dir := t.TempDir()
	writeDoc(t, dir, "go.txt", sampleDoc)
	ctx := context.Background()

	if _, _, err := svc.IngestDirectory(ctx, dir); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	courses, chunks, err := svc.IngestDirectory(ctx, dir)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if courses != 0 || chunks != 0 {
		t.Fatalf("second ingest must skip indexed courses, got %d courses %d chunks", courses, chunks)
	}
}

func TestIngestDirectorySkipsMalformedDocs(t *testing.T) {
	svc := newTestService(t, &scriptedChat{})
	dir := t.TempDir()
	writeDoc(t, dir, "bad.txt", "this file has no course title header")
	writeDoc(t, dir, "go.txt", sampleDoc)

	courses, _, err := svc.IngestDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if courses != 1 {
		t.Fatalf("malformed doc should be skipped, not fatal: got %d courses", courses)
	}
}

func TestReindexClearsBeforeIngest(t *testing.T) {
	svc := newTestService(t, &scriptedChat{})
	dir := t.TempDir()
	writeDoc(t, dir, "go.txt", sampleDoc)
	ctx := context.Background()

	if _, _, err := svc.IngestDirectory(ctx, dir); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	courses, _, err := svc.Reindex(ctx, dir)
	if err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	if courses != 1 {
		t.Fatalf("reindex should re-ingest from scratch, got %d courses", courses)
	}
}
