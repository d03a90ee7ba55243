// Package service wires parsing, chunking, the vector index, tools and
// the language model into a single query-answer cycle.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/studyware/coursechat/internal/chunker"
	"github.com/studyware/coursechat/internal/domain"
	"github.com/studyware/coursechat/internal/llm"
	"github.com/studyware/coursechat/internal/session"
	"github.com/studyware/coursechat/internal/tools"
	"github.com/studyware/coursechat/internal/vectorstore"
)

const systemPrompt = `You are an AI assistant specialized in course materials and educational content with access to search tools for course information.

Available Tools:
1. search_course_content: Search course materials for specific content and detailed information
2. get_course_outline: Get complete course outlines with lesson lists, course links, and structure

Tool Usage Guidelines:
- Use search_course_content for questions about specific course content or detailed educational materials
- Use get_course_outline for questions about course structure, lesson lists, or "what's in this course"
- Synthesize search results into accurate, fact-based responses
- If search yields no results, state this clearly without offering alternatives

Response Protocol:
- General knowledge questions: answer using existing knowledge without searching
- Course-specific questions: search first, then answer
- No meta-commentary: provide direct answers only, without mentioning the search process

All responses must be brief, educational, clear and example-supported when that aids understanding.`

// ChatModel produces completions, optionally requesting tool calls.
type ChatModel interface {
	Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Message, error)
}

// RAGService coordinates one query-answer cycle and the startup
// ingestion pass. All collaborators are constructor-injected.
type RAGService struct {
	logger   *zap.Logger
	store    *vectorstore.Store
	chat     ChatModel
	chunker  *chunker.Chunker
	sessions *session.Store
	tools    *tools.Manager
}

// New creates the service and registers the course tools. Duplicate
// tool registration is a fatal configuration error.
func New(
	logger *zap.Logger,
	store *vectorstore.Store,
	chat ChatModel,
	ck *chunker.Chunker,
	sessions *session.Store,
) (*RAGService, error) {
	manager := tools.NewManager()
	if err := manager.Register(tools.NewCourseSearchTool(store)); err != nil {
		return nil, fmt.Errorf("failed to register search tool: %w", err)
	}
	if err := manager.Register(tools.NewCourseOutlineTool(store)); err != nil {
		return nil, fmt.Errorf("failed to register outline tool: %w", err)
	}

	return &RAGService{
		logger:   logger,
		store:    store,
		chat:     chat,
		chunker:  ck,
		sessions: sessions,
		tools:    manager,
	}, nil
}

// Query answers one user question. The tool-use loop is bounded to a
// single round: if the model requests tools, they are executed and the
// follow-up completion is made without tool definitions, which forces a
// final text answer even if the model would keep requesting tools.
// Session history receives only the user query and the final answer.
func (s *RAGService) Query(ctx context.Context, query, sessionID string) (*domain.QueryResponse, error) {
	if sessionID == "" {
		sessionID = s.sessions.Create()
	}

	system := systemPrompt
	if history := s.sessions.FormatHistory(sessionID); history != "" {
		system = systemPrompt + "\n\nPrevious conversation:\n" + history
	}

	messages := []llm.Message{{Role: "user", Content: query}}

	resp, err := s.chat.Chat(ctx, system, messages, s.tools.Definitions())
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	answer := resp.Content
	var sources []domain.Source
	if len(resp.ToolCalls) > 0 {
		messages = append(messages, *resp)
		messages = append(messages, s.executeToolCalls(ctx, resp.ToolCalls)...)

		// Read and clear the recorded sources before the follow-up call:
		// a failed follow-up must not leave them behind for the next
		// query.
		sources = s.tools.LastSources()
		s.tools.ResetSources()

		final, err := s.chat.Chat(ctx, system, messages, nil)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		answer = final.Content
	}

	s.sessions.AddExchange(sessionID, query, answer)

	return &domain.QueryResponse{
		Answer:    answer,
		Sources:   sources,
		SessionID: sessionID,
	}, nil
}

// executeToolCalls runs every tool call of one round and returns the
// tool-result messages to append to the conversation. Individual tool
// failures become result text the model can react to.
func (s *RAGService) executeToolCalls(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		args, err := call.Function.ArgumentMap()
		var result string
		if err != nil {
			result = fmt.Sprintf("Tool execution error: %v", err)
		} else {
			result = s.tools.Execute(ctx, call.Function.Name, args)
		}

		s.logger.Debug("executed tool",
			zap.String("tool", call.Function.Name),
			zap.Int("result_len", len(result)),
		)
		results = append(results, llm.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
	}
	return results
}

// GetStats returns a read-only projection of the course catalog.
func (s *RAGService) GetStats(ctx context.Context) (*domain.Stats, error) {
	titles, err := s.store.ExistingCourseTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return &domain.Stats{
		TotalCourses: len(titles),
		CourseTitles: titles,
	}, nil
}

// ClearSession discards the session's history. Unknown ids succeed.
func (s *RAGService) ClearSession(sessionID string) {
	s.sessions.Clear(sessionID)
}
