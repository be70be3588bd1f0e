// Package chat runs the workbook assistant locally: an OpenAI-compatible
// chat endpoint (LM Studio, Ollama, OpenAI) decides which Excel tools to
// call and the calls are served by the stdio MCP server on this machine.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/agentapi"
)

// SystemPrompt steers local models, which tend to answer without calling
// tools unless told otherwise.
const SystemPrompt = `You are an Excel workbook assistant with function tools that read the open workbook.
Always use the tools to look at real data before answering; never claim you cannot access the workbook.
Start with the structure tool when you do not know the worksheet names, then preview or search the
worksheets and tables you need. Base every answer on the rows the tools returned.`

const (
	DefaultMaxToolRounds = 8

	temperature = 0.1
	topP        = 0.1
	maxTokens   = 2000
)

// ErrTooManyToolRounds is returned when the model keeps requesting tools
// past the configured limit.
var ErrTooManyToolRounds = errors.New("chat: too many tool rounds")

// Completer is the chat-completions call of the OpenAI client.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolInvoker declares and executes the tools offered to the model.
type ToolInvoker interface {
	Definitions() []openai.Tool
	Invoke(ctx context.Context, call openai.ToolCall) (string, error)
}

// NewClient returns a go-openai client for an OpenAI-compatible endpoint.
func NewClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// Session is one conversation with tool calling.
type Session struct {
	client        Completer
	model         string
	tools         ToolInvoker
	maxToolRounds int
	logger        *slog.Logger

	history []openai.ChatCompletionMessage
}

// Option customises a Session.
type Option func(*Session)

// WithMaxToolRounds bounds how many consecutive tool-call responses one
// question may produce.
func WithMaxToolRounds(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxToolRounds = n
		}
	}
}

// WithLogger sets the logger used for tool call traces.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession starts a conversation seeded with SystemPrompt.
func NewSession(client Completer, model string, tools ToolInvoker, opts ...Option) *Session {
	s := &Session{
		client:        client,
		model:         model,
		tools:         tools,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        slog.Default(),
		history: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: SystemPrompt,
		}},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Ask sends prompt and resolves tool calls until the model answers in text.
func (s *Session) Ask(ctx context.Context, prompt string) (string, error) {
	s.history = append(s.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	var defs []openai.Tool
	if s.tools != nil {
		defs = s.tools.Definitions()
	}

	for round := 0; ; round++ {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.model,
			Messages:    s.history,
			Tools:       defs,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("chat completion: no choices returned")
		}

		msg := resp.Choices[0].Message
		if msg.Role == "" {
			msg.Role = openai.ChatMessageRoleAssistant
		}
		s.history = append(s.history, msg)

		if len(msg.ToolCalls) == 0 {
			if round == 0 {
				s.logger.Debug("model answered without calling tools")
			}
			return msg.Content, nil
		}
		if s.tools == nil {
			return "", errors.New("chat: model requested tools but none are configured")
		}
		if round >= s.maxToolRounds {
			return "", fmt.Errorf("%w (%d)", ErrTooManyToolRounds, s.maxToolRounds)
		}

		for _, call := range msg.ToolCalls {
			s.logger.Info("tool called", "tool", call.Function.Name, "arguments", call.Function.Arguments)
			out, err := s.tools.Invoke(ctx, call)
			if err != nil {
				s.logger.Warn("tool failed", "tool", call.Function.Name, "error", err)
			}
			s.history = append(s.history, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
	}
}

// Transcript returns the user and assistant turns that carry text, in the
// form the transcript printer renders.
func (s *Session) Transcript() []agentapi.Message {
	var out []agentapi.Message
	for _, msg := range s.history {
		switch msg.Role {
		case openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant:
		default:
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, agentapi.Message{
			Role:    msg.Role,
			Content: []agentapi.ContentPart{agentapi.TextPart(msg.Content)},
		})
	}
	return out
}
