package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sashabaranov/go-openai"
)

type scriptedCompleter struct {
	replies  []openai.ChatCompletionMessage
	requests []openai.ChatCompletionRequest
}

func (c *scriptedCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("no scripted reply")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: reply}}}, nil
}

type recordingTools struct {
	invoked []string
}

func (r *recordingTools) Definitions() []openai.Tool {
	return []openai.Tool{{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "excel-list-structure"}}}
}

func (r *recordingTools) Invoke(_ context.Context, call openai.ToolCall) (string, error) {
	r.invoked = append(r.invoked, call.Function.Name)
	return "Sales, Products", nil
}

func toolCall(id, name string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: "{}"},
		}},
	}
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAskResolvesToolCalls(t *testing.T) {
	completer := &scriptedCompleter{replies: []openai.ChatCompletionMessage{
		toolCall("call_1", "excel-list-structure"),
		{Role: openai.ChatMessageRoleAssistant, Content: "The workbook has Sales and Products."},
	}}
	tools := &recordingTools{}
	session := NewSession(completer, "local-model", tools, quiet())

	answer, err := session.Ask(context.Background(), "What sheets are there?")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if answer != "The workbook has Sales and Products." {
		t.Fatalf("answer = %q", answer)
	}
	if len(tools.invoked) != 1 || tools.invoked[0] != "excel-list-structure" {
		t.Fatalf("invoked = %#v", tools.invoked)
	}

	if len(completer.requests) != 2 {
		t.Fatalf("requests = %d", len(completer.requests))
	}
	first := completer.requests[0]
	if first.Model != "local-model" || len(first.Tools) != 1 || first.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("unexpected first request: %#v", first)
	}
	second := completer.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != openai.ChatMessageRoleTool || last.ToolCallID != "call_1" || last.Content != "Sales, Products" {
		t.Fatalf("tool result not sent back: %#v", last)
	}
}

func TestAskStopsAfterMaxToolRounds(t *testing.T) {
	completer := &scriptedCompleter{replies: []openai.ChatCompletionMessage{
		toolCall("a", "excel-list-structure"),
		toolCall("b", "excel-list-structure"),
		toolCall("c", "excel-list-structure"),
	}}
	session := NewSession(completer, "m", &recordingTools{}, WithMaxToolRounds(2), quiet())

	if _, err := session.Ask(context.Background(), "loop"); !errors.Is(err, ErrTooManyToolRounds) {
		t.Fatalf("expected ErrTooManyToolRounds, got %v", err)
	}
}

func TestAskPropagatesCompletionError(t *testing.T) {
	session := NewSession(&scriptedCompleter{}, "m", &recordingTools{}, quiet())
	if _, err := session.Ask(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTranscriptKeepsUserAndAssistantText(t *testing.T) {
	completer := &scriptedCompleter{replies: []openai.ChatCompletionMessage{
		toolCall("call_1", "excel-list-structure"),
		{Role: openai.ChatMessageRoleAssistant, Content: "Two sheets."},
	}}
	session := NewSession(completer, "m", &recordingTools{}, quiet())
	if _, err := session.Ask(context.Background(), "hi"); err != nil {
		t.Fatalf("Ask error: %v", err)
	}

	msgs := session.Transcript()
	if len(msgs) != 2 {
		t.Fatalf("transcript = %#v", msgs)
	}
	if msgs[0].Role != "user" || msgs[0].Texts()[0] != "hi" {
		t.Fatalf("unexpected first message: %#v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Texts()[0] != "Two sheets." {
		t.Fatalf("unexpected second message: %#v", msgs[1])
	}
}
