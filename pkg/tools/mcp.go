// Package tools exposes the Excel server's MCP tools as OpenAI function
// tools for the local chat loop.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/mcp"
)

// MCPInvoker is the subset of the MCP client used by the tool wrapper.
type MCPInvoker interface {
	CallTool(ctx context.Context, name string, arguments map[string]any) (mcp.CallResult, error)
}

// MCPLister is the subset of the MCP client used to discover tools.
type MCPLister interface {
	MCPInvoker
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
}

// MCPTool adapts one MCP server tool to an OpenAI function tool.
type MCPTool struct {
	client MCPInvoker
	def    mcp.ToolDefinition
}

// NewMCPTool wraps def so calls are forwarded through client.
func NewMCPTool(client MCPInvoker, def mcp.ToolDefinition) *MCPTool {
	return &MCPTool{client: client, def: def}
}

// Name returns the tool name shared by the server and the model.
func (t *MCPTool) Name() string {
	if t == nil {
		return ""
	}
	return t.def.Name
}

// Definition describes the tool in the shape chat completions expect. A
// missing input schema becomes an empty object schema.
func (t *MCPTool) Definition() openai.Tool {
	params := json.RawMessage(`{"type":"object","properties":{}}`)
	if len(t.def.InputSchema) > 0 && json.Valid(t.def.InputSchema) {
		params = t.def.InputSchema
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        t.def.Name,
			Description: t.def.Description,
			Parameters:  params,
		},
	}
}

// Call decodes the model's JSON arguments and invokes the remote tool. The
// JSON payload of the result is preferred over its text parts.
func (t *MCPTool) Call(ctx context.Context, arguments string) (string, error) {
	if t == nil || t.client == nil {
		return "", errors.New("mcp tool is not initialised")
	}

	var args map[string]any
	if trimmed := strings.TrimSpace(arguments); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return "", fmt.Errorf("decode arguments for %s: %w", t.def.Name, err)
		}
	}

	result, err := t.client.CallTool(ctx, t.def.Name, args)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.PrimaryText()), nil
}

// Toolset is the collection of tools offered to the model.
type Toolset struct {
	tools map[string]*MCPTool
}

// LoadMCPTools lists the server's tools and wraps each of them.
func LoadMCPTools(ctx context.Context, client MCPLister) (*Toolset, error) {
	defs, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	set := &Toolset{tools: make(map[string]*MCPTool, len(defs))}
	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			continue
		}
		set.tools[def.Name] = NewMCPTool(client, def)
	}
	if len(set.tools) == 0 {
		return nil, errors.New("mcp server exposes no tools")
	}
	return set, nil
}

// Names lists the tool names alphabetically.
func (s *Toolset) Names() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the function tool declarations in name order.
func (s *Toolset) Definitions() []openai.Tool {
	defs := make([]openai.Tool, 0, len(s.tools))
	for _, name := range s.Names() {
		defs = append(defs, s.tools[name].Definition())
	}
	return defs
}

// Invoke runs a tool call requested by the model. Failures are returned as
// the tool output so the model can react to them; the error is returned too
// for logging.
func (s *Toolset) Invoke(ctx context.Context, call openai.ToolCall) (string, error) {
	tool, ok := s.tools[call.Function.Name]
	if !ok {
		err := fmt.Errorf("unknown tool %q", call.Function.Name)
		return "Error: " + err.Error(), err
	}
	out, err := tool.Call(ctx, call.Function.Arguments)
	if err != nil {
		return "Error: " + err.Error(), err
	}
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}
