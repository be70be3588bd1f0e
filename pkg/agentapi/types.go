// Package agentapi models the remote agent service: agents carrying stdio
// MCP tools, threads, messages and asynchronous runs.
package agentapi

// Tool and transport kinds understood by the agent service.
const (
	ToolTypeMCPServer  = "mcp_server"
	TransportTypeStdio = "stdio"
)

// Transport describes how the service launches a tool server.
type Transport struct {
	Type    string   `json:"type"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// MCPServer names a tool server and its transport.
type MCPServer struct {
	Name      string    `json:"name"`
	Transport Transport `json:"transport"`
}

// ToolDescriptor is a tool attached to an agent.
type ToolDescriptor struct {
	Type   string     `json:"type"`
	Server *MCPServer `json:"server,omitempty"`
}

// StdioTool returns a descriptor for a subprocess tool server speaking MCP
// over stdin/stdout.
func StdioTool(name, command string, args ...string) ToolDescriptor {
	return ToolDescriptor{
		Type: ToolTypeMCPServer,
		Server: &MCPServer{
			Name: name,
			Transport: Transport{
				Type:    TransportTypeStdio,
				Command: command,
				Args:    args,
			},
		},
	}
}

// AgentRequest is the body of an agent creation call.
type AgentRequest struct {
	Name         string           `json:"name"`
	Model        string           `json:"model"`
	Instructions string           `json:"instructions,omitempty"`
	Tools        []ToolDescriptor `json:"tools"`
}

// Agent is a created agent.
type Agent struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Model        string           `json:"model"`
	Instructions string           `json:"instructions,omitempty"`
	Tools        []ToolDescriptor `json:"tools"`
	CreatedAt    int64            `json:"created_at,omitempty"`
}

// Thread is an append-only conversation log.
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ContentTypeText marks a text content part.
const ContentTypeText = "text"

// TextContent is the payload of a text content part.
type TextContent struct {
	Value string `json:"value"`
}

// ContentPart is one element of a message's content.
type ContentPart struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

// TextPart builds a text content part.
func TextPart(value string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: &TextContent{Value: value}}
}

// MessageRequest is the body of a message creation call.
type MessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message belongs to exactly one thread.
type Message struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	Role      string        `json:"role"`
	CreatedAt int64         `json:"created_at,omitempty"`
	Content   []ContentPart `json:"content"`
}

// Texts returns the values of the message's text parts in order. Other part
// types are skipped.
func (m Message) Texts() []string {
	var out []string
	for _, part := range m.Content {
		if part.Type != ContentTypeText || part.Text == nil {
			continue
		}
		out = append(out, part.Text.Value)
	}
	return out
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// Pending reports whether the run may still change state and should be
// polled again. Every other value, known or not, is terminal.
func (s RunStatus) Pending() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction:
		return true
	default:
		return false
	}
}

// RunError is the service's description of why a run stopped.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run is one asynchronous execution of an agent against a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	AgentID   string    `json:"agent_id"`
	Status    RunStatus `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
	CreatedAt int64     `json:"created_at,omitempty"`
}

// Order selects the sort order of a message listing.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)
