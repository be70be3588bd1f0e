// Package conversation drives one agent run against the Excel workbook
// server: it registers the agent, posts the question, waits for the run to
// finish and renders the resulting thread.
package conversation

import (
	"context"

	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/agentapi"
	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/mcp"
)

const (
	AgentName  = "Excel Workbook Assistant"
	ServerName = "excel-workbook-mcp"

	Instructions = "You may call the Excel MCP tools to explore the workbook. " +
		"Summarize worksheets, run searches, or preview tables when helpful."
)

// NewAgentRequest describes the workbook assistant with its single stdio
// tool server.
func NewAgentRequest(model, serverPath, workbookPath string) agentapi.AgentRequest {
	return agentapi.AgentRequest{
		Name:         AgentName,
		Model:        model,
		Instructions: Instructions,
		Tools: []agentapi.ToolDescriptor{
			agentapi.StdioTool(ServerName, serverPath, mcp.WorkbookFlag, workbookPath),
		},
	}
}

// Bootstrap registers the workbook assistant with the service. Service
// errors are returned as is; the agent is not validated locally.
func Bootstrap(ctx context.Context, svc agentapi.Service, model, serverPath, workbookPath string) (agentapi.Agent, error) {
	return svc.CreateAgent(ctx, NewAgentRequest(model, serverPath, workbookPath))
}
