package agentapi

import "context"

// Service is the subset of the remote agent API the conversation driver
// uses. Implementations must not retry on their own; every error is returned
// to the caller as is.
type Service interface {
	CreateAgent(ctx context.Context, req AgentRequest) (Agent, error)
	CreateThread(ctx context.Context) (Thread, error)
	CreateMessage(ctx context.Context, threadID string, req MessageRequest) (Message, error)
	CreateRun(ctx context.Context, threadID, agentID string) (Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)
	// ListMessages returns every message of the thread in the given order.
	ListMessages(ctx context.Context, threadID string, order Order) ([]Message, error)
}
