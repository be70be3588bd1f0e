package agentapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const (
	betaHeader       = "OpenAI-Beta"
	betaHeaderValue  = "assistants=v2"
	defaultPageLimit = 100
)

// ClientConfig holds the connection settings of the OpenAI backed service.
// Empty fields fall back to the SDK defaults, which read OPENAI_API_KEY,
// OPENAI_BASE_URL and OPENAI_ORG_ID from the environment.
type ClientConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	// PageLimit bounds the size of each message listing page.
	PageLimit int
}

// OpenAIService implements Service on top of the OpenAI SDK's transport:
// authentication, base URL and JSON handling come from the SDK, the agent
// resources are addressed through its generic request methods.
type OpenAIService struct {
	client    openai.Client
	pageLimit int
}

var _ Service = (*OpenAIService)(nil)

// NewOpenAIService builds a service from cfg. SDK retries are disabled.
func NewOpenAIService(cfg ClientConfig) *OpenAIService {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHeader(betaHeader, betaHeaderValue),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	limit := cfg.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return &OpenAIService{client: openai.NewClient(opts...), pageLimit: limit}
}

// CreateAgent registers a new agent.
func (s *OpenAIService) CreateAgent(ctx context.Context, req AgentRequest) (Agent, error) {
	var agent Agent
	if err := s.client.Post(ctx, "agents", req, &agent); err != nil {
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return agent, nil
}

// CreateThread opens an empty thread.
func (s *OpenAIService) CreateThread(ctx context.Context) (Thread, error) {
	var thread Thread
	if err := s.client.Post(ctx, "threads", map[string]any{}, &thread); err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// CreateMessage appends a message to threadID.
func (s *OpenAIService) CreateMessage(ctx context.Context, threadID string, req MessageRequest) (Message, error) {
	var msg Message
	if err := s.client.Post(ctx, threadPath(threadID, "messages"), req, &msg); err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// CreateRun starts agentID on threadID.
func (s *OpenAIService) CreateRun(ctx context.Context, threadID, agentID string) (Run, error) {
	body := map[string]string{"agent_id": agentID}
	var run Run
	if err := s.client.Post(ctx, threadPath(threadID, "runs"), body, &run); err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// RetrieveRun fetches the current state of a run.
func (s *OpenAIService) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	var run Run
	if err := s.client.Get(ctx, threadPath(threadID, "runs", runID), nil, &run); err != nil {
		return Run{}, fmt.Errorf("retrieve run %s: %w", runID, err)
	}
	return run, nil
}

type messagePage struct {
	Data    []Message `json:"data"`
	LastID  string    `json:"last_id"`
	HasMore bool      `json:"has_more"`
}

// ListMessages walks the thread's message pages until has_more is false.
func (s *OpenAIService) ListMessages(ctx context.Context, threadID string, order Order) ([]Message, error) {
	if order == "" {
		order = OrderAsc
	}

	var (
		messages []Message
		after    string
	)
	for {
		query := url.Values{}
		query.Set("order", string(order))
		query.Set("limit", strconv.Itoa(s.pageLimit))
		if after != "" {
			query.Set("after", after)
		}

		var page messagePage
		path := threadPath(threadID, "messages") + "?" + query.Encode()
		if err := s.client.Get(ctx, path, nil, &page); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		messages = append(messages, page.Data...)

		if !page.HasMore || len(page.Data) == 0 {
			return messages, nil
		}
		after = page.LastID
		if after == "" {
			after = page.Data[len(page.Data)-1].ID
		}
	}
}

func threadPath(threadID string, segments ...string) string {
	parts := []string{"threads", url.PathEscape(threadID)}
	for _, seg := range segments {
		parts = append(parts, url.PathEscape(seg))
	}
	return strings.Join(parts, "/")
}
