package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/v2"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *OpenAIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIService(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
		PageLimit:  2,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateAgentSendsStdioTool(t *testing.T) {
	var got AgentRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/agents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if beta := r.Header.Get(betaHeader); beta != betaHeaderValue {
			t.Errorf("beta header = %q", beta)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeJSON(w, map[string]any{"id": "agent_1", "name": got.Name, "model": got.Model})
	})

	req := AgentRequest{
		Name:  "Excel Workbook Assistant",
		Model: "gpt-4.1-mini",
		Tools: []ToolDescriptor{StdioTool("excel-workbook-mcp", "/opt/excel/server", "--workbook", "/data/book.xlsx")},
	}
	agent, err := svc.CreateAgent(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateAgent error: %v", err)
	}
	if agent.ID != "agent_1" {
		t.Fatalf("agent id = %q", agent.ID)
	}
	if len(got.Tools) != 1 || got.Tools[0].Type != ToolTypeMCPServer || got.Tools[0].Server == nil {
		t.Fatalf("unexpected tools payload: %#v", got.Tools)
	}
	tr := got.Tools[0].Server.Transport
	if tr.Type != TransportTypeStdio || tr.Command != "/opt/excel/server" {
		t.Fatalf("unexpected transport: %#v", tr)
	}
	if len(tr.Args) != 2 || tr.Args[0] != "--workbook" || tr.Args[1] != "/data/book.xlsx" {
		t.Fatalf("unexpected args: %#v", tr.Args)
	}
}

func TestThreadMessageAndRunRequests(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads":
			writeJSON(w, map[string]any{"id": "thread_1"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/messages":
			var req MessageRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Role != RoleUser || req.Content != "hi" {
				t.Errorf("unexpected message request: %#v", req)
			}
			writeJSON(w, map[string]any{"id": "msg_1", "thread_id": "thread_1", "role": req.Role})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/threads/thread_1/runs":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["agent_id"] != "agent_1" {
				t.Errorf("agent_id = %q", body["agent_id"])
			}
			writeJSON(w, map[string]any{"id": "run_1", "thread_id": "thread_1", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/threads/thread_1/runs/run_1":
			writeJSON(w, map[string]any{"id": "run_1", "thread_id": "thread_1", "status": "completed"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	thread, err := svc.CreateThread(ctx)
	if err != nil || thread.ID != "thread_1" {
		t.Fatalf("CreateThread = %#v, %v", thread, err)
	}
	if _, err := svc.CreateMessage(ctx, thread.ID, MessageRequest{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("CreateMessage error: %v", err)
	}
	run, err := svc.CreateRun(ctx, thread.ID, "agent_1")
	if err != nil || run.Status != RunStatusQueued {
		t.Fatalf("CreateRun = %#v, %v", run, err)
	}
	run, err = svc.RetrieveRun(ctx, thread.ID, run.ID)
	if err != nil || run.Status != RunStatusCompleted {
		t.Fatalf("RetrieveRun = %#v, %v", run, err)
	}
}

func TestListMessagesFollowsPages(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("order") != "asc" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		switch q.Get("after") {
		case "":
			writeJSON(w, map[string]any{
				"data": []Message{
					{ID: "m1", Role: RoleUser, Content: []ContentPart{TextPart("hi")}},
					{ID: "m2", Role: RoleAssistant, Content: []ContentPart{TextPart("hello")}},
				},
				"last_id":  "m2",
				"has_more": true,
			})
		case "m2":
			writeJSON(w, map[string]any{
				"data":     []Message{{ID: "m3", Role: RoleAssistant, Content: []ContentPart{TextPart("done")}}},
				"last_id":  "m3",
				"has_more": false,
			})
		default:
			t.Errorf("unexpected cursor %q", q.Get("after"))
		}
	})

	msgs, err := svc.ListMessages(context.Background(), "thread_1", OrderAsc)
	if err != nil {
		t.Fatalf("ListMessages error: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != "m1" || msgs[2].ID != "m3" {
		t.Fatalf("unexpected messages: %#v", msgs)
	}
}

func TestServiceErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
	})

	_, err := svc.CreateAgent(context.Background(), AgentRequest{Name: "x", Model: "bogus"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected API error with status 500, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("requests = %d, want 1", n)
	}
}

func TestRunStatusPending(t *testing.T) {
	pending := []RunStatus{RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction}
	for _, s := range pending {
		if !s.Pending() {
			t.Errorf("%s should be pending", s)
		}
	}
	terminal := []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusCancelling, RunStatusExpired, RunStatusIncomplete, "mystery"}
	for _, s := range terminal {
		if s.Pending() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestMessageTextsSkipsOtherParts(t *testing.T) {
	msg := Message{Content: []ContentPart{
		TextPart("first"),
		{Type: "image_file"},
		TextPart("second"),
	}}
	got := msg.Texts()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("Texts() = %#v", got)
	}
}
