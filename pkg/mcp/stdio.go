package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// WorkbookFlag is the argument the Excel server reads the workbook path from.
const WorkbookFlag = "--workbook"

// exitGrace is how long Close waits for the server to exit on its own after
// stdin is closed before killing it.
const exitGrace = 3 * time.Second

// StdioConfig describes how to spawn an MCP server using the stdio transport.
type StdioConfig struct {
	Command string
	Args    []string
	Dir     string
	Env     []string

	// Stderr receives the server's diagnostic output. Defaults to os.Stderr.
	Stderr io.Writer

	Options Options
}

// WorkbookServer returns the launch configuration for the Excel server
// reading workbookPath.
func WorkbookServer(serverPath, workbookPath string) StdioConfig {
	return StdioConfig{
		Command: serverPath,
		Args:    []string{WorkbookFlag, workbookPath},
	}
}

// NewStdioClient starts the configured command and runs the MCP handshake
// over its stdin/stdout. The returned client owns the process: Close ends
// the session and reaps the server.
func NewStdioClient(ctx context.Context, cfg StdioConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("mcp: stdio command is required")
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", cfg.Command, err)
	}

	// NewClient closes the transport, and with it the process, when the
	// handshake fails.
	return NewClient(ctx, newPipeTransport(stdin, stdout, cmd), cfg.Options)
}

// pipeTransport frames messages with LSP-style Content-Length headers, the
// framing the Excel server reads and writes. When proc is set the transport
// owns that process.
type pipeTransport struct {
	reader *bufio.Reader
	stdin  io.WriteCloser
	stdout io.Closer
	proc   *exec.Cmd

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newPipeTransport(stdin io.WriteCloser, stdout io.ReadCloser, proc *exec.Cmd) *pipeTransport {
	return &pipeTransport{
		reader: bufio.NewReader(stdout),
		stdin:  stdin,
		stdout: stdout,
		proc:   proc,
	}
}

func (t *pipeTransport) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := "Content-Length: " + strconv.Itoa(len(payload)) + "\r\nContent-Type: application/json\r\n\r\n"

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := io.WriteString(t.stdin, header); err != nil {
		return err
	}
	_, err := t.stdin.Write(payload)
	return err
}

// Receive reads one frame. A server that exits leaves its buffered frames
// readable; EOF is reported only after them.
func (t *pipeTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readFrame(t.reader)
}

// Close closes the server's stdin, which ends the session, then reaps the
// process, killing it after exitGrace. Stdout is released last.
func (t *pipeTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.stdin.Close()
		if t.proc != nil {
			reap(t.proc, exitGrace)
		}
		if err := t.stdout.Close(); err != nil && t.closeErr == nil && !errors.Is(err, os.ErrClosed) {
			t.closeErr = err
		}
	})
	return t.closeErr
}

// reap waits for cmd to exit. The exit status is not interesting here: the
// server is being shut down.
func reap(cmd *exec.Cmd, grace time.Duration) {
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		<-done
	}
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	headers := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			// Tolerate blank lines between frames.
			if headers == 0 {
				continue
			}
			break
		}
		headers++
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("mcp: bad Content-Length %q: %w", value, err)
		}
		length = n
	}
	if length < 0 {
		return nil, errors.New("mcp: missing Content-Length header")
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Probe is the outcome of a preflight session against a server.
type Probe struct {
	Server          ServerInfo
	ProtocolVersion string
	Tools           []ToolDefinition
	Resources       []Resource
}

// ToolNames lists the probed tool names in server order.
func (p Probe) ToolNames() []string {
	names := make([]string, 0, len(p.Tools))
	for _, tool := range p.Tools {
		names = append(names, tool.Name)
	}
	return names
}

// ProbeClient performs the preflight queries against an initialised client.
// A server that does not implement resources/list is not an error.
func ProbeClient(ctx context.Context, client *Client) (Probe, error) {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return Probe{}, err
	}
	if len(tools) == 0 {
		return Probe{}, errors.New("mcp: server exposes no tools")
	}

	probe := Probe{
		Server:          client.Server(),
		ProtocolVersion: client.ProtocolVersion(),
		Tools:           tools,
	}

	resources, err := client.ListResources(ctx)
	var rpcErr *RPCError
	switch {
	case errors.As(err, &rpcErr) && rpcErr.Code == -32601:
	case err != nil:
		return Probe{}, err
	default:
		probe.Resources = resources
	}
	return probe, nil
}

// ProbeStdio launches the server described by cfg, collects a Probe and
// shuts the server down again.
func ProbeStdio(ctx context.Context, cfg StdioConfig) (Probe, error) {
	client, err := NewStdioClient(ctx, cfg)
	if err != nil {
		return Probe{}, err
	}
	defer client.Close()

	probe, err := ProbeClient(ctx, client)
	if err != nil {
		return Probe{}, err
	}
	_ = client.Shutdown(ctx)
	return probe, nil
}
