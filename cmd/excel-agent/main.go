// Command excel-agent asks an agent about an Excel workbook. The agent gets
// the Excel MCP server as a stdio tool, the question is posted to a fresh
// thread and the transcript is printed once the run finishes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/agentapi"
	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/chat"
	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/config"
	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/conversation"
	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/mcp"
	"github.com/Protocol-Lattice/excel-mcp-agent/pkg/tools"
)

// newService builds the remote agent service. Tests replace it.
var newService = func(cfg *config.Config) agentapi.Service {
	return agentapi.NewOpenAIService(agentapi.ClientConfig{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		Organization: cfg.OpenAI.Organization,
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code. Errors are
// written to stderr prefixed with "Error:".
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := execute(ctx, args, stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("excel-agent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", "agent", "agent: remote agent run; chat: local chat-completions loop")
	prompt := fs.String("prompt", cfg.Prompt, "question to ask about the workbook")
	preflight := fs.Bool("preflight", false, "launch the MCP server locally and list its tools before starting")
	timeout := fs.Duration("timeout", cfg.RunTimeout, "give up polling the run after this long (0 waits indefinitely)")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := cfg.LogLevel
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	serverPath, err := config.ResolveServerPath()
	if err != nil {
		return err
	}
	workbookPath, err := config.ResolveWorkbookPath()
	if err != nil {
		return err
	}
	logger.Debug("inputs resolved", "server", serverPath, "workbook", workbookPath)

	if *preflight {
		probe, err := mcp.ProbeStdio(ctx, mcp.WorkbookServer(serverPath, workbookPath))
		if err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		logger.Info("preflight ok",
			"server", probe.Server.Name,
			"protocol", probe.ProtocolVersion,
			"tools", strings.Join(probe.ToolNames(), ","),
			"resources", len(probe.Resources))
	}

	switch *mode {
	case "agent":
		return runAgent(ctx, cfg, logger, stdout, serverPath, workbookPath, *prompt, *timeout)
	case "chat":
		return runChat(ctx, cfg, logger, stdout, serverPath, workbookPath, *prompt)
	default:
		return fmt.Errorf("unknown mode %q (want agent or chat)", *mode)
	}
}

// runAgent prints the transcript of every run that reached a terminal
// status before returning its error.
func runAgent(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer, serverPath, workbookPath, prompt string, timeout time.Duration) error {
	svc := newService(cfg)

	agent, err := conversation.Bootstrap(ctx, svc, cfg.Model, serverPath, workbookPath)
	if err != nil {
		return err
	}
	logger.Info("agent created", "agent", agent.ID, "model", agent.Model)

	driver := conversation.NewDriver(svc)
	driver.PollInterval = cfg.PollInterval
	driver.Timeout = timeout
	driver.Logger = logger

	res, err := driver.Run(ctx, agent.ID, prompt)
	if res.Messages != nil {
		if printErr := conversation.PrintTranscript(stdout, res.Messages); printErr != nil && err == nil {
			err = printErr
		}
	}
	return err
}

func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer, serverPath, workbookPath, prompt string) error {
	client, err := mcp.NewStdioClient(ctx, mcp.WorkbookServer(serverPath, workbookPath))
	if err != nil {
		return err
	}
	defer client.Close()

	toolset, err := tools.LoadMCPTools(ctx, client)
	if err != nil {
		return err
	}
	logger.Info("workbook tools loaded", "tools", strings.Join(toolset.Names(), ","))

	session := chat.NewSession(
		chat.NewClient(cfg.Chat.BaseURL, cfg.Chat.APIKey),
		cfg.Chat.Model,
		toolset,
		chat.WithLogger(logger),
	)
	_, err = session.Ask(ctx, prompt)
	if printErr := conversation.PrintTranscript(stdout, session.Transcript()); printErr != nil && err == nil {
		err = printErr
	}
	return err
}
