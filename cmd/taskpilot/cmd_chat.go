package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/src/orchestrator"
)

// ChatCmd sends a single message through the orchestrator.
type ChatCmd struct {
	Text         []string `arg:"" help:"The message to send"`
	SessionID    string   `help:"Conversation session to continue"`
	SystemPrompt string   `short:"s" help:"Override the system prompt"`
	Provider     string   `short:"p" help:"Switch to this provider first (cloud, local)"`
	Output       string   `short:"o" help:"Output format (text, json)" default:"text"`
}

func (c *ChatCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := buildApp(cctx, cli, true)
	if err != nil {
		return err
	}
	defer instance.close(cctx)

	if c.Provider != "" {
		if err := instance.manager.SwitchProvider(cctx, c.Provider); err != nil {
			return err
		}
	}

	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	resp, err := instance.manager.ProcessMessage(cctx, &orchestrator.Request{
		SessionID:            sessionID,
		Message:              strings.Join(c.Text, " "),
		SystemPromptOverride: c.SystemPrompt,
	})
	if err != nil {
		return err
	}

	switch c.Output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "text":
		for _, call := range resp.ToolCalls {
			status := "ok"
			if !call.Result.Success {
				status = "failed: " + call.Result.Error
			}
			fmt.Printf("[tool %s] %s\n", call.Name, status)
		}
		fmt.Println(resp.Text)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s", c.Output)
	}
}
