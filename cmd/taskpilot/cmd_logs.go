package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/taskpilot/taskpilot/src/auditlog"
)

// LogsCmd groups interaction log operations.
type LogsCmd struct {
	List    LogsListCmd    `cmd:"" help:"List recent interaction logs"`
	Export  LogsExportCmd  `cmd:"" help:"Export logs to json or csv"`
	Cleanup LogsCleanupCmd `cmd:"" help:"Apply the retention policy"`
	Stats   LogsStatsCmd   `cmd:"" help:"Show storage statistics"`
	Redact  LogsRedactCmd  `cmd:"" help:"Scrub secrets from one log"`
	Clear   LogsClearCmd   `cmd:"" help:"Delete all interaction logs"`
}

func openAudit(ctx context.Context, cli *CLI) (*app, error) {
	return buildApp(ctx, cli, false)
}

// LogsListCmd lists recent logs.
type LogsListCmd struct {
	Session   string `help:"Filter by session ID"`
	ModelType string `help:"Filter by model type (cloud, local)"`
	Errors    bool   `help:"Only logs with errors"`
	Search    string `help:"Free-text search over messages"`
	Limit     int    `help:"Maximum rows" default:"20"`
}

func (c *LogsListCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := openAudit(cctx, cli)
	if err != nil {
		return err
	}
	defer instance.close(cctx)

	filter := auditlog.Filter{
		SessionID: c.Session,
		ModelType: c.ModelType,
		Search:    c.Search,
		Limit:     c.Limit,
	}
	if c.Errors {
		hasErrors := true
		filter.HasErrors = &hasErrors
	}

	logs, err := instance.audit.QueryInteractionLogs(cctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSESSION\tMODEL\tTOOLS\tERROR\tMESSAGE")
	for _, log := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			log.ID[:8],
			log.CreatedAt.Format(time.RFC3339),
			log.SessionID,
			log.ModelType,
			len(log.ToolExecutions),
			log.ErrorCode,
			truncate(log.UserMessage, 48))
	}
	return w.Flush()
}

// LogsExportCmd exports matching logs.
type LogsExportCmd struct {
	Format string `help:"Export format (json, csv)" default:"json"`
	Out    string `short:"o" help:"Write to file instead of stdout" type:"path"`
}

func (c *LogsExportCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := openAudit(cctx, cli)
	if err != nil {
		return err
	}
	defer instance.close(cctx)

	payload, err := instance.audit.ExportLogs(cctx, auditlog.Filter{}, c.Format)
	if err != nil {
		return err
	}
	if c.Out == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	return os.WriteFile(c.Out, payload, 0o600)
}

// LogsCleanupCmd applies retention.
type LogsCleanupCmd struct{}

func (c *LogsCleanupCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := openAudit(cctx, cli)
	if err != nil {
		return err
	}
	defer instance.close(cctx)

	removed, err := instance.audit.CleanupOldLogs(cctx)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d logs\n", removed)
	return nil
}

// LogsStatsCmd prints storage statistics.
type LogsStatsCmd struct{}

func (c *LogsStatsCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := openAudit(cctx, cli)
	if err != nil {
		return err
	}
	defer instance.close(cctx)

	stats, err := instance.audit.StorageStats(cctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// LogsRedactCmd scrubs one log.
type LogsRedactCmd struct {
	ID string `arg:"" help:"Interaction log ID"`
}

func (c *LogsRedactCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := openAudit(cctx, cli)
	if err != nil {
		return err
	}
	defer instance.close(cctx)
	return instance.audit.RedactSensitiveData(cctx, c.ID)
}

// LogsClearCmd deletes everything.
type LogsClearCmd struct {
	Yes bool `help:"Confirm deletion" required:""`
}

func (c *LogsClearCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := openAudit(cctx, cli)
	if err != nil {
		return err
	}
	defer instance.close(cctx)
	return instance.audit.ClearAllLogs(cctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
