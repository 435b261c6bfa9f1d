package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI is the top-level command structure.
type CLI struct {
	Config   string `short:"c" help:"Path to config file" type:"path"`
	APIKey   string `env:"TASKPILOT_API_KEY" help:"Cloud provider API key"`
	LogLevel string `default:"warn" help:"Log level (debug, info, warn, error)"`

	Chat   ChatCmd   `cmd:"" help:"Send a message through the assistant"`
	Status StatusCmd `cmd:"" help:"Show provider pool status"`
	Logs   LogsCmd   `cmd:"" help:"Inspect and manage interaction logs"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("taskpilot"),
		kong.Description("AI assistant for task management and time tracking"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
