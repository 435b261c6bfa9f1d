package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/alecthomas/kong"
)

// StatusCmd shows every registered provider's state.
type StatusCmd struct {
	Format string `help:"Output format (table, json)" default:"table"`
}

func (c *StatusCmd) Run(ctx *kong.Context, cli *CLI) error {
	cctx := context.Background()
	instance, err := buildApp(cctx, cli, false)
	if err != nil {
		return err
	}
	defer instance.close(cctx)

	status := instance.manager.Status()

	switch c.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "table":
		names := make([]string, 0, len(status.Providers))
		for name := range status.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tSTATE\tMODEL\tACTIVE\tDETAIL")
		for _, name := range names {
			ps := status.Providers[name]
			active := ""
			if name == status.Active {
				active = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, ps.State, ps.Model, active, ps.Message)
		}
		return w.Flush()
	default:
		return fmt.Errorf("invalid format: %s", c.Format)
	}
}
