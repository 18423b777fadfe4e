// Package state implements commands for inspecting and resetting the
// persisted crawl rotation cursor.
package state

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/arbminer/arbminer/cmd/common"
)

// Command returns the state command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the crawl rotation state",
	}
	cmd.AddCommand(showCommand(), resetCommand())
	return cmd
}

func showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the persisted rotation cursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.Build(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			st, err := deps.StateStore().Load()
			if err != nil {
				return fmt.Errorf("failed to load state: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Field", "Value"})
			t.AppendRows([]table.Row{
				{"state file", deps.Cfg.Crawler.StateFile},
				{"last task index", st.LastTaskIndex},
				{"total tasks", st.TotalTasks},
				{"last run at", formatTime(st.LastRunAt)},
				{"last stop reason", formatReason(st.LastStopReason)},
			})
			t.Render()
			return nil
		},
	}
}

func resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restart the rotation from the first task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.Build(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			if err := deps.StateStore().Reset(); err != nil {
				return fmt.Errorf("failed to reset state: %w", err)
			}
			fmt.Fprintf(os.Stdout, "Rotation state reset (%s)\n", deps.Cfg.Crawler.StateFile)
			return nil
		},
	}
}

func formatTime(ts *time.Time) string {
	if ts == nil {
		return "never"
	}
	return ts.Format(time.RFC3339)
}

func formatReason(reason *string) string {
	if reason == nil {
		return "-"
	}
	return *reason
}
