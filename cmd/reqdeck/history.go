package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqdeck/internal/workspace"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	query := workspace.HistoryQuery{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List sent requests, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				entries, total := a.ws.FilterHistory(query)
				return a.printer.PrintHistory(entries, total)
			})
		},
	}
	cmd.Flags().StringVarP(&query.Search, "search", "s", "", "Only show entries whose URL or method contains this text")
	cmd.Flags().StringVarP(&query.Method, "method", "X", "", "Only show entries with this method")
	cmd.Flags().IntVarP(&query.Limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().IntVar(&query.Offset, "offset", 0, "Entries to skip")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				a.ws.ClearHistory()
				return a.printer.PrintNotice("History cleared")
			})
		},
	})
	cmd.AddCommand(newHistoryExportCmd(v))
	return cmd
}

func newHistoryExportCmd(v *viper.Viper) *cobra.Command {
	var format string
	query := workspace.HistoryQuery{}
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export history as json, csv or txt ('-' for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				entries, _ := a.ws.FilterHistory(query)
				var buf bytes.Buffer
				_, ext, err := workspace.ExportHistory(&buf, entries, format)
				if err != nil {
					return err
				}

				target := workspace.HistoryExportName(time.Now(), ext)
				if len(args) == 1 {
					target = args[0]
				}
				if target == "-" {
					_, err := cmd.OutOrStdout().Write(buf.Bytes())
					return err
				}
				if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				return a.printer.PrintNotice(fmt.Sprintf("Exported %d history entries to %s", len(entries), target))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format (json, csv, txt)")
	cmd.Flags().StringVarP(&query.Search, "search", "s", "", "Only export entries whose URL or method contains this text")
	cmd.Flags().StringVarP(&query.Method, "method", "X", "", "Only export entries with this method")
	return cmd
}
