package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqdeck/pkg/collection"
)

func newCollectionsCmd(v *viper.Viper) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"ls"},
		Short:   "Show the collection tree",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				if search == "" {
					return a.printer.PrintTree(a.ws.Tree())
				}
				matches := a.ws.FilterCollections(search)
				tree := make(collection.Tree, 0, len(matches))
				for _, item := range matches {
					tree = append(tree, item)
				}
				return a.printer.PrintTree(tree)
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show requests whose name or URL contains this text")
	return cmd
}

func newImportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a collection or workspace document (JSON or YAML, '-' for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, v, func(a *app) error {
				res, err := a.ws.Import(data)
				if err != nil {
					a.log.Warn("Import rejected", "file", args[0], "error", err)
					return fmt.Errorf("import %s: %w", args[0], err)
				}
				a.log.Info("Import applied", "kind", string(res.Kind), "requests", res.Requests)
				return a.printer.PrintNotice(fmt.Sprintf("Imported %s with %d request(s)", res.Kind, res.Requests))
			})
		},
	}
}

func newExportCmd(v *viper.Viper) *cobra.Command {
	var wholeWorkspace bool
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the collection tree ('-' for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				now := time.Now()
				var doc interface{}
				target := collection.ExportFileName(now)
				if wholeWorkspace {
					doc = a.ws.Export()
					target = fmt.Sprintf("reqdeck-workspace-%d.json", now.UnixMilli())
				} else {
					doc = collection.SerializeAt(a.ws.Tree(), now)
				}
				if len(args) == 1 {
					target = args[0]
				}

				data, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return fmt.Errorf("encode export: %w", err)
				}
				data = append(data, '\n')
				if target == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(target, data, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				return a.printer.PrintNotice(fmt.Sprintf("Exported %d request(s) to %s", a.ws.Tree().CountRequests(), target))
			})
		},
	}
	cmd.Flags().BoolVar(&wholeWorkspace, "workspace", false, "Export the whole workspace (collections, environments, history)")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
