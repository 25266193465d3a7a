package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqdeck/internal/autosave"
	"github.com/funnyzak/reqdeck/internal/storage"
)

func newSnapshotsCmd(v *viper.Viper) *cobra.Command {
	opts := storage.ListOptions{}
	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"revisions"},
		Short:   "List saved workspace revisions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				snaps, total, err := a.saver.Revisions(opts)
				if err != nil {
					return err
				}
				return a.printer.PrintSnapshots(snaps, total)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of revisions")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Revisions to skip")

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <id>",
		Short: "Replace the workspace with a saved revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				if err := a.saver.RestoreRevision(args[0]); err != nil {
					return err
				}
				a.log.Info("Workspace restored", "revision", args[0])
				return a.printer.PrintNotice(fmt.Sprintf("Restored revision %s", args[0]))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Record a revision of the current workspace now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(a *app) error {
				if err := a.saver.Save(autosave.ReasonManual); err != nil {
					return err
				}
				return a.printer.PrintNotice("Workspace saved")
			})
		},
	})
	return cmd
}
