package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// newRootCmd builds the command tree. Every tree owns its viper instance so
// flag bindings never leak between invocations.
func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "reqdeck",
		Short: "Compose, send and organize HTTP requests from the terminal",
		Long: `ReqDeck keeps a persistent workspace of HTTP request collections, environments and history.

Requests can be sent from the command line or through the local HTTP API started by "reqdeck serve".
`,
		SilenceUsage: true,
	}

	// Add global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.StringP("log-level", "l", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
	flags.Bool("log-file-enable", false, "Enable file logging")
	flags.String("log-file-path", "", "Log file path")
	flags.StringP("output", "o", "", "Output mode (console, json)")
	flags.String("locale", "", "Console output locale (en, zh-CN)")
	flags.Bool("silence", false, "Print only the status line of responses")
	flags.String("storage-driver", "", "Storage driver (sqlite, memory)")
	flags.String("storage-path", "", "SQLite database path")
	flags.Bool("autosave", true, "Enable workspace auto-save")

	v.BindPFlag("log.level", flags.Lookup("log-level"))
	v.BindPFlag("log.file_logging.enable", flags.Lookup("log-file-enable"))
	v.BindPFlag("log.file_logging.path", flags.Lookup("log-file-path"))
	v.BindPFlag("output.mode", flags.Lookup("output"))
	v.BindPFlag("output.locale", flags.Lookup("locale"))
	v.BindPFlag("output.silence", flags.Lookup("silence"))
	v.BindPFlag("storage.driver", flags.Lookup("storage-driver"))
	v.BindPFlag("storage.path", flags.Lookup("storage-path"))
	v.BindPFlag("autosave.enabled", flags.Lookup("autosave"))

	rootCmd.AddCommand(
		newServeCmd(v),
		newSendCmd(v),
		newCollectionsCmd(v),
		newImportCmd(v),
		newExportCmd(v),
		newEnvCmd(v),
		newHistoryCmd(v),
		newSnapshotsCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ReqDeck version %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", buildDate)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
