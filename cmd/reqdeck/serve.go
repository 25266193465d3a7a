package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with auto-save until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}

	cmd.Flags().String("host", "", "Listen host")
	cmd.Flags().IntP("port", "p", 0, "Listen port")
	cmd.Flags().String("api-path", "", "URL path prefix of the API")
	cmd.Flags().Bool("websocket", true, "Enable the websocket change feed")
	cmd.Flags().Int64("max-body-bytes", 0, "Maximum accepted request body size")
	cmd.Flags().String("auth-token", "", "Require this API token ('auto' generates one)")

	v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	v.BindPFlag("server.api_path", cmd.Flags().Lookup("api-path"))
	v.BindPFlag("server.websocket", cmd.Flags().Lookup("websocket"))
	v.BindPFlag("server.max_body_bytes", cmd.Flags().Lookup("max-body-bytes"))
	v.BindPFlag("server.auth_token", cmd.Flags().Lookup("auth-token"))
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	a.serving = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(&a.cfg.Server, a.ws, a.composer, a.saver, a.log)
	printStartupBanner(cmd.ErrOrStderr(), a.cfg, srv.Token(), a.log)

	a.saver.Start()
	runErr := srv.Run(ctx)

	// The exit save runs before storage is released.
	closeErr := a.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func printStartupBanner(w io.Writer, cfg *config.Config, token string, log logger.Logger) {
	titleLine := fmt.Sprintf("ReqDeck v%s", version)
	subtitleLine := "HTTP Request Workspace"

	var lines []string
	lines = append(lines, fmt.Sprintf("🚀 API:            http://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.APIPath))
	if cfg.Server.WebSocket {
		lines = append(lines, fmt.Sprintf("🔌 Change Feed:    ws://%s:%d%s/ws", cfg.Server.Host, cfg.Server.Port, strings.TrimRight(cfg.Server.APIPath, "/")))
	} else {
		lines = append(lines, "🔌 Change Feed:    Disabled")
	}
	if token != "" {
		lines = append(lines, fmt.Sprintf("🔒 API Token:      %s", token))
	} else {
		lines = append(lines, "🔒 API Token:      Disabled")
	}
	lines = append(lines, fmt.Sprintf("📊 Log Level:      %s", cfg.Log.Level))

	lines = append(lines, "")
	storageLine := fmt.Sprintf("💾 Storage:        %s", cfg.Storage.Driver)
	if cfg.Storage.Driver != "memory" {
		storageLine += fmt.Sprintf(" (%s)", cfg.Storage.Path)
	}
	lines = append(lines, storageLine)
	lines = append(lines, fmt.Sprintf("   └─ Revisions:   keep %d", cfg.Storage.MaxSnapshots))
	if cfg.AutoSave.Enabled {
		lines = append(lines, fmt.Sprintf("   └─ Auto-save:   debounce %s, every %s", cfg.AutoSave.Debounce, cfg.AutoSave.Interval))
	} else {
		lines = append(lines, "   └─ Auto-save:   Disabled")
	}
	if cfg.Log.FileLogging.Enable {
		lines = append(lines, fmt.Sprintf("📝 File Logging:   %s", cfg.Log.FileLogging.Path))
	}

	lines = append(lines, "", "(Press Ctrl+C to stop)")

	maxLength := runewidth.StringWidth(titleLine)
	for _, line := range lines {
		if width := runewidth.StringWidth(line); width > maxLength {
			maxLength = width
		}
	}
	boxWidth := maxLength + 4
	if boxWidth < 50 {
		boxWidth = 50
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
	printBoxContent(w, titleLine, boxWidth, true)
	printBoxContent(w, subtitleLine, boxWidth, true)
	fmt.Fprintf(w, "├%s┤\n", strings.Repeat("─", boxWidth-2))
	for _, line := range lines {
		printBoxContent(w, line, boxWidth, false)
	}
	fmt.Fprintf(w, "└%s┘\n", strings.Repeat("─", boxWidth-2))
	fmt.Fprintln(w)

	log.Info("ReqDeck starting",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"api_path", cfg.Server.APIPath,
		"websocket", cfg.Server.WebSocket,
		"storage", cfg.Storage.Driver,
		"autosave", cfg.AutoSave.Enabled,
		"auth", token != "",
	)
}

// printBoxContent prints one line of the banner box, centered or indented
func printBoxContent(w io.Writer, content string, boxWidth int, center bool) {
	padding := boxWidth - 2 - runewidth.StringWidth(content)
	if padding < 0 {
		padding = 0
	}

	var leftPad, rightPad string
	if center {
		leftPad = strings.Repeat(" ", padding/2)
		rightPad = strings.Repeat(" ", padding-padding/2)
	} else {
		leftPad = "  "
		rightPad = strings.Repeat(" ", max(padding-2, 0))
	}
	fmt.Fprintf(w, "│%s%s%s│\n", leftPad, content, rightPad)
}
