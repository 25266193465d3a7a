package main

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqdeck/internal/autosave"
	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/printer"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/transport"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/i18n"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	store    storage.Store
	ws       *workspace.Store
	saver    *autosave.Coordinator
	client   *transport.Client
	composer *composer.Composer
	printer  printer.Printer

	serving bool
	changed atomic.Bool
}

// openApp loads the configuration and restores the persisted workspace.
func openApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath, v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)

	store, err := storage.New(&cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	ws := workspace.New()
	saver := autosave.New(ws, store, cfg.AutoSave, log)
	source, err := saver.Restore()
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Debug("workspace ready", "source", string(source), "requests", ws.Tree().CountRequests())

	translator, err := i18n.NewTranslator("en")
	if err != nil {
		store.Close()
		return nil, err
	}
	p := printer.New(cfg.Output.Mode, log, &cfg.Output, translator)
	if out, ok := p.(interface{ SetOutput(io.Writer) }); ok {
		out.SetOutput(cmd.OutOrStdout())
	}

	client := transport.New(log, transport.OptionsFromConfig(cfg.Transport))
	a := &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		ws:       ws,
		saver:    saver,
		client:   client,
		composer: composer.New(ws, client, log),
		printer:  p,
	}
	ws.OnChange(func(workspace.Change) { a.changed.Store(true) })
	return a, nil
}

// Close flushes the workspace and releases resources. One-shot commands
// that left the workspace untouched skip the exit snapshot; their slots
// are already written through.
func (a *app) Close() error {
	var err error
	if a.serving || a.changed.Load() {
		err = a.saver.Close()
	}
	a.client.Close()
	if closeErr := a.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(cmd *cobra.Command, v *viper.Viper, fn func(a *app) error) error {
	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	runErr := fn(a)
	closeErr := a.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}
