// Package printer renders command results for the terminal.
package printer

import (
	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/i18n"
	"github.com/funnyzak/reqdeck/pkg/ident"
)

// Printer abstracts the output of CLI commands.
type Printer interface {
	PrintResult(*composer.Result) error
	PrintPreview(*composer.Preview) error
	PrintHistory(entries []*workspace.HistoryEntry, total int) error
	PrintTree(tree collection.Tree) error
	PrintEnvironments(envs []*environment.Environment, activeID ident.ID) error
	PrintSnapshots(snaps []*storage.Snapshot, total int) error
	PrintNotice(msg string) error
}

// New creates the Printer for mode. Anything other than "json" prints to
// the console.
func New(mode string, log logger.Logger, cfg *config.OutputConfig, translator *i18n.Translator) Printer {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	switch mode {
	case "json":
		return NewJSONPrinter(log)
	default:
		return NewConsolePrinter(log, cfg, translator)
	}
}
