package printer

import (
	"encoding/json"
	"io"
	"os"

	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/ident"
)

// JSONPrinter writes one JSON object per line
type JSONPrinter struct {
	encoder *json.Encoder
	logger  logger.Logger
	out     io.Writer
}

// NewJSONPrinter creates a JSON printer writing to stdout
func NewJSONPrinter(log logger.Logger) *JSONPrinter {
	p := &JSONPrinter{logger: log}
	p.SetOutput(os.Stdout)
	return p
}

// SetOutput replaces the output target
func (p *JSONPrinter) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	p.out = w
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	p.encoder = encoder
}

type jsonEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data"`
	Total *int        `json:"total,omitempty"`
}

type jsonEnvironment struct {
	*environment.Environment
	Active bool `json:"active"`
}

func (p *JSONPrinter) emit(kind string, data interface{}, total *int) error {
	if err := p.encoder.Encode(jsonEnvelope{Type: kind, Data: data, Total: total}); err != nil {
		if p.logger != nil {
			p.logger.Error("Failed to encode output JSON", "type", kind, "error", err)
		}
		return err
	}
	return nil
}

func (p *JSONPrinter) PrintResult(res *composer.Result) error {
	return p.emit("result", res, nil)
}

func (p *JSONPrinter) PrintPreview(preview *composer.Preview) error {
	return p.emit("preview", preview, nil)
}

func (p *JSONPrinter) PrintHistory(entries []*workspace.HistoryEntry, total int) error {
	if entries == nil {
		entries = []*workspace.HistoryEntry{}
	}
	return p.emit("history", entries, &total)
}

func (p *JSONPrinter) PrintTree(tree collection.Tree) error {
	return p.emit("collections", tree, nil)
}

func (p *JSONPrinter) PrintEnvironments(envs []*environment.Environment, activeID ident.ID) error {
	out := make([]jsonEnvironment, 0, len(envs))
	for _, env := range envs {
		out = append(out, jsonEnvironment{
			Environment: env,
			Active:      !activeID.IsZero() && env.ID == activeID,
		})
	}
	return p.emit("environments", out, nil)
}

func (p *JSONPrinter) PrintSnapshots(snaps []*storage.Snapshot, total int) error {
	if snaps == nil {
		snaps = []*storage.Snapshot{}
	}
	return p.emit("snapshots", snaps, &total)
}

func (p *JSONPrinter) PrintNotice(msg string) error {
	return p.emit("notice", msg, nil)
}
