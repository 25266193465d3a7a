package workspace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/ident"
)

const (
	// DocumentVersion is the schema version written into snapshots.
	DocumentVersion = "1.0"
	// DocumentType tags auto-saved workspace snapshots.
	DocumentType = "auto-workspace"
	// ExportType tags workspace documents exported on request.
	ExportType = "workspace"

	appName = "reqdeck"
)

// Document is the persisted form of a whole workspace.
type Document struct {
	Version           string                     `json:"version"`
	Type              string                     `json:"type"`
	Info              DocumentInfo               `json:"info"`
	Collections       collection.Tree            `json:"collections"`
	Environments      []*environment.Environment `json:"environments"`
	History           []*HistoryEntry            `json:"history"`
	ActiveEnvironment ident.ID                   `json:"activeEnvironment,omitempty"`
	Settings          Settings                   `json:"settings"`
}

// DocumentInfo describes when and by what a document was written.
type DocumentInfo struct {
	Name    string    `json:"name"`
	SavedAt time.Time `json:"savedAt"`
	App     string    `json:"app"`
}

// Settings holds persisted user preferences.
type Settings struct {
	AutoSave bool `json:"autoSave"`
}

// Snapshot captures the current workspace as an auto-save document.
func (s *Store) Snapshot() *Document {
	return s.document(DocumentType, "Auto-saved workspace")
}

// Export captures the current workspace as a user export document.
func (s *Store) Export() *Document {
	return s.document(ExportType, "reqdeck workspace")
}

func (s *Store) document(kind, name string) *Document {
	now := s.now().UTC()
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := &Document{
		Version: DocumentVersion,
		Type:    kind,
		Info: DocumentInfo{
			Name:    name,
			SavedAt: now,
			App:     appName,
		},
		Collections:  s.tree.Clone(),
		Environments: make([]*environment.Environment, 0, len(s.environments)),
		History:      make([]*HistoryEntry, 0, len(s.history)),
		Settings:     Settings{AutoSave: s.autoSave},
	}
	if doc.Collections == nil {
		doc.Collections = collection.Tree{}
	}
	for _, env := range s.environments {
		doc.Environments = append(doc.Environments, env.Clone())
	}
	for _, entry := range s.history {
		doc.History = append(doc.History, entry.clone())
	}
	if s.findEnvLocked(s.activeID) != nil {
		doc.ActiveEnvironment = s.activeID
	}
	return doc
}

// Load replaces the whole workspace with doc, keeping its active
// environment when that environment exists. Listeners are not notified.
func (s *Store) Load(doc *Document) {
	if doc == nil {
		return
	}
	tree, envs, history := s.prepare(doc)

	s.mu.Lock()
	s.tree = tree
	s.environments = envs
	s.history = history
	s.activeID = ""
	if s.findEnvLocked(doc.ActiveEnvironment) != nil {
		s.activeID = doc.ActiveEnvironment
	}
	s.autoSave = doc.Settings.AutoSave
	s.mu.Unlock()
}

// ImportWorkspace replaces collections, environments and history with the
// sections present in doc and clears the active environment.
func (s *Store) ImportWorkspace(doc *Document) error {
	if doc == nil {
		return ErrInvalidSnapshot
	}
	if doc.Collections == nil && doc.Environments == nil && doc.History == nil {
		return fmt.Errorf("%w: no collections, environments or history", ErrInvalidSnapshot)
	}
	tree, envs, history := s.prepare(doc)

	s.mu.Lock()
	change := ChangeActive
	if doc.Collections != nil {
		s.tree = tree
		change |= ChangeCollections
	}
	if doc.Environments != nil {
		s.environments = envs
		change |= ChangeEnvironments
	}
	if doc.History != nil {
		s.history = history
		change |= ChangeHistory
	}
	s.activeID = ""
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *Store) prepare(doc *Document) (collection.Tree, []*environment.Environment, []*HistoryEntry) {
	now := s.now().UTC()

	tree := doc.Collections.Clone()
	if tree == nil {
		tree = collection.Tree{}
	}
	tree.AssignMissing(now)

	envs := make([]*environment.Environment, 0, len(doc.Environments))
	for _, env := range doc.Environments {
		if env == nil {
			continue
		}
		env = env.Clone()
		if env.ID.IsZero() {
			env.ID = ident.New()
		}
		if env.Variables == nil {
			env.Variables = []environment.Variable{}
		}
		envs = append(envs, env)
	}

	history := make([]*HistoryEntry, 0, len(doc.History))
	for _, entry := range doc.History {
		if entry == nil {
			continue
		}
		if len(history) == s.historyLimit {
			break
		}
		entry = entry.clone()
		if entry.ID.IsZero() {
			entry.ID = ident.NewTimestamp(now)
		}
		history = append(history, entry)
	}
	return tree, envs, history
}

// ParseSnapshot decodes an auto-save document, rejecting documents with a
// missing version or the wrong type tag.
func ParseSnapshot(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if strings.TrimSpace(doc.Version) == "" || doc.Type != DocumentType {
		return nil, fmt.Errorf("%w: version %q type %q", ErrInvalidSnapshot, doc.Version, doc.Type)
	}
	return &doc, nil
}

// IsWorkspaceDocument reports whether a decoded import document is a
// workspace export rather than a collection.
func IsWorkspaceDocument(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	if kind, _ := m["type"].(string); kind == DocumentType || kind == ExportType {
		return true
	}
	if _, ok := m["item"]; ok {
		return false
	}
	if _, ok := m["requests"]; ok {
		return false
	}
	for _, key := range []string{"collections", "environments", "history"} {
		if _, ok := m[key].([]any); ok {
			return true
		}
	}
	return false
}

// DocumentFromAny converts a decoded import document into a Document.
func DocumentFromAny(doc any) (*Document, error) {
	if !IsWorkspaceDocument(doc) {
		return nil, ErrInvalidSnapshot
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &out, nil
}
