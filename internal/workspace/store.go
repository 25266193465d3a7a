// Package workspace owns the history, the collection tree and the
// environments of a session, and notifies listeners when they change.
package workspace

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

var (
	// ErrNotFound is returned when no node, entry or environment has the id.
	ErrNotFound = errors.New("not found")
	// ErrNotFolder is returned when a folder was expected but a request matched.
	ErrNotFolder = errors.New("node is not a folder")
	// ErrInvalidSnapshot is returned for documents that are not workspace snapshots.
	ErrInvalidSnapshot = errors.New("invalid workspace snapshot")
)

// Change is a bit set naming the parts of the workspace a mutation touched.
type Change uint8

const (
	ChangeHistory Change = 1 << iota
	ChangeCollections
	ChangeEnvironments
	ChangeActive
	ChangeSettings

	ChangeAll = ChangeHistory | ChangeCollections | ChangeEnvironments | ChangeActive | ChangeSettings
)

var changeNames = []struct {
	bit  Change
	name string
}{
	{ChangeHistory, "history"},
	{ChangeCollections, "collections"},
	{ChangeEnvironments, "environments"},
	{ChangeActive, "activeEnvironment"},
	{ChangeSettings, "settings"},
}

// Has reports whether every bit of other is set.
func (c Change) Has(other Change) bool {
	return c&other == other && other != 0
}

// Names lists the parts named by c.
func (c Change) Names() []string {
	names := make([]string, 0, len(changeNames))
	for _, cn := range changeNames {
		if c&cn.bit != 0 {
			names = append(names, cn.name)
		}
	}
	return names
}

// Listener is called after a mutation completes, outside the store lock.
type Listener func(Change)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHistoryLimit overrides the history cap.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// Store is the in-memory workspace. It is safe for concurrent use. Values
// returned by accessors are copies.
type Store struct {
	mu           sync.RWMutex
	historyLimit int
	history      []*HistoryEntry
	tree         collection.Tree
	environments []*environment.Environment
	activeID     ident.ID
	autoSave     bool

	listenerMu sync.RWMutex
	listeners  []Listener

	now func() time.Time
}

// New creates an empty workspace with auto-save enabled.
func New(opts ...Option) *Store {
	s := &Store{
		historyLimit: DefaultHistoryLimit,
		tree:         collection.Tree{},
		autoSave:     true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a listener for mutations.
func (s *Store) OnChange(fn Listener) {
	if fn == nil {
		return
	}
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenerMu.Unlock()
}

func (s *Store) notify(c Change) {
	if c == 0 {
		return
	}
	s.listenerMu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// IsEmpty reports whether history, collections and environments are all empty.
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history) == 0 && len(s.tree) == 0 && len(s.environments) == 0
}

// History

// AddHistory records a sent request, newest first, evicting the oldest
// entries beyond the cap.
func (s *Store) AddHistory(draft request.Draft, resp *request.Response) *HistoryEntry {
	now := s.now()
	entry := &HistoryEntry{
		ID:        ident.NewTimestamp(now),
		Timestamp: now.UTC(),
		Request:   draft.Clone(),
		Response:  resp,
	}
	entry = entry.clone()

	s.mu.Lock()
	keep := len(s.history)
	if keep > s.historyLimit-1 {
		keep = s.historyLimit - 1
	}
	history := make([]*HistoryEntry, 0, keep+1)
	history = append(history, entry)
	history = append(history, s.history[:keep]...)
	s.history = history
	s.mu.Unlock()

	s.notify(ChangeHistory)
	return entry.clone()
}

// ClearHistory drops every history entry.
func (s *Store) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	s.notify(ChangeHistory)
}

// History returns all entries, newest first.
func (s *Store) History() []*HistoryEntry {
	entries, _ := s.FilterHistory(HistoryQuery{})
	return entries
}

// FilterHistory returns matching entries, newest first, along with the
// total number of matches before paging.
func (s *Store) FilterHistory(q HistoryQuery) ([]*HistoryEntry, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*HistoryEntry, 0, len(s.history))
	for _, entry := range s.history {
		if q.matches(entry) {
			matched = append(matched, entry)
		}
	}
	total := len(matched)

	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	out := make([]*HistoryEntry, 0, end-start)
	for _, entry := range matched[start:end] {
		out = append(out, entry.clone())
	}
	return out, total
}

// HistoryEntry looks an entry up by id.
func (s *Store) HistoryEntry(id ident.ID) (*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.history {
		if entry.ID == id {
			return entry.clone(), nil
		}
	}
	return nil, fmt.Errorf("history entry %s: %w", id, ErrNotFound)
}

// Collections

// Tree returns a copy of the collection tree.
func (s *Store) Tree() collection.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone()
}

// SaveToCollection stores a new request item at the root or, when folderID
// is set, inside that folder.
func (s *Store) SaveToCollection(name string, draft request.Draft, folderID ident.ID) (*collection.RequestItem, error) {
	item := collection.NewRequestItem(strings.TrimSpace(name), draft.Clone(), s.now().UTC())
	if item.Name == "" {
		item.Name = "Untitled Request"
	}

	s.mu.Lock()
	if err := s.insertLocked(item, folderID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.notify(ChangeCollections)
	return cloneRequestItem(item), nil
}

// CreateFolder adds an empty folder at the root or inside parentID.
func (s *Store) CreateFolder(name string, parentID ident.ID) (*collection.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "New Folder"
	}
	folder := collection.NewFolder(name)
	folder.IsExpanded = true

	s.mu.Lock()
	if err := s.insertLocked(folder, parentID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.notify(ChangeCollections)
	return &collection.Folder{ID: folder.ID, Name: folder.Name, IsExpanded: folder.IsExpanded, Items: collection.Tree{}}, nil
}

func (s *Store) insertLocked(node collection.Node, parentID ident.ID) error {
	if parentID.IsZero() {
		s.tree = append(s.tree, node)
		return nil
	}
	found, _ := s.tree.Find(parentID)
	if found == nil {
		return fmt.Errorf("folder %s: %w", parentID, ErrNotFound)
	}
	folder, ok := found.(*collection.Folder)
	if !ok {
		return fmt.Errorf("node %s: %w", parentID, ErrNotFolder)
	}
	folder.Items = append(folder.Items, node)
	return nil
}

// SetFolderExpanded records whether a folder is shown expanded.
func (s *Store) SetFolderExpanded(id ident.ID, expanded bool) error {
	s.mu.Lock()
	found, _ := s.tree.Find(id)
	if found == nil {
		s.mu.Unlock()
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	folder, ok := found.(*collection.Folder)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("node %s: %w", id, ErrNotFolder)
	}
	folder.IsExpanded = expanded
	s.mu.Unlock()

	s.notify(ChangeCollections)
	return nil
}

// RenameNode renames a folder or request item.
func (s *Store) RenameNode(id ident.ID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	s.mu.Lock()
	found, _ := s.tree.Find(id)
	switch node := found.(type) {
	case *collection.Folder:
		node.Name = name
	case *collection.RequestItem:
		node.Name = name
	default:
		s.mu.Unlock()
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	s.mu.Unlock()

	s.notify(ChangeCollections)
	return nil
}

// UpdateRequestItem replaces the request of an existing item in place.
func (s *Store) UpdateRequestItem(id ident.ID, draft request.Draft) (*collection.RequestItem, error) {
	s.mu.Lock()
	item := s.tree.FindRequest(id)
	if item == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	item.Request = draft.Clone()
	item.Request.Normalize()
	out := cloneRequestItem(item)
	s.mu.Unlock()

	s.notify(ChangeCollections)
	return out, nil
}

// DeleteNode removes a node, and every descendant of a folder, by id.
func (s *Store) DeleteNode(id ident.ID) error {
	s.mu.Lock()
	tree, removed := s.tree.Remove(id)
	if !removed {
		s.mu.Unlock()
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	s.tree = tree
	s.mu.Unlock()

	s.notify(ChangeCollections)
	return nil
}

// MergeImportedCollections appends imported root nodes whose id is not
// already present at the root. Existing nodes are never overwritten and
// nested ids are not compared. It returns the number of appended nodes.
func (s *Store) MergeImportedCollections(nodes collection.Tree) int {
	incoming := nodes.Clone()

	s.mu.Lock()
	existing := make(map[ident.ID]struct{}, len(s.tree))
	for _, node := range s.tree {
		existing[node.NodeID()] = struct{}{}
	}
	added := 0
	for _, node := range incoming {
		if _, dup := existing[node.NodeID()]; dup {
			continue
		}
		existing[node.NodeID()] = struct{}{}
		s.tree = append(s.tree, node)
		added++
	}
	s.mu.Unlock()

	if added > 0 {
		s.notify(ChangeCollections)
	}
	return added
}

// FindRequest looks a request item up by id, then by exact name, then by
// case-insensitive name.
func (s *Store) FindRequest(ref string) (*collection.RequestItem, error) {
	ref = strings.TrimSpace(ref)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item := s.tree.FindRequest(ident.ID(ref)); item != nil {
		return cloneRequestItem(item), nil
	}
	var folded *collection.RequestItem
	for _, item := range s.tree.Requests() {
		if item.Name == ref {
			return cloneRequestItem(item), nil
		}
		if folded == nil && strings.EqualFold(item.Name, ref) {
			folded = item
		}
	}
	if folded != nil {
		return cloneRequestItem(folded), nil
	}
	return nil, fmt.Errorf("request %q: %w", ref, ErrNotFound)
}

// FilterCollections returns request items whose name or URL contains term.
func (s *Store) FilterCollections(term string) []*collection.RequestItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := s.tree.Filter(term)
	out := make([]*collection.RequestItem, 0, len(matches))
	for _, item := range matches {
		out = append(out, cloneRequestItem(item))
	}
	return out
}

func cloneRequestItem(item *collection.RequestItem) *collection.RequestItem {
	out := *item
	out.Request = item.Request.Clone()
	return &out
}

// Environments

// Environments returns copies of all environments in order.
func (s *Store) Environments() []*environment.Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*environment.Environment, 0, len(s.environments))
	for _, env := range s.environments {
		out = append(out, env.Clone())
	}
	return out
}

// Environment looks an environment up by id.
func (s *Store) Environment(id ident.ID) (*environment.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if env := s.findEnvLocked(id); env != nil {
		return env.Clone(), nil
	}
	return nil, fmt.Errorf("environment %s: %w", id, ErrNotFound)
}

// FindEnvironment looks an environment up by id or, failing that, by name.
func (s *Store) FindEnvironment(ref string) (*environment.Environment, error) {
	ref = strings.TrimSpace(ref)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if env := s.findEnvLocked(ident.ID(ref)); env != nil {
		return env.Clone(), nil
	}
	for _, env := range s.environments {
		if strings.EqualFold(env.Name, ref) {
			return env.Clone(), nil
		}
	}
	return nil, fmt.Errorf("environment %q: %w", ref, ErrNotFound)
}

func (s *Store) findEnvLocked(id ident.ID) *environment.Environment {
	if id.IsZero() {
		return nil
	}
	for _, env := range s.environments {
		if env.ID == id {
			return env
		}
	}
	return nil
}

// UpsertEnvironment replaces the environment with the same id, or appends
// it. An environment without id receives a fresh one.
func (s *Store) UpsertEnvironment(env *environment.Environment) *environment.Environment {
	if env == nil {
		return nil
	}
	stored := env.Clone()
	if stored.ID.IsZero() {
		stored.ID = ident.New()
	}
	if stored.Variables == nil {
		stored.Variables = []environment.Variable{}
	}

	s.mu.Lock()
	replaced := false
	for i, existing := range s.environments {
		if existing.ID == stored.ID {
			s.environments[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		s.environments = append(s.environments, stored)
	}
	s.mu.Unlock()

	s.notify(ChangeEnvironments)
	return stored.Clone()
}

// DeleteEnvironment removes an environment. Deleting the active one clears
// the active pointer.
func (s *Store) DeleteEnvironment(id ident.ID) error {
	s.mu.Lock()
	idx := -1
	for i, env := range s.environments {
		if env.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("environment %s: %w", id, ErrNotFound)
	}
	s.environments = append(s.environments[:idx:idx], s.environments[idx+1:]...)
	change := ChangeEnvironments
	if s.activeID == id {
		s.activeID = ""
		change |= ChangeActive
	}
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// SetActiveEnvironment points the workspace at an environment. An empty id
// selects no environment.
func (s *Store) SetActiveEnvironment(id ident.ID) error {
	s.mu.Lock()
	if !id.IsZero() && s.findEnvLocked(id) == nil {
		s.mu.Unlock()
		return fmt.Errorf("environment %s: %w", id, ErrNotFound)
	}
	if id.IsZero() {
		id = ""
	}
	s.activeID = id
	s.mu.Unlock()

	s.notify(ChangeActive)
	return nil
}

// ActiveEnvironment resolves the active pointer against the live
// environments on every call. It returns nil when none is active.
func (s *Store) ActiveEnvironment() *environment.Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if env := s.findEnvLocked(s.activeID); env != nil {
		return env.Clone()
	}
	return nil
}

// ActiveEnvironmentID returns the active pointer, or "" when none is active.
func (s *Store) ActiveEnvironmentID() ident.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.findEnvLocked(s.activeID) == nil {
		return ""
	}
	return s.activeID
}

// Settings

// AutoSaveEnabled reports the user's auto-save setting.
func (s *Store) AutoSaveEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoSave
}

// SetAutoSave changes the auto-save setting.
func (s *Store) SetAutoSave(enabled bool) {
	s.mu.Lock()
	s.autoSave = enabled
	s.mu.Unlock()
	s.notify(ChangeSettings)
}
