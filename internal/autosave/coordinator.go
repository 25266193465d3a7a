// Package autosave persists a workspace: every mutation is written through
// to its storage slot, and whole-workspace snapshots are taken after a quiet
// period, on a fixed interval and at shutdown.
package autosave

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/workspace"
)

// ErrPersistence wraps every storage failure reported by the coordinator.
var ErrPersistence = errors.New("persistence failed")

// Storage slot keys.
const (
	SlotHistory           = "history"
	SlotCollections       = "collections"
	SlotEnvironments      = "environments"
	SlotActiveEnvironment = "active-environment"
	SlotAutoSave          = "auto-save-enabled"
	SlotSnapshot          = "workspace-snapshot"
)

var individualSlots = []string{SlotHistory, SlotCollections, SlotEnvironments, SlotActiveEnvironment, SlotAutoSave}

const (
	defaultDebounce = time.Second
	defaultInterval = 30 * time.Second
)

// Save reasons recorded with snapshot revisions.
const (
	ReasonDebounce = "debounce"
	ReasonInterval = "interval"
	ReasonExit     = "exit"
	ReasonManual   = "manual"
)

// Source tells where Restore loaded the workspace from.
type Source string

const (
	SourceNone     Source = "none"
	SourceSnapshot Source = "snapshot"
	SourceSlots    Source = "slots"
)

// Coordinator schedules workspace persistence. Failures are logged and
// retried at the next trigger; they are never fatal.
type Coordinator struct {
	ws       *workspace.Store
	store    storage.Store
	log      logger.Logger
	debounce time.Duration
	interval time.Duration
	enabled  bool

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	lastSave   time.Time
	started    bool
	closed     bool

	// slotMu covers each workspace read and its slot write; dirty holds
	// the parts whose last slot write failed.
	slotMu sync.Mutex
	dirty  workspace.Change

	saveMu    sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a coordinator and subscribes it to workspace changes.
// cfg.Enabled is the auto-save setting used when none was persisted.
func New(ws *workspace.Store, store storage.Store, cfg config.AutoSaveConfig, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	c := &Coordinator{
		ws:       ws,
		store:    store,
		log:      log,
		debounce: cfg.Debounce,
		interval: cfg.Interval,
		enabled:  cfg.Enabled,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if c.debounce <= 0 {
		c.debounce = defaultDebounce
	}
	if c.interval <= 0 {
		c.interval = defaultInterval
	}
	ws.OnChange(c.handle)
	return c
}

// Start launches the periodic save loop.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.loop()
}

func (c *Coordinator) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.ws.AutoSaveEnabled() || c.ws.IsEmpty() {
				continue
			}
			_ = c.Save(ReasonInterval)
		}
	}
}

func (c *Coordinator) handle(change workspace.Change) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	_ = c.writeSlots(change)
	if c.ws.AutoSaveEnabled() {
		c.schedule()
	}
}

// schedule (re)arms the debounce timer. At most one timer is pending.
func (c *Coordinator) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.generation++
	gen := c.generation
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if !c.ws.AutoSaveEnabled() {
		return
	}
	_ = c.Save(ReasonDebounce)
}

// Pending reports whether a debounced save is scheduled.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// LastSave returns the time of the last successful snapshot.
func (c *Coordinator) LastSave() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSave
}

// Save writes a full workspace snapshot and appends it to the revision log.
func (c *Coordinator) Save(reason string) error {
	slotErr := c.writeSlots(0)

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	doc := c.ws.Snapshot()
	data, err := json.Marshal(doc)
	if err != nil {
		return c.fail("encode snapshot", reason, err)
	}
	if err := c.store.Put(SlotSnapshot, data); err != nil {
		return c.fail("write snapshot", reason, err)
	}
	if _, err := c.store.RecordSnapshot(&storage.Snapshot{
		Timestamp: doc.Info.SavedAt,
		Reason:    reason,
		Data:      data,
	}); err != nil {
		return c.fail("record snapshot revision", reason, err)
	}

	c.mu.Lock()
	c.lastSave = doc.Info.SavedAt
	c.mu.Unlock()
	c.log.Debug("workspace saved", "reason", reason, "bytes", len(data))
	return slotErr
}

func (c *Coordinator) fail(action, reason string, err error) error {
	err = fmt.Errorf("%w: %s: %v", ErrPersistence, action, err)
	c.log.Warn("auto-save failed", "reason", reason, "error", err)
	return err
}

// writeSlots stores the parts of the workspace named by change, plus any
// part whose previous write failed. It returns the first failure.
func (c *Coordinator) writeSlots(change workspace.Change) error {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()

	change |= c.dirty
	if change == 0 {
		return nil
	}

	var failed workspace.Change
	var firstErr error
	put := func(part workspace.Change, slot string, v any) {
		if err := c.putJSON(slot, v); err != nil {
			failed |= part
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if change.Has(workspace.ChangeHistory) {
		put(workspace.ChangeHistory, SlotHistory, c.ws.History())
	}
	if change.Has(workspace.ChangeCollections) {
		put(workspace.ChangeCollections, SlotCollections, c.ws.Tree())
	}
	if change.Has(workspace.ChangeEnvironments) {
		put(workspace.ChangeEnvironments, SlotEnvironments, c.ws.Environments())
	}
	if change.Has(workspace.ChangeEnvironments) || change.Has(workspace.ChangeActive) {
		var active *string
		if id := c.ws.ActiveEnvironmentID(); !id.IsZero() {
			s := id.String()
			active = &s
		}
		put(workspace.ChangeActive, SlotActiveEnvironment, active)
	}
	if change.Has(workspace.ChangeSettings) {
		put(workspace.ChangeSettings, SlotAutoSave, c.ws.AutoSaveEnabled())
	}

	c.dirty = failed
	return firstErr
}

func (c *Coordinator) putJSON(slot string, v any) error {
	data, err := json.Marshal(v)
	if err == nil {
		err = c.store.Put(slot, data)
	}
	if err != nil {
		err = fmt.Errorf("%w: slot %s: %v", ErrPersistence, slot, err)
		c.log.Warn("slot write failed", "slot", slot, "error", err)
	}
	return err
}

// Restore loads the workspace at startup. A valid snapshot is used only when
// no individual slot exists; otherwise the individual slots are read. With
// neither, the workspace starts empty.
func (c *Coordinator) Restore() (Source, error) {
	keys, err := c.store.Keys()
	if err != nil {
		return SourceNone, fmt.Errorf("%w: list slots: %v", ErrPersistence, err)
	}
	present := make(map[string]bool, len(keys))
	for _, key := range keys {
		present[key] = true
	}
	hasSlots := false
	for _, slot := range individualSlots {
		if present[slot] {
			hasSlots = true
			break
		}
	}

	if !hasSlots && present[SlotSnapshot] {
		data, err := c.store.Get(SlotSnapshot)
		if err != nil {
			return SourceNone, fmt.Errorf("%w: read snapshot: %v", ErrPersistence, err)
		}
		doc, err := workspace.ParseSnapshot(data)
		if err == nil {
			c.ws.Load(doc)
			c.log.Info("workspace restored", "source", string(SourceSnapshot))
			return SourceSnapshot, nil
		}
		c.log.Warn("ignoring unreadable snapshot", "error", err)
	}

	if !hasSlots {
		c.ws.Load(&workspace.Document{Settings: workspace.Settings{AutoSave: c.enabled}})
		return SourceNone, nil
	}

	doc := &workspace.Document{Settings: workspace.Settings{AutoSave: c.enabled}}
	c.readSlot(SlotHistory, &doc.History)
	c.readSlot(SlotCollections, &doc.Collections)
	c.readSlot(SlotEnvironments, &doc.Environments)
	c.readSlot(SlotActiveEnvironment, &doc.ActiveEnvironment)
	c.readSlot(SlotAutoSave, &doc.Settings.AutoSave)
	c.ws.Load(doc)
	c.log.Info("workspace restored", "source", string(SourceSlots))
	return SourceSlots, nil
}

func (c *Coordinator) readSlot(slot string, dst any) {
	data, err := c.store.Get(slot)
	if err != nil {
		c.log.Warn("slot read failed", "slot", slot, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn("ignoring unreadable slot", "slot", slot, "error", err)
	}
}

// Revisions lists recorded snapshot revisions, newest first.
func (c *Coordinator) Revisions(opts storage.ListOptions) ([]*storage.Snapshot, int, error) {
	return c.store.ListSnapshots(opts)
}

// RestoreRevision replaces the workspace with a recorded revision.
func (c *Coordinator) RestoreRevision(id string) error {
	snap, err := c.store.GetSnapshot(id)
	if err != nil {
		return fmt.Errorf("%w: read revision: %v", ErrPersistence, err)
	}
	if snap == nil {
		return fmt.Errorf("revision %s: %w", id, workspace.ErrNotFound)
	}
	doc, err := workspace.ParseSnapshot(snap.Data)
	if err != nil {
		return err
	}
	return c.ws.ImportWorkspace(doc)
}

// Close stops the timers and performs the exit save unless auto-save is
// disabled. Slot writes that failed earlier are retried either way. It is
// safe to call more than once.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.generation++
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		started := c.started
		c.mu.Unlock()

		close(c.stop)
		if started {
			<-c.done
		}

		if c.ws.AutoSaveEnabled() {
			err = c.Save(ReasonExit)
		} else {
			err = c.writeSlots(0)
		}
	})
	return err
}
