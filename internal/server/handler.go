package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/funnyzak/reqdeck/internal/autosave"
	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/storage"
	"github.com/funnyzak/reqdeck/internal/workspace"
	"github.com/funnyzak/reqdeck/pkg/collection"
	"github.com/funnyzak/reqdeck/pkg/environment"
	"github.com/funnyzak/reqdeck/pkg/ident"
	"github.com/funnyzak/reqdeck/pkg/request"
)

const (
	contentTypeJSON  = "application/json"
	defaultListLimit = 100
	maxListLimit     = 500
)

var (
	errRequestBodyTooLarge = errors.New("request body exceeds configured limit")
	errBadPayload          = errors.New("invalid payload")
)

// Persister saves and restores workspace revisions. *autosave.Coordinator
// implements it.
type Persister interface {
	Save(reason string) error
	Revisions(opts storage.ListOptions) ([]*storage.Snapshot, int, error)
	RestoreRevision(id string) error
}

// Handler serves the workspace JSON API.
type Handler struct {
	ws        *workspace.Store
	composer  *composer.Composer
	persister Persister
	hub       *Hub
	logger    logger.Logger
	maxBody   int64
	now       func() time.Time
}

// NewHandler creates the API handler. persister and hub may be nil.
func NewHandler(ws *workspace.Store, comp *composer.Composer, persister Persister, hub *Hub, log logger.Logger, maxBody int64) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		ws:        ws,
		composer:  comp,
		persister: persister,
		hub:       hub,
		logger:    log,
		maxBody:   maxBody,
		now:       time.Now,
	}
}

// Register wires the API routes into router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/workspace", h.handleWorkspace).Methods(http.MethodGet)
	router.HandleFunc("/workspace/import", h.handleWorkspaceImport).Methods(http.MethodPost)

	router.HandleFunc("/history", h.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/history", h.handleClearHistory).Methods(http.MethodDelete)
	router.HandleFunc("/history/export", h.handleHistoryExport).Methods(http.MethodGet)
	router.HandleFunc("/history/{id}", h.handleHistoryEntry).Methods(http.MethodGet)

	router.HandleFunc("/resolve", h.handleResolve).Methods(http.MethodPost)
	router.HandleFunc("/send", h.handleSend).Methods(http.MethodPost)

	router.HandleFunc("/collections", h.handleCollections).Methods(http.MethodGet)
	router.HandleFunc("/collections", h.handleSaveRequest).Methods(http.MethodPost)
	router.HandleFunc("/collections/folders", h.handleCreateFolder).Methods(http.MethodPost)
	router.HandleFunc("/collections/import", h.handleCollectionsImport).Methods(http.MethodPost)
	router.HandleFunc("/collections/export", h.handleCollectionsExport).Methods(http.MethodGet)
	router.HandleFunc("/collections/{id}", h.handleUpdateNode).Methods(http.MethodPatch)
	router.HandleFunc("/collections/{id}", h.handleDeleteNode).Methods(http.MethodDelete)

	router.HandleFunc("/environments", h.handleEnvironments).Methods(http.MethodGet)
	router.HandleFunc("/environments", h.handleCreateEnvironment).Methods(http.MethodPost)
	router.HandleFunc("/environments/active", h.handleSetActive).Methods(http.MethodPut)
	router.HandleFunc("/environments/{id}", h.handleUpdateEnvironment).Methods(http.MethodPut)
	router.HandleFunc("/environments/{id}", h.handleDeleteEnvironment).Methods(http.MethodDelete)

	router.HandleFunc("/settings", h.handleSettings).Methods(http.MethodGet)
	router.HandleFunc("/settings", h.handleUpdateSettings).Methods(http.MethodPut)

	if h.persister != nil {
		router.HandleFunc("/save", h.handleSave).Methods(http.MethodPost)
		router.HandleFunc("/snapshots", h.handleSnapshots).Methods(http.MethodGet)
		router.HandleFunc("/snapshots/{id}/restore", h.handleRestoreSnapshot).Methods(http.MethodPost)
	}
	if h.hub != nil {
		router.HandleFunc("/ws", h.handleWebsocket).Methods(http.MethodGet)
	}
}

func (h *Handler) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.ws.Export())
}

func (h *Handler) handleWorkspaceImport(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	decoded, err := collection.Decode(data)
	if err != nil {
		h.respondError(w, err)
		return
	}
	doc, err := workspace.DocumentFromAny(decoded)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.ws.ImportWorkspace(doc); err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("Workspace imported", "requests", doc.Collections.CountRequests(),
		"environments", len(doc.Environments), "history", len(doc.History))
	h.respondJSON(w, http.StatusOK, &workspace.ImportResult{
		Kind:     workspace.KindWorkspace,
		Requests: doc.Collections.CountRequests(),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseIntDefault(query.Get("limit"), defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseIntDefault(query.Get("offset"), 0)

	items, total := h.ws.FilterHistory(workspace.HistoryQuery{
		Search: query.Get("search"),
		Method: query.Get("method"),
		Limit:  limit,
		Offset: offset,
	})
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	h.ws.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ws.HistoryEntry(pathID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, entry)
}

// sendPayload selects the draft to resolve: an inline request or a saved
// item referenced by id or name. Environment names an environment by id or
// name; empty means the active one.
type sendPayload struct {
	Request     *request.Draft `json:"request"`
	Item        string         `json:"item"`
	Environment string         `json:"environment"`
}

func (h *Handler) readSendPayload(r *http.Request) (request.Draft, *environment.Environment, error) {
	var payload sendPayload
	if err := h.decodeJSON(r, &payload); err != nil {
		return request.Draft{}, nil, err
	}

	var draft request.Draft
	switch {
	case payload.Request != nil:
		draft = payload.Request.Clone()
		draft.Normalize()
	case strings.TrimSpace(payload.Item) != "":
		item, err := h.ws.FindRequest(payload.Item)
		if err != nil {
			return request.Draft{}, nil, err
		}
		draft = item.Request
	default:
		return request.Draft{}, nil, fmt.Errorf("%w: request or item is required", errBadPayload)
	}

	env := h.ws.ActiveEnvironment()
	if ref := strings.TrimSpace(payload.Environment); ref != "" {
		found, err := h.ws.FindEnvironment(ref)
		if err != nil {
			return request.Draft{}, nil, err
		}
		env = found
	}
	return draft, env, nil
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	draft, env, err := h.readSendPayload(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	preview, err := h.composer.PreviewWith(draft, env)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, preview)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	draft, env, err := h.readSendPayload(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.composer.SendWith(r.Context(), draft, env)
	if res == nil {
		h.respondError(w, err)
		return
	}
	// Transport failures are recorded as status-0 responses.
	if err != nil {
		h.logger.Warn("Request failed", "url", res.Resolved.URL, "error", err)
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCollections(w http.ResponseWriter, r *http.Request) {
	if term := strings.TrimSpace(r.URL.Query().Get("search")); term != "" {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"data": h.ws.FilterCollections(term),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  h.ws.Tree(),
		"total": h.ws.Tree().CountRequests(),
	})
}

func (h *Handler) handleSaveRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string        `json:"name"`
		Request  request.Draft `json:"request"`
		FolderID ident.ID      `json:"folderId"`
	}
	if err := h.decodeJSON(r, &payload); err != nil {
		h.respondError(w, err)
		return
	}
	payload.Request.Normalize()
	item, err := h.ws.SaveToCollection(payload.Name, payload.Request, payload.FolderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string   `json:"name"`
		ParentID ident.ID `json:"parentId"`
	}
	if err := h.decodeJSON(r, &payload); err != nil {
		h.respondError(w, err)
		return
	}
	folder, err := h.ws.CreateFolder(payload.Name, payload.ParentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, folder)
}

func (h *Handler) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var payload struct {
		Name       *string        `json:"name"`
		IsExpanded *bool          `json:"isExpanded"`
		Request    *request.Draft `json:"request"`
	}
	if err := h.decodeJSON(r, &payload); err != nil {
		h.respondError(w, err)
		return
	}
	if payload.Name == nil && payload.IsExpanded == nil && payload.Request == nil {
		h.respondError(w, fmt.Errorf("%w: nothing to update", errBadPayload))
		return
	}
	if payload.Name != nil && strings.TrimSpace(*payload.Name) == "" {
		h.respondError(w, fmt.Errorf("%w: name cannot be empty", errBadPayload))
		return
	}

	if payload.Request != nil {
		draft := payload.Request.Clone()
		draft.Normalize()
		if _, err := h.ws.UpdateRequestItem(id, draft); err != nil {
			h.respondError(w, err)
			return
		}
	}
	if payload.IsExpanded != nil {
		if err := h.ws.SetFolderExpanded(id, *payload.IsExpanded); err != nil {
			h.respondError(w, err)
			return
		}
	}
	if payload.Name != nil {
		if err := h.ws.RenameNode(id, *payload.Name); err != nil {
			h.respondError(w, err)
			return
		}
	}

	node, _ := h.ws.Tree().Find(id)
	if node == nil {
		h.respondError(w, workspace.ErrNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, node)
}

func (h *Handler) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DeleteNode(pathID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCollectionsImport(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.ws.Import(data)
	if err != nil {
		h.logger.Warn("Import rejected", "error", err)
		h.respondError(w, err)
		return
	}
	h.logger.Info("Import applied", "kind", res.Kind, "added", res.Added, "requests", res.Requests)
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCollectionsExport(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	doc := collection.SerializeAt(h.ws.Tree(), now)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", collection.ExportFileName(now)))
	h.respondJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entries, _ := h.ws.FilterHistory(workspace.HistoryQuery{
		Search: query.Get("search"),
		Method: query.Get("method"),
	})

	var buf bytes.Buffer
	contentType, ext, err := workspace.ExportHistory(&buf, entries, query.Get("format"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", workspace.HistoryExportName(h.now(), ext)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("History export write failed", "error", err)
	}
}

func (h *Handler) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   h.ws.Environments(),
		"active": h.ws.ActiveEnvironmentID(),
	})
}

func (h *Handler) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var env environment.Environment
	if err := h.decodeJSON(r, &env); err != nil {
		h.respondError(w, err)
		return
	}
	if strings.TrimSpace(env.Name) == "" {
		h.respondError(w, fmt.Errorf("%w: environment name is required", errBadPayload))
		return
	}
	env.ID = ""
	h.respondJSON(w, http.StatusCreated, h.ws.UpsertEnvironment(&env))
}

func (h *Handler) handleUpdateEnvironment(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if _, err := h.ws.Environment(id); err != nil {
		h.respondError(w, err)
		return
	}
	var env environment.Environment
	if err := h.decodeJSON(r, &env); err != nil {
		h.respondError(w, err)
		return
	}
	env.ID = id
	h.respondJSON(w, http.StatusOK, h.ws.UpsertEnvironment(&env))
}

func (h *Handler) handleDeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DeleteEnvironment(pathID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID ident.ID `json:"id"`
	}
	if err := h.decodeJSON(r, &payload); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.ws.SetActiveEnvironment(payload.ID); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"active": h.ws.ActiveEnvironmentID()})
}

type settingsPayload struct {
	AutoSave *bool `json:"autoSave"`
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	enabled := h.ws.AutoSaveEnabled()
	h.respondJSON(w, http.StatusOK, settingsPayload{AutoSave: &enabled})
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload settingsPayload
	if err := h.decodeJSON(r, &payload); err != nil {
		h.respondError(w, err)
		return
	}
	if payload.AutoSave != nil {
		h.ws.SetAutoSave(*payload.AutoSave)
	}
	h.handleSettings(w, r)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := h.persister.Save(autosave.ReasonManual); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"savedAt": h.now().UTC()})
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseIntDefault(query.Get("limit"), defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseIntDefault(query.Get("offset"), 0)

	snaps, total, err := h.persister.Revisions(storage.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if snaps == nil {
		snaps = []*storage.Snapshot{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   snaps,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.persister.RestoreRevision(mux.Vars(r)["id"]); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.ws.Export())
}

func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if _, err := h.hub.Upgrade(w, r); err != nil {
		h.logger.Error("Failed to upgrade websocket", "error", err)
	}
}

func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	if h.maxBody <= 0 {
		return io.ReadAll(r.Body)
	}

	limited := io.LimitReader(r.Body, h.maxBody+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBody {
		return nil, errRequestBodyTooLarge
	}
	return body, nil
}

func (h *Handler) decodeJSON(r *http.Request, dst interface{}) error {
	body, err := h.readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errRequestBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadPayload),
		errors.Is(err, request.ErrInvalidBody),
		errors.Is(err, collection.ErrUnsupportedFormat),
		errors.Is(err, collection.ErrEmptyImport),
		errors.Is(err, workspace.ErrInvalidSnapshot),
		errors.Is(err, workspace.ErrNotFolder),
		errors.Is(err, workspace.ErrUnsupportedExport):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
	} else {
		h.logger.Debug("Request rejected", "status", status, "error", err)
	}
	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func pathID(r *http.Request) ident.ID {
	return ident.ID(mux.Vars(r)["id"])
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}

	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return def
}
