package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/command"
	"pkt.systems/pmdesk/internal/logx"
	"pkt.systems/pmdesk/internal/version"
	"pkt.systems/pmdesk/schema"
)

const (
	maxBodyBytes   = 1 << 20
	streamPingTick = 25 * time.Second
)

// CommandHandler routes slash commands.
type CommandHandler interface {
	Handle(ctx context.Context, userID schema.UserID, input string) (command.Result, bool, error)
}

// Metrics is the instrumentation the server reports to.
type Metrics interface {
	HTTPRecorder
	StreamOpened()
	StreamClosed()
	Handler() http.Handler
}

// Deps are the collaborators of the HTTP server. Commands and Metrics are optional.
type Deps struct {
	Service  core.Service
	Commands CommandHandler
	Hub      *Hub
	Metrics  Metrics
}

// Server serves the workspace JSON API and its event stream.
type Server struct {
	cfg      Config
	service  core.Service
	commands CommandHandler
	hub      *Hub
	metrics  Metrics
	limiter  *clientLimiter
	basePath string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Service == nil {
		return nil, errors.New("service is required")
	}
	if strings.TrimSpace(cfg.UserHeader) == "" {
		cfg.UserHeader = "X-Pmdesk-User"
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(cfg.HubHistory)
	}
	return &Server{
		cfg:      cfg,
		service:  deps.Service,
		commands: deps.Commands,
		hub:      hub,
		metrics:  deps.Metrics,
		limiter:  newClientLimiter(cfg.RateLimit, cfg.RateBurst),
		basePath: normalizeBasePath(cfg.BasePath),
	}, nil
}

// Hub returns the event hub the server streams from.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/workspace", s.requireUser(s.handleWorkspace))
	mux.HandleFunc("GET /api/render", s.requireUser(s.handleRender))
	mux.HandleFunc("GET /api/nav", s.requireUser(s.handleListNav))
	mux.HandleFunc("GET /api/views", s.requireUser(s.handleListViews))
	mux.HandleFunc("POST /api/nav/click", s.requireUser(s.handleNavClick))
	mux.HandleFunc("POST /api/nav/drag", s.requireUser(s.handleNavDrag))

	mux.HandleFunc("POST /api/tabs/open", s.requireUser(s.handleOpenTab))
	mux.HandleFunc("POST /api/tabs/new", s.requireUser(s.handleNewTab))
	mux.HandleFunc("POST /api/tabs/close", s.requireUser(s.handleCloseTab))
	mux.HandleFunc("POST /api/tabs/activate", s.requireUser(s.handleActivateTab))
	mux.HandleFunc("POST /api/tabs/pin", s.requireUser(s.handlePinTab))
	mux.HandleFunc("POST /api/tabs/drag", s.requireUser(s.handleDragTab))
	mux.HandleFunc("POST /api/mode", s.requireUser(s.handleMode))
	mux.HandleFunc("POST /api/links/follow", s.requireUser(s.handleFollowLink))

	mux.HandleFunc("POST /api/grid/cells", s.requireUser(s.handleAddCell))
	mux.HandleFunc("DELETE /api/grid/cells/{id}", s.requireUser(s.handleRemoveCell))
	mux.HandleFunc("POST /api/grid/cells/{id}/zoom", s.requireUser(s.handleZoomCell))
	mux.HandleFunc("POST /api/grid/cells/{id}/expand", s.requireUser(s.handleExpandCell))
	mux.HandleFunc("POST /api/grid/drop", s.requireUser(s.handleDrop))
	mux.HandleFunc("POST /api/grid/layouts", s.requireUser(s.handleLayouts))
	mux.HandleFunc("POST /api/grid/breakpoint", s.requireUser(s.handleBreakpoint))

	mux.HandleFunc("GET /api/arrangement", s.requireUser(s.handleExport))
	mux.HandleFunc("PUT /api/arrangement", s.requireUser(s.handleImport))
	mux.HandleFunc("GET /api/arrangements", s.requireUser(s.handleListArrangements))
	mux.HandleFunc("POST /api/arrangements", s.requireUser(s.handleSaveArrangement))
	mux.HandleFunc("POST /api/arrangements/restore", s.requireUser(s.handleRestoreArrangement))
	mux.HandleFunc("DELETE /api/arrangements/{name}", s.requireUser(s.handleDeleteArrangement))

	mux.HandleFunc("POST /api/command", s.requireUser(s.handleCommand))
	mux.HandleFunc("GET /api/stream", s.requireUser(s.handleStream))

	var recorder HTTPRecorder
	if s.metrics != nil {
		recorder = s.metrics
	}
	handler := withRequestLogging(withRateLimit(mux, s.limiter), s.lookupUser, recorder)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info := version.Build()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": info.Version,
		"module":  info.Module,
	})
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.GetWorkspace(r.Context(), schema.WorkspaceRequest{UserID: userID})
	s.respond(w, r, "workspace", resp, err)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.RenderWorkspace(r.Context(), schema.WorkspaceRequest{UserID: userID})
	s.respond(w, r, "render", resp, err)
}

func (s *Server) handleListNav(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.ListNav(r.Context(), schema.WorkspaceRequest{UserID: userID})
	s.respond(w, r, "nav list", resp, err)
}

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request, _ schema.UserID) {
	resp, err := s.service.ListViews(r.Context())
	s.respond(w, r, "views list", resp, err)
}

type indexPayload struct {
	Index *int `json:"index"`
}

func (p indexPayload) index() (int, error) {
	if p.Index == nil {
		return 0, fmt.Errorf("%w: index is required", schema.ErrInvalidRequest)
	}
	return *p.Index, nil
}

func (s *Server) handleNavClick(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload indexPayload
	if !s.decode(w, r, "nav click", &payload) {
		return
	}
	index, err := payload.index()
	if err != nil {
		s.respond(w, r, "nav click", nil, err)
		return
	}
	resp, err := s.service.NavClick(r.Context(), schema.NavRequest{UserID: userID, Index: index})
	s.respond(w, r, "nav click", resp, err)
}

func (s *Server) handleNavDrag(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload indexPayload
	if !s.decode(w, r, "nav drag", &payload) {
		return
	}
	index, err := payload.index()
	if err != nil {
		s.respond(w, r, "nav drag", nil, err)
		return
	}
	resp, err := s.service.NavDrag(r.Context(), schema.NavRequest{UserID: userID, Index: index})
	s.respond(w, r, "nav drag", resp, err)
}

type viewPayload struct {
	Type    schema.ViewType    `json:"type"`
	Title   string             `json:"title"`
	Context schema.ViewContext `json:"context"`
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload viewPayload
	if !s.decode(w, r, "tab open", &payload) {
		return
	}
	resp, err := s.service.OpenTab(r.Context(), schema.OpenTabRequest{
		UserID:  userID,
		Type:    payload.Type,
		Title:   payload.Title,
		Context: payload.Context,
	})
	s.respond(w, r, "tab open", resp, err)
}

func (s *Server) handleNewTab(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.OpenNewTab(r.Context(), schema.OpenNewTabRequest{UserID: userID})
	s.respond(w, r, "tab new", resp, err)
}

// tabRefPayload names a tab by key or by position; one of them is required.
type tabRefPayload struct {
	Key   schema.TabKey `json:"key"`
	Index *int          `json:"index"`
}

func (p tabRefPayload) ref() (schema.TabKey, int, error) {
	if p.Key != "" {
		return p.Key, 0, nil
	}
	if p.Index == nil {
		return "", 0, fmt.Errorf("%w: key or index is required", schema.ErrInvalidRequest)
	}
	return "", *p.Index, nil
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload tabRefPayload
	if !s.decode(w, r, "tab close", &payload) {
		return
	}
	key, index, err := payload.ref()
	if err != nil {
		s.respond(w, r, "tab close", nil, err)
		return
	}
	resp, err := s.service.CloseTab(r.Context(), schema.CloseTabRequest{UserID: userID, Key: key, Index: index})
	s.respond(w, r, "tab close", resp, err)
}

func (s *Server) handleActivateTab(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload tabRefPayload
	if !s.decode(w, r, "tab activate", &payload) {
		return
	}
	key, index, err := payload.ref()
	if err != nil {
		s.respond(w, r, "tab activate", nil, err)
		return
	}
	resp, err := s.service.ActivateTab(r.Context(), schema.ActivateTabRequest{UserID: userID, Key: key, Index: index})
	s.respond(w, r, "tab activate", resp, err)
}

func (s *Server) handlePinTab(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		Key schema.TabKey `json:"key"`
	}
	if !s.decode(w, r, "tab pin", &payload) {
		return
	}
	resp, err := s.service.TogglePin(r.Context(), schema.TogglePinRequest{UserID: userID, Key: payload.Key})
	s.respond(w, r, "tab pin", resp, err)
}

func (s *Server) handleDragTab(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload indexPayload
	if !s.decode(w, r, "tab drag", &payload) {
		return
	}
	index, err := payload.index()
	if err != nil {
		s.respond(w, r, "tab drag", nil, err)
		return
	}
	resp, err := s.service.DragTab(r.Context(), schema.DragTabRequest{UserID: userID, Index: index})
	s.respond(w, r, "tab drag", resp, err)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		GridMode *bool `json:"grid_mode"`
	}
	if !s.decode(w, r, "mode set", &payload) {
		return
	}
	resp, err := s.service.SetGridMode(r.Context(), schema.SetGridModeRequest{UserID: userID, Enabled: payload.GridMode})
	s.respond(w, r, "mode set", resp, err)
}

func (s *Server) handleAddCell(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload viewPayload
	if !s.decode(w, r, "grid cell add", &payload) {
		return
	}
	resp, err := s.service.AddCell(r.Context(), schema.AddCellRequest{
		UserID:  userID,
		Type:    payload.Type,
		Title:   payload.Title,
		Context: payload.Context,
	})
	s.respond(w, r, "grid cell add", resp, err)
}

func (s *Server) handleRemoveCell(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.RemoveCell(r.Context(), schema.RemoveCellRequest{
		UserID: userID,
		CellID: schema.CellID(r.PathValue("id")),
	})
	s.respond(w, r, "grid cell remove", resp, err)
}

func (s *Server) handleZoomCell(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		Action schema.ZoomAction `json:"action"`
	}
	if !s.decode(w, r, "grid zoom", &payload) {
		return
	}
	resp, err := s.service.ZoomCell(r.Context(), schema.ZoomCellRequest{
		UserID: userID,
		CellID: schema.CellID(r.PathValue("id")),
		Action: payload.Action,
	})
	s.respond(w, r, "grid zoom", resp, err)
}

// handleFollowLink opens the 1-based link of the active tab, or of a cell when one is named.
func (s *Server) handleFollowLink(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		indexPayload
		Cell schema.CellID `json:"cell"`
	}
	if !s.decode(w, r, "link follow", &payload) {
		return
	}
	index, err := payload.index()
	if err != nil {
		s.respond(w, r, "link follow", nil, err)
		return
	}
	resp, err := s.service.FollowLink(r.Context(), schema.FollowLinkRequest{UserID: userID, CellID: payload.Cell, Index: index})
	s.respond(w, r, "link follow", resp, err)
}

func (s *Server) handleExpandCell(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.ExpandCell(r.Context(), schema.ExpandCellRequest{
		UserID: userID,
		CellID: schema.CellID(r.PathValue("id")),
	})
	s.respond(w, r, "grid cell expand", resp, err)
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	body, ok := s.readBody(w, r, "grid drop")
	if !ok {
		return
	}
	resp, err := s.service.Drop(r.Context(), schema.DropRequest{UserID: userID, Payload: json.RawMessage(body)})
	s.respond(w, r, "grid drop", resp, err)
}

func (s *Server) handleLayouts(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		Layouts schema.Layouts `json:"layouts"`
	}
	if !s.decode(w, r, "grid layout change", &payload) {
		return
	}
	resp, err := s.service.UpdateLayouts(r.Context(), schema.UpdateLayoutsRequest{UserID: userID, Layouts: payload.Layouts})
	s.respond(w, r, "grid layout change", resp, err)
}

func (s *Server) handleBreakpoint(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		Name  schema.BreakpointName `json:"name"`
		Width int                   `json:"width"`
	}
	if !s.decode(w, r, "grid breakpoint change", &payload) {
		return
	}
	resp, err := s.service.SetBreakpoint(r.Context(), schema.SetBreakpointRequest{
		UserID: userID,
		Name:   payload.Name,
		Width:  payload.Width,
	})
	s.respond(w, r, "grid breakpoint change", resp, err)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.ExportArrangement(r.Context(), schema.WorkspaceRequest{UserID: userID})
	if err != nil {
		s.respond(w, r, "arrangement export", nil, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="arrangement.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Data)
	logx.Ctx(r.Context()).Info("http arrangement export ok", "bytes", len(resp.Data))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	body, ok := s.readBody(w, r, "arrangement import")
	if !ok {
		return
	}
	resp, err := s.service.ImportArrangement(r.Context(), schema.ImportArrangementRequest{UserID: userID, Data: body})
	s.respond(w, r, "arrangement import", resp, err)
}

func (s *Server) handleListArrangements(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.ListArrangements(r.Context(), schema.WorkspaceRequest{UserID: userID})
	s.respond(w, r, "arrangement list", resp, err)
}

func (s *Server) handleSaveArrangement(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, "arrangement save", &payload) {
		return
	}
	resp, err := s.service.SaveArrangement(r.Context(), schema.SaveArrangementRequest{UserID: userID, Name: payload.Name})
	s.respond(w, r, "arrangement save", resp, err)
}

func (s *Server) handleRestoreArrangement(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		ID   schema.ArrangementID `json:"id"`
		Name string               `json:"name"`
	}
	if !s.decode(w, r, "arrangement restore", &payload) {
		return
	}
	resp, err := s.service.RestoreArrangement(r.Context(), schema.ArrangementRequest{
		UserID: userID,
		ID:     payload.ID,
		Name:   payload.Name,
	})
	s.respond(w, r, "arrangement restore", resp, err)
}

func (s *Server) handleDeleteArrangement(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	resp, err := s.service.DeleteArrangement(r.Context(), schema.ArrangementRequest{
		UserID: userID,
		Name:   r.PathValue("name"),
	})
	s.respond(w, r, "arrangement delete", resp, err)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if s.commands == nil {
		writeError(w, http.StatusNotFound, errors.New("commands disabled"))
		return
	}
	var payload struct {
		Input string `json:"input"`
	}
	if !s.decode(w, r, "command", &payload) {
		return
	}
	res, handled, err := s.commands.Handle(r.Context(), userID, payload.Input)
	if err == nil && !handled {
		err = fmt.Errorf("%w: not a slash command", schema.ErrInvalidRequest)
	}
	if err != nil && !isMapped(err) {
		// Usage errors from the command layer are caller mistakes.
		logx.Ctx(r.Context()).Warn("http command failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respond(w, r, "command", res, err)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	ctx := r.Context()
	log := logx.WithUser(ctx, userID)

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	if lastID == 0 {
		lastID = parseUint(r.URL.Query().Get("last_id"))
	}

	// Subscribe before snapshotting so no event falls between the two.
	ch, unsubscribe, _ := s.hub.Subscribe(userID)
	defer unsubscribe()

	ws, err := s.service.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: userID})
	if err != nil {
		s.respond(w, r, "stream", nil, err)
		return
	}
	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_ = writeSSEvent(w, StreamEvent{Type: StreamSnapshot, Snapshot: &ws.Snapshot, Timestamp: time.Now()})
	var sent uint64
	replayCount := 0
	if lastID > 0 {
		replay := s.hub.Replay(userID, lastID)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
			sent = event.Seq
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(streamPingTick)
	defer ticker.Stop()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "tabs", len(ws.Snapshot.Tabs))
	for {
		select {
		case <-ctx.Done():
			log.Info("http stream closed")
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= sent {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

// requireUser resolves the acting user from the configured header, falling
// back to the default user.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, schema.UserID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		user := s.lookupUser(r)
		if user == "" {
			log.Warn("http user missing", "header", s.cfg.UserHeader)
			writeError(w, http.StatusUnauthorized, errors.New("missing user"))
			return
		}
		userID := schema.UserID(user)
		if err := schema.ValidateUserID(userID); err != nil {
			log.Warn("http user rejected", "err", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log = log.With("user", userID)
		ctx := logx.ContextWithUserLogger(r.Context(), log, userID)
		next(w, r.WithContext(ctx), userID)
	}
}

func (s *Server) lookupUser(r *http.Request) string {
	if s == nil || r == nil {
		return ""
	}
	if user := strings.TrimSpace(r.Header.Get(s.cfg.UserHeader)); user != "" {
		return user
	}
	return strings.TrimSpace(s.cfg.DefaultUser)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeJSON(r.Body, target); err != nil && !errors.Is(err, io.EOF) {
		logx.Ctx(r.Context()).Warn("http "+op+" decode failed", "err", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
		return false
	}
	return true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, op string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logx.Ctx(r.Context()).Warn("http "+op+" read failed", "err", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
		return nil, false
	}
	return body, true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, resp any, err error) {
	log := logx.Ctx(r.Context())
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("http "+op+" failed", "err", err, "status", status)
		} else {
			log.Warn("http "+op+" failed", "err", err, "status", status)
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http " + op + " ok")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrTabNotFound),
		errors.Is(err, schema.ErrCellNotFound),
		errors.Is(err, schema.ErrLinkNotFound),
		errors.Is(err, schema.ErrArrangementNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrLibraryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidUser),
		errors.Is(err, schema.ErrUnknownView),
		errors.Is(err, schema.ErrIndexOutOfRange),
		errors.Is(err, schema.ErrUnknownBreakpoint),
		errors.Is(err, schema.ErrUnknownNavIndex),
		errors.Is(err, schema.ErrMalformedSnapshot),
		errors.Is(err, schema.ErrInvalidDragPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isMapped(err error) bool {
	return statusFor(err) != http.StatusInternalServerError
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
