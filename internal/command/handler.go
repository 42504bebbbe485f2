package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/logx"
	"pkt.systems/pmdesk/internal/version"
	"pkt.systems/pmdesk/schema"
)

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	DisableAuditLogging bool
}

// Result carries the lines a command wants shown to the user.
type Result struct {
	Lines []string `json:"lines"`
}

// Handler routes slash commands to service operations.
type Handler struct {
	service core.Service
	cfg     HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(service core.Service, cfg HandlerConfig) *Handler {
	return &Handler{service: service, cfg: cfg}
}

var helpLines = []string{
	"/open <type> [title words] [key=value ...]  open or re-activate a tab",
	"/new                                        open a blank tab",
	"/close [n|key]                              close a tab (default: active)",
	"/activate <n|key>                           activate a tab",
	"/pin [n|key]                                toggle pin (default: active)",
	"/tabs                                       list open tabs",
	"/nav <index>                                sidebar click",
	"/drag <index>                               drag a sidebar item onto the grid",
	"/grid [on|off]                              toggle grid mode",
	"/cell add <type> [key=value ...]            add a grid cell",
	"/cell rm <n|id>                             remove a grid cell",
	"/cell list                                  list grid cells",
	"/zoom <n|id> in|out|reset                   adjust a cell's zoom",
	"/bp <name|width>                            set the grid breakpoint",
	"/expand <n|id>                              open a cell as a tab",
	"/follow <n> [cell n|id]                     open the n-th link of the active tab or a cell",
	"/save <name>                                save the grid arrangement",
	"/restore <name>                             restore a saved arrangement",
	"/saved [rm <name>]                          list or delete saved arrangements",
	"/views                                      list view types",
	"/version                                    show the build version",
}

// Names lists the slash commands, with their leading slash, in help order.
func Names() []string {
	seen := map[string]bool{}
	names := make([]string, 0, len(helpLines)+1)
	for _, line := range helpLines {
		name, _, _ := strings.Cut(line, " ")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return append(names, "/help")
}

// Handle inspects input and executes slash commands. It reports false when
// input is not a command.
func (h *Handler) Handle(ctx context.Context, userID schema.UserID, input string) (Result, bool, error) {
	if ctx == nil {
		return Result{}, false, errors.New("missing context")
	}
	baseLog := logx.WithUser(ctx, userID)
	ctx = logx.ContextWithUserLogger(ctx, baseLog, userID)
	log := baseLog.With("input_len", len(input))
	cmd, ok := Parse(input)
	if !ok {
		return Result{}, false, nil
	}
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	var (
		res Result
		err error
	)
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return Result{}, true, fmt.Errorf("invalid command")
	case "open":
		res, err = h.handleOpen(ctx, userID, cmd)
	case "new":
		res, err = h.handleNew(ctx, userID)
	case "close":
		res, err = h.handleClose(ctx, userID, cmd)
	case "activate":
		res, err = h.handleActivate(ctx, userID, cmd)
	case "pin":
		res, err = h.handlePin(ctx, userID, cmd)
	case "tabs":
		res, err = h.handleTabs(ctx, userID)
	case "nav":
		res, err = h.handleNav(ctx, userID, cmd)
	case "drag":
		res, err = h.handleDrag(ctx, userID, cmd)
	case "grid":
		res, err = h.handleGrid(ctx, userID, cmd)
	case "cell":
		res, err = h.handleCell(ctx, userID, cmd)
	case "zoom":
		res, err = h.handleZoom(ctx, userID, cmd)
	case "bp":
		res, err = h.handleBreakpoint(ctx, userID, cmd)
	case "expand":
		res, err = h.handleExpand(ctx, userID, cmd)
	case "follow":
		res, err = h.handleFollow(ctx, userID, cmd)
	case "save":
		res, err = h.handleSave(ctx, userID, cmd)
	case "restore":
		res, err = h.handleRestore(ctx, userID, cmd)
	case "saved":
		res, err = h.handleSaved(ctx, userID, cmd)
	case "views":
		res, err = h.handleViews(ctx)
	case "help":
		res = Result{Lines: append([]string{"Commands"}, helpLines...)}
	case "version":
		res = Result{Lines: []string{fmt.Sprintf("pmdesk %s", version.CurrentWithDirty())}}
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return Result{}, true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
	if err != nil {
		log.Warn("command slash failed", "err", err)
		return Result{}, true, err
	}
	log.Debug("command slash completed", "lines", len(res.Lines))
	return res, true, nil
}

func (h *Handler) handleOpen(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) < 1 {
		return Result{}, fmt.Errorf("usage: /open <type> [title words] [key=value ...]")
	}
	title, viewCtx, err := splitTitleAndContext(cmd.Args[1:])
	if err != nil {
		return Result{}, err
	}
	resp, err := h.service.OpenTab(ctx, schema.OpenTabRequest{
		UserID:  userID,
		Type:    schema.ViewType(cmd.Args[0]),
		Title:   title,
		Context: viewCtx,
	})
	if err != nil {
		return Result{}, err
	}
	if resp.Created {
		return Result{Lines: []string{fmt.Sprintf("tab opened: %s", resp.Tab.Title)}}, nil
	}
	return Result{Lines: []string{fmt.Sprintf("tab activated: %s", resp.Tab.Title)}}, nil
}

func (h *Handler) handleNew(ctx context.Context, userID schema.UserID) (Result, error) {
	resp, err := h.service.OpenNewTab(ctx, schema.OpenNewTabRequest{UserID: userID})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("tab opened: %s", resp.Tab.Title)}}, nil
}

func (h *Handler) handleClose(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	req := schema.CloseTabRequest{UserID: userID}
	if len(cmd.Args) > 1 {
		return Result{}, fmt.Errorf("usage: /close [n|key]")
	}
	if len(cmd.Args) == 1 {
		key, index, err := tabRef(cmd.Args[0])
		if err != nil {
			return Result{}, err
		}
		req.Key, req.Index = key, index
	} else {
		ws, err := h.service.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: userID})
		if err != nil {
			return Result{}, err
		}
		req.Index = ws.Snapshot.ActiveIndex
	}
	resp, err := h.service.CloseTab(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("tab closed: %s", resp.Closed.Title)}}, nil
}

func (h *Handler) handleActivate(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) != 1 {
		return Result{}, fmt.Errorf("usage: /activate <n|key>")
	}
	key, index, err := tabRef(cmd.Args[0])
	if err != nil {
		return Result{}, err
	}
	resp, err := h.service.ActivateTab(ctx, schema.ActivateTabRequest{UserID: userID, Key: key, Index: index})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("tab activated: %s", resp.Tab.Title)}}, nil
}

func (h *Handler) handlePin(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) > 1 {
		return Result{}, fmt.Errorf("usage: /pin [n|key]")
	}
	ws, err := h.service.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: userID})
	if err != nil {
		return Result{}, err
	}
	target := ws.Snapshot.ActiveTab
	if len(cmd.Args) == 1 {
		key, index, err := tabRef(cmd.Args[0])
		if err != nil {
			return Result{}, err
		}
		if key == "" {
			if index < 0 || index >= len(ws.Snapshot.Tabs) {
				return Result{}, fmt.Errorf("%w: tab %d", schema.ErrIndexOutOfRange, index+1)
			}
			key = ws.Snapshot.Tabs[index].Key
		}
		target = key
	}
	resp, err := h.service.TogglePin(ctx, schema.TogglePinRequest{UserID: userID, Key: target})
	if err != nil {
		return Result{}, err
	}
	if resp.Pinned {
		return Result{Lines: []string{"tab pinned"}}, nil
	}
	return Result{Lines: []string{"tab unpinned"}}, nil
}

func (h *Handler) handleTabs(ctx context.Context, userID schema.UserID) (Result, error) {
	ws, err := h.service.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: userID})
	if err != nil {
		return Result{}, err
	}
	lines := make([]string, 0, len(ws.Snapshot.Tabs)+1)
	lines = append(lines, "Tabs")
	for _, tab := range ws.Snapshot.Tabs {
		marker := " "
		if tab.Active {
			marker = "*"
		}
		pin := ""
		if tab.Pinned {
			pin = " [pinned]"
		}
		lines = append(lines, fmt.Sprintf("%s %d. %s (%s)%s", marker, tab.Index+1, tab.Title, tab.Type, pin))
	}
	return Result{Lines: lines}, nil
}

func (h *Handler) handleNav(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	index, err := navIndex(cmd, "/nav <index>")
	if err != nil {
		return Result{}, err
	}
	resp, err := h.service.NavClick(ctx, schema.NavRequest{UserID: userID, Index: index})
	if err != nil {
		return Result{}, err
	}
	if resp.Created {
		return Result{Lines: []string{fmt.Sprintf("tab opened: %s", resp.Tab.Title)}}, nil
	}
	return Result{Lines: []string{fmt.Sprintf("tab activated: %s", resp.Tab.Title)}}, nil
}

func (h *Handler) handleDrag(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	index, err := navIndex(cmd, "/drag <index>")
	if err != nil {
		return Result{}, err
	}
	drag, err := h.service.NavDrag(ctx, schema.NavRequest{UserID: userID, Index: index})
	if err != nil {
		return Result{}, err
	}
	resp, err := h.service.AddCell(ctx, schema.AddCellRequest{
		UserID:  userID,
		Type:    drag.Payload.Type,
		Title:   drag.Payload.Title,
		Context: drag.Payload.Context,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("cell added: %s (%s)", resp.Cell.Title, shortID(resp.Cell.ID))}}, nil
}

func (h *Handler) handleGrid(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	req := schema.SetGridModeRequest{UserID: userID}
	if len(cmd.Args) > 1 {
		return Result{}, fmt.Errorf("usage: /grid [on|off]")
	}
	if len(cmd.Args) == 1 {
		switch strings.ToLower(cmd.Args[0]) {
		case "on":
			enabled := true
			req.Enabled = &enabled
		case "off":
			enabled := false
			req.Enabled = &enabled
		default:
			return Result{}, fmt.Errorf("usage: /grid [on|off]")
		}
	}
	resp, err := h.service.SetGridMode(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if resp.GridMode {
		return Result{Lines: []string{"grid mode"}}, nil
	}
	return Result{Lines: []string{"tab mode"}}, nil
}

func (h *Handler) handleCell(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) < 1 {
		return Result{}, fmt.Errorf("usage: /cell add|rm|list")
	}
	switch strings.ToLower(cmd.Args[0]) {
	case "add":
		if len(cmd.Args) < 2 {
			return Result{}, fmt.Errorf("usage: /cell add <type> [key=value ...]")
		}
		title, viewCtx, err := splitTitleAndContext(cmd.Args[2:])
		if err != nil {
			return Result{}, err
		}
		resp, err := h.service.AddCell(ctx, schema.AddCellRequest{
			UserID:  userID,
			Type:    schema.ViewType(cmd.Args[1]),
			Title:   title,
			Context: viewCtx,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Lines: []string{fmt.Sprintf("cell added: %s (%s)", resp.Cell.Title, shortID(resp.Cell.ID))}}, nil
	case "rm":
		if len(cmd.Args) != 2 {
			return Result{}, fmt.Errorf("usage: /cell rm <n|id>")
		}
		cellID, err := h.resolveCell(ctx, userID, cmd.Args[1])
		if err != nil {
			return Result{}, err
		}
		if _, err := h.service.RemoveCell(ctx, schema.RemoveCellRequest{UserID: userID, CellID: cellID}); err != nil {
			return Result{}, err
		}
		return Result{Lines: []string{fmt.Sprintf("cell removed: %s", shortID(cellID))}}, nil
	case "list", "ls":
		ws, err := h.service.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: userID})
		if err != nil {
			return Result{}, err
		}
		grid := ws.Snapshot.Grid
		lines := []string{fmt.Sprintf("Cells (%s)", grid.CurrentBreakpoint)}
		if len(grid.Cells) == 0 {
			lines = append(lines, "no cells")
		}
		for i, cell := range grid.Cells {
			zoom, ok := grid.Zoom[cell.ID]
			if !ok {
				zoom = core.DefaultZoom
			}
			lines = append(lines, fmt.Sprintf("%d. %s %s at %d,%d %dx%d %s zoom %.1f",
				i+1, shortID(cell.ID), cell.Title, cell.X, cell.Y, cell.W, cell.H, core.DensityForCell(cell), zoom))
		}
		return Result{Lines: lines}, nil
	default:
		return Result{}, fmt.Errorf("usage: /cell add|rm|list")
	}
}

func (h *Handler) handleZoom(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) != 2 {
		return Result{}, fmt.Errorf("usage: /zoom <n|id> in|out|reset")
	}
	action := schema.ZoomAction(strings.ToLower(cmd.Args[1]))
	switch action {
	case schema.ZoomIn, schema.ZoomOut, schema.ZoomReset:
	default:
		return Result{}, fmt.Errorf("usage: /zoom <n|id> in|out|reset")
	}
	cellID, err := h.resolveCell(ctx, userID, cmd.Args[0])
	if err != nil {
		return Result{}, err
	}
	resp, err := h.service.ZoomCell(ctx, schema.ZoomCellRequest{UserID: userID, CellID: cellID, Action: action})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("zoom %.1f", resp.Zoom)}}, nil
}

func (h *Handler) handleBreakpoint(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) != 1 {
		return Result{}, fmt.Errorf("usage: /bp <name|width>")
	}
	req := schema.SetBreakpointRequest{UserID: userID}
	if width, err := strconv.Atoi(cmd.Args[0]); err == nil {
		req.Width = width
	} else {
		req.Name = schema.BreakpointName(cmd.Args[0])
	}
	resp, err := h.service.SetBreakpoint(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("breakpoint %s", resp.Breakpoint)}}, nil
}

func (h *Handler) handleExpand(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) != 1 {
		return Result{}, fmt.Errorf("usage: /expand <n|id>")
	}
	cellID, err := h.resolveCell(ctx, userID, cmd.Args[0])
	if err != nil {
		return Result{}, err
	}
	resp, err := h.service.ExpandCell(ctx, schema.ExpandCellRequest{UserID: userID, CellID: cellID})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("tab activated: %s", resp.Tab.Title)}}, nil
}

func (h *Handler) handleFollow(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		return Result{}, fmt.Errorf("usage: /follow <n> [cell n|id]")
	}
	n, err := strconv.Atoi(cmd.Args[0])
	if err != nil || n < 1 {
		return Result{}, fmt.Errorf("usage: /follow <n> [cell n|id]")
	}
	req := schema.FollowLinkRequest{UserID: userID, Index: n}
	if len(cmd.Args) == 2 {
		req.CellID, err = h.resolveCell(ctx, userID, cmd.Args[1])
		if err != nil {
			return Result{}, err
		}
	}
	resp, err := h.service.FollowLink(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if resp.Created {
		return Result{Lines: []string{fmt.Sprintf("tab opened: %s", resp.Tab.Title)}}, nil
	}
	return Result{Lines: []string{fmt.Sprintf("tab activated: %s", resp.Tab.Title)}}, nil
}

func (h *Handler) handleSave(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	name := cmd.Remainder
	if name == "" {
		return Result{}, fmt.Errorf("usage: /save <name>")
	}
	resp, err := h.service.SaveArrangement(ctx, schema.SaveArrangementRequest{UserID: userID, Name: name})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("arrangement saved: %s (%d cells)", resp.Arrangement.Name, resp.Arrangement.Cells)}}, nil
}

func (h *Handler) handleRestore(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	name := cmd.Remainder
	if name == "" {
		return Result{}, fmt.Errorf("usage: /restore <name>")
	}
	resp, err := h.service.RestoreArrangement(ctx, schema.ArrangementRequest{UserID: userID, Name: name})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: []string{fmt.Sprintf("arrangement restored: %s (%d cells)", name, len(resp.Snapshot.Grid.Cells))}}, nil
}

func (h *Handler) handleSaved(ctx context.Context, userID schema.UserID, cmd Command) (Result, error) {
	var (
		resp schema.ListArrangementsResponse
		err  error
	)
	if len(cmd.Args) > 0 {
		if strings.ToLower(cmd.Args[0]) != "rm" || len(cmd.Args) < 2 {
			return Result{}, fmt.Errorf("usage: /saved [rm <name>]")
		}
		resp, err = h.service.DeleteArrangement(ctx, schema.ArrangementRequest{
			UserID: userID,
			Name:   unquote(remainderAfterTokens(cmd.Raw, 2)),
		})
	} else {
		resp, err = h.service.ListArrangements(ctx, schema.WorkspaceRequest{UserID: userID})
	}
	if err != nil {
		return Result{}, err
	}
	lines := []string{"Saved arrangements"}
	if len(resp.Arrangements) == 0 {
		lines = append(lines, "none")
	}
	for _, info := range resp.Arrangements {
		lines = append(lines, fmt.Sprintf("- %s (%d cells, %s)", info.Name, info.Cells, info.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return Result{Lines: lines}, nil
}

func (h *Handler) handleViews(ctx context.Context) (Result, error) {
	resp, err := h.service.ListViews(ctx)
	if err != nil {
		return Result{}, err
	}
	lines := []string{"Views"}
	for _, viewType := range resp.Types {
		lines = append(lines, "- "+string(viewType))
	}
	return Result{Lines: lines}, nil
}

// resolveCell accepts a 1-based cell number, a full id or a unique id prefix.
func (h *Handler) resolveCell(ctx context.Context, userID schema.UserID, ref string) (schema.CellID, error) {
	ws, err := h.service.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: userID})
	if err != nil {
		return "", err
	}
	cells := ws.Snapshot.Grid.Cells
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(cells) {
			return "", fmt.Errorf("%w: cell %d", schema.ErrCellNotFound, n)
		}
		return cells[n-1].ID, nil
	}
	var match schema.CellID
	for _, cell := range cells {
		if string(cell.ID) == ref {
			return cell.ID, nil
		}
		if strings.HasPrefix(string(cell.ID), ref) {
			if match != "" {
				return "", fmt.Errorf("ambiguous cell %q", ref)
			}
			match = cell.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", schema.ErrCellNotFound, ref)
	}
	return match, nil
}

// tabRef parses a 1-based tab number or a tab key.
func tabRef(ref string) (schema.TabKey, int, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 {
			return "", 0, fmt.Errorf("%w: tab %d", schema.ErrIndexOutOfRange, n)
		}
		return "", n - 1, nil
	}
	return schema.TabKey(ref), 0, nil
}

func navIndex(cmd Command, usage string) (int, error) {
	if len(cmd.Args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	index, err := strconv.Atoi(cmd.Args[0])
	if err != nil {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	return index, nil
}

func splitTitleAndContext(args []string) (string, schema.ViewContext, error) {
	var titleWords, pairs []string
	for _, arg := range args {
		if strings.Contains(arg, "=") {
			pairs = append(pairs, arg)
			continue
		}
		titleWords = append(titleWords, arg)
	}
	viewCtx, err := schema.ParseContextPairs(pairs)
	if err != nil {
		return "", nil, fmt.Errorf("invalid context pair: %w", err)
	}
	return strings.Join(titleWords, " "), viewCtx, nil
}

func shortID(id schema.CellID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}
