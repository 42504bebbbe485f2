package schema

import "encoding/json"

// Workspace state.

// WorkspaceRequest identifies the user whose workspace is read.
type WorkspaceRequest struct {
	UserID UserID
}

// WorkspaceResponse reports the current workspace state.
type WorkspaceResponse struct {
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// RenderWorkspaceResponse reports the rendered workspace.
type RenderWorkspaceResponse struct {
	View WorkspaceView `json:"view"`
}

// Tab lifecycle.

// OpenTabRequest describes a request to open (or re-activate) a tab.
type OpenTabRequest struct {
	UserID  UserID
	Type    ViewType
	Title   string
	Context ViewContext
}

// OpenNewTabRequest describes a request to open a blank placeholder tab.
type OpenNewTabRequest struct {
	UserID UserID
}

// OpenTabResponse reports the opened or re-activated tab.
type OpenTabResponse struct {
	Tab      TabSnapshot       `json:"tab"`
	Created  bool              `json:"created"`
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// CloseTabRequest closes a tab by key, or by index when Key is empty.
type CloseTabRequest struct {
	UserID UserID
	Key    TabKey
	Index  int
}

// CloseTabResponse reports the closed tab.
type CloseTabResponse struct {
	Closed   TabSnapshot       `json:"closed"`
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// ActivateTabRequest activates a tab by key, or by index when Key is empty.
type ActivateTabRequest struct {
	UserID UserID
	Key    TabKey
	Index  int
}

// ActivateTabResponse reports the activated tab.
type ActivateTabResponse struct {
	Tab      TabSnapshot       `json:"tab"`
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// TogglePinRequest toggles the pin on a tab.
type TogglePinRequest struct {
	UserID UserID
	Key    TabKey
}

// TogglePinResponse reports the resulting pin state.
type TogglePinResponse struct {
	Pinned   bool              `json:"pinned"`
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// Navigation.

// NavRequest identifies a sidebar item.
type NavRequest struct {
	UserID UserID
	Index  int
}

// DragResponse reports a drag payload ready to be dropped on the grid.
type DragResponse struct {
	Payload DragPayload `json:"payload"`
}

// DragTabRequest builds a drag payload from an open tab.
type DragTabRequest struct {
	UserID UserID
	Index  int
}

// ListNavResponse reports the sidebar items.
type ListNavResponse struct {
	Items []NavItem `json:"items"`
}

// ListViewsResponse reports the registered view types.
type ListViewsResponse struct {
	Types []ViewType `json:"types"`
}

// SetGridModeRequest switches between tab and grid mode. Nil toggles.
type SetGridModeRequest struct {
	UserID  UserID
	Enabled *bool
}

// SetGridModeResponse reports the resulting mode.
type SetGridModeResponse struct {
	GridMode bool              `json:"grid_mode"`
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// Grid arrangement.

// AddCellRequest places a view on the grid.
type AddCellRequest struct {
	UserID  UserID
	Type    ViewType
	Title   string
	Context ViewContext
}

// DropRequest carries an untyped drop payload.
type DropRequest struct {
	UserID  UserID
	Payload json.RawMessage
}

// AddCellResponse reports the placed cell.
type AddCellResponse struct {
	Cell     GridCell          `json:"cell"`
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// RemoveCellRequest removes a grid cell.
type RemoveCellRequest struct {
	UserID UserID
	CellID CellID
}

// UpdateLayoutsRequest replaces the breakpoint layouts.
type UpdateLayoutsRequest struct {
	UserID  UserID
	Layouts Layouts
}

// SetBreakpointRequest sets the current breakpoint by name, or from a viewport width when Name is empty.
type SetBreakpointRequest struct {
	UserID UserID
	Name   BreakpointName
	Width  int
}

// SetBreakpointResponse reports the current breakpoint.
type SetBreakpointResponse struct {
	Breakpoint BreakpointName    `json:"breakpoint"`
	Snapshot   WorkspaceSnapshot `json:"snapshot"`
}

// ZoomAction selects a zoom adjustment.
type ZoomAction string

const (
	// ZoomIn adds one step.
	ZoomIn ZoomAction = "in"
	// ZoomOut removes one step.
	ZoomOut ZoomAction = "out"
	// ZoomReset returns to 1.0.
	ZoomReset ZoomAction = "reset"
)

// ZoomCellRequest adjusts a cell's zoom.
type ZoomCellRequest struct {
	UserID UserID
	CellID CellID
	Action ZoomAction
}

// ZoomCellResponse reports the resulting zoom.
type ZoomCellResponse struct {
	Zoom     float64           `json:"zoom"`
	Snapshot WorkspaceSnapshot `json:"snapshot"`
}

// ExpandCellRequest opens a grid cell's view as a tab.
type ExpandCellRequest struct {
	UserID UserID
	CellID CellID
}

// FollowLinkRequest opens the Index-th (1-based) link of a rendered view.
// An empty CellID follows a link of the active tab.
type FollowLinkRequest struct {
	UserID UserID
	CellID CellID
	Index  int
}

// Arrangement persistence.

// ExportArrangementResponse carries the serialized arrangement blob.
type ExportArrangementResponse struct {
	Data []byte `json:"-"`
}

// ImportArrangementRequest carries a serialized arrangement blob.
type ImportArrangementRequest struct {
	UserID UserID
	Data   []byte
}

// SaveArrangementRequest stores the current arrangement under a name.
type SaveArrangementRequest struct {
	UserID UserID
	Name   string
}

// SaveArrangementResponse reports the stored arrangement.
type SaveArrangementResponse struct {
	Arrangement ArrangementInfo `json:"arrangement"`
}

// ListArrangementsResponse reports saved arrangements.
type ListArrangementsResponse struct {
	Arrangements []ArrangementInfo `json:"arrangements"`
}

// ArrangementRequest names a saved arrangement by id or name.
type ArrangementRequest struct {
	UserID UserID
	ID     ArrangementID
	Name   string
}
