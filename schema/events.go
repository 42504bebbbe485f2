package schema

// WorkspaceEventType names a workspace change.
type WorkspaceEventType string

const (
	// EventTabOpened reports a new tab.
	EventTabOpened WorkspaceEventType = "tab.opened"
	// EventTabActivated reports an active tab change (including dedup hits).
	EventTabActivated WorkspaceEventType = "tab.activated"
	// EventTabClosed reports a closed tab.
	EventTabClosed WorkspaceEventType = "tab.closed"
	// EventTabPinned reports a pin toggle.
	EventTabPinned WorkspaceEventType = "tab.pinned"
	// EventCellAdded reports a new grid cell.
	EventCellAdded WorkspaceEventType = "grid.cell_added"
	// EventCellRemoved reports a removed grid cell.
	EventCellRemoved WorkspaceEventType = "grid.cell_removed"
	// EventLayoutChanged reports replaced breakpoint layouts.
	EventLayoutChanged WorkspaceEventType = "grid.layout_changed"
	// EventBreakpointChanged reports a new current breakpoint.
	EventBreakpointChanged WorkspaceEventType = "grid.breakpoint_changed"
	// EventZoomChanged reports a per-cell zoom change.
	EventZoomChanged WorkspaceEventType = "grid.zoom_changed"
	// EventArrangementLoaded reports an imported or restored arrangement.
	EventArrangementLoaded WorkspaceEventType = "grid.arrangement_loaded"
	// EventModeChanged reports a tabs/grid mode switch.
	EventModeChanged WorkspaceEventType = "mode.changed"
)

// WorkspaceEvent carries a workspace change and the resulting state.
type WorkspaceEvent struct {
	UserID   UserID             `json:"user"`
	Type     WorkspaceEventType `json:"type"`
	TabKey   TabKey             `json:"tab_key,omitempty"`
	CellID   CellID             `json:"cell_id,omitempty"`
	Snapshot WorkspaceSnapshot  `json:"snapshot"`
}
