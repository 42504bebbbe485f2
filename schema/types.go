package schema

import "time"

// UserID identifies a console user.
type UserID string

// TabKey uniquely identifies an open tab.
type TabKey string

// ViewType tags a view kind known to the view registry.
type ViewType string

// CellID identifies a grid cell.
type CellID string

// BreakpointName names a responsive width tier.
type BreakpointName string

// ArrangementID identifies a saved arrangement in the library.
type ArrangementID string

// ViewContext scopes a view instance to a parent entity (e.g. {"company": "Acme"}).
type ViewContext map[string]any

// Built-in view types of the admin console.
const (
	ViewDashboard       ViewType = "dashboard"
	ViewNewTab          ViewType = "newtab"
	ViewCompanies       ViewType = "companies"
	ViewCompanyDetails  ViewType = "company-details"
	ViewProjects        ViewType = "projects"
	ViewCompanyProjects ViewType = "company-projects"
	ViewProjectDetails  ViewType = "project-details"
	ViewTeams           ViewType = "teams"
	ViewTeamDetails     ViewType = "team-details"
	ViewTasks           ViewType = "tasks"
	ViewTaskDetails     ViewType = "task-details"
	ViewCalendar        ViewType = "calendar"
	ViewReports         ViewType = "reports"
)

// Density is the content-detail tier chosen for a view.
type Density string

const (
	// DensityCompact renders a headline only.
	DensityCompact Density = "compact"
	// DensityMedium renders a short summary.
	DensityMedium Density = "medium"
	// DensityFull renders everything the view has.
	DensityFull Density = "full"
)

// TabSnapshot is a read-only view of an open tab.
type TabSnapshot struct {
	Key     TabKey      `json:"key"`
	Type    ViewType    `json:"type"`
	Title   string      `json:"title"`
	Context ViewContext `json:"context,omitempty"`
	Pinned  bool        `json:"pinned"`
	Active  bool        `json:"active"`
	Index   int         `json:"index"`
}

// GridCell is one view placed on the grid.
type GridCell struct {
	ID      CellID      `json:"id"`
	Type    ViewType    `json:"type"`
	Title   string      `json:"title"`
	Context ViewContext `json:"context,omitempty"`
	X       int         `json:"x"`
	Y       int         `json:"y"`
	W       int         `json:"w"`
	H       int         `json:"h"`
	MinW    int         `json:"minW"`
	MinH    int         `json:"minH"`
}

// LayoutEntry places a cell at one breakpoint.
type LayoutEntry struct {
	CellID CellID `json:"i"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	W      int    `json:"w"`
	H      int    `json:"h"`
	MinW   int    `json:"minW,omitempty"`
	MinH   int    `json:"minH,omitempty"`
}

// Layouts maps breakpoint names to ordered layout entries.
type Layouts map[BreakpointName][]LayoutEntry

// ArrangementBlob is the persisted/exported grid arrangement.
type ArrangementBlob struct {
	Sheets    []GridCell         `json:"sheets"`
	Layouts   Layouts            `json:"layouts"`
	Zoom      map[CellID]float64 `json:"zoom,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// DragPayload is the descriptor carried by a drag from the sidebar or a tab.
type DragPayload struct {
	Type    ViewType    `json:"type"`
	Title   string      `json:"title,omitempty"`
	Context ViewContext `json:"context,omitempty"`
}

// GridSnapshot is a read-only view of the grid arrangement.
type GridSnapshot struct {
	Cells             []GridCell         `json:"cells"`
	Layouts           Layouts            `json:"layouts"`
	CurrentBreakpoint BreakpointName     `json:"current_breakpoint"`
	Zoom              map[CellID]float64 `json:"zoom"`
}

// WorkspaceSnapshot is a read-only view of a user's workspace.
type WorkspaceSnapshot struct {
	GridMode       bool          `json:"grid_mode"`
	Tabs           []TabSnapshot `json:"tabs"`
	ActiveIndex    int           `json:"active_index"`
	ActiveTab      TabKey        `json:"active_tab"`
	Pinned         []TabKey      `json:"pinned"`
	ActiveNavIndex int           `json:"active_nav_index"`
	Grid           GridSnapshot  `json:"grid"`
}

// ViewContent is what a view renderer produces.
type ViewContent struct {
	Type    ViewType `json:"type"`
	Title   string   `json:"title"`
	Density Density  `json:"density"`
	Lines   []string `json:"lines,omitempty"`
	// Links are the views reachable from the rendered rows, in display order.
	Links []DragPayload `json:"links,omitempty"`
	Error string        `json:"error,omitempty"`
}

// RenderedCell pairs a grid cell with its rendered content.
type RenderedCell struct {
	Cell    GridCell    `json:"cell"`
	Zoom    float64     `json:"zoom"`
	Content ViewContent `json:"content"`
}

// WorkspaceView is a rendered workspace: the active tab in tab mode, every cell in grid mode.
type WorkspaceView struct {
	Snapshot  WorkspaceSnapshot `json:"snapshot"`
	ActiveTab *ViewContent      `json:"active_tab,omitempty"`
	Cells     []RenderedCell    `json:"cells,omitempty"`
}

// NavItem is a sidebar entry.
type NavItem struct {
	Index   int        `json:"index"`
	Type    ViewType   `json:"type"`
	Label   string     `json:"label"`
	Aliases []ViewType `json:"aliases,omitempty"`
}

// ArrangementInfo describes a saved arrangement.
type ArrangementInfo struct {
	ID        ArrangementID `json:"id"`
	Name      string        `json:"name"`
	Cells     int           `json:"cells"`
	UpdatedAt time.Time     `json:"updated_at"`
}
