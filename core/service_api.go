package core

import (
	"context"

	"pkt.systems/pmdesk/schema"
)

// Service is the transport-agnostic API over per-user workspaces.
type Service interface {
	GetWorkspace(ctx context.Context, req schema.WorkspaceRequest) (schema.WorkspaceResponse, error)
	RenderWorkspace(ctx context.Context, req schema.WorkspaceRequest) (schema.RenderWorkspaceResponse, error)

	OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error)
	OpenNewTab(ctx context.Context, req schema.OpenNewTabRequest) (schema.OpenTabResponse, error)
	CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error)
	ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error)
	TogglePin(ctx context.Context, req schema.TogglePinRequest) (schema.TogglePinResponse, error)
	FollowLink(ctx context.Context, req schema.FollowLinkRequest) (schema.OpenTabResponse, error)

	NavClick(ctx context.Context, req schema.NavRequest) (schema.OpenTabResponse, error)
	NavDrag(ctx context.Context, req schema.NavRequest) (schema.DragResponse, error)
	DragTab(ctx context.Context, req schema.DragTabRequest) (schema.DragResponse, error)
	ListNav(ctx context.Context, req schema.WorkspaceRequest) (schema.ListNavResponse, error)
	ListViews(ctx context.Context) (schema.ListViewsResponse, error)
	SetGridMode(ctx context.Context, req schema.SetGridModeRequest) (schema.SetGridModeResponse, error)

	AddCell(ctx context.Context, req schema.AddCellRequest) (schema.AddCellResponse, error)
	Drop(ctx context.Context, req schema.DropRequest) (schema.AddCellResponse, error)
	RemoveCell(ctx context.Context, req schema.RemoveCellRequest) (schema.WorkspaceResponse, error)
	UpdateLayouts(ctx context.Context, req schema.UpdateLayoutsRequest) (schema.WorkspaceResponse, error)
	SetBreakpoint(ctx context.Context, req schema.SetBreakpointRequest) (schema.SetBreakpointResponse, error)
	ZoomCell(ctx context.Context, req schema.ZoomCellRequest) (schema.ZoomCellResponse, error)
	ExpandCell(ctx context.Context, req schema.ExpandCellRequest) (schema.ActivateTabResponse, error)

	ExportArrangement(ctx context.Context, req schema.WorkspaceRequest) (schema.ExportArrangementResponse, error)
	ImportArrangement(ctx context.Context, req schema.ImportArrangementRequest) (schema.WorkspaceResponse, error)
	SaveArrangement(ctx context.Context, req schema.SaveArrangementRequest) (schema.SaveArrangementResponse, error)
	ListArrangements(ctx context.Context, req schema.WorkspaceRequest) (schema.ListArrangementsResponse, error)
	RestoreArrangement(ctx context.Context, req schema.ArrangementRequest) (schema.WorkspaceResponse, error)
	DeleteArrangement(ctx context.Context, req schema.ArrangementRequest) (schema.ListArrangementsResponse, error)
}

// ArrangementLibrary stores named arrangement blobs per user.
type ArrangementLibrary interface {
	Save(ctx context.Context, userID schema.UserID, name string, blob []byte) (schema.ArrangementInfo, error)
	List(ctx context.Context, userID schema.UserID) ([]schema.ArrangementInfo, error)
	Get(ctx context.Context, userID schema.UserID, id schema.ArrangementID, name string) (schema.ArrangementInfo, []byte, error)
	Delete(ctx context.Context, userID schema.UserID, id schema.ArrangementID, name string) error
}

// OperationRecorder observes service operations.
type OperationRecorder interface {
	ObserveOperation(op string, err error, seconds float64)
}
