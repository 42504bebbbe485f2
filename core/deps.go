package core

import (
	"time"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// ServiceDeps captures dependencies for the core service. Registry is required.
type ServiceDeps struct {
	Registry  *ViewRegistry
	Nav       []NavEntry
	EventSink EventSink
	Library   ArrangementLibrary
	Metrics   OperationRecorder
	Logger    pslog.Logger
	Now       func() time.Time
	NewCellID func() schema.CellID
}
