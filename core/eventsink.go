package core

import "pkt.systems/pmdesk/schema"

// EventSink receives workspace change events from the core service.
type EventSink interface {
	OnWorkspaceEvent(event schema.WorkspaceEvent)
}
