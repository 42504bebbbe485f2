package pmdesk

import (
	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnWorkspaceEvent(event schema.WorkspaceEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnWorkspaceEvent(event)
	}
}

// joinSinks collapses sinks into one, or nil when there are none.
func joinSinks(sinks ...core.EventSink) core.EventSink {
	out := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return eventFanout{sinks: out}
	}
}
