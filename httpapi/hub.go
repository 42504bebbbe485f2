package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pmdesk/internal/logx"
	"pkt.systems/pmdesk/schema"
)

// Stream event types.
const (
	StreamSnapshot  = "snapshot"
	StreamWorkspace = "workspace"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                    `json:"seq"`
	Type      string                    `json:"type"`
	Event     schema.WorkspaceEventType `json:"event,omitempty"`
	TabKey    schema.TabKey             `json:"tab_key,omitempty"`
	CellID    schema.CellID             `json:"cell_id,omitempty"`
	Snapshot  *schema.WorkspaceSnapshot `json:"snapshot,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

// Hub broadcasts workspace events per user and keeps a short replay history.
type Hub struct {
	mu          sync.Mutex
	users       map[schema.UserID]*userHub
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 64
	}
	return &Hub{
		users:       make(map[schema.UserID]*userHub),
		historySize: historySize,
		now:         time.Now,
	}
}

// OnWorkspaceEvent implements core.EventSink.
func (h *Hub) OnWorkspaceEvent(event schema.WorkspaceEvent) {
	log := logx.WithUser(context.Background(), event.UserID)
	log.Trace("hub workspace event", "type", event.Type, "tab", event.TabKey, "cell", event.CellID)
	snapshot := event.Snapshot
	h.publish(event.UserID, StreamEvent{
		Type:      StreamWorkspace,
		Event:     event.Type,
		TabKey:    event.TabKey,
		CellID:    event.CellID,
		Snapshot:  &snapshot,
		Timestamp: h.now(),
	})
}

// Subscribe registers a subscriber for a user.
func (h *Hub) Subscribe(userID schema.UserID) (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	uh := h.getOrCreateUserHubLocked(userID)
	ch := make(chan StreamEvent, 64)
	uh.subs[ch] = struct{}{}
	seq := uh.seq
	log := logx.WithUser(context.Background(), userID)
	log.Info("hub subscribe", "subs", len(uh.subs), "seq", seq)
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(uh.subs, ch)
			close(ch)
			remaining := len(uh.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(userID schema.UserID, after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	uh := h.users[userID]
	if uh == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(uh.history))
	for _, event := range uh.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.WithUser(context.Background(), userID).Debug("hub replay", "after", after, "count", len(events))
	return events
}

// Subscribers reports the live subscriber count for a user.
func (h *Hub) Subscribers(userID schema.UserID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if uh := h.users[userID]; uh != nil {
		return len(uh.subs)
	}
	return 0
}

func (h *Hub) publish(userID schema.UserID, event StreamEvent) {
	h.mu.Lock()
	uh := h.getOrCreateUserHubLocked(userID)
	uh.seq++
	event.Seq = uh.seq
	uh.history = append(uh.history, event)
	if len(uh.history) > h.historySize {
		uh.history = uh.history[len(uh.history)-h.historySize:]
	}
	dropped := 0
	for sub := range uh.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.WithUser(context.Background(), userID).Warn("hub event dropped", "type", event.Event, "dropped", dropped)
	}
}

func (h *Hub) getOrCreateUserHubLocked(userID schema.UserID) *userHub {
	uh := h.users[userID]
	if uh == nil {
		uh = &userHub{
			subs: make(map[chan StreamEvent]struct{}),
		}
		h.users[userID] = uh
	}
	return uh
}

type userHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
