package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// Bus fanouts workspace events to per-user subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.UserID]map[chan schema.WorkspaceEvent]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.UserID]map[chan schema.WorkspaceEvent]struct{}),
		log:   logger,
		depth: 64,
	}
}

// Subscribe registers a subscriber for the user and returns a channel + cancel.
func (b *Bus) Subscribe(userID schema.UserID) (<-chan schema.WorkspaceEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.WorkspaceEvent, b.depth)
	b.mu.Lock()
	userSubs := b.subs[userID]
	if userSubs == nil {
		userSubs = make(map[chan schema.WorkspaceEvent]struct{})
		b.subs[userID] = userSubs
	}
	userSubs[ch] = struct{}{}
	count := len(userSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("user", userID).Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[userID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, userID)
				}
			}
			close(ch)
			b.mu.Unlock()
			if b.log != nil {
				b.log.With("user", userID).Debug("eventbus unsubscribe")
			}
		})
	}
}

// Subscribers reports how many subscribers a user has.
func (b *Bus) Subscribers(userID schema.UserID) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// OnWorkspaceEvent publishes a workspace event to the user's subscribers.
// Slow subscribers miss events instead of blocking the publisher.
func (b *Bus) OnWorkspaceEvent(event schema.WorkspaceEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	userSubs := b.subs[event.UserID]
	if len(userSubs) == 0 {
		return
	}
	dropped := 0
	for sub := range userSubs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.With("user", event.UserID).Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}
