package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// TabSessionConfig configures a TabSession.
type TabSessionConfig struct {
	Registry        *ViewRegistry
	HomeView        schema.ViewType
	PlaceholderView schema.ViewType
	Logger          pslog.Logger
	Now             func() time.Time
}

type openTab struct {
	key      schema.TabKey
	viewType schema.ViewType
	title    string
	context  schema.ViewContext
}

// TabSession is the ordered collection of open tabs. It always holds at least
// one tab and activeIndex always points inside the collection.
type TabSession struct {
	registry    *ViewRegistry
	home        schema.ViewType
	placeholder schema.ViewType
	tabs        []openTab
	active      int
	pinned      map[schema.TabKey]struct{}
	now         func() time.Time
	log         pslog.Logger
}

// NewTabSession constructs a session holding a single home tab.
func NewTabSession(cfg TabSessionConfig) (*TabSession, error) {
	if cfg.Registry == nil {
		return nil, errors.New("view registry is required")
	}
	if cfg.HomeView == "" {
		cfg.HomeView = schema.ViewDashboard
	}
	if cfg.PlaceholderView == "" {
		cfg.PlaceholderView = schema.ViewNewTab
	}
	if _, err := cfg.Registry.Resolve(cfg.HomeView); err != nil {
		return nil, fmt.Errorf("home view: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.Ctx(context.Background())
	}
	s := &TabSession{
		registry:    cfg.Registry,
		home:        cfg.HomeView,
		placeholder: cfg.PlaceholderView,
		pinned:      make(map[schema.TabKey]struct{}),
		now:         cfg.Now,
		log:         cfg.Logger,
	}
	s.tabs = []openTab{s.homeTab()}
	return s, nil
}

// Open activates the tab matching (type, context) or appends a new one.
// The placeholder type never matches an existing tab.
func (s *TabSession) Open(viewType schema.ViewType, title string, viewCtx schema.ViewContext) (schema.TabKey, bool, error) {
	desc, err := s.registry.Resolve(viewType)
	if err != nil {
		s.log.Warn("tabs open rejected", "type", viewType, "reason", "unknown view")
		return "", false, err
	}
	if viewType != s.placeholder {
		for i, tab := range s.tabs {
			if tab.viewType == viewType && schema.ContextEqual(tab.context, viewCtx) {
				s.active = i
				s.log.Debug("tabs open matched existing", "type", viewType, "tab", tab.key, "index", i)
				return tab.key, false, nil
			}
		}
	}
	tab := s.newTab(desc, title, viewCtx)
	s.tabs = append(s.tabs, tab)
	s.active = len(s.tabs) - 1
	s.log.Debug("tabs opened", "type", viewType, "tab", tab.key, "index", s.active)
	return tab.key, true, nil
}

// OpenNew appends and activates a fresh placeholder tab.
func (s *TabSession) OpenNew() (schema.TabKey, error) {
	key, _, err := s.Open(s.placeholder, "", nil)
	return key, err
}

// Close removes the tab at index and prunes its pin. Closing the last tab
// reopens the home tab.
func (s *TabSession) Close(index int) (schema.TabSnapshot, error) {
	if index < 0 || index >= len(s.tabs) {
		s.log.Warn("tabs close rejected", "index", index, "tabs", len(s.tabs), "reason", "index out of range")
		return schema.TabSnapshot{}, fmt.Errorf("%w: %d", schema.ErrIndexOutOfRange, index)
	}
	closed := s.snapshotAt(index)
	s.tabs = slices.Delete(s.tabs, index, index+1)
	delete(s.pinned, closed.Key)
	switch {
	case len(s.tabs) == 0:
		s.tabs = []openTab{s.homeTab()}
		s.active = 0
	case index == s.active:
		s.active = max(0, index-1)
	case index < s.active:
		s.active--
	}
	s.log.Debug("tabs closed", "tab", closed.Key, "index", index, "active", s.active)
	return closed, nil
}

// CloseKey closes the tab with key.
func (s *TabSession) CloseKey(key schema.TabKey) (schema.TabSnapshot, error) {
	index := s.IndexOf(key)
	if index < 0 {
		s.log.Warn("tabs close rejected", "tab", key, "reason", "unknown key")
		return schema.TabSnapshot{}, fmt.Errorf("%w: %q", schema.ErrTabNotFound, key)
	}
	return s.Close(index)
}

// Activate sets the active index.
func (s *TabSession) Activate(index int) error {
	if index < 0 || index >= len(s.tabs) {
		s.log.Warn("tabs activate rejected", "index", index, "tabs", len(s.tabs), "reason", "index out of range")
		return fmt.Errorf("%w: %d", schema.ErrIndexOutOfRange, index)
	}
	s.active = index
	return nil
}

// ActivateKey activates the tab with key.
func (s *TabSession) ActivateKey(key schema.TabKey) error {
	index := s.IndexOf(key)
	if index < 0 {
		s.log.Warn("tabs activate rejected", "tab", key, "reason", "unknown key")
		return fmt.Errorf("%w: %q", schema.ErrTabNotFound, key)
	}
	s.active = index
	return nil
}

// TogglePin flips the pin on key and reports the new state. Tab order is unchanged.
func (s *TabSession) TogglePin(key schema.TabKey) (bool, error) {
	if s.IndexOf(key) < 0 {
		s.log.Warn("tabs pin rejected", "tab", key, "reason", "unknown key")
		return false, fmt.Errorf("%w: %q", schema.ErrTabNotFound, key)
	}
	if _, ok := s.pinned[key]; ok {
		delete(s.pinned, key)
		return false, nil
	}
	s.pinned[key] = struct{}{}
	return true, nil
}

// IndexOf returns the position of key or -1.
func (s *TabSession) IndexOf(key schema.TabKey) int {
	for i, tab := range s.tabs {
		if tab.key == key {
			return i
		}
	}
	return -1
}

// Len returns the number of open tabs.
func (s *TabSession) Len() int {
	return len(s.tabs)
}

// ActiveIndex returns the active position.
func (s *TabSession) ActiveIndex() int {
	return s.active
}

// Active returns the active tab.
func (s *TabSession) Active() schema.TabSnapshot {
	return s.snapshotAt(s.active)
}

// At returns the tab at index.
func (s *TabSession) At(index int) (schema.TabSnapshot, error) {
	if index < 0 || index >= len(s.tabs) {
		return schema.TabSnapshot{}, fmt.Errorf("%w: %d", schema.ErrIndexOutOfRange, index)
	}
	return s.snapshotAt(index), nil
}

// Tabs returns all open tabs in order.
func (s *TabSession) Tabs() []schema.TabSnapshot {
	out := make([]schema.TabSnapshot, 0, len(s.tabs))
	for i := range s.tabs {
		out = append(out, s.snapshotAt(i))
	}
	return out
}

// Pinned returns pinned keys in tab order.
func (s *TabSession) Pinned() []schema.TabKey {
	out := make([]schema.TabKey, 0, len(s.pinned))
	for _, tab := range s.tabs {
		if _, ok := s.pinned[tab.key]; ok {
			out = append(out, tab.key)
		}
	}
	return out
}

// Partition splits tabs into the fixed pinned region and the scrollable remainder,
// each in tab order.
func (s *TabSession) Partition() (pinned []schema.TabSnapshot, scrollable []schema.TabSnapshot) {
	for _, tab := range s.Tabs() {
		if tab.Pinned {
			pinned = append(pinned, tab)
		} else {
			scrollable = append(scrollable, tab)
		}
	}
	return pinned, scrollable
}

// Restore replaces the session with persisted tabs. Tabs with unknown types or
// duplicate keys are dropped; the home tab is reseeded when nothing survives.
// It returns the number of dropped tabs.
func (s *TabSession) Restore(tabs []schema.TabSnapshot, activeIndex int) int {
	var activeKey schema.TabKey
	if activeIndex >= 0 && activeIndex < len(tabs) {
		activeKey = tabs[activeIndex].Key
	}
	restored := make([]openTab, 0, len(tabs))
	pinned := make(map[schema.TabKey]struct{})
	seen := make(map[schema.TabKey]struct{}, len(tabs))
	dropped := 0
	for _, snap := range tabs {
		if snap.Key == "" {
			dropped++
			continue
		}
		if _, ok := seen[snap.Key]; ok {
			dropped++
			continue
		}
		desc, err := s.registry.Resolve(snap.Type)
		if err != nil {
			s.log.Warn("tabs restore dropped tab", "tab", snap.Key, "type", snap.Type, "reason", "unknown view")
			dropped++
			continue
		}
		seen[snap.Key] = struct{}{}
		title := snap.Title
		if title == "" {
			title = desc.DefaultTitle
		}
		restored = append(restored, openTab{
			key:      snap.Key,
			viewType: snap.Type,
			title:    title,
			context:  schema.CloneContext(snap.Context),
		})
		if snap.Pinned {
			pinned[snap.Key] = struct{}{}
		}
	}
	s.pinned = pinned
	if len(restored) == 0 {
		s.tabs = []openTab{s.homeTab()}
		s.active = 0
		return dropped
	}
	s.tabs = restored
	s.active = 0
	if index := s.IndexOf(activeKey); index >= 0 {
		s.active = index
	} else if activeIndex > 0 {
		s.active = min(activeIndex, len(s.tabs)-1)
	}
	return dropped
}

func (s *TabSession) snapshotAt(index int) schema.TabSnapshot {
	tab := s.tabs[index]
	_, pinned := s.pinned[tab.key]
	return schema.TabSnapshot{
		Key:     tab.key,
		Type:    tab.viewType,
		Title:   tab.title,
		Context: schema.CloneContext(tab.context),
		Pinned:  pinned,
		Active:  index == s.active,
		Index:   index,
	}
}

func (s *TabSession) homeTab() openTab {
	desc, err := s.registry.Resolve(s.home)
	if err != nil {
		desc = ViewDescriptor{Type: s.home, DefaultTitle: string(s.home)}
	}
	return s.newTab(desc, "", nil)
}

func (s *TabSession) newTab(desc ViewDescriptor, title string, viewCtx schema.ViewContext) openTab {
	if title == "" {
		title = desc.DefaultTitle
	}
	viewCtx = schema.CloneContext(viewCtx)
	return openTab{
		key:      s.newKey(desc.Type, viewCtx),
		viewType: desc.Type,
		title:    title,
		context:  viewCtx,
	}
}

func (s *TabSession) newKey(viewType schema.ViewType, viewCtx schema.ViewContext) schema.TabKey {
	base := fmt.Sprintf("%s-%s-%d", viewType, schema.CanonicalContext(viewCtx), s.now().UnixMilli())
	key := schema.TabKey(base)
	for n := 2; s.IndexOf(key) >= 0; n++ {
		key = schema.TabKey(fmt.Sprintf("%s-%d", base, n))
	}
	return key
}
