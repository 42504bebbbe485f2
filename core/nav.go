package core

import (
	"fmt"
	"sort"

	"pkt.systems/pmdesk/schema"
)

// NavEntry binds a sidebar index to its canonical view and any sub-views that
// highlight the same item.
type NavEntry struct {
	Index   int
	Type    schema.ViewType
	Label   string
	Aliases []schema.ViewType
}

// DefaultNavEntries is the console sidebar.
func DefaultNavEntries() []NavEntry {
	return []NavEntry{
		{Index: 0, Type: schema.ViewDashboard, Label: "Dashboard"},
		{Index: 1, Type: schema.ViewCompanies, Label: "Companies", Aliases: []schema.ViewType{schema.ViewCompanyDetails}},
		{Index: 2, Type: schema.ViewProjects, Label: "Projects", Aliases: []schema.ViewType{schema.ViewCompanyProjects, schema.ViewProjectDetails}},
		{Index: 3, Type: schema.ViewTeams, Label: "Teams", Aliases: []schema.ViewType{schema.ViewTeamDetails}},
		{Index: 4, Type: schema.ViewTasks, Label: "Tasks", Aliases: []schema.ViewType{schema.ViewTaskDetails}},
		{Index: 5, Type: schema.ViewCalendar, Label: "Calendar"},
		{Index: 6, Type: schema.ViewReports, Label: "Reports"},
	}
}

// NavMap is the static bidirectional sidebar mapping. Each index has one
// canonical type; a type maps back to at most one index.
type NavMap struct {
	entries []NavEntry
	byIndex map[int]schema.ViewType
	byType  map[schema.ViewType]int
}

// NewNavMap validates entries against the registry.
func NewNavMap(registry *ViewRegistry, entries []NavEntry) (*NavMap, error) {
	m := &NavMap{
		byIndex: make(map[int]schema.ViewType, len(entries)),
		byType:  make(map[schema.ViewType]int),
	}
	for _, entry := range entries {
		if entry.Index < 0 {
			return nil, fmt.Errorf("nav index %d: must be non-negative", entry.Index)
		}
		if _, ok := m.byIndex[entry.Index]; ok {
			return nil, fmt.Errorf("nav index %d: duplicate", entry.Index)
		}
		types := append([]schema.ViewType{entry.Type}, entry.Aliases...)
		for _, viewType := range types {
			if _, err := registry.Resolve(viewType); err != nil {
				return nil, fmt.Errorf("nav index %d: %w", entry.Index, err)
			}
			if prev, ok := m.byType[viewType]; ok {
				return nil, fmt.Errorf("nav type %q mapped to %d and %d", viewType, prev, entry.Index)
			}
			m.byType[viewType] = entry.Index
		}
		if entry.Label == "" {
			desc, _ := registry.Resolve(entry.Type)
			entry.Label = desc.DefaultTitle
		}
		entry.Aliases = append([]schema.ViewType(nil), entry.Aliases...)
		m.byIndex[entry.Index] = entry.Type
		m.entries = append(m.entries, entry)
	}
	return m, nil
}

// TypeFor returns the canonical view for a sidebar index.
func (m *NavMap) TypeFor(index int) (schema.ViewType, error) {
	viewType, ok := m.byIndex[index]
	if !ok {
		return "", fmt.Errorf("%w: %d", schema.ErrUnknownNavIndex, index)
	}
	return viewType, nil
}

// IndexFor returns the sidebar index that highlights viewType, or -1.
func (m *NavMap) IndexFor(viewType schema.ViewType) int {
	if index, ok := m.byType[viewType]; ok {
		return index
	}
	return -1
}

// Items lists sidebar items in index order.
func (m *NavMap) Items() []schema.NavItem {
	out := make([]schema.NavItem, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, schema.NavItem{
			Index:   entry.Index,
			Type:    entry.Type,
			Label:   entry.Label,
			Aliases: append([]schema.ViewType(nil), entry.Aliases...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
