package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// BreakpointSpec defines a responsive width tier.
type BreakpointSpec struct {
	Name     BreakpointName
	Columns  int
	MinWidth int
}

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	// StateDir holds per-user workspace files; empty keeps state in memory only.
	StateDir          string
	HomeView          ViewType
	PlaceholderView   ViewType
	Breakpoints       []BreakpointSpec
	DefaultBreakpoint BreakpointName
	// DisableAuditLogging disables audit trail debug logs for commands.
	DisableAuditLogging bool
}

// DefaultBreakpoints mirrors the usual lg/md/sm/xs/xxs responsive grid tiers.
func DefaultBreakpoints() []BreakpointSpec {
	return []BreakpointSpec{
		{Name: "lg", Columns: 12, MinWidth: 1200},
		{Name: "md", Columns: 10, MinWidth: 996},
		{Name: "sm", Columns: 6, MinWidth: 768},
		{Name: "xs", Columns: 4, MinWidth: 480},
		{Name: "xxs", Columns: 2, MinWidth: 0},
	}
}

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if strings.TrimSpace(string(cfg.HomeView)) == "" {
		cfg.HomeView = ViewDashboard
	}
	if strings.TrimSpace(string(cfg.PlaceholderView)) == "" {
		cfg.PlaceholderView = ViewNewTab
	}
	if cfg.HomeView == cfg.PlaceholderView {
		return ServiceConfig{}, errors.New("home view and placeholder view must differ")
	}
	if len(cfg.Breakpoints) == 0 {
		cfg.Breakpoints = DefaultBreakpoints()
	}
	seen := make(map[BreakpointName]struct{}, len(cfg.Breakpoints))
	breakpoints := make([]BreakpointSpec, 0, len(cfg.Breakpoints))
	for _, bp := range cfg.Breakpoints {
		name := BreakpointName(strings.TrimSpace(string(bp.Name)))
		if name == "" {
			return ServiceConfig{}, errors.New("breakpoint name is required")
		}
		if _, ok := seen[name]; ok {
			return ServiceConfig{}, fmt.Errorf("duplicate breakpoint %q", name)
		}
		if bp.Columns <= 0 {
			return ServiceConfig{}, fmt.Errorf("breakpoint %q must have at least one column", name)
		}
		if bp.MinWidth < 0 {
			return ServiceConfig{}, fmt.Errorf("breakpoint %q min width must not be negative", name)
		}
		seen[name] = struct{}{}
		bp.Name = name
		breakpoints = append(breakpoints, bp)
	}
	sort.SliceStable(breakpoints, func(i, j int) bool {
		return breakpoints[i].MinWidth > breakpoints[j].MinWidth
	})
	cfg.Breakpoints = breakpoints
	if cfg.DefaultBreakpoint == "" {
		cfg.DefaultBreakpoint = breakpoints[0].Name
	}
	if _, ok := seen[cfg.DefaultBreakpoint]; !ok {
		return ServiceConfig{}, fmt.Errorf("default breakpoint %q is not configured", cfg.DefaultBreakpoint)
	}
	return cfg, nil
}
