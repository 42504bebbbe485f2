// Package views defines the console's view table and its CRUD-backed renderers.
package views

import (
	"context"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/backend"
	"pkt.systems/pmdesk/schema"
)

// Source is the record access the renderers need.
type Source interface {
	List(ctx context.Context, table string, filters map[string]string) ([]backend.Record, error)
	Get(ctx context.Context, table, id string) (backend.Record, error)
}

// Options configures the default registry.
type Options struct {
	// Source may be nil; data views then render an offline notice.
	Source Source
	// DefaultCell applies to views that do not declare their own footprint.
	DefaultCell core.CellSize
}

// Backend tables read by the renderers.
const (
	TableCompanies = "companies"
	TableProjects  = "projects"
	TableTeams     = "teams"
	TableTasks     = "tasks"
	TableEvents    = "events"
)

// NewRegistry returns the console's view registry.
func NewRegistry(opts Options) (*core.ViewRegistry, error) {
	r := renderers{source: opts.Source}
	list := opts.DefaultCell
	detail := core.CellSize{W: 4, H: 4, MinW: 3, MinH: 3}
	return core.NewViewRegistry(
		core.ViewDescriptor{Type: schema.ViewDashboard, DefaultTitle: "Dashboard", Render: r.dashboard, Cell: core.CellSize{W: 12, H: 6, MinW: 6, MinH: 4}},
		core.ViewDescriptor{Type: schema.ViewNewTab, DefaultTitle: "New Tab", Render: r.newTab, Cell: core.CellSize{W: 4, H: 2, MinW: 2, MinH: 2}},
		core.ViewDescriptor{Type: schema.ViewCompanies, DefaultTitle: "Companies", Render: r.list(TableCompanies, "name", "industry", companyProjectsLink), Cell: list},
		core.ViewDescriptor{Type: schema.ViewCompanyDetails, DefaultTitle: "Company", Render: r.detail(TableCompanies, companyLinks, "name", "industry", "website", "phone"), Cell: detail},
		core.ViewDescriptor{Type: schema.ViewProjects, DefaultTitle: "Projects", Render: r.list(TableProjects, "name", "status", detailLink(schema.ViewProjectDetails, "name")), Cell: list},
		core.ViewDescriptor{Type: schema.ViewCompanyProjects, DefaultTitle: "Company Projects", Render: r.list(TableProjects, "name", "status", detailLink(schema.ViewProjectDetails, "name")), Cell: list},
		core.ViewDescriptor{Type: schema.ViewProjectDetails, DefaultTitle: "Project", Render: r.detail(TableProjects, projectLinks, "name", "status", "startDate", "endDate", "description"), Cell: detail},
		core.ViewDescriptor{Type: schema.ViewTeams, DefaultTitle: "Teams", Render: r.list(TableTeams, "name", "lead", detailLink(schema.ViewTeamDetails, "name")), Cell: list},
		core.ViewDescriptor{Type: schema.ViewTeamDetails, DefaultTitle: "Team", Render: r.detail(TableTeams, teamLinks, "name", "lead", "description"), Cell: detail},
		core.ViewDescriptor{Type: schema.ViewTasks, DefaultTitle: "Tasks", Render: r.list(TableTasks, "title", "status", detailLink(schema.ViewTaskDetails, "title")), Cell: list},
		core.ViewDescriptor{Type: schema.ViewTaskDetails, DefaultTitle: "Task", Render: r.detail(TableTasks, taskLinks, "title", "status", "priority", "assignee", "dueDate"), Cell: detail},
		core.ViewDescriptor{Type: schema.ViewCalendar, DefaultTitle: "Calendar", Render: r.calendar, Cell: core.CellSize{W: 8, H: 6, MinW: 4, MinH: 4}},
		core.ViewDescriptor{Type: schema.ViewReports, DefaultTitle: "Reports", Render: r.reports, Cell: core.CellSize{W: 6, H: 5, MinW: 4, MinH: 3}},
	)
}
