package views

import (
	"pkt.systems/pmdesk/internal/backend"
	"pkt.systems/pmdesk/schema"
)

func detailLink(viewType schema.ViewType, titleField string) linkFunc {
	return func(row backend.Record) (schema.DragPayload, bool) {
		id := row.ID()
		if id == "" {
			return schema.DragPayload{}, false
		}
		return schema.DragPayload{Type: viewType, Title: row.String(titleField), Context: schema.ViewContext{"id": id}}, true
	}
}

func companyProjectsLink(row backend.Record) (schema.DragPayload, bool) {
	id := row.ID()
	if id == "" {
		return schema.DragPayload{}, false
	}
	return companyProjects(id, row.String("name")), true
}

func companyProjects(companyID, name string) schema.DragPayload {
	title := "Company Projects"
	if name != "" {
		title = name + " Projects"
	}
	return schema.DragPayload{Type: schema.ViewCompanyProjects, Title: title, Context: schema.ViewContext{"companyId": companyID}}
}

func companyLinks(row backend.Record) []schema.DragPayload {
	return []schema.DragPayload{companyProjects(row.ID(), row.String("name"))}
}

func projectLinks(row backend.Record) []schema.DragPayload {
	var links []schema.DragPayload
	if companyID := row.String("companyId"); companyID != "" {
		links = append(links, schema.DragPayload{Type: schema.ViewCompanyDetails, Context: schema.ViewContext{"id": companyID}})
	}
	title := "Tasks"
	if name := row.String("name"); name != "" {
		title = name + " Tasks"
	}
	return append(links, schema.DragPayload{Type: schema.ViewTasks, Title: title, Context: schema.ViewContext{"projectId": row.ID()}})
}

func teamLinks(row backend.Record) []schema.DragPayload {
	title := "Tasks"
	if name := row.String("name"); name != "" {
		title = name + " Tasks"
	}
	return []schema.DragPayload{{Type: schema.ViewTasks, Title: title, Context: schema.ViewContext{"teamId": row.ID()}}}
}

func taskLinks(row backend.Record) []schema.DragPayload {
	projectID := row.String("projectId")
	if projectID == "" {
		return nil
	}
	return []schema.DragPayload{{Type: schema.ViewProjectDetails, Context: schema.ViewContext{"id": projectID}}}
}
