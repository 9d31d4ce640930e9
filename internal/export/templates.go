package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var projectTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	projectTemplate = template.Must(template.New("project").Funcs(funcMap).Parse(projectTemplateHTML))
}

// TemplateData holds data for project template rendering
type TemplateData struct {
	Project    ProjectView
	Owner      string
	ExportedAt time.Time
}

// RenderProjectHTML renders the project template with provided data
func RenderProjectHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := projectTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const projectTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Project.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #cc6600; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; border-bottom: 1px solid #ddd; padding-bottom: 0.25rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    ul.tasks { list-style: none; padding-left: 0; }
    ul.tasks ul.tasks { padding-left: 1.5rem; }
    li.task { padding: 0.35rem 0; border-bottom: 1px dotted #eee; }
    .status { display: inline-block; min-width: 4.5rem; font-size: 0.8em; text-transform: uppercase; color: #666; }
    .status-done { color: #2a7a2a; }
    .status-cancelled { color: #999; text-decoration: line-through; }
    .badge { display: inline-block; padding: 0 6px; margin-left: 4px; background: #f4ede4; border-radius: 8px; font-size: 0.75em; }
    .badge-blocked { background: #f7dede; }
    .desc { color: #555; font-size: 0.9em; margin: 0.1rem 0 0 4.6rem; }
  </style>
</head>
<body>
  <h1>{{.Project.Name}}</h1>
  {{if .Project.Description}}<p>{{.Project.Description}}</p>{{end}}
  <div class="meta">{{.Owner}} | exported {{formatDate .ExportedAt "Jan 2, 2006 15:04"}}{{if .Project.Archived}} | archived{{end}}</div>

  {{define "tasklist"}}
  <ul class="tasks">
    {{range .}}
    <li class="task">
      <span class="status status-{{lower .Status}}">{{.Status}}</span>
      {{.Title}}
      {{if .DueOn}}<span class="badge">due {{.DueOn}}</span>{{end}}
      {{if .ScheduledOn}}<span class="badge">scheduled {{.ScheduledOn}}</span>{{end}}
      {{if .Recurrence}}<span class="badge">{{.Recurrence}}</span>{{end}}
      {{if .Blocked}}<span class="badge badge-blocked">blocked</span>{{end}}
      {{if .Description}}<div class="desc">{{.Description}}</div>{{end}}
      {{if .Subtasks}}{{template "tasklist" .Subtasks}}{{end}}
    </li>
    {{end}}
  </ul>
  {{end}}

  {{if .Project.Tasks}}{{template "tasklist" .Project.Tasks}}{{end}}
  {{range .Project.Sections}}
  <h2>{{.Name}}</h2>
  {{if .Tasks}}{{template "tasklist" .Tasks}}{{else}}<p class="meta">No tasks.</p>{{end}}
  {{end}}
</body>
</html>`
