// Package export renders project snapshots to HTML, PDF and YAML. The YAML
// form doubles as the archive snapshot format and the bulk import format.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatYAML Format = "yaml"
)

// TaskView is the export-facing shape of a task. Dates are formatted as
// YYYY-MM-DD strings so the YAML form stays editable by hand.
type TaskView struct {
	ID          string     `yaml:"id,omitempty"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description,omitempty"`
	Status      string     `yaml:"status"`
	Priority    int        `yaml:"priority,omitempty"`
	DueOn       string     `yaml:"dueOn,omitempty"`
	ScheduledOn string     `yaml:"scheduledOn,omitempty"`
	Recurrence  string     `yaml:"recurrence,omitempty"`
	Blocked     bool       `yaml:"blocked,omitempty"`
	Subtasks    []TaskView `yaml:"subtasks,omitempty"`
}

// SectionView groups tasks under a named section.
type SectionView struct {
	ID    string     `yaml:"id,omitempty"`
	Name  string     `yaml:"name"`
	Tasks []TaskView `yaml:"tasks,omitempty"`
}

// ProjectView is one project with its sections and unsectioned tasks.
type ProjectView struct {
	ID          string        `yaml:"id,omitempty"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Archived    bool          `yaml:"archived,omitempty"`
	Sections    []SectionView `yaml:"sections,omitempty"`
	Tasks       []TaskView    `yaml:"tasks,omitempty"`
	Children    []ProjectView `yaml:"children,omitempty"`
}

// Snapshot is everything one user can export: their project tree plus the
// private inbox.
type Snapshot struct {
	ExportedAt time.Time     `yaml:"exportedAt"`
	Owner      string        `yaml:"owner,omitempty"`
	Projects   []ProjectView `yaml:"projects"`
	Inbox      []TaskView    `yaml:"inbox,omitempty"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
