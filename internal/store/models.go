package store

import "time"

// Task status values. Stored as text; validated at the mutation boundary.
const (
	StatusOpen      = "open"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Project is owned exclusively by its creator; ownership never transfers.
// ParentID forms a forest, never a graph; cycle checks run at write time.
type Project struct {
	ID          string
	OwnerID     string
	ParentID    *string
	Name        string
	Description string
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectShare grants one user a permission level on one project. Grants do
// not propagate to child projects.
type ProjectShare struct {
	ID        string
	ProjectID string
	UserID    string
	Level     string
	GrantedBy string
	GrantedAt time.Time
	// Joined fields for API responses
	UserEmail string
	UserName  string
}

type Section struct {
	ID        string
	ProjectID string
	Name      string
	SortOrder int
	CreatedAt time.Time
}

// Task's blocked state is never stored: it is derived from BlockedBy and the
// predecessor's status. A nil ProjectID puts the task in its owner's Inbox.
type Task struct {
	ID             string
	OwnerID        string
	ProjectID      *string
	SectionID      *string
	ParentID       *string
	Title          string
	Description    string
	Status         string
	Priority       int
	ScheduledOn    *time.Time
	DueOn          *time.Time
	RecurrenceRule string
	RecurrenceBase *time.Time
	BlockedBy      *string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Recurring reports whether completing the task should spawn a successor.
func (t Task) Recurring() bool {
	return t.RecurrenceRule != ""
}

// Inbox reports whether the task lives in its owner's private inbox.
func (t Task) Inbox() bool {
	return t.ProjectID == nil
}

type Attachment struct {
	ID          string
	TaskID      string
	FileName    string
	ContentType string
	Size        int64
	ObjectKey   string
	UploadedBy  string
	CreatedAt   time.Time
}

// TaskFilter narrows ListTasks. InboxOwner and ProjectIDs are combined with
// OR: tasks in any listed project, plus inbox tasks of that owner.
type TaskFilter struct {
	InboxOwner    string
	ProjectIDs    []string
	Status        string
	DueOnOrBefore *time.Time
	ScheduledOn   *time.Time
}
