package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTask    ResultType = "task"
	ResultProject ResultType = "project"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// Scope bounds a search to what the requesting user may see: the projects
// they own or are shared into, plus their own inbox tasks. It is computed by
// the caller before the query runs; the index itself never decides access.
type Scope struct {
	UserID     string
	ProjectIDs []string
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Scope      Scope
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TaskRecord is the data we index for a task. ProjectID is empty for inbox
// tasks, which are visible only to their owner.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	OwnerID     string `json:"ownerId"`
	Status      string `json:"status"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
	Archived    bool   `json:"archived"`
}
