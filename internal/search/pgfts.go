package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across tasks and projects using
// plainto_tsquery and ts_rank, with ts_headline for snippets. Scope
// restrictions are part of the WHERE clauses, so rows outside the caller's
// visible set never surface.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	placeholders := func(n int) []string {
		ps := make([]string, n)
		for i := range ps {
			ps[i] = fmt.Sprintf("$%d", argN)
			argN++
		}
		return ps
	}

	var subQueries []string

	// Tasks sub-query
	if q.FilterType == "" || q.FilterType == ResultTask {
		inboxClause := fmt.Sprintf("(t.owner_id = $%d AND t.project_id IS NULL)", argN)
		args = append(args, q.Scope.UserID)
		argN++

		scopeClause := inboxClause
		if len(q.Scope.ProjectIDs) > 0 {
			ps := placeholders(len(q.Scope.ProjectIDs))
			for _, id := range q.Scope.ProjectIDs {
				args = append(args, id)
			}
			scopeClause = fmt.Sprintf("(t.project_id IN (%s) OR %s)", strings.Join(ps, ","), inboxClause)
		}

		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.title,
				ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(t.project_id, '') AS project_id, t.status,
				ts_rank(t.fts, %s) AS rank
			FROM tasks t
			WHERE t.fts @@ %s AND %s`, tsQuery, tsQuery, tsQuery, scopeClause))
	}

	// Projects sub-query
	if q.FilterType == "" || q.FilterType == ResultProject {
		if len(q.Scope.ProjectIDs) > 0 {
			ps := placeholders(len(q.Scope.ProjectIDs))
			for _, id := range q.Scope.ProjectIDs {
				args = append(args, id)
			}
			subQueries = append(subQueries, fmt.Sprintf(`
				SELECT 'project'::text AS type, p.id, p.name AS title,
					ts_headline('english', coalesce(p.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
					p.id AS project_id, ''::text AS status,
					ts_rank(p.fts, %s) AS rank
				FROM projects p
				WHERE p.fts @@ %s AND p.id IN (%s)`, tsQuery, tsQuery, tsQuery, strings.Join(ps, ",")))
		}
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TaskRecord, []ProjectRecord, error) {
	taskRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(description, ''), coalesce(project_id, ''), owner_id, status
		FROM tasks
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	tasks := make([]TaskRecord, 0)
	for taskRows.Next() {
		var t TaskRecord
		if err := taskRows.Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &t.OwnerID, &t.Status); err != nil {
			return nil, nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}

	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, ''), owner_id, archived
		FROM projects
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var pr ProjectRecord
		if err := projectRows.Scan(&pr.ID, &pr.Name, &pr.Description, &pr.OwnerID, &pr.Archived); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, pr)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	return tasks, projects, nil
}
