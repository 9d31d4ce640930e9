package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh sessions and token revocation (Postgres fallback when Redis is not
// configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Projects

const projectColumns = `id, owner_id, parent_id, name, description, archived, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.ParentID, &p.Name, &p.Description, &p.Archived, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) InsertProject(ctx context.Context, p Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, parent_id, name, description, archived)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.OwnerID, p.ParentID, p.Name, p.Description, p.Archived)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, projectID)
	return scanProject(row)
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p Project) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET parent_id=$2, name=$3, description=$4, archived=$5, updated_at=NOW()
		WHERE id=$1
	`, p.ID, p.ParentID, p.Name, p.Description, p.Archived)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// ListVisibleProjects returns projects the user owns plus projects shared
// with the user. Share grants never extend to child projects, so no
// hierarchy traversal happens here.
func (s *PostgresStore) ListVisibleProjects(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE owner_id = $1
			OR id IN (SELECT project_id FROM project_shares WHERE user_id = $1)
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list visible projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListChildProjects(ctx context.Context, parentID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE parent_id=$1 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list child projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// DeletedProjectTree describes the result of a cascading project delete.
type DeletedProjectTree struct {
	ProjectIDs   []string
	MovedTaskIDs []string
}

// DeleteProjectTree removes a project and its subprojects (collected
// iteratively, bounded depth), deletes their sections and shares, and moves
// their tasks to the owners' inboxes. Everything happens in one transaction.
func (s *PostgresStore) DeleteProjectTree(ctx context.Context, rootID string) (DeletedProjectTree, error) {
	var result DeletedProjectTree

	ids := []string{rootID}
	frontier := []string{rootID}
	for depth := 0; len(frontier) > 0 && depth < maxTreeDepth; depth++ {
		var next []string
		for _, id := range frontier {
			children, err := s.ListChildProjects(ctx, id)
			if err != nil {
				return DeletedProjectTree{}, err
			}
			for _, child := range children {
				ids = append(ids, child.ID)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	result.ProjectIDs = ids

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DeletedProjectTree{}, fmt.Errorf("begin delete project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	in, args := inClause(ids, 1)

	rows, err := tx.QueryContext(ctx, `
		UPDATE tasks SET project_id=NULL, section_id=NULL, updated_at=NOW()
		WHERE project_id IN (`+in+`)
		RETURNING id
	`, args...)
	if err != nil {
		return DeletedProjectTree{}, fmt.Errorf("move tasks to inbox: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return DeletedProjectTree{}, fmt.Errorf("scan moved task: %w", err)
		}
		result.MovedTaskIDs = append(result.MovedTaskIDs, id)
	}
	if err := rows.Close(); err != nil {
		return DeletedProjectTree{}, fmt.Errorf("close moved tasks: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE project_id IN (`+in+`)`, args...); err != nil {
		return DeletedProjectTree{}, fmt.Errorf("delete sections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_shares WHERE project_id IN (`+in+`)`, args...); err != nil {
		return DeletedProjectTree{}, fmt.Errorf("delete shares: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id IN (`+in+`)`, args...); err != nil {
		return DeletedProjectTree{}, fmt.Errorf("delete projects: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return DeletedProjectTree{}, fmt.Errorf("commit delete project: %w", err)
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Shares

func (s *PostgresStore) UpsertShare(ctx context.Context, share ProjectShare) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_shares (id, project_id, user_id, level, granted_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, user_id) DO UPDATE SET level=EXCLUDED.level, granted_by=EXCLUDED.granted_by, granted_at=NOW()
	`, share.ID, share.ProjectID, share.UserID, share.Level, share.GrantedBy)
	if err != nil {
		return fmt.Errorf("upsert share: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetShare(ctx context.Context, projectID, userID string) (ProjectShare, error) {
	var share ProjectShare
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, level, granted_by, granted_at
		FROM project_shares
		WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&share.ID, &share.ProjectID, &share.UserID, &share.Level, &share.GrantedBy, &share.GrantedAt)
	if err != nil {
		return ProjectShare{}, err
	}
	return share, nil
}

func (s *PostgresStore) ListShares(ctx context.Context, projectID string) ([]ProjectShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ps.id, ps.project_id, ps.user_id, ps.level, ps.granted_by, ps.granted_at, u.email, u.display_name
		FROM project_shares ps
		JOIN users u ON u.id = ps.user_id
		WHERE ps.project_id=$1
		ORDER BY ps.granted_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectShare, 0)
	for rows.Next() {
		var share ProjectShare
		if err := rows.Scan(&share.ID, &share.ProjectID, &share.UserID, &share.Level, &share.GrantedBy, &share.GrantedAt, &share.UserEmail, &share.UserName); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		items = append(items, share)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteShare(ctx context.Context, projectID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM project_shares WHERE project_id=$1 AND user_id=$2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sections

func (s *PostgresStore) InsertSection(ctx context.Context, section Section) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (id, project_id, name, sort_order)
		VALUES ($1, $2, $3, $4)
	`, section.ID, section.ProjectID, section.Name, section.SortOrder)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSection(ctx context.Context, sectionID string) (Section, error) {
	var section Section
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, sort_order, created_at FROM sections WHERE id=$1
	`, sectionID).Scan(&section.ID, &section.ProjectID, &section.Name, &section.SortOrder, &section.CreatedAt)
	if err != nil {
		return Section{}, err
	}
	return section, nil
}

func (s *PostgresStore) UpdateSection(ctx context.Context, section Section) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sections SET name=$2, sort_order=$3 WHERE id=$1
	`, section.ID, section.Name, section.SortOrder)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// DeleteSection removes a section; tasks keep their project and drop the
// section reference (FK ON DELETE SET NULL).
func (s *PostgresStore) DeleteSection(ctx context.Context, sectionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sections WHERE id=$1`, sectionID)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSections(ctx context.Context, projectID string) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, sort_order, created_at
		FROM sections WHERE project_id=$1 ORDER BY sort_order, created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]Section, 0)
	for rows.Next() {
		var section Section
		if err := rows.Scan(&section.ID, &section.ProjectID, &section.Name, &section.SortOrder, &section.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, section)
	}
	return items, rows.Err()
}

// ---------------------------------------------------------------------------
// Tasks

const taskColumns = `id, owner_id, project_id, section_id, parent_id, title, description,
	status, priority, scheduled_on, due_on, recurrence_rule, recurrence_base,
	blocked_by, completed_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.OwnerID, &t.ProjectID, &t.SectionID, &t.ParentID, &t.Title, &t.Description,
		&t.Status, &t.Priority, &t.ScheduledOn, &t.DueOn, &t.RecurrenceRule, &t.RecurrenceBase,
		&t.BlockedBy, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *PostgresStore) InsertTask(ctx context.Context, t Task) error {
	return insertTask(ctx, s.db, t)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTask(ctx context.Context, db execer, t Task) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, project_id, section_id, parent_id, title, description,
			status, priority, scheduled_on, due_on, recurrence_rule, recurrence_base, blocked_by, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, t.ID, t.OwnerID, t.ProjectID, t.SectionID, t.ParentID, t.Title, t.Description,
		t.Status, t.Priority, t.ScheduledOn, t.DueOn, t.RecurrenceRule, t.RecurrenceBase, t.BlockedBy, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID)
	return scanTask(row)
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET project_id=$2, section_id=$3, parent_id=$4, title=$5, description=$6,
			status=$7, priority=$8, scheduled_on=$9, due_on=$10,
			recurrence_rule=$11, recurrence_base=$12, blocked_by=$13, completed_at=$14,
			updated_at=NOW()
		WHERE id=$1
	`, t.ID, t.ProjectID, t.SectionID, t.ParentID, t.Title, t.Description,
		t.Status, t.Priority, t.ScheduledOn, t.DueOn,
		t.RecurrenceRule, t.RecurrenceBase, t.BlockedBy, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// CompleteTask marks a task done. Callers that need a recurrence successor
// use CompleteTaskWithSuccessor instead so both writes share a transaction.
func (s *PostgresStore) CompleteTask(ctx context.Context, taskID string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status='done', completed_at=$2, updated_at=NOW() WHERE id=$1
	`, taskID, completedAt)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// CompleteTaskWithSuccessor completes a recurring task and inserts its next
// occurrence atomically: a client can never observe the completion without
// the successor or vice versa.
func (s *PostgresStore) CompleteTaskWithSuccessor(ctx context.Context, taskID string, completedAt time.Time, successor Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status='done', completed_at=$2, updated_at=NOW() WHERE id=$1
	`, taskID, completedAt); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if err := insertTask(ctx, tx, successor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReopenTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status='open', completed_at=NULL, updated_at=NOW() WHERE id=$1
	`, taskID)
	if err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}
	return nil
}

// DeleteTask removes a task in one transaction: dependents' blocked_by is
// cleared (they become unblocked, not deleted) and subtasks are promoted to
// the deleted task's own parent.
func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete task tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET blocked_by=NULL, updated_at=NOW() WHERE blocked_by=$1`, taskID); err != nil {
		return fmt.Errorf("unlink dependents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET parent_id=(SELECT parent_id FROM tasks WHERE id=$1), updated_at=NOW() WHERE parent_id=$1
	`, taskID); err != nil {
		return fmt.Errorf("promote subtasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE task_id=$1`, taskID); err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete task: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDependents(ctx context.Context, taskID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE blocked_by=$1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// ListTasks returns tasks in any of the filter's projects, plus inbox tasks
// of the filter's inbox owner. Visibility scoping happens in the caller: the
// filter only ever carries projects the caller may read.
func (s *PostgresStore) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	var clauses []string
	var args []any
	argN := 1

	var scopes []string
	if f.InboxOwner != "" {
		scopes = append(scopes, fmt.Sprintf("(project_id IS NULL AND owner_id = $%d)", argN))
		args = append(args, f.InboxOwner)
		argN++
	}
	if len(f.ProjectIDs) > 0 {
		in, inArgs := inClause(f.ProjectIDs, argN)
		scopes = append(scopes, "project_id IN ("+in+")")
		args = append(args, inArgs...)
		argN += len(inArgs)
	}
	if len(scopes) == 0 {
		return []Task{}, nil
	}
	clauses = append(clauses, "("+strings.Join(scopes, " OR ")+")")

	if f.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", argN))
		args = append(args, f.Status)
		argN++
	}
	if f.DueOnOrBefore != nil {
		clauses = append(clauses, fmt.Sprintf("due_on IS NOT NULL AND due_on <= $%d", argN))
		args = append(args, *f.DueOnOrBefore)
		argN++
	}
	if f.ScheduledOn != nil {
		clauses = append(clauses, fmt.Sprintf("scheduled_on = $%d", argN))
		args = append(args, *f.ScheduledOn)
		argN++
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY priority DESC, due_on NULLS LAST, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// ---------------------------------------------------------------------------
// Attachments

func (s *PostgresStore) InsertAttachment(ctx context.Context, a Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, task_id, file_name, content_type, size, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.TaskID, a.FileName, a.ContentType, a.Size, a.ObjectKey, a.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var a Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, file_name, content_type, size, object_key, uploaded_by, created_at
		FROM attachments WHERE id=$1
	`, attachmentID).Scan(&a.ID, &a.TaskID, &a.FileName, &a.ContentType, &a.Size, &a.ObjectKey, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return a, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, taskID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, file_name, content_type, size, object_key, uploaded_by, created_at
		FROM attachments WHERE task_id=$1 ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.FileName, &a.ContentType, &a.Size, &a.ObjectKey, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers

// maxTreeDepth bounds iterative hierarchy walks; deeper structures indicate
// corrupted data rather than legitimate nesting.
const maxTreeDepth = 100

func inClause(values []string, start int) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = v
	}
	return strings.Join(placeholders, ", "), args
}

// IsNotFound reports whether an error is the store's row-absent sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
