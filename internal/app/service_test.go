package app

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/redoswald/todopus/internal/store"
)

// memStore is an in-memory dataStore with the same contract as the Postgres
// implementation, including the transactional side effects of DeleteTask and
// DeleteProjectTree.
type memStore struct {
	users       map[string]store.User
	revokedJTIs map[string]bool
	projects    map[string]store.Project
	shares      map[string]store.ProjectShare // key projectID|userID
	sections    map[string]store.Section
	tasks       map[string]store.Task
	attachments map[string]store.Attachment
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]store.User),
		revokedJTIs: make(map[string]bool),
		projects:    make(map[string]store.Project),
		shares:      make(map[string]store.ProjectShare),
		sections:    make(map[string]store.Section),
		tasks:       make(map[string]store.Task),
		attachments: make(map[string]store.Attachment),
	}
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.revokedJTIs[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return m.revokedJTIs[jti], nil
}

func (m *memStore) InsertProject(_ context.Context, p store.Project) error {
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) GetProject(_ context.Context, projectID string) (store.Project, error) {
	p, ok := m.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (m *memStore) UpdateProject(_ context.Context, p store.Project) error {
	if _, ok := m.projects[p.ID]; !ok {
		return sql.ErrNoRows
	}
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) ListVisibleProjects(_ context.Context, userID string) ([]store.Project, error) {
	var visible []store.Project
	for _, p := range m.projects {
		if p.OwnerID == userID {
			visible = append(visible, p)
			continue
		}
		if _, ok := m.shares[p.ID+"|"+userID]; ok {
			visible = append(visible, p)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })
	return visible, nil
}

func (m *memStore) DeleteProjectTree(_ context.Context, rootID string) (store.DeletedProjectTree, error) {
	var result store.DeletedProjectTree
	if _, ok := m.projects[rootID]; !ok {
		return result, sql.ErrNoRows
	}

	doomed := map[string]bool{rootID: true}
	for changed := true; changed; {
		changed = false
		for _, p := range m.projects {
			if p.ParentID != nil && doomed[*p.ParentID] && !doomed[p.ID] {
				doomed[p.ID] = true
				changed = true
			}
		}
	}

	for id := range doomed {
		result.ProjectIDs = append(result.ProjectIDs, id)
		delete(m.projects, id)
	}
	for key, share := range m.shares {
		if doomed[share.ProjectID] {
			delete(m.shares, key)
		}
	}
	for id, section := range m.sections {
		if doomed[section.ProjectID] {
			delete(m.sections, id)
		}
	}
	for id, task := range m.tasks {
		if task.ProjectID != nil && doomed[*task.ProjectID] {
			task.ProjectID = nil
			task.SectionID = nil
			m.tasks[id] = task
			result.MovedTaskIDs = append(result.MovedTaskIDs, id)
		}
	}
	sort.Strings(result.ProjectIDs)
	sort.Strings(result.MovedTaskIDs)
	return result, nil
}

func (m *memStore) UpsertShare(_ context.Context, share store.ProjectShare) error {
	m.shares[share.ProjectID+"|"+share.UserID] = share
	return nil
}

func (m *memStore) GetShare(_ context.Context, projectID, userID string) (store.ProjectShare, error) {
	share, ok := m.shares[projectID+"|"+userID]
	if !ok {
		return store.ProjectShare{}, sql.ErrNoRows
	}
	return share, nil
}

func (m *memStore) ListShares(_ context.Context, projectID string) ([]store.ProjectShare, error) {
	var shares []store.ProjectShare
	for _, share := range m.shares {
		if share.ProjectID == projectID {
			shares = append(shares, share)
		}
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].UserID < shares[j].UserID })
	return shares, nil
}

func (m *memStore) DeleteShare(_ context.Context, projectID, userID string) error {
	delete(m.shares, projectID+"|"+userID)
	return nil
}

func (m *memStore) InsertSection(_ context.Context, section store.Section) error {
	m.sections[section.ID] = section
	return nil
}

func (m *memStore) GetSection(_ context.Context, sectionID string) (store.Section, error) {
	section, ok := m.sections[sectionID]
	if !ok {
		return store.Section{}, sql.ErrNoRows
	}
	return section, nil
}

func (m *memStore) UpdateSection(_ context.Context, section store.Section) error {
	if _, ok := m.sections[section.ID]; !ok {
		return sql.ErrNoRows
	}
	m.sections[section.ID] = section
	return nil
}

func (m *memStore) DeleteSection(_ context.Context, sectionID string) error {
	for id, task := range m.tasks {
		if task.SectionID != nil && *task.SectionID == sectionID {
			task.SectionID = nil
			m.tasks[id] = task
		}
	}
	delete(m.sections, sectionID)
	return nil
}

func (m *memStore) ListSections(_ context.Context, projectID string) ([]store.Section, error) {
	var sections []store.Section
	for _, section := range m.sections {
		if section.ProjectID == projectID {
			sections = append(sections, section)
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].SortOrder < sections[j].SortOrder })
	return sections, nil
}

func (m *memStore) InsertTask(_ context.Context, t store.Task) error {
	m.tasks[t.ID] = t
	return nil
}

func (m *memStore) GetTask(_ context.Context, taskID string) (store.Task, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (m *memStore) UpdateTask(_ context.Context, t store.Task) error {
	if _, ok := m.tasks[t.ID]; !ok {
		return sql.ErrNoRows
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *memStore) CompleteTask(_ context.Context, taskID string, completedAt time.Time) error {
	t, ok := m.tasks[taskID]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = store.StatusDone
	t.CompletedAt = &completedAt
	m.tasks[taskID] = t
	return nil
}

func (m *memStore) CompleteTaskWithSuccessor(ctx context.Context, taskID string, completedAt time.Time, successor store.Task) error {
	if err := m.CompleteTask(ctx, taskID, completedAt); err != nil {
		return err
	}
	m.tasks[successor.ID] = successor
	return nil
}

func (m *memStore) ReopenTask(_ context.Context, taskID string) error {
	t, ok := m.tasks[taskID]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = store.StatusOpen
	t.CompletedAt = nil
	m.tasks[taskID] = t
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, taskID string) error {
	doomed, ok := m.tasks[taskID]
	if !ok {
		return sql.ErrNoRows
	}
	for id, t := range m.tasks {
		if t.BlockedBy != nil && *t.BlockedBy == taskID {
			t.BlockedBy = nil
			m.tasks[id] = t
		}
		if t.ParentID != nil && *t.ParentID == taskID {
			t.ParentID = doomed.ParentID
			m.tasks[id] = t
		}
	}
	for id, a := range m.attachments {
		if a.TaskID == taskID {
			delete(m.attachments, id)
		}
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *memStore) ListDependents(_ context.Context, taskID string) ([]store.Task, error) {
	var dependents []store.Task
	for _, t := range m.tasks {
		if t.BlockedBy != nil && *t.BlockedBy == taskID {
			dependents = append(dependents, t)
		}
	}
	sort.Slice(dependents, func(i, j int) bool { return dependents[i].ID < dependents[j].ID })
	return dependents, nil
}

func (m *memStore) ListTasks(_ context.Context, f store.TaskFilter) ([]store.Task, error) {
	inProjects := make(map[string]bool, len(f.ProjectIDs))
	for _, id := range f.ProjectIDs {
		inProjects[id] = true
	}

	var tasks []store.Task
	for _, t := range m.tasks {
		switch {
		case t.ProjectID != nil && inProjects[*t.ProjectID]:
		case t.ProjectID == nil && f.InboxOwner != "" && t.OwnerID == f.InboxOwner:
		default:
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.DueOnOrBefore != nil && (t.DueOn == nil || t.DueOn.After(*f.DueOnOrBefore)) {
			continue
		}
		if f.ScheduledOn != nil && (t.ScheduledOn == nil || !t.ScheduledOn.Equal(*f.ScheduledOn)) {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (m *memStore) InsertAttachment(_ context.Context, a store.Attachment) error {
	m.attachments[a.ID] = a
	return nil
}

func (m *memStore) GetAttachment(_ context.Context, attachmentID string) (store.Attachment, error) {
	a, ok := m.attachments[attachmentID]
	if !ok {
		return store.Attachment{}, sql.ErrNoRows
	}
	return a, nil
}

func (m *memStore) ListAttachments(_ context.Context, taskID string) ([]store.Attachment, error) {
	var attachments []store.Attachment
	for _, a := range m.attachments {
		if a.TaskID == taskID {
			attachments = append(attachments, a)
		}
	}
	sort.Slice(attachments, func(i, j int) bool { return attachments[i].ID < attachments[j].ID })
	return attachments, nil
}

func (m *memStore) DeleteAttachment(_ context.Context, attachmentID string) error {
	delete(m.attachments, attachmentID)
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

// memSessions backs refresh sessions for tests.
type memSessions struct {
	data     *memStore
	sessions map[string]string // token hash -> user id
}

func newMemSessions(data *memStore) *memSessions {
	return &memSessions{data: data, sessions: make(map[string]string)}
}

func (m *memSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	m.sessions[tokenHash] = userID
	return nil
}

func (m *memSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	userID, ok := m.sessions[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return m.data.GetUserByID(ctx, userID)
}

func (m *memSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(m.sessions, tokenHash)
	return nil
}
