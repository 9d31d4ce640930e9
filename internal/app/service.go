// Package app is the application core: session handling, visibility-scoped
// queries, and the single mutation entry point shared by user edits,
// AI-approved actions, and bulk import.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redoswald/todopus/internal/access"
	"github.com/redoswald/todopus/internal/archive"
	"github.com/redoswald/todopus/internal/assistant"
	"github.com/redoswald/todopus/internal/auth"
	"github.com/redoswald/todopus/internal/authpw"
	"github.com/redoswald/todopus/internal/depend"
	"github.com/redoswald/todopus/internal/export"
	"github.com/redoswald/todopus/internal/search"
	"github.com/redoswald/todopus/internal/store"
	"github.com/redoswald/todopus/internal/util"
)

// dataStore is the storage surface the core consumes. *store.PostgresStore
// satisfies it; tests substitute an in-memory fake.
type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertProject(ctx context.Context, p store.Project) error
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	UpdateProject(ctx context.Context, p store.Project) error
	ListVisibleProjects(ctx context.Context, userID string) ([]store.Project, error)
	DeleteProjectTree(ctx context.Context, rootID string) (store.DeletedProjectTree, error)

	UpsertShare(ctx context.Context, share store.ProjectShare) error
	GetShare(ctx context.Context, projectID, userID string) (store.ProjectShare, error)
	ListShares(ctx context.Context, projectID string) ([]store.ProjectShare, error)
	DeleteShare(ctx context.Context, projectID, userID string) error

	InsertSection(ctx context.Context, section store.Section) error
	GetSection(ctx context.Context, sectionID string) (store.Section, error)
	UpdateSection(ctx context.Context, section store.Section) error
	DeleteSection(ctx context.Context, sectionID string) error
	ListSections(ctx context.Context, projectID string) ([]store.Section, error)

	InsertTask(ctx context.Context, t store.Task) error
	GetTask(ctx context.Context, taskID string) (store.Task, error)
	UpdateTask(ctx context.Context, t store.Task) error
	CompleteTask(ctx context.Context, taskID string, completedAt time.Time) error
	CompleteTaskWithSuccessor(ctx context.Context, taskID string, completedAt time.Time, successor store.Task) error
	ReopenTask(ctx context.Context, taskID string) error
	DeleteTask(ctx context.Context, taskID string) error
	ListDependents(ctx context.Context, taskID string) ([]store.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error)

	InsertAttachment(ctx context.Context, a store.Attachment) error
	GetAttachment(ctx context.Context, attachmentID string) (store.Attachment, error)
	ListAttachments(ctx context.Context, taskID string) ([]store.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions. Redis when configured, Postgres
// otherwise; both expose the same three calls.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexTask(t search.TaskRecord)
	IndexProject(p search.ProjectRecord)
	DeleteTask(id string)
	DeleteProject(id string)
}

type proposer interface {
	Enabled() bool
	Propose(ctx context.Context, instruction string, snapshot []byte) ([]assistant.Action, error)
}

type mailer interface {
	IsConfigured() bool
	SendShareInvitation(to, userName, granterName, projectName, level string) error
}

type archiver interface {
	Snapshot(userID string, snapshot []byte, author, message string) (archive.Commit, error)
	History(userID string, limit int) ([]archive.Commit, error)
	SnapshotByHash(userID, hash string) ([]byte, error)
}

type blobStore interface {
	Put(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectKey string) error
	PresignedURL(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error)
}

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

const proposalTTL = 30 * time.Minute

type proposalRecord struct {
	ID          string
	UserID      string
	Instruction string
	Actions     []assistant.Action
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type Service struct {
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	access   *access.Resolver
	depend   *depend.Engine
	exporter *export.Service
	logger   *zap.Logger

	search    searchIndex
	assistant proposer
	mailer    mailer
	archive   archiver
	blobs     blobStore

	tokenSecret []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration

	// applyMu serializes mutations so the visibility check and the write of a
	// single Apply never interleave with another writer.
	applyMu sync.Mutex

	proposalMu sync.Mutex
	proposals  map[string]proposalRecord
}

func NewService(data dataStore, sessions sessionStore, tokenSecret string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       data,
		sessions:    sessions,
		accounts:    authpw.NewService(data),
		access:      access.New(data),
		depend:      depend.New(data),
		exporter:    export.NewService(),
		logger:      logger,
		tokenSecret: []byte(tokenSecret),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		proposals:   make(map[string]proposalRecord),
	}
}

// Optional collaborators. Each stays nil when not configured; callers get a
// service-unavailable DomainError instead of a nil deref.

func (s *Service) SetSearch(idx searchIndex) { s.search = idx }
func (s *Service) SetAssistant(p proposer)   { s.assistant = p }
func (s *Service) SetMailer(m mailer)        { s.mailer = m }
func (s *Service) SetArchive(a archiver)     { s.archive = a }
func (s *Service) SetBlobs(b blobStore)      { s.blobs = b }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Sessions

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) ChangePassword(ctx context.Context, session Session, currentPassword, newPassword string) error {
	return s.accounts.ChangePassword(ctx, session.UserID, currentPassword, newPassword)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken(s.tokenSecret, auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user.ID, now.Add(s.refreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token: the presented token is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.tokenSecret, token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return fmt.Errorf("revoke refresh session: %w", err)
		}
	}
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Queries

// visibleProjects returns every project the user can read: owned or shared.
func (s *Service) visibleProjects(ctx context.Context, userID string) ([]store.Project, []string, error) {
	projects, err := s.store.ListVisibleProjects(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list visible projects: %w", err)
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return projects, ids, nil
}

// ProjectTree lists the user's visible projects as a forest. Built by
// iterative map construction; a visible child of an invisible parent surfaces
// as a root rather than disappearing.
func (s *Service) ProjectTree(ctx context.Context, session Session) (map[string]any, error) {
	projects, _, err := s.visibleProjects(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	visible := make(map[string]bool, len(projects))
	for _, p := range projects {
		visible[p.ID] = true
	}
	children := make(map[string][]store.Project)
	var roots []store.Project
	for _, p := range projects {
		if p.ParentID != nil && visible[*p.ParentID] {
			children[*p.ParentID] = append(children[*p.ParentID], p)
			continue
		}
		roots = append(roots, p)
	}

	var build func(p store.Project, depth int) map[string]any
	build = func(p store.Project, depth int) map[string]any {
		node := projectPayload(p)
		node["depth"] = depth
		kids := make([]map[string]any, 0, len(children[p.ID]))
		if depth < 100 {
			for _, child := range children[p.ID] {
				kids = append(kids, build(child, depth+1))
			}
		}
		node["children"] = kids
		return node
	}

	tree := make([]map[string]any, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, build(root, 0))
	}
	return map[string]any{"projects": tree}, nil
}

// GetProjectView returns one project with its sections, tasks, and shares.
// Absent and unreadable are indistinguishable.
func (s *Service) GetProjectView(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.readableProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}

	sections, err := s.store.ListSections(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{ProjectIDs: []string{project.ID}})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	shares, err := s.store.ListShares(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}

	taskItems := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		blocked, err := s.depend.IsBlocked(ctx, t)
		if err != nil {
			return nil, err
		}
		taskItems = append(taskItems, taskPayload(t, blocked))
	}
	sectionItems := make([]map[string]any, 0, len(sections))
	for _, sec := range sections {
		sectionItems = append(sectionItems, sectionPayload(sec))
	}
	shareItems := make([]map[string]any, 0, len(shares))
	for _, share := range shares {
		shareItems = append(shareItems, sharePayload(share))
	}

	payload := projectPayload(project)
	payload["sections"] = sectionItems
	payload["tasks"] = taskItems
	payload["shares"] = shareItems
	return payload, nil
}

func (s *Service) GetTaskView(ctx context.Context, session Session, taskID string) (map[string]any, error) {
	task, err := s.readableTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	blocked, err := s.depend.IsBlocked(ctx, task)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	attachmentItems := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		attachmentItems = append(attachmentItems, attachmentPayload(a))
	}
	payload := taskPayload(task, blocked)
	payload["attachments"] = attachmentItems
	return payload, nil
}

// Inbox lists the user's projectless tasks. Private by construction.
func (s *Service) Inbox(ctx context.Context, session Session) (map[string]any, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{InboxOwner: session.UserID, Status: store.StatusOpen})
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return s.taskListPayload(ctx, tasks)
}

// Today lists open tasks scheduled for the given day or due on or before it.
func (s *Service) Today(ctx context.Context, session Session, day time.Time) (map[string]any, error) {
	_, projectIDs, err := s.visibleProjects(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	day = midnight(day)

	scheduled, err := s.store.ListTasks(ctx, store.TaskFilter{
		InboxOwner:  session.UserID,
		ProjectIDs:  projectIDs,
		Status:      store.StatusOpen,
		ScheduledOn: &day,
	})
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	due, err := s.store.ListTasks(ctx, store.TaskFilter{
		InboxOwner:    session.UserID,
		ProjectIDs:    projectIDs,
		Status:        store.StatusOpen,
		DueOnOrBefore: &day,
	})
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}

	seen := make(map[string]bool, len(scheduled))
	merged := make([]store.Task, 0, len(scheduled)+len(due))
	for _, t := range scheduled {
		seen[t.ID] = true
		merged = append(merged, t)
	}
	for _, t := range due {
		if !seen[t.ID] {
			merged = append(merged, t)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Priority > merged[j].Priority })
	return s.taskListPayload(ctx, merged)
}

// Overdue lists open tasks with a deadline strictly before the given day.
func (s *Service) Overdue(ctx context.Context, session Session, day time.Time) (map[string]any, error) {
	_, projectIDs, err := s.visibleProjects(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	cutoff := midnight(day).AddDate(0, 0, -1)
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{
		InboxOwner:    session.UserID,
		ProjectIDs:    projectIDs,
		Status:        store.StatusOpen,
		DueOnOrBefore: &cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	return s.taskListPayload(ctx, tasks)
}

func (s *Service) taskListPayload(ctx context.Context, tasks []store.Task) (map[string]any, error) {
	items := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		blocked, err := s.depend.IsBlocked(ctx, t)
		if err != nil {
			return nil, err
		}
		items = append(items, taskPayload(t, blocked))
	}
	return map[string]any{"tasks": items}, nil
}

// Search runs a scoped search. The scope is computed here, server-side, so
// the index never returns a row the caller could not read directly.
func (s *Service) Search(ctx context.Context, session Session, text, filterType string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	_, projectIDs, err := s.visibleProjects(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	resp := s.search.Search(search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		Scope:      search.Scope{UserID: session.UserID, ProjectIDs: projectIDs},
		Limit:      limit,
		Offset:     offset,
	})
	return map[string]any{"results": resp.Results, "total": resp.Total, "query": resp.Query}, nil
}

// ---------------------------------------------------------------------------
// Masked entity resolution

// readableProject maps absent and unreadable to the same NOT_FOUND.
func (s *Service) readableProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if store.IsNotFound(err) {
		return store.Project{}, errNotFound()
	}
	if err != nil {
		return store.Project{}, fmt.Errorf("load project: %w", err)
	}
	ok, err := s.access.CanReadProject(ctx, session.UserID, project)
	if err != nil {
		return store.Project{}, err
	}
	if !ok {
		return store.Project{}, errNotFound()
	}
	return project, nil
}

// writableProject masks missing write permission the same way as absence.
func (s *Service) writableProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if store.IsNotFound(err) {
		return store.Project{}, errNotFound()
	}
	if err != nil {
		return store.Project{}, fmt.Errorf("load project: %w", err)
	}
	ok, err := s.access.CanWriteProject(ctx, session.UserID, project)
	if err != nil {
		return store.Project{}, err
	}
	if !ok {
		return store.Project{}, errNotFound()
	}
	return project, nil
}

func (s *Service) readableTask(ctx context.Context, session Session, taskID string) (store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if store.IsNotFound(err) {
		return store.Task{}, errNotFound()
	}
	if err != nil {
		return store.Task{}, fmt.Errorf("load task: %w", err)
	}
	ok, err := s.access.CanReadTask(ctx, session.UserID, task)
	if err != nil {
		return store.Task{}, err
	}
	if !ok {
		return store.Task{}, errNotFound()
	}
	return task, nil
}

func (s *Service) writableTask(ctx context.Context, session Session, taskID string) (store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if store.IsNotFound(err) {
		return store.Task{}, errNotFound()
	}
	if err != nil {
		return store.Task{}, fmt.Errorf("load task: %w", err)
	}
	ok, err := s.access.CanWriteTask(ctx, session.UserID, task)
	if err != nil {
		return store.Task{}, err
	}
	if !ok {
		return store.Task{}, errNotFound()
	}
	return task, nil
}

func (s *Service) writableSection(ctx context.Context, session Session, sectionID string) (store.Section, error) {
	section, err := s.store.GetSection(ctx, sectionID)
	if store.IsNotFound(err) {
		return store.Section{}, errNotFound()
	}
	if err != nil {
		return store.Section{}, fmt.Errorf("load section: %w", err)
	}
	ok, err := s.access.CanWriteSection(ctx, session.UserID, section)
	if err != nil {
		return store.Section{}, err
	}
	if !ok {
		return store.Section{}, errNotFound()
	}
	return section, nil
}

// ---------------------------------------------------------------------------
// Assistant proposals

// snapshotForUser assembles the read-only context the assistant sees: the
// user's visible projects with open tasks, plus the inbox. Nothing outside
// the caller's visibility ever reaches the collaborator.
func (s *Service) snapshotForUser(ctx context.Context, session Session) ([]byte, export.Snapshot, error) {
	projects, _, err := s.visibleProjects(ctx, session.UserID)
	if err != nil {
		return nil, export.Snapshot{}, err
	}

	views := make([]export.ProjectView, 0, len(projects))
	for _, p := range projects {
		view, err := s.projectView(ctx, p)
		if err != nil {
			return nil, export.Snapshot{}, err
		}
		views = append(views, view)
	}

	inboxTasks, err := s.store.ListTasks(ctx, store.TaskFilter{InboxOwner: session.UserID})
	if err != nil {
		return nil, export.Snapshot{}, fmt.Errorf("list inbox: %w", err)
	}

	snapshot := export.Snapshot{
		ExportedAt: time.Now(),
		Owner:      session.UserName,
		Projects:   views,
		Inbox:      taskViews(inboxTasks, ""),
	}
	data, err := s.exporter.MarshalSnapshot(snapshot)
	if err != nil {
		return nil, export.Snapshot{}, err
	}
	return data, snapshot, nil
}

// Propose asks the assistant for candidate mutations. Nothing is written;
// the actions are cached until approved or discarded.
func (s *Service) Propose(ctx context.Context, session Session, instruction string) (map[string]any, error) {
	if s.assistant == nil || !s.assistant.Enabled() {
		return nil, domainError(http.StatusServiceUnavailable, "COLLABORATOR_ERROR", "Assistant is not configured", nil)
	}
	snapshot, _, err := s.snapshotForUser(ctx, session)
	if err != nil {
		return nil, err
	}

	actions, err := s.assistant.Propose(ctx, instruction, snapshot)
	if err != nil {
		if aerr, ok := err.(*assistant.Error); ok {
			return nil, errCollaborator(aerr)
		}
		return nil, err
	}

	record := proposalRecord{
		ID:          util.NewID("prop"),
		UserID:      session.UserID,
		Instruction: instruction,
		Actions:     actions,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(proposalTTL),
	}
	s.proposalMu.Lock()
	s.purgeExpiredProposalsLocked()
	s.proposals[record.ID] = record
	s.proposalMu.Unlock()

	return proposalPayload(record), nil
}

func (s *Service) ListProposals(session Session) map[string]any {
	s.proposalMu.Lock()
	defer s.proposalMu.Unlock()
	s.purgeExpiredProposalsLocked()

	items := make([]map[string]any, 0)
	for _, record := range s.proposals {
		if record.UserID != session.UserID {
			continue
		}
		items = append(items, proposalPayload(record))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i]["createdAt"].(time.Time).Before(items[j]["createdAt"].(time.Time))
	})
	return map[string]any{"proposals": items}
}

// ApproveProposal applies a cached proposal's actions through the same Apply
// path as direct edits, one action at a time, reporting per-action outcomes.
func (s *Service) ApproveProposal(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	record, ok := s.takeProposal(session, proposalID)
	if !ok {
		return nil, errNotFound()
	}

	mutations := make([]Mutation, 0, len(record.Actions))
	var reports []map[string]any
	for _, action := range record.Actions {
		mutation, err := actionToMutation(action)
		if err != nil {
			reports = append(reports, map[string]any{
				"actionId": action.ID,
				"ok":       false,
				"error":    map[string]any{"code": "VALIDATION_ERROR", "message": err.Error()},
			})
			continue
		}
		mutations = append(mutations, mutation)
	}
	applied := s.ApplyBatch(ctx, session, mutations)
	reports = append(reports, applied...)
	return map[string]any{"proposalId": record.ID, "reports": reports}, nil
}

// DiscardProposal drops a pending proposal. Nothing was written, so there is
// nothing to undo.
func (s *Service) DiscardProposal(session Session, proposalID string) error {
	if _, ok := s.takeProposal(session, proposalID); !ok {
		return errNotFound()
	}
	return nil
}

func (s *Service) takeProposal(session Session, proposalID string) (proposalRecord, bool) {
	s.proposalMu.Lock()
	defer s.proposalMu.Unlock()
	s.purgeExpiredProposalsLocked()
	record, ok := s.proposals[proposalID]
	if !ok || record.UserID != session.UserID {
		return proposalRecord{}, false
	}
	delete(s.proposals, proposalID)
	return record, true
}

func (s *Service) purgeExpiredProposalsLocked() {
	now := time.Now()
	for id, record := range s.proposals {
		if now.After(record.ExpiresAt) {
			delete(s.proposals, id)
		}
	}
}

// ---------------------------------------------------------------------------
// Export and archive

func (s *Service) projectView(ctx context.Context, p store.Project) (export.ProjectView, error) {
	sections, err := s.store.ListSections(ctx, p.ID)
	if err != nil {
		return export.ProjectView{}, fmt.Errorf("list sections: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{ProjectIDs: []string{p.ID}})
	if err != nil {
		return export.ProjectView{}, fmt.Errorf("list tasks: %w", err)
	}

	view := export.ProjectView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Archived:    p.Archived,
	}
	for _, sec := range sections {
		view.Sections = append(view.Sections, export.SectionView{
			ID:    sec.ID,
			Name:  sec.Name,
			Tasks: taskViews(tasks, sec.ID),
		})
	}
	view.Tasks = taskViews(tasks, "")
	return view, nil
}

// taskViews nests subtasks under their parents and keeps only tasks of the
// given section ("" = unsectioned).
func taskViews(tasks []store.Task, sectionID string) []export.TaskView {
	children := make(map[string][]store.Task)
	byID := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = true
	}
	var roots []store.Task
	for _, t := range tasks {
		if t.ParentID != nil && byID[*t.ParentID] {
			children[*t.ParentID] = append(children[*t.ParentID], t)
			continue
		}
		roots = append(roots, t)
	}

	var build func(t store.Task, depth int) export.TaskView
	build = func(t store.Task, depth int) export.TaskView {
		view := export.TaskView{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Status:      t.Status,
			Priority:    t.Priority,
			DueOn:       formatDate(t.DueOn),
			ScheduledOn: formatDate(t.ScheduledOn),
			Recurrence:  t.RecurrenceRule,
			Blocked:     t.BlockedBy != nil,
		}
		if depth < 100 {
			for _, child := range children[t.ID] {
				view.Subtasks = append(view.Subtasks, build(child, depth+1))
			}
		}
		return view
	}

	var views []export.TaskView
	for _, t := range roots {
		taskSection := ""
		if t.SectionID != nil {
			taskSection = *t.SectionID
		}
		if taskSection != sectionID {
			continue
		}
		views = append(views, build(t, 0))
	}
	return views
}

// ExportProject renders one visible project as HTML, PDF, or YAML.
func (s *Service) ExportProject(ctx context.Context, session Session, projectID string, format export.Format) (*export.Result, error) {
	project, err := s.readableProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	owner, err := s.store.GetUserByID(ctx, project.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	view, err := s.projectView(ctx, project)
	if err != nil {
		return nil, err
	}
	return s.exporter.ExportProject(view, owner.DisplayName, format)
}

// ArchiveSnapshot commits the user's current snapshot to their git archive.
func (s *Service) ArchiveSnapshot(ctx context.Context, session Session, message string) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive is not configured", nil)
	}
	data, _, err := s.snapshotForUser(ctx, session)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = "Snapshot"
	}
	commit, err := s.archive.Snapshot(session.UserID, data, session.UserName, message)
	if err != nil {
		return nil, fmt.Errorf("archive snapshot: %w", err)
	}
	return map[string]any{"commit": commit}, nil
}

func (s *Service) ArchiveHistory(session Session, limit int) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive is not configured", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	commits, err := s.archive.History(session.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive history: %w", err)
	}
	return map[string]any{"commits": commits}, nil
}

func (s *Service) ArchiveContent(session Session, hash string) ([]byte, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive is not configured", nil)
	}
	data, err := s.archive.SnapshotByHash(session.UserID, hash)
	if err != nil {
		return nil, errNotFound()
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Attachments

func (s *Service) AttachFile(ctx context.Context, session Session, taskID, fileName, contentType string, size int64, content io.Reader) (map[string]any, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachments are not configured", nil)
	}
	if fileName == "" {
		return nil, errValidation("fileName is required", nil)
	}
	task, err := s.writableTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}

	attachment := store.Attachment{
		ID:          util.NewID("att"),
		TaskID:      task.ID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  session.UserID,
	}
	attachment.ObjectKey = fmt.Sprintf("%s/%s/%s", task.ID, attachment.ID, fileName)

	if err := s.blobs.Put(ctx, attachment.ObjectKey, content, size, contentType); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return attachmentPayload(attachment), nil
}

func (s *Service) AttachmentURL(ctx context.Context, session Session, attachmentID string) (map[string]any, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachments are not configured", nil)
	}
	attachment, err := s.readableAttachment(ctx, session, attachmentID)
	if err != nil {
		return nil, err
	}
	url, err := s.blobs.PresignedURL(ctx, attachment.ObjectKey, attachment.FileName, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("presign attachment: %w", err)
	}
	return map[string]any{"url": url, "fileName": attachment.FileName, "expiresInSeconds": 900}, nil
}

func (s *Service) RemoveAttachment(ctx context.Context, session Session, attachmentID string) error {
	attachment, err := s.readableAttachment(ctx, session, attachmentID)
	if err != nil {
		return err
	}
	if _, err := s.writableTask(ctx, session, attachment.TaskID); err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, attachment.ID); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, attachment.ObjectKey); err != nil {
			s.logger.Warn("delete attachment object failed",
				zap.String("attachment_id", attachment.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) readableAttachment(ctx context.Context, session Session, attachmentID string) (store.Attachment, error) {
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if store.IsNotFound(err) {
		return store.Attachment{}, errNotFound()
	}
	if err != nil {
		return store.Attachment{}, fmt.Errorf("load attachment: %w", err)
	}
	if _, err := s.readableTask(ctx, session, attachment.TaskID); err != nil {
		return store.Attachment{}, err
	}
	return attachment, nil
}

// ---------------------------------------------------------------------------
// Payload shapes

func projectPayload(p store.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"ownerId":     p.OwnerID,
		"parentId":    p.ParentID,
		"name":        p.Name,
		"description": p.Description,
		"archived":    p.Archived,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
	}
}

func taskPayload(t store.Task, blocked bool) map[string]any {
	return map[string]any{
		"id":             t.ID,
		"ownerId":        t.OwnerID,
		"projectId":      t.ProjectID,
		"sectionId":      t.SectionID,
		"parentId":       t.ParentID,
		"title":          t.Title,
		"description":    t.Description,
		"status":         t.Status,
		"priority":       t.Priority,
		"scheduledOn":    formatDatePtr(t.ScheduledOn),
		"dueOn":          formatDatePtr(t.DueOn),
		"recurrenceRule": t.RecurrenceRule,
		"blockedBy":      t.BlockedBy,
		"blocked":        blocked,
		"completedAt":    t.CompletedAt,
		"createdAt":      t.CreatedAt,
		"updatedAt":      t.UpdatedAt,
	}
}

func sectionPayload(s store.Section) map[string]any {
	return map[string]any{
		"id":        s.ID,
		"projectId": s.ProjectID,
		"name":      s.Name,
		"sortOrder": s.SortOrder,
	}
}

func sharePayload(share store.ProjectShare) map[string]any {
	return map[string]any{
		"projectId": share.ProjectID,
		"userId":    share.UserID,
		"userEmail": share.UserEmail,
		"userName":  share.UserName,
		"level":     share.Level,
		"grantedBy": share.GrantedBy,
		"grantedAt": share.GrantedAt,
	}
}

func attachmentPayload(a store.Attachment) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"taskId":      a.TaskID,
		"fileName":    a.FileName,
		"contentType": a.ContentType,
		"size":        a.Size,
		"uploadedBy":  a.UploadedBy,
		"createdAt":   a.CreatedAt,
	}
}

func proposalPayload(record proposalRecord) map[string]any {
	actions := make([]map[string]any, 0, len(record.Actions))
	for _, a := range record.Actions {
		actions = append(actions, map[string]any{
			"id":          a.ID,
			"kind":        a.Kind,
			"description": a.Description,
		})
	}
	return map[string]any{
		"id":          record.ID,
		"instruction": record.Instruction,
		"actions":     actions,
		"createdAt":   record.CreatedAt,
		"expiresAt":   record.ExpiresAt,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
