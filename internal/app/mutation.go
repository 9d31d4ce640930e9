package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/redoswald/todopus/internal/assistant"
	"github.com/redoswald/todopus/internal/depend"
	"github.com/redoswald/todopus/internal/perm"
	"github.com/redoswald/todopus/internal/recurrence"
	"github.com/redoswald/todopus/internal/search"
	"github.com/redoswald/todopus/internal/store"
	"github.com/redoswald/todopus/internal/util"
)

// Mutation kinds. The set is closed: user edits, approved assistant actions,
// and bulk import all submit one of these through Apply.
const (
	KindTaskCreate     = "task_create"
	KindTaskUpdate     = "task_update"
	KindTaskComplete   = "task_complete"
	KindTaskReopen     = "task_reopen"
	KindTaskDelete     = "task_delete"
	KindProjectCreate  = "project_create"
	KindProjectUpdate  = "project_update"
	KindProjectArchive = "project_archive"
	KindProjectDelete  = "project_delete"
	KindSectionCreate  = "section_create"
	KindSectionUpdate  = "section_update"
	KindSectionDelete  = "section_delete"
	KindShareGrant     = "share_grant"
	KindShareUpdate    = "share_update"
	KindShareRevoke    = "share_revoke"
)

// Mutation is one proposed change. Target ids identify existing entities;
// the field structs carry the new values. Nil field pointers mean
// "unchanged"; a pointer to the empty string clears an optional field.
type Mutation struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId,omitempty"`
	ProjectID string         `json:"projectId,omitempty"`
	SectionID string         `json:"sectionId,omitempty"`
	Task      *TaskFields    `json:"task,omitempty"`
	Project   *ProjectFields `json:"project,omitempty"`
	Section   *SectionFields `json:"section,omitempty"`
	Share     *ShareFields   `json:"share,omitempty"`
}

// TaskFields uses YYYY-MM-DD strings for dates so assistant payloads and
// import files share one shape with the HTTP API.
type TaskFields struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	ProjectID      *string `json:"projectId,omitempty"`
	SectionID      *string `json:"sectionId,omitempty"`
	ParentID       *string `json:"parentId,omitempty"`
	Status         *string `json:"status,omitempty"`
	Priority       *int    `json:"priority,omitempty"`
	ScheduledOn    *string `json:"scheduledOn,omitempty"`
	DueOn          *string `json:"dueOn,omitempty"`
	RecurrenceRule *string `json:"recurrenceRule,omitempty"`
	BlockedBy      *string `json:"blockedBy,omitempty"`
}

type ProjectFields struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
	Archived    *bool   `json:"archived,omitempty"`
}

type SectionFields struct {
	Name      *string `json:"name,omitempty"`
	SortOrder *int    `json:"sortOrder,omitempty"`
}

type ShareFields struct {
	Email  string `json:"email,omitempty"`
	UserID string `json:"userId,omitempty"`
	Level  string `json:"level,omitempty"`
}

// actionToMutation converts an approved assistant action into a Mutation.
// The payload already uses the Mutation JSON shape.
func actionToMutation(action assistant.Action) (Mutation, error) {
	var m Mutation
	if len(action.Payload) > 0 {
		if err := json.Unmarshal(action.Payload, &m); err != nil {
			return Mutation{}, fmt.Errorf("malformed action payload: %w", err)
		}
	}
	m.Kind = action.Kind
	return m, nil
}

// Apply is the single mutation entry point. Order per mutation: resolve the
// target (masked), check write eligibility (masked), validate fields, run
// cycle checks, write, then recurrence side effects inside the same store
// transaction. Mutations are serialized so check-then-act never interleaves.
func (s *Service) Apply(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	switch m.Kind {
	case KindTaskCreate:
		return s.applyTaskCreate(ctx, session, m)
	case KindTaskUpdate:
		return s.applyTaskUpdate(ctx, session, m)
	case KindTaskComplete:
		return s.applyTaskComplete(ctx, session, m)
	case KindTaskReopen:
		return s.applyTaskReopen(ctx, session, m)
	case KindTaskDelete:
		return s.applyTaskDelete(ctx, session, m)
	case KindProjectCreate:
		return s.applyProjectCreate(ctx, session, m)
	case KindProjectUpdate:
		return s.applyProjectUpdate(ctx, session, m)
	case KindProjectArchive:
		return s.applyProjectArchive(ctx, session, m)
	case KindProjectDelete:
		return s.applyProjectDelete(ctx, session, m)
	case KindSectionCreate:
		return s.applySectionCreate(ctx, session, m)
	case KindSectionUpdate:
		return s.applySectionUpdate(ctx, session, m)
	case KindSectionDelete:
		return s.applySectionDelete(ctx, session, m)
	case KindShareGrant, KindShareUpdate:
		return s.applyShareGrant(ctx, session, m)
	case KindShareRevoke:
		return s.applyShareRevoke(ctx, session, m)
	default:
		return nil, errValidation(fmt.Sprintf("unknown mutation kind %q", m.Kind), nil)
	}
}

// ApplyBatch applies mutations one at a time, in order, reporting success or
// failure per mutation. A failure does not roll back earlier mutations.
func (s *Service) ApplyBatch(ctx context.Context, session Session, mutations []Mutation) []map[string]any {
	reports := make([]map[string]any, 0, len(mutations))
	for i, m := range mutations {
		result, err := s.Apply(ctx, session, m)
		if err != nil {
			_, code, message, details := mapError(err)
			errBody := map[string]any{"code": code, "message": message}
			if details != nil {
				errBody["details"] = details
			}
			reports = append(reports, map[string]any{"index": i, "kind": m.Kind, "ok": false, "error": errBody})
			continue
		}
		reports = append(reports, map[string]any{"index": i, "kind": m.Kind, "ok": true, "result": result})
	}
	return reports
}

// ---------------------------------------------------------------------------
// Tasks

func (s *Service) applyTaskCreate(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Task == nil || m.Task.Title == nil || *m.Task.Title == "" {
		return nil, errValidation("title is required", nil)
	}

	task := store.Task{
		ID:      util.NewID("tsk"),
		OwnerID: session.UserID,
		Status:  store.StatusOpen,
	}
	if err := s.applyTaskFields(ctx, session, &task, *m.Task); err != nil {
		return nil, err
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	s.indexTask(task)

	blocked, err := s.depend.IsBlocked(ctx, task)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": taskPayload(task, blocked)}, nil
}

func (s *Service) applyTaskUpdate(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Task == nil {
		return nil, errValidation("task fields are required", nil)
	}
	task, err := s.writableTask(ctx, session, m.TaskID)
	if err != nil {
		return nil, err
	}
	if m.Task.Title != nil && *m.Task.Title == "" {
		return nil, errValidation("title must not be empty", nil)
	}
	if err := s.applyTaskFields(ctx, session, &task, *m.Task); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.indexTask(task)

	blocked, err := s.depend.IsBlocked(ctx, task)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": taskPayload(task, blocked)}, nil
}

// applyTaskFields validates and folds field changes into the task. Shared by
// create and update; create starts from a zero task so every set field is
// validated the same way.
func (s *Service) applyTaskFields(ctx context.Context, session Session, task *store.Task, f TaskFields) error {
	if f.Title != nil {
		task.Title = *f.Title
	}
	if f.Description != nil {
		task.Description = *f.Description
	}
	if f.Status != nil {
		switch *f.Status {
		case store.StatusOpen, store.StatusCancelled:
			task.Status = *f.Status
		case store.StatusDone:
			return errValidation("status done is set by task_complete", nil)
		default:
			return errValidation(fmt.Sprintf("invalid status %q", *f.Status), nil)
		}
	}
	if f.Priority != nil {
		if *f.Priority < 0 || *f.Priority > 3 {
			return errValidation("priority must be between 0 and 3", map[string]any{"priority": *f.Priority})
		}
		task.Priority = *f.Priority
	}

	if f.ProjectID != nil {
		if *f.ProjectID == "" {
			// Moving to the inbox also drops the section.
			task.ProjectID = nil
			task.SectionID = nil
		} else {
			project, err := s.writableProject(ctx, session, *f.ProjectID)
			if err != nil {
				return err
			}
			id := project.ID
			task.ProjectID = &id
			task.SectionID = nil
		}
	}
	if f.SectionID != nil {
		if *f.SectionID == "" {
			task.SectionID = nil
		} else {
			section, err := s.store.GetSection(ctx, *f.SectionID)
			if store.IsNotFound(err) {
				return errNotFound()
			}
			if err != nil {
				return fmt.Errorf("load section: %w", err)
			}
			if task.ProjectID == nil || section.ProjectID != *task.ProjectID {
				return errValidation("section must belong to the task's project", nil)
			}
			id := section.ID
			task.SectionID = &id
		}
	}
	if f.ParentID != nil {
		if *f.ParentID == "" {
			task.ParentID = nil
		} else {
			parent, err := s.readableTask(ctx, session, *f.ParentID)
			if err != nil {
				return err
			}
			if !sameProject(parent.ProjectID, task.ProjectID) {
				return errValidation("parent task must be in the same project", nil)
			}
			if err := s.depend.CheckTaskParent(ctx, task.ID, parent.ID); err != nil {
				if err == depend.ErrCycle {
					return errCycle("parent reference would create a cycle")
				}
				return err
			}
			id := parent.ID
			task.ParentID = &id
		}
	}
	if f.BlockedBy != nil {
		if *f.BlockedBy == "" {
			task.BlockedBy = nil
		} else {
			predecessor, err := s.readableTask(ctx, session, *f.BlockedBy)
			if err != nil {
				return err
			}
			if err := s.depend.CheckPredecessor(ctx, task.ID, predecessor.ID); err != nil {
				if err == depend.ErrCycle {
					return errCycle("predecessor reference would create a cycle")
				}
				return err
			}
			id := predecessor.ID
			task.BlockedBy = &id
		}
	}

	if f.ScheduledOn != nil {
		day, err := parseDay(*f.ScheduledOn)
		if err != nil {
			return errValidation("scheduledOn must be YYYY-MM-DD", nil)
		}
		task.ScheduledOn = day
	}
	if f.DueOn != nil {
		day, err := parseDay(*f.DueOn)
		if err != nil {
			return errValidation("dueOn must be YYYY-MM-DD", nil)
		}
		task.DueOn = day
	}
	if f.RecurrenceRule != nil {
		if !recurrence.Valid(*f.RecurrenceRule) {
			return errValidation("malformed recurrence rule", map[string]any{"rule": *f.RecurrenceRule})
		}
		task.RecurrenceRule = *f.RecurrenceRule
	}
	// The anchor follows the due date whenever either changes, so intervals
	// are measured from the instance's own date rather than from "today".
	if task.RecurrenceRule != "" {
		if task.DueOn == nil {
			return errValidation("a recurring task needs a due date to anchor the schedule", nil)
		}
		if f.DueOn != nil || f.RecurrenceRule != nil {
			anchor := *task.DueOn
			task.RecurrenceBase = &anchor
		}
	} else {
		task.RecurrenceBase = nil
	}
	return nil
}

func (s *Service) applyTaskComplete(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	task, err := s.writableTask(ctx, session, m.TaskID)
	if err != nil {
		return nil, err
	}
	switch task.Status {
	case store.StatusDone:
		return nil, errConflict("task is already done")
	case store.StatusCancelled:
		return nil, errConflict("a cancelled task cannot be completed")
	}

	completedAt := time.Now()

	if !task.Recurring() {
		if err := s.store.CompleteTask(ctx, task.ID, completedAt); err != nil {
			return nil, fmt.Errorf("complete task: %w", err)
		}
		task.Status = store.StatusDone
		task.CompletedAt = &completedAt
		s.indexTask(task)
		return map[string]any{"task": taskPayload(task, false)}, nil
	}

	rule, err := recurrence.Parse(task.RecurrenceRule)
	if err != nil {
		return nil, errValidation("malformed recurrence rule", map[string]any{"rule": task.RecurrenceRule})
	}
	anchor := completedAt
	if task.RecurrenceBase != nil {
		anchor = *task.RecurrenceBase
	} else if task.DueOn != nil {
		anchor = *task.DueOn
	}
	next := rule.Next(anchor)

	// The successor copies the identity-defining fields but never the
	// predecessor reference.
	successor := store.Task{
		ID:             util.NewID("tsk"),
		OwnerID:        task.OwnerID,
		ProjectID:      task.ProjectID,
		SectionID:      task.SectionID,
		Title:          task.Title,
		Description:    task.Description,
		Status:         store.StatusOpen,
		Priority:       task.Priority,
		DueOn:          &next,
		RecurrenceRule: task.RecurrenceRule,
		RecurrenceBase: &next,
	}
	if err := s.store.CompleteTaskWithSuccessor(ctx, task.ID, completedAt, successor); err != nil {
		return nil, fmt.Errorf("complete recurring task: %w", err)
	}
	task.Status = store.StatusDone
	task.CompletedAt = &completedAt
	s.indexTask(task)
	s.indexTask(successor)
	return map[string]any{
		"task":      taskPayload(task, false),
		"successor": taskPayload(successor, false),
	}, nil
}

func (s *Service) applyTaskReopen(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	task, err := s.writableTask(ctx, session, m.TaskID)
	if err != nil {
		return nil, err
	}
	if task.Status == store.StatusOpen {
		return nil, errConflict("task is already open")
	}
	if err := s.store.ReopenTask(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("reopen task: %w", err)
	}
	task.Status = store.StatusOpen
	task.CompletedAt = nil
	s.indexTask(task)

	blocked, err := s.depend.IsBlocked(ctx, task)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": taskPayload(task, blocked)}, nil
}

func (s *Service) applyTaskDelete(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	task, err := s.writableTask(ctx, session, m.TaskID)
	if err != nil {
		return nil, err
	}

	attachments, err := s.store.ListAttachments(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	dependents, err := s.store.ListDependents(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}

	// Unlinks dependents and promotes subtasks in one transaction.
	if err := s.store.DeleteTask(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}

	if s.blobs != nil {
		for _, a := range attachments {
			if err := s.blobs.Delete(ctx, a.ObjectKey); err != nil {
				s.logger.Warn("delete attachment object failed",
					zap.String("attachment_id", a.ID), zap.Error(err))
			}
		}
	}
	if s.search != nil {
		s.search.DeleteTask(task.ID)
	}

	unblocked := make([]string, 0, len(dependents))
	for _, d := range dependents {
		unblocked = append(unblocked, d.ID)
	}
	return map[string]any{"deleted": task.ID, "unblockedTaskIds": unblocked}, nil
}

// ---------------------------------------------------------------------------
// Projects

func (s *Service) applyProjectCreate(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Project == nil || m.Project.Name == nil || *m.Project.Name == "" {
		return nil, errValidation("name is required", nil)
	}

	project := store.Project{
		ID:      util.NewID("prj"),
		OwnerID: session.UserID,
		Name:    *m.Project.Name,
	}
	if m.Project.Description != nil {
		project.Description = *m.Project.Description
	}
	if m.Project.ParentID != nil && *m.Project.ParentID != "" {
		parent, err := s.writableProject(ctx, session, *m.Project.ParentID)
		if err != nil {
			return nil, err
		}
		id := parent.ID
		project.ParentID = &id
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	s.indexProject(project)
	return map[string]any{"project": projectPayload(project)}, nil
}

func (s *Service) applyProjectUpdate(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Project == nil {
		return nil, errValidation("project fields are required", nil)
	}
	project, err := s.writableProject(ctx, session, m.ProjectID)
	if err != nil {
		return nil, err
	}

	if m.Project.Name != nil {
		if *m.Project.Name == "" {
			return nil, errValidation("name must not be empty", nil)
		}
		project.Name = *m.Project.Name
	}
	if m.Project.Description != nil {
		project.Description = *m.Project.Description
	}
	if m.Project.Archived != nil {
		if session.UserID != project.OwnerID {
			return nil, errNotFound()
		}
		project.Archived = *m.Project.Archived
	}
	if m.Project.ParentID != nil {
		if *m.Project.ParentID == "" {
			project.ParentID = nil
		} else {
			parent, err := s.writableProject(ctx, session, *m.Project.ParentID)
			if err != nil {
				return nil, err
			}
			if err := s.depend.CheckProjectParent(ctx, project.ID, parent.ID); err != nil {
				if err == depend.ErrCycle {
					return nil, errCycle("parent reference would create a cycle")
				}
				return nil, err
			}
			id := parent.ID
			project.ParentID = &id
		}
	}

	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	s.indexProject(project)
	return map[string]any{"project": projectPayload(project)}, nil
}

func (s *Service) applyProjectArchive(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	project, err := s.readableProject(ctx, session, m.ProjectID)
	if err != nil {
		return nil, err
	}
	if !s.access.CanDeleteProject(session.UserID, project) {
		return nil, errNotFound()
	}
	project.Archived = true
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("archive project: %w", err)
	}
	s.indexProject(project)
	return map[string]any{"project": projectPayload(project)}, nil
}

func (s *Service) applyProjectDelete(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	project, err := s.readableProject(ctx, session, m.ProjectID)
	if err != nil {
		return nil, err
	}
	// Deletion is owner-only; sharees get the same masked outcome as anyone
	// else so existence never leaks through the error code.
	if !s.access.CanDeleteProject(session.UserID, project) {
		return nil, errNotFound()
	}

	deleted, err := s.store.DeleteProjectTree(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("delete project tree: %w", err)
	}

	if s.search != nil {
		for _, id := range deleted.ProjectIDs {
			s.search.DeleteProject(id)
		}
		for _, id := range deleted.MovedTaskIDs {
			if task, err := s.store.GetTask(ctx, id); err == nil {
				s.indexTask(task)
			}
		}
	}
	return map[string]any{
		"deletedProjectIds": deleted.ProjectIDs,
		"movedTaskIds":      deleted.MovedTaskIDs,
	}, nil
}

// ---------------------------------------------------------------------------
// Sections

func (s *Service) applySectionCreate(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Section == nil || m.Section.Name == nil || *m.Section.Name == "" {
		return nil, errValidation("name is required", nil)
	}
	project, err := s.writableProject(ctx, session, m.ProjectID)
	if err != nil {
		return nil, err
	}

	section := store.Section{
		ID:        util.NewID("sec"),
		ProjectID: project.ID,
		Name:      *m.Section.Name,
	}
	if m.Section.SortOrder != nil {
		section.SortOrder = *m.Section.SortOrder
	}
	if err := s.store.InsertSection(ctx, section); err != nil {
		return nil, fmt.Errorf("insert section: %w", err)
	}
	return map[string]any{"section": sectionPayload(section)}, nil
}

func (s *Service) applySectionUpdate(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Section == nil {
		return nil, errValidation("section fields are required", nil)
	}
	section, err := s.writableSection(ctx, session, m.SectionID)
	if err != nil {
		return nil, err
	}
	if m.Section.Name != nil {
		if *m.Section.Name == "" {
			return nil, errValidation("name must not be empty", nil)
		}
		section.Name = *m.Section.Name
	}
	if m.Section.SortOrder != nil {
		section.SortOrder = *m.Section.SortOrder
	}
	if err := s.store.UpdateSection(ctx, section); err != nil {
		return nil, fmt.Errorf("update section: %w", err)
	}
	return map[string]any{"section": sectionPayload(section)}, nil
}

func (s *Service) applySectionDelete(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	section, err := s.writableSection(ctx, session, m.SectionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteSection(ctx, section.ID); err != nil {
		return nil, fmt.Errorf("delete section: %w", err)
	}
	return map[string]any{"deleted": section.ID}, nil
}

// ---------------------------------------------------------------------------
// Shares

func (s *Service) applyShareGrant(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Share == nil {
		return nil, errValidation("share fields are required", nil)
	}
	if !perm.Valid(m.Share.Level) {
		return nil, errValidation(fmt.Sprintf("invalid permission level %q", m.Share.Level), nil)
	}
	project, err := s.shareManagedProject(ctx, session, m.ProjectID)
	if err != nil {
		return nil, err
	}

	target, err := s.resolveShareTarget(ctx, *m.Share)
	if err != nil {
		return nil, err
	}
	if target.ID == project.OwnerID {
		return nil, errValidation("the owner already has full access", nil)
	}
	if m.Kind == KindShareUpdate {
		if _, err := s.store.GetShare(ctx, project.ID, target.ID); store.IsNotFound(err) {
			return nil, errValidation("no existing share for that user", nil)
		} else if err != nil {
			return nil, fmt.Errorf("load share: %w", err)
		}
	}

	share := store.ProjectShare{
		ID:        util.NewID("shr"),
		ProjectID: project.ID,
		UserID:    target.ID,
		Level:     string(perm.Normalize(m.Share.Level)),
		GrantedBy: session.UserID,
		UserEmail: target.Email,
		UserName:  target.DisplayName,
	}
	if err := s.store.UpsertShare(ctx, share); err != nil {
		return nil, fmt.Errorf("upsert share: %w", err)
	}

	if m.Kind == KindShareGrant && s.mailer != nil && s.mailer.IsConfigured() {
		go func(to, name, granter, projectName, level string) {
			if err := s.mailer.SendShareInvitation(to, name, granter, projectName, level); err != nil {
				s.logger.Warn("share invitation email failed", zap.String("to", to), zap.Error(err))
			}
		}(target.Email, target.DisplayName, session.UserName, project.Name, share.Level)
	}
	return map[string]any{"share": sharePayload(share)}, nil
}

func (s *Service) applyShareRevoke(ctx context.Context, session Session, m Mutation) (map[string]any, error) {
	if m.Share == nil {
		return nil, errValidation("share fields are required", nil)
	}
	project, err := s.readableProject(ctx, session, m.ProjectID)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveShareTarget(ctx, *m.Share)
	if err != nil {
		return nil, err
	}

	// A user may always drop their own share; revoking someone else's
	// requires share management rights.
	if target.ID != session.UserID {
		ok, err := s.access.CanShareProject(ctx, session.UserID, project)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNotFound()
		}
	}
	if err := s.store.DeleteShare(ctx, project.ID, target.ID); err != nil {
		return nil, fmt.Errorf("delete share: %w", err)
	}
	return map[string]any{"revoked": map[string]any{"projectId": project.ID, "userId": target.ID}}, nil
}

func (s *Service) shareManagedProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.readableProject(ctx, session, projectID)
	if err != nil {
		return store.Project{}, err
	}
	ok, err := s.access.CanShareProject(ctx, session.UserID, project)
	if err != nil {
		return store.Project{}, err
	}
	if !ok {
		return store.Project{}, errNotFound()
	}
	return project, nil
}

func (s *Service) resolveShareTarget(ctx context.Context, f ShareFields) (store.User, error) {
	if f.UserID != "" {
		user, err := s.store.GetUserByID(ctx, f.UserID)
		if store.IsNotFound(err) {
			return store.User{}, errValidation("no account with that id", nil)
		}
		if err != nil {
			return store.User{}, fmt.Errorf("load user: %w", err)
		}
		return user, nil
	}
	if f.Email == "" {
		return store.User{}, errValidation("email or userId is required", nil)
	}
	user, err := s.store.GetUserByEmail(ctx, f.Email)
	if store.IsNotFound(err) {
		return store.User{}, errValidation("no account with that email", nil)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// ---------------------------------------------------------------------------
// Helpers

func (s *Service) indexTask(t store.Task) {
	if s.search == nil {
		return
	}
	projectID := ""
	if t.ProjectID != nil {
		projectID = *t.ProjectID
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   projectID,
		OwnerID:     t.OwnerID,
		Status:      t.Status,
	})
}

func (s *Service) indexProject(p store.Project) {
	if s.search == nil {
		return
	}
	s.search.IndexProject(search.ProjectRecord{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		Archived:    p.Archived,
	})
}

func sameProject(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func parseDay(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &day, nil
}
