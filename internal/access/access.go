// Package access is the single authority for permission resolution and
// entity visibility. Every query and mutation path goes through it; nothing
// else in the codebase derives access on its own.
package access

import (
	"context"
	"fmt"

	"github.com/redoswald/todopus/internal/perm"
	"github.com/redoswald/todopus/internal/store"
)

type Store interface {
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	GetShare(ctx context.Context, projectID, userID string) (store.ProjectShare, error)
}

type Resolver struct {
	store Store
}

func New(s Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve computes a user's permission level on a project: owners are admin,
// sharees get their granted level, everyone else gets none. Levels are never
// inherited from parent projects: a child project's shares stand alone.
func (r *Resolver) Resolve(ctx context.Context, userID string, project store.Project) (perm.Level, error) {
	if userID == project.OwnerID {
		return perm.LevelAdmin, nil
	}
	share, err := r.store.GetShare(ctx, project.ID, userID)
	if store.IsNotFound(err) {
		return perm.LevelNone, nil
	}
	if err != nil {
		return perm.LevelNone, fmt.Errorf("resolve share: %w", err)
	}
	return perm.Normalize(share.Level), nil
}

func (r *Resolver) CanReadProject(ctx context.Context, userID string, project store.Project) (bool, error) {
	level, err := r.Resolve(ctx, userID, project)
	if err != nil {
		return false, err
	}
	return level != perm.LevelNone, nil
}

func (r *Resolver) CanWriteProject(ctx context.Context, userID string, project store.Project) (bool, error) {
	level, err := r.Resolve(ctx, userID, project)
	if err != nil {
		return false, err
	}
	return perm.Can(level, perm.ActionWrite), nil
}

// CanShareProject reports whether the user may manage the project's share
// set (owner or admin sharee).
func (r *Resolver) CanShareProject(ctx context.Context, userID string, project store.Project) (bool, error) {
	level, err := r.Resolve(ctx, userID, project)
	if err != nil {
		return false, err
	}
	return perm.Can(level, perm.ActionShare), nil
}

// CanDeleteProject is owner-only: sharees, even admins, manage contents and
// further shares but never the project's existence.
func (r *Resolver) CanDeleteProject(userID string, project store.Project) bool {
	return userID == project.OwnerID
}

// CanReadTask: inbox tasks (no project) are visible to their owner only, no
// matter what is shared; project tasks follow the project's resolution.
func (r *Resolver) CanReadTask(ctx context.Context, userID string, task store.Task) (bool, error) {
	if task.ProjectID == nil {
		return task.OwnerID == userID, nil
	}
	return r.projectAllows(ctx, userID, *task.ProjectID, perm.ActionRead)
}

func (r *Resolver) CanWriteTask(ctx context.Context, userID string, task store.Task) (bool, error) {
	if task.ProjectID == nil {
		return task.OwnerID == userID, nil
	}
	return r.projectAllows(ctx, userID, *task.ProjectID, perm.ActionWrite)
}

// Sections carry no visibility of their own; they always inherit from the
// owning project.
func (r *Resolver) CanReadSection(ctx context.Context, userID string, section store.Section) (bool, error) {
	return r.projectAllows(ctx, userID, section.ProjectID, perm.ActionRead)
}

func (r *Resolver) CanWriteSection(ctx context.Context, userID string, section store.Section) (bool, error) {
	return r.projectAllows(ctx, userID, section.ProjectID, perm.ActionWrite)
}

func (r *Resolver) projectAllows(ctx context.Context, userID, projectID string, action perm.Action) (bool, error) {
	project, err := r.store.GetProject(ctx, projectID)
	if store.IsNotFound(err) {
		// Orphaned reference: treat as invisible rather than erroring.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load project: %w", err)
	}
	level, err := r.Resolve(ctx, userID, project)
	if err != nil {
		return false, err
	}
	return perm.Can(level, action), nil
}
