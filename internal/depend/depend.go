// Package depend derives blocked state and guards reference chains.
//
// "Blocked" is never stored. A task is blocked iff its predecessor reference
// is set and the predecessor is not done; dependents simply re-derive it on
// read. The one write-time responsibility is cycle prevention: every write
// that sets a predecessor or parent reference walks the chain to a bounded
// depth before it is allowed to commit.
package depend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redoswald/todopus/internal/store"
)

// ErrCycle is returned when a reference would make a chain contain its own
// origin, directly or transitively.
var ErrCycle = errors.New("reference would create a cycle")

// maxChainDepth bounds chain walks. Legitimate chains are short; hitting the
// bound means the stored data is already cyclic or corrupt, and the write is
// rejected the same way.
const maxChainDepth = 100

type Lookup interface {
	GetTask(ctx context.Context, taskID string) (store.Task, error)
	GetProject(ctx context.Context, projectID string) (store.Project, error)
}

type Engine struct {
	store Lookup
}

func New(lookup Lookup) *Engine {
	return &Engine{store: lookup}
}

// IsBlocked derives the blocked state of a task. A predecessor that was
// deleted out from under the reference counts as absent, not blocking.
func (e *Engine) IsBlocked(ctx context.Context, task store.Task) (bool, error) {
	if task.BlockedBy == nil {
		return false, nil
	}
	predecessor, err := e.store.GetTask(ctx, *task.BlockedBy)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load predecessor: %w", err)
	}
	return predecessor.Status != store.StatusDone, nil
}

// CheckPredecessor verifies that pointing taskID at predecessorID keeps the
// predecessor chain acyclic.
func (e *Engine) CheckPredecessor(ctx context.Context, taskID, predecessorID string) error {
	if taskID == predecessorID {
		return ErrCycle
	}
	current := predecessorID
	for depth := 0; depth < maxChainDepth; depth++ {
		task, err := e.store.GetTask(ctx, current)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walk predecessor chain: %w", err)
		}
		if task.BlockedBy == nil {
			return nil
		}
		if *task.BlockedBy == taskID {
			return ErrCycle
		}
		current = *task.BlockedBy
	}
	return ErrCycle
}

// CheckTaskParent verifies that making parentID the parent of taskID keeps
// the subtask chain acyclic.
func (e *Engine) CheckTaskParent(ctx context.Context, taskID, parentID string) error {
	if taskID == parentID {
		return ErrCycle
	}
	current := parentID
	for depth := 0; depth < maxChainDepth; depth++ {
		task, err := e.store.GetTask(ctx, current)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walk task parent chain: %w", err)
		}
		if task.ParentID == nil {
			return nil
		}
		if *task.ParentID == taskID {
			return ErrCycle
		}
		current = *task.ParentID
	}
	return ErrCycle
}

// CheckProjectParent verifies that making parentID the parent of projectID
// keeps the project forest a forest.
func (e *Engine) CheckProjectParent(ctx context.Context, projectID, parentID string) error {
	if projectID == parentID {
		return ErrCycle
	}
	current := parentID
	for depth := 0; depth < maxChainDepth; depth++ {
		project, err := e.store.GetProject(ctx, current)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walk project parent chain: %w", err)
		}
		if project.ParentID == nil {
			return nil
		}
		if *project.ParentID == projectID {
			return ErrCycle
		}
		current = *project.ParentID
	}
	return ErrCycle
}
