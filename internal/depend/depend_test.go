package depend

import (
	"context"
	"database/sql"
	"testing"

	"github.com/redoswald/todopus/internal/store"
)

type fakeLookup struct {
	tasks    map[string]store.Task
	projects map[string]store.Project
}

func (f *fakeLookup) GetTask(_ context.Context, taskID string) (store.Task, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return task, nil
}

func (f *fakeLookup) GetProject(_ context.Context, projectID string) (store.Project, error) {
	project, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func ref(s string) *string { return &s }

func TestIsBlocked(t *testing.T) {
	lookup := &fakeLookup{tasks: map[string]store.Task{
		"tsk_open":      {ID: "tsk_open", Status: store.StatusOpen},
		"tsk_done":      {ID: "tsk_done", Status: store.StatusDone},
		"tsk_cancelled": {ID: "tsk_cancelled", Status: store.StatusCancelled},
	}}
	engine := New(lookup)

	cases := []struct {
		name    string
		task    store.Task
		blocked bool
	}{
		{name: "no predecessor", task: store.Task{ID: "t"}, blocked: false},
		{name: "open predecessor", task: store.Task{ID: "t", BlockedBy: ref("tsk_open")}, blocked: true},
		{name: "done predecessor", task: store.Task{ID: "t", BlockedBy: ref("tsk_done")}, blocked: false},
		{name: "cancelled predecessor still blocks", task: store.Task{ID: "t", BlockedBy: ref("tsk_cancelled")}, blocked: true},
		{name: "deleted predecessor", task: store.Task{ID: "t", BlockedBy: ref("tsk_gone")}, blocked: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blocked, err := engine.IsBlocked(context.Background(), tc.task)
			if err != nil {
				t.Fatalf("IsBlocked() error = %v", err)
			}
			if blocked != tc.blocked {
				t.Fatalf("IsBlocked() = %v, want %v", blocked, tc.blocked)
			}
		})
	}
}

func TestCheckPredecessorDetectsTransitiveCycle(t *testing.T) {
	// a <- b <- c: pointing a at c would close the loop.
	lookup := &fakeLookup{tasks: map[string]store.Task{
		"a": {ID: "a"},
		"b": {ID: "b", BlockedBy: ref("a")},
		"c": {ID: "c", BlockedBy: ref("b")},
	}}
	engine := New(lookup)

	if err := engine.CheckPredecessor(context.Background(), "a", "c"); err != ErrCycle {
		t.Fatalf("CheckPredecessor() error = %v, want ErrCycle", err)
	}
	if err := engine.CheckPredecessor(context.Background(), "c", "a"); err != nil {
		t.Fatalf("CheckPredecessor() legitimate chain error = %v", err)
	}
	if err := engine.CheckPredecessor(context.Background(), "a", "a"); err != ErrCycle {
		t.Fatalf("CheckPredecessor() self reference error = %v, want ErrCycle", err)
	}
}

func TestCheckPredecessorRejectsExistingCorruptChain(t *testing.T) {
	// x and y already reference each other; any walk through them must be
	// rejected rather than loop forever.
	lookup := &fakeLookup{tasks: map[string]store.Task{
		"x": {ID: "x", BlockedBy: ref("y")},
		"y": {ID: "y", BlockedBy: ref("x")},
	}}
	engine := New(lookup)

	if err := engine.CheckPredecessor(context.Background(), "z", "x"); err != ErrCycle {
		t.Fatalf("CheckPredecessor() on corrupt chain error = %v, want ErrCycle", err)
	}
}

func TestCheckProjectParent(t *testing.T) {
	lookup := &fakeLookup{projects: map[string]store.Project{
		"root":  {ID: "root"},
		"child": {ID: "child", ParentID: ref("root")},
		"grand": {ID: "grand", ParentID: ref("child")},
	}}
	engine := New(lookup)

	if err := engine.CheckProjectParent(context.Background(), "root", "grand"); err != ErrCycle {
		t.Fatalf("CheckProjectParent() error = %v, want ErrCycle", err)
	}
	if err := engine.CheckProjectParent(context.Background(), "grand", "root"); err != nil {
		t.Fatalf("CheckProjectParent() legitimate reparent error = %v", err)
	}
}
