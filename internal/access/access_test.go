package access

import (
	"context"
	"database/sql"
	"testing"

	"github.com/redoswald/todopus/internal/perm"
	"github.com/redoswald/todopus/internal/store"
)

type fakeStore struct {
	projects map[string]store.Project
	shares   map[string]store.ProjectShare // keyed projectID + "/" + userID
}

func (f *fakeStore) GetProject(_ context.Context, projectID string) (store.Project, error) {
	project, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (f *fakeStore) GetShare(_ context.Context, projectID, userID string) (store.ProjectShare, error) {
	share, ok := f.shares[projectID+"/"+userID]
	if !ok {
		return store.ProjectShare{}, sql.ErrNoRows
	}
	return share, nil
}

func ref(s string) *string { return &s }

func newFixture() (*Resolver, *fakeStore) {
	fs := &fakeStore{
		projects: map[string]store.Project{
			"prj_parent": {ID: "prj_parent", OwnerID: "usr_owner"},
			"prj_child":  {ID: "prj_child", OwnerID: "usr_owner", ParentID: ref("prj_parent")},
		},
		shares: map[string]store.ProjectShare{
			"prj_parent/usr_viewer": {ProjectID: "prj_parent", UserID: "usr_viewer", Level: "view"},
			"prj_parent/usr_editor": {ProjectID: "prj_parent", UserID: "usr_editor", Level: "edit"},
		},
	}
	return New(fs), fs
}

func TestResolve(t *testing.T) {
	resolver, _ := newFixture()
	ctx := context.Background()

	cases := []struct {
		name    string
		userID  string
		project string
		want    perm.Level
	}{
		{name: "owner is admin", userID: "usr_owner", project: "prj_parent", want: perm.LevelAdmin},
		{name: "sharee gets granted level", userID: "usr_editor", project: "prj_parent", want: perm.LevelEdit},
		{name: "stranger gets none", userID: "usr_stranger", project: "prj_parent", want: perm.LevelNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := resolver.store.(*fakeStore)
			level, err := resolver.Resolve(ctx, tc.userID, fs.projects[tc.project])
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if level != tc.want {
				t.Fatalf("Resolve() = %q, want %q", level, tc.want)
			}
		})
	}
}

func TestSharesDoNotReachChildProjects(t *testing.T) {
	resolver, fs := newFixture()
	ctx := context.Background()

	// usr_editor has edit on the parent but no grant on the child.
	level, err := resolver.Resolve(ctx, "usr_editor", fs.projects["prj_child"])
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != perm.LevelNone {
		t.Fatalf("Resolve() on child = %q, want none: parent grants must not be inherited", level)
	}

	childTask := store.Task{ID: "tsk_1", OwnerID: "usr_owner", ProjectID: ref("prj_child")}
	for name, check := range map[string]func(context.Context, string, store.Task) (bool, error){
		"read":  resolver.CanReadTask,
		"write": resolver.CanWriteTask,
	} {
		ok, err := check(ctx, "usr_editor", childTask)
		if err != nil {
			t.Fatalf("%s check error = %v", name, err)
		}
		if ok {
			t.Fatalf("%s of child-project task allowed via parent share", name)
		}
	}
}

func TestInboxTasksAreOwnerOnly(t *testing.T) {
	resolver, _ := newFixture()
	ctx := context.Background()

	inbox := store.Task{ID: "tsk_inbox", OwnerID: "usr_owner"}

	ok, err := resolver.CanReadTask(ctx, "usr_owner", inbox)
	if err != nil || !ok {
		t.Fatalf("owner read = (%v, %v), want (true, nil)", ok, err)
	}
	// Even a user with an admin share somewhere cannot see another user's
	// inbox task.
	ok, err = resolver.CanReadTask(ctx, "usr_editor", inbox)
	if err != nil {
		t.Fatalf("CanReadTask() error = %v", err)
	}
	if ok {
		t.Fatal("inbox task visible to non-owner")
	}
}

func TestProjectTaskVisibilityFollowsProject(t *testing.T) {
	resolver, _ := newFixture()
	ctx := context.Background()

	task := store.Task{ID: "tsk_1", OwnerID: "usr_owner", ProjectID: ref("prj_parent")}

	ok, err := resolver.CanReadTask(ctx, "usr_viewer", task)
	if err != nil || !ok {
		t.Fatalf("viewer read = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = resolver.CanWriteTask(ctx, "usr_viewer", task)
	if err != nil {
		t.Fatalf("CanWriteTask() error = %v", err)
	}
	if ok {
		t.Fatal("view-level share must not grant writes")
	}
	ok, err = resolver.CanWriteTask(ctx, "usr_editor", task)
	if err != nil || !ok {
		t.Fatalf("editor write = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestOnlyOwnerDeletesProject(t *testing.T) {
	resolver, fs := newFixture()

	fs.shares["prj_parent/usr_admin"] = store.ProjectShare{ProjectID: "prj_parent", UserID: "usr_admin", Level: "admin"}

	if !resolver.CanDeleteProject("usr_owner", fs.projects["prj_parent"]) {
		t.Fatal("owner must be able to delete")
	}
	if resolver.CanDeleteProject("usr_admin", fs.projects["prj_parent"]) {
		t.Fatal("admin sharee must not be able to delete the project itself")
	}

	// The admin sharee can still manage shares.
	ok, err := resolver.CanShareProject(context.Background(), "usr_admin", fs.projects["prj_parent"])
	if err != nil || !ok {
		t.Fatalf("admin share management = (%v, %v), want (true, nil)", ok, err)
	}
}
