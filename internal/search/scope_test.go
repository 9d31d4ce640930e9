package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskScopeFilter(t *testing.T) {
	scope := Scope{UserID: "usr_1", ProjectIDs: []string{"prj_a", "prj_b"}}
	filter := taskScopeFilter(scope)
	assert.Equal(t, `(projectId IN ["prj_a", "prj_b"] OR (ownerId = "usr_1" AND projectId = ""))`, filter)
}

func TestTaskScopeFilterInboxOnly(t *testing.T) {
	filter := taskScopeFilter(Scope{UserID: "usr_1"})
	assert.Equal(t, `(ownerId = "usr_1" AND projectId = "")`, filter)
}

func TestProjectScopeFilter(t *testing.T) {
	filter := projectScopeFilter(Scope{UserID: "usr_1", ProjectIDs: []string{"prj_a"}})
	assert.Equal(t, `id IN ["prj_a"]`, filter)

	// With no visible projects the filter must match nothing rather than
	// everything.
	assert.Equal(t, `id = ""`, projectScopeFilter(Scope{UserID: "usr_1"}))
}
