// Package perm defines the project-scoped permission lattice.
package perm

type Level string
type Action string

const (
	LevelNone  Level = "none"
	LevelView  Level = "view"
	LevelEdit  Level = "edit"
	LevelAdmin Level = "admin"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionShare  Action = "share"
	ActionDelete Action = "delete"
)

// Can reports whether a level grants an action. ActionDelete is never granted
// here: project deletion is owner-only and checked against ownership directly.
func Can(level Level, action Action) bool {
	switch level {
	case LevelAdmin:
		return action == ActionRead || action == ActionWrite || action == ActionShare
	case LevelEdit:
		return action == ActionRead || action == ActionWrite
	case LevelView:
		return action == ActionRead
	default:
		return false
	}
}

// Valid reports whether a string names a grantable share level.
// LevelNone and LevelAdmin-by-ownership are computed, never stored, but
// admin is grantable to sharees.
func Valid(level string) bool {
	switch Level(level) {
	case LevelView, LevelEdit, LevelAdmin:
		return true
	default:
		return false
	}
}

func Normalize(level string) Level {
	switch Level(level) {
	case LevelView, LevelEdit, LevelAdmin:
		return Level(level)
	default:
		return LevelNone
	}
}
