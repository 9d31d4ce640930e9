package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Snapshot("usr_1", []byte("projects: []\ntasks: []\n"), "Ada", "Export snapshot")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "usr_1")); err != nil {
		t.Fatalf("archive directory missing: %v", err)
	}

	second, err := svc.Snapshot("usr_1", []byte("projects:\n  - name: Home\ntasks: []\n"), "Ada", "Export snapshot")
	if err != nil {
		t.Fatalf("second Snapshot() error = %v", err)
	}

	history, err := svc.History("usr_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Hash != second.Hash {
		t.Fatalf("newest first: got %s, want %s", history[0].Hash, second.Hash)
	}

	content, err := svc.SnapshotByHash("usr_1", first.Hash)
	if err != nil {
		t.Fatalf("SnapshotByHash() error = %v", err)
	}
	if !strings.Contains(string(content), "projects: []") {
		t.Fatalf("unexpected snapshot content: %q", content)
	}
}

func TestHistoryOfUnknownUserIsEmpty(t *testing.T) {
	svc := New(t.TempDir())

	history, err := svc.History("usr_nobody", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestArchivesAreIsolatedPerUser(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.Snapshot("usr_a", []byte("a: 1\n"), "A", "snap"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	history, err := svc.History("usr_b", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatal("user b must not see user a's archive")
	}
}
