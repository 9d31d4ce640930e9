package export

import (
	"strings"
	"testing"
)

func sampleProject() ProjectView {
	return ProjectView{
		ID:          "prj_1",
		Name:        "Launch Plan",
		Description: "Everything for the launch",
		Sections: []SectionView{
			{
				Name: "Week 1",
				Tasks: []TaskView{
					{Title: "Write announcement", Status: "open", DueOn: "2026-03-02"},
					{Title: "Dry run", Status: "open", Blocked: true},
				},
			},
		},
		Tasks: []TaskView{
			{
				Title:      "Water plants",
				Status:     "done",
				Recurrence: "FREQ=WEEKLY;BYDAY=MO",
				Subtasks: []TaskView{
					{Title: "Refill can", Status: "open"},
				},
			},
		},
	}
}

func TestExportProjectHTML(t *testing.T) {
	result, err := NewService().ExportProject(sampleProject(), "Ada", FormatHTML)
	if err != nil {
		t.Fatalf("ExportProject() error = %v", err)
	}
	if result.Filename != "Launch-Plan.html" {
		t.Fatalf("filename = %q", result.Filename)
	}

	html := string(result.Data)
	for _, want := range []string{
		"Launch Plan", "Week 1", "Write announcement", "due 2026-03-02",
		"badge-blocked", "FREQ=WEEKLY;BYDAY=MO", "Refill can", "Ada",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered HTML missing %q", want)
		}
	}
}

func TestExportProjectYAMLRoundTrip(t *testing.T) {
	svc := NewService()
	result, err := svc.ExportProject(sampleProject(), "Ada", FormatYAML)
	if err != nil {
		t.Fatalf("ExportProject() error = %v", err)
	}

	snapshot, err := svc.ParseSnapshot(append([]byte("projects:\n"), indent(result.Data)...))
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	if len(snapshot.Projects) != 1 {
		t.Fatalf("projects = %d, want 1", len(snapshot.Projects))
	}
	got := snapshot.Projects[0]
	if got.Name != "Launch Plan" || len(got.Sections) != 1 || len(got.Tasks) != 1 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if got.Tasks[0].Subtasks[0].Title != "Refill can" {
		t.Fatalf("subtask lost in round trip: %+v", got.Tasks[0])
	}
}

func TestExportProjectUnknownFormat(t *testing.T) {
	if _, err := NewService().ExportProject(sampleProject(), "Ada", Format("docx")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Launch Plan", "Launch-Plan"},
		{"q2/ops: cleanup!", "q2ops-cleanup"},
		{"", "project"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Fatalf("percentEncodeForDataURL = %q", got)
	}
}

// indent shifts a YAML document two spaces right and prefixes a list dash so
// a single project document can be embedded under a projects key.
func indent(doc []byte) []byte {
	lines := strings.Split(strings.TrimRight(string(doc), "\n"), "\n")
	for i, line := range lines {
		if i == 0 {
			lines[i] = "  - " + line
			continue
		}
		lines[i] = "    " + line
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
