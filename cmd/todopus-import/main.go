// todopus-import loads a YAML snapshot, as produced by the project exporter
// or the archive, into a running todopus instance. Every change goes through
// the same mutation API as interactive edits, so visibility rules, validation,
// and cycle checks all apply.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/redoswald/todopus/internal/export"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todopus-import <snapshot.yaml>",
		Short: "Import a YAML snapshot into a todopus instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runImport(cmd, args[0])
		},
	}

	cmd.Flags().String("api", "http://localhost:8686", "base URL of the todopus API")
	cmd.Flags().String("token", "", "access token (alternative to email/password)")
	cmd.Flags().String("email", "", "account email to sign in with")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().Bool("dry-run", false, "parse and report without writing anything")

	viper.SetEnvPrefix("todopus")
	viper.AutomaticEnv()
	for _, flag := range []string{"api", "token", "email", "password"} {
		_ = viper.BindPFlag(flag, cmd.Flags().Lookup(flag))
	}
	return cmd
}

func runImport(cmd *cobra.Command, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	snapshot, err := export.NewService().ParseSnapshot(raw)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		tasks := len(snapshot.Inbox)
		for _, p := range snapshot.Projects {
			tasks += countTasks(p)
		}
		fmt.Printf("snapshot ok: %d projects, %d tasks\n", len(snapshot.Projects), tasks)
		return nil
	}

	client := &apiClient{
		baseURL: viper.GetString("api"),
		token:   viper.GetString("token"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	if client.token == "" {
		if err := client.signIn(viper.GetString("email"), viper.GetString("password")); err != nil {
			return err
		}
	}

	imp := &importer{client: client, out: cmd.OutOrStdout()}
	for _, project := range snapshot.Projects {
		if err := imp.importProject(project, ""); err != nil {
			return err
		}
	}
	for _, task := range snapshot.Inbox {
		if err := imp.importTask(task, "", "", ""); err != nil {
			return err
		}
	}
	fmt.Fprintf(imp.out, "imported %d mutations (%d skipped)\n", imp.applied, imp.skipped)
	return nil
}

func countTasks(p export.ProjectView) int {
	n := countTaskViews(p.Tasks)
	for _, s := range p.Sections {
		n += countTaskViews(s.Tasks)
	}
	for _, child := range p.Children {
		n += countTasks(child)
	}
	return n
}

func countTaskViews(tasks []export.TaskView) int {
	n := len(tasks)
	for _, t := range tasks {
		n += countTaskViews(t.Subtasks)
	}
	return n
}

type importer struct {
	client  *apiClient
	out     io.Writer
	applied int
	skipped int
}

func (imp *importer) importProject(view export.ProjectView, parentID string) error {
	payload := map[string]any{"name": view.Name}
	if view.Description != "" {
		payload["description"] = view.Description
	}
	if parentID != "" {
		payload["parentId"] = parentID
	}
	result, err := imp.client.apply(map[string]any{"kind": "project_create", "project": payload})
	if err != nil {
		return fmt.Errorf("project %q: %w", view.Name, err)
	}
	projectID := result["project"].(map[string]any)["id"].(string)
	imp.applied++

	if view.Archived {
		if _, err := imp.client.apply(map[string]any{"kind": "project_archive", "projectId": projectID}); err != nil {
			return fmt.Errorf("archive project %q: %w", view.Name, err)
		}
		imp.applied++
	}

	for _, task := range view.Tasks {
		if err := imp.importTask(task, projectID, "", ""); err != nil {
			return err
		}
	}
	for _, section := range view.Sections {
		result, err := imp.client.apply(map[string]any{
			"kind":      "section_create",
			"projectId": projectID,
			"section":   map[string]any{"name": section.Name},
		})
		if err != nil {
			return fmt.Errorf("section %q: %w", section.Name, err)
		}
		sectionID := result["section"].(map[string]any)["id"].(string)
		imp.applied++
		for _, task := range section.Tasks {
			if err := imp.importTask(task, projectID, sectionID, ""); err != nil {
				return err
			}
		}
	}
	for _, child := range view.Children {
		if err := imp.importProject(child, projectID); err != nil {
			return err
		}
	}
	return nil
}

func (imp *importer) importTask(view export.TaskView, projectID, sectionID, parentTaskID string) error {
	fields := map[string]any{"title": view.Title}
	if view.Description != "" {
		fields["description"] = view.Description
	}
	if projectID != "" {
		fields["projectId"] = projectID
	}
	if sectionID != "" {
		fields["sectionId"] = sectionID
	}
	if parentTaskID != "" {
		fields["parentId"] = parentTaskID
	}
	if view.Priority > 0 {
		fields["priority"] = view.Priority
	}
	if view.ScheduledOn != "" {
		fields["scheduledOn"] = view.ScheduledOn
	}
	if view.DueOn != "" {
		fields["dueOn"] = view.DueOn
	}
	switch {
	case view.Recurrence != "" && view.DueOn == "":
		// A rule without an anchor date cannot be imported as recurring.
		fmt.Fprintf(imp.out, "skipping recurrence on %q: no due date to anchor it\n", view.Title)
		imp.skipped++
	case view.Recurrence != "":
		fields["recurrenceRule"] = view.Recurrence
	}
	if view.Status == "cancelled" {
		fields["status"] = "cancelled"
	} else if view.Status == "done" {
		// Completion history is not replayed; done tasks arrive open.
		fmt.Fprintf(imp.out, "importing done task %q as open\n", view.Title)
		imp.skipped++
	}

	result, err := imp.client.apply(map[string]any{"kind": "task_create", "task": fields})
	if err != nil {
		return fmt.Errorf("task %q: %w", view.Title, err)
	}
	taskID := result["task"].(map[string]any)["id"].(string)
	imp.applied++

	for _, sub := range view.Subtasks {
		if err := imp.importTask(sub, projectID, sectionID, taskID); err != nil {
			return err
		}
	}
	return nil
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) signIn(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("either --token or --email and --password are required")
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.post("/api/auth/signin", map[string]any{"email": email, "password": password}, &body); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	c.token = body.AccessToken
	return nil
}

// apply submits one mutation and returns its result, failing on the first
// rejected mutation so a broken snapshot stops early.
func (c *apiClient) apply(mutation map[string]any) (map[string]any, error) {
	var body struct {
		Reports []struct {
			OK     bool           `json:"ok"`
			Result map[string]any `json:"result"`
			Error  struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		} `json:"reports"`
	}
	if err := c.post("/api/mutations", map[string]any{"mutations": []map[string]any{mutation}}, &body); err != nil {
		return nil, err
	}
	if len(body.Reports) != 1 {
		return nil, fmt.Errorf("unexpected report count %d", len(body.Reports))
	}
	report := body.Reports[0]
	if !report.OK {
		return nil, fmt.Errorf("%s: %s", report.Error.Code, report.Error.Message)
	}
	return report.Result, nil
}

func (c *apiClient) post(path string, payload, target any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
