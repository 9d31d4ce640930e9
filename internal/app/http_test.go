package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer() (*HTTPServer, *Service, *memStore) {
	svc, data := newTestService()
	return NewHTTPServer(svc, "*", nil), svc, data
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func signUp(t *testing.T, server *HTTPServer, email, name string) (token, refresh, userID string) {
	t.Helper()
	resp := doJSON(t, server, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       email,
		"password":    "correct horse battery",
		"displayName": name,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return body["accessToken"].(string), body["refreshToken"].(string), body["userId"].(string)
}

func TestMaskedResponsesAreByteIdentical(t *testing.T) {
	server, svc, _ := newTestServer()
	_, _, adaID := signUp(t, server, "ada@example.com", "Ada")
	beaToken, _, _ := signUp(t, server, "bea@example.com", "Bea")

	ada := Session{UserID: adaID, UserName: "Ada"}
	projectID := createProject(t, svc, ada, "Private", nil)
	taskID := createTask(t, svc, ada, TaskFields{Title: strPtr("Secret"), ProjectID: &projectID})

	hidden := doJSON(t, server, http.MethodGet, "/api/tasks/"+taskID, beaToken, nil)
	missing := doJSON(t, server, http.MethodGet, "/api/tasks/tsk_no_such", beaToken, nil)

	if hidden.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("status hidden = %d, missing = %d, want 404 for both", hidden.Code, missing.Code)
	}
	if !bytes.Equal(hidden.Body.Bytes(), missing.Body.Bytes()) {
		t.Fatalf("bodies differ:\nhidden:  %s\nmissing: %s", hidden.Body.String(), missing.Body.String())
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	server, _, _ := newTestServer()
	resp := doJSON(t, server, http.MethodGet, "/api/views/inbox", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.Code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	server, _, _ := newTestServer()
	_, refresh, _ := signUp(t, server, "ada@example.com", "Ada")

	first := doJSON(t, server, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": refresh})
	if first.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", first.Code)
	}

	// The presented refresh token is single use.
	second := doJSON(t, server, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": refresh})
	if second.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d, want 401", second.Code)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	server, _, _ := newTestServer()
	token, refresh, _ := signUp(t, server, "ada@example.com", "Ada")

	if resp := doJSON(t, server, http.MethodGet, "/api/views/inbox", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("pre-logout status = %d", resp.Code)
	}
	if resp := doJSON(t, server, http.MethodPost, "/api/auth/logout", token, map[string]any{"refreshToken": refresh}); resp.Code != http.StatusOK {
		t.Fatalf("logout status = %d", resp.Code)
	}
	if resp := doJSON(t, server, http.MethodGet, "/api/views/inbox", token, nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("post-logout status = %d, want 401", resp.Code)
	}
}

func TestMutationsEndpointReportsPerAction(t *testing.T) {
	server, _, data := newTestServer()
	token, _, _ := signUp(t, server, "ada@example.com", "Ada")

	resp := doJSON(t, server, http.MethodPost, "/api/mutations", token, map[string]any{
		"mutations": []map[string]any{
			{"kind": "task_create", "task": map[string]any{}},
			{"kind": "task_create", "task": map[string]any{"title": "Survivor"}},
		},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Reports []struct {
			OK    bool `json:"ok"`
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		} `json:"reports"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(body.Reports))
	}
	if body.Reports[0].OK || body.Reports[0].Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("first report = %+v", body.Reports[0])
	}
	if !body.Reports[1].OK {
		t.Fatalf("second report = %+v", body.Reports[1])
	}
	if len(data.tasks) != 1 {
		t.Fatalf("task count = %d, want 1", len(data.tasks))
	}
}

func TestCompleteEndpointConflict(t *testing.T) {
	server, svc, _ := newTestServer()
	token, _, adaID := signUp(t, server, "ada@example.com", "Ada")
	taskID := createTask(t, svc, Session{UserID: adaID}, TaskFields{Title: strPtr("Once")})

	if resp := doJSON(t, server, http.MethodPost, "/api/tasks/"+taskID+"/complete", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("first complete status = %d", resp.Code)
	}
	resp := doJSON(t, server, http.MethodPost, "/api/tasks/"+taskID+"/complete", token, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("second complete status = %d, want 409", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "CONFLICT_ERROR") {
		t.Fatalf("body = %s", resp.Body.String())
	}
}

func TestSearchUnavailableWithoutIndex(t *testing.T) {
	server, _, _ := newTestServer()
	token, _, _ := signUp(t, server, "ada@example.com", "Ada")

	resp := doJSON(t, server, http.MethodGet, "/api/search?q=plants", token, nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "SEARCH_UNAVAILABLE") {
		t.Fatalf("body = %s", resp.Body.String())
	}
}

func TestTodayMergesScheduledAndDue(t *testing.T) {
	server, svc, _ := newTestServer()
	token, _, adaID := signUp(t, server, "ada@example.com", "Ada")
	ada := Session{UserID: adaID, UserName: "Ada"}

	createTask(t, svc, ada, TaskFields{Title: strPtr("Scheduled"), ScheduledOn: strPtr("2026-04-01")})
	createTask(t, svc, ada, TaskFields{Title: strPtr("Due earlier"), DueOn: strPtr("2026-03-20")})
	createTask(t, svc, ada, TaskFields{Title: strPtr("Far future"), DueOn: strPtr("2026-06-01")})

	resp := doJSON(t, server, http.MethodGet, "/api/views/today?date=2026-04-01", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Tasks []struct {
			Title string `json:"title"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tasks) != 2 {
		t.Fatalf("tasks = %d (%v), want scheduled + overdue-due only", len(body.Tasks), body.Tasks)
	}
	titles := fmt.Sprintf("%v", body.Tasks)
	if !strings.Contains(titles, "Scheduled") || !strings.Contains(titles, "Due earlier") {
		t.Fatalf("unexpected tasks: %s", titles)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	server, _, _ := newTestServer()
	token, _, _ := signUp(t, server, "ada@example.com", "Ada")

	created := doJSON(t, server, http.MethodPost, "/api/projects", token, map[string]any{"name": "Garden"})
	if created.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", created.Code, created.Body.String())
	}
	var createBody map[string]any
	if err := json.Unmarshal(created.Body.Bytes(), &createBody); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	projectID := createBody["project"].(map[string]any)["id"].(string)

	if resp := doJSON(t, server, http.MethodGet, "/api/projects/"+projectID, token, nil); resp.Code != http.StatusOK {
		t.Fatalf("get status = %d", resp.Code)
	}
	if resp := doJSON(t, server, http.MethodPut, "/api/projects/"+projectID, token, map[string]any{"name": "Garden 2"}); resp.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", resp.Code, resp.Body.String())
	}
	if resp := doJSON(t, server, http.MethodDelete, "/api/projects/"+projectID, token, nil); resp.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", resp.Code, resp.Body.String())
	}
	if resp := doJSON(t, server, http.MethodGet, "/api/projects/"+projectID, token, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.Code)
	}
}
