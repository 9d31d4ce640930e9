package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	c := NewClient(url, "test-key", "test-model", 10)
	c.retryDelay = time.Millisecond
	return c
}

func completionBody(content string) string {
	resp := `{"choices":[{"message":{"content":` + content + `}}]}`
	return resp
}

func TestProposeParsesActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(completionBody(`"{\"actions\":[{\"kind\":\"task_create\",\"description\":\"Add a task\",\"payload\":{\"task\":{\"title\":\"Buy milk\"}}},{\"kind\":\"bogus_kind\",\"description\":\"dropped\",\"payload\":{}}]}"`)))
	}))
	defer srv.Close()

	actions, err := newTestClient(srv.URL).Propose(context.Background(), "add milk", []byte(`{}`))
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1 (unknown kinds dropped)", len(actions))
	}
	if actions[0].Kind != "task_create" || actions[0].ID == "" {
		t.Fatalf("unexpected action: %+v", actions[0])
	}
}

func TestProposeRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody(`"{\"actions\":[]}"`)))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Propose(context.Background(), "x", nil); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestProposeFailsFastOnBadCredentials(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Propose(context.Background(), "x", nil)
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Category != CategoryInvalidCredentials {
		t.Fatalf("error = %v, want invalid_credentials", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (4xx must not be retried)", attempts)
	}
}

func TestProposeQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Propose(context.Background(), "x", nil)
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Category != CategoryQuotaExceeded {
		t.Fatalf("error = %v, want quota_exceeded", err)
	}
}

func TestProposeSurfacesOverloadAfterRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Propose(context.Background(), "x", nil)
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Category != CategoryOverloaded {
		t.Fatalf("error = %v, want overloaded", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("http://unused", "", "m", 5)
	if c.Enabled() {
		t.Fatal("client with empty key must report disabled")
	}
	_, err := c.Propose(context.Background(), "x", nil)
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Category != CategoryInvalidCredentials {
		t.Fatalf("error = %v, want invalid_credentials", err)
	}
}
