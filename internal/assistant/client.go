// Package assistant talks to an OpenAI-style chat completion API to turn a
// natural-language instruction plus a context snapshot into a list of
// proposed actions. Nothing here mutates state: proposals are parsed,
// cached by the caller, and only applied after explicit per-action approval.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxRetries   = 3
	initialDelay = 1 * time.Second
)

// Category classifies a proposal-channel failure for user display.
type Category string

const (
	CategoryInvalidCredentials Category = "invalid_credentials"
	CategoryRateLimited        Category = "rate_limited"
	CategoryOverloaded         Category = "overloaded"
	CategoryQuotaExceeded      Category = "quota_exceeded"
	CategoryFailed             Category = "failed"
)

// Error is a categorized proposal-channel failure.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("assistant %s: %s", e.Category, e.Message)
}

// Action is one proposed mutation. Payload is the mutation body in the same
// JSON shape the apply endpoint accepts; Description is shown to the user
// before approval.
type Action struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
}

type Client struct {
	url        string
	apiKey     string
	model      string
	maxActions int
	httpClient *http.Client
	retryDelay time.Duration
}

func NewClient(url, apiKey, model string, maxActions int) *Client {
	if maxActions <= 0 {
		maxActions = 20
	}
	return &Client{
		url:        url,
		apiKey:     apiKey,
		model:      model,
		maxActions: maxActions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retryDelay: initialDelay,
	}
}

// Enabled reports whether the proposal channel is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

const systemPrompt = `You are a task-manager planning assistant. Given the user's instruction and a JSON snapshot of their visible tasks and projects, respond with ONLY a JSON object of the form:
{"actions":[{"kind":"...","description":"...","payload":{...}}]}
Allowed kinds: task_create, task_update, task_complete, task_reopen, task_delete, project_create, project_update, project_archive, project_delete, section_create, section_update, section_delete.
The payload must use the same field names as the snapshot (taskId, projectId, sectionId, task{title,description,priority,dueOn,scheduledOn,recurrenceRule,...}, project{name,description,parentId}, section{name,sortOrder}). Dates are YYYY-MM-DD. Each description must be one short human-readable sentence. Never invent entity ids that are not in the snapshot.`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Propose sends the instruction and context snapshot and parses the model's
// reply into actions. Transient failures (429, 5xx) are retried with
// exponential backoff; everything else fails fast with a category.
func (c *Client) Propose(ctx context.Context, instruction string, snapshot []byte) ([]Action, error) {
	if !c.Enabled() {
		return nil, &Error{Category: CategoryInvalidCredentials, Message: "assistant API key not configured"}
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Context snapshot:\n" + string(snapshot) + "\n\nInstruction: " + instruction},
		},
		Temperature:    0.2,
		ResponseFormat: &respFormat{Type: "json_object"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Category: CategoryFailed, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	var lastErr *Error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Category: CategoryFailed, Message: ctx.Err().Error()}
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, &Error{Category: CategoryFailed, Message: err.Error()}
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = &Error{Category: CategoryFailed, Message: err.Error()}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &Error{Category: CategoryFailed, Message: err.Error()}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			catErr := categorize(resp.StatusCode, respBody)
			switch catErr.Category {
			case CategoryRateLimited, CategoryOverloaded:
				lastErr = catErr
				continue
			default:
				return nil, catErr
			}
		}

		var chat chatResponse
		if err := json.Unmarshal(respBody, &chat); err != nil {
			return nil, &Error{Category: CategoryFailed, Message: fmt.Sprintf("decode response: %v", err)}
		}
		if len(chat.Choices) == 0 {
			return nil, &Error{Category: CategoryFailed, Message: "empty completion"}
		}
		return c.parseActions(chat.Choices[0].Message.Content)
	}

	if lastErr == nil {
		lastErr = &Error{Category: CategoryFailed, Message: "max retries exceeded"}
	}
	return nil, lastErr
}

func categorize(status int, body []byte) *Error {
	var parsed apiError
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Category: CategoryInvalidCredentials, Message: message}
	case status == http.StatusTooManyRequests:
		if parsed.Error.Type == "insufficient_quota" || parsed.Error.Code == "insufficient_quota" {
			return &Error{Category: CategoryQuotaExceeded, Message: message}
		}
		return &Error{Category: CategoryRateLimited, Message: message}
	case status >= 500:
		return &Error{Category: CategoryOverloaded, Message: message}
	default:
		return &Error{Category: CategoryFailed, Message: fmt.Sprintf("status %d: %s", status, message)}
	}
}

type actionList struct {
	Actions []struct {
		Kind        string          `json:"kind"`
		Description string          `json:"description"`
		Payload     json.RawMessage `json:"payload"`
	} `json:"actions"`
}

var allowedKinds = map[string]struct{}{
	"task_create": {}, "task_update": {}, "task_complete": {}, "task_reopen": {}, "task_delete": {},
	"project_create": {}, "project_update": {}, "project_archive": {}, "project_delete": {},
	"section_create": {}, "section_update": {}, "section_delete": {},
}

// parseActions extracts the action list from the model reply, tolerating a
// fenced code block around the JSON. Unknown kinds are dropped rather than
// failing the whole proposal.
func (c *Client) parseActions(content string) ([]Action, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var list actionList
	if err := json.Unmarshal([]byte(content), &list); err != nil {
		return nil, &Error{Category: CategoryFailed, Message: fmt.Sprintf("unparseable proposal: %v", err)}
	}

	actions := make([]Action, 0, len(list.Actions))
	for _, raw := range list.Actions {
		if _, ok := allowedKinds[raw.Kind]; !ok {
			continue
		}
		if len(actions) >= c.maxActions {
			break
		}
		actions = append(actions, Action{
			ID:          uuid.NewString(),
			Kind:        raw.Kind,
			Description: strings.TrimSpace(raw.Description),
			Payload:     raw.Payload,
		})
	}
	return actions, nil
}
