// Package todoapi is a thin, retrying client for the remote to-do
// service's REST API. Every call obtains a valid access token first; a
// 401 response is retried exactly once after a forced token refresh.
package todoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenProvider supplies bearer tokens, refreshing on demand.
type TokenProvider interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// RequestError is a structured failure from the remote service.
type RequestError struct {
	Status     int
	Diagnostic string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("remote request failed: HTTP %d: %s", e.Status, e.Diagnostic)
}

// IsNotFound reports whether err is a remote 404, used to tolerate
// "already gone" on deletes.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// Client talks to one remote task service account.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenProvider

	// scrub removes document-local bookkeeping (markers, tags, volatile
	// metadata) from titles before they reach the remote side.
	scrub func(string) string
}

// New builds a client. scrub may be nil, in which case titles pass
// through untouched.
func New(base string, tokens TokenProvider, scrub func(string) string) *Client {
	if scrub == nil {
		scrub = func(s string) string { return s }
	}
	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
		scrub:  scrub,
	}
}

// page is the generic paginated response envelope.
type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// errorEnvelope is the service's error body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do executes one request with auth and the single-forced-refresh retry.
func (c *Client) do(ctx context.Context, method, rawurl string, body []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, rawurl, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			// Token may have been revoked or expired server-side; refresh
			// once and retry. A second 401 is a real failure.
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, &RequestError{Status: resp.StatusCode, Diagnostic: diagnostic(data)}
		}
		return data, nil
	}
}

// diagnostic builds a human-readable message from the error envelope.
func diagnostic(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		if env.Error.Code != "" {
			return env.Error.Code + ": " + env.Error.Message
		}
		return env.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "no error body"
	}
	return s
}

// ListCollections returns every remote task list.
func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var out []Collection
	next := c.base + "/me/todo/lists"
	for next != "" {
		data, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("listing collections: %w", err)
		}
		var p page[Collection]
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding collections: %w", err)
		}
		out = append(out, p.Value...)
		next = p.NextLink
	}
	return out, nil
}

// ListTasks returns up to limit tasks from one collection, following the
// continuation cursor across pages and truncating at limit. With
// onlyActive a server-side status filter excludes completed tasks; if
// the server rejects the filter expression the call falls back to
// fetching everything and filtering client-side.
func (c *Client) ListTasks(ctx context.Context, collectionID string, limit int, onlyActive bool) ([]Task, error) {
	tasks, err := c.listTasks(ctx, collectionID, limit, onlyActive)
	if onlyActive {
		var re *RequestError
		if errors.As(err, &re) && re.Status == http.StatusBadRequest {
			tasks, err = c.listTasks(ctx, collectionID, limit, false)
			if err == nil {
				filtered := tasks[:0]
				for _, t := range tasks {
					if !t.Completed() {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("listing tasks in %s: %w", collectionID, err)
	}
	return tasks, nil
}

func (c *Client) listTasks(ctx context.Context, collectionID string, limit int, onlyActive bool) ([]Task, error) {
	q := url.Values{}
	q.Set("$expand", "checklistItems")
	if limit > 0 {
		q.Set("$top", fmt.Sprintf("%d", min(limit, 100)))
	}
	if onlyActive {
		q.Set("$filter", "status ne 'completed'")
	}
	next := c.base + "/me/todo/lists/" + url.PathEscape(collectionID) + "/tasks?" + q.Encode()

	var out []Task
	for next != "" {
		data, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var p page[Task]
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding tasks: %w", err)
		}
		out = append(out, p.Value...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		next = p.NextLink
	}
	return out, nil
}

// CreateTask creates a remote task and returns the created resource.
func (c *Client) CreateTask(ctx context.Context, collectionID string, create TaskCreate) (*Task, error) {
	payload := map[string]any{
		"title": c.scrub(create.Title),
	}
	if create.Completed {
		payload["status"] = StatusCompleted
	} else {
		payload["status"] = StatusNotStarted
	}
	if create.DueDate != "" {
		payload["dueDateTime"] = dueDateTime(create.DueDate)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding task: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, c.base+"/me/todo/lists/"+url.PathEscape(collectionID)+"/tasks", body)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding created task: %w", err)
	}
	return &t, nil
}

// UpdateTask applies a partial patch to a remote task.
func (c *Client) UpdateTask(ctx context.Context, collectionID, taskID string, patch TaskPatch) error {
	payload := map[string]any{}
	if patch.Title != nil {
		payload["title"] = c.scrub(*patch.Title)
	}
	if patch.Status != nil {
		payload["status"] = *patch.Status
	}
	if patch.DueSet {
		if patch.DueDate == "" {
			payload["dueDateTime"] = nil // explicit null clears the due date
		} else {
			payload["dueDateTime"] = dueDateTime(patch.DueDate)
		}
	}
	if len(payload) == 0 {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}

	_, err = c.do(ctx, http.MethodPatch, c.taskURL(collectionID, taskID), body)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", taskID, err)
	}
	return nil
}

// DeleteTask removes a remote task.
func (c *Client) DeleteTask(ctx context.Context, collectionID, taskID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.taskURL(collectionID, taskID), nil)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}
	return nil
}

// UpdateChecklistItem patches one checklist item's checked flag and,
// when displayName is non-nil, its display name.
func (c *Client) UpdateChecklistItem(ctx context.Context, collectionID, taskID, itemID string, displayName *string, checked bool) error {
	payload := map[string]any{"isChecked": checked}
	if displayName != nil {
		payload["displayName"] = c.scrub(*displayName)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding checklist patch: %w", err)
	}
	_, err = c.do(ctx, http.MethodPatch, c.taskURL(collectionID, taskID)+"/checklistItems/"+url.PathEscape(itemID), body)
	if err != nil {
		return fmt.Errorf("updating checklist item %s: %w", itemID, err)
	}
	return nil
}

func (c *Client) taskURL(collectionID, taskID string) string {
	return c.base + "/me/todo/lists/" + url.PathEscape(collectionID) + "/tasks/" + url.PathEscape(taskID)
}

func dueDateTime(date string) map[string]string {
	return map[string]string{
		"dateTime": date + "T00:00:00.0000000",
		"timeZone": "UTC",
	}
}
