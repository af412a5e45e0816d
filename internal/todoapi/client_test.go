package todoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// staticTokens is a TokenProvider returning canned tokens and counting
// forced refreshes.
type staticTokens struct {
	token     string
	refreshed int
}

func (s *staticTokens) Token(_ context.Context, force bool) (string, error) {
	if force {
		s.refreshed++
		s.token = "refreshed-token"
	}
	return s.token, nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *staticTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := &staticTokens{token: "initial-token"}
	return New(srv.URL, tokens, nil), tokens
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestListTasks_PaginationTruncatesAtLimit(t *testing.T) {
	// 260 tasks across pages of 100; limit 200 must yield exactly 200.
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/me/todo/lists/c1/tasks", func(w http.ResponseWriter, r *http.Request) {
		start := 0
		fmt.Sscanf(r.URL.Query().Get("skip"), "%d", &start)
		end := start + 100
		if end > 260 {
			end = 260
		}
		var tasks []Task
		for i := start; i < end; i++ {
			tasks = append(tasks, Task{ID: fmt.Sprintf("t%d", i), Title: "task", Status: StatusNotStarted})
		}
		resp := map[string]any{"value": tasks}
		if end < 260 {
			resp["@odata.nextLink"] = fmt.Sprintf("%s/me/todo/lists/c1/tasks?skip=%d", srvURL, end)
		}
		writeJSON(t, w, resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	client := New(srv.URL, &staticTokens{token: "tok"}, nil)
	tasks, err := client.ListTasks(context.Background(), "c1", 200, false)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 200 {
		t.Errorf("got %d tasks, want exactly 200 (truncated)", len(tasks))
	}
}

func TestListTasks_FilterFallback(t *testing.T) {
	// Server rejects the $filter expression; the client must refetch
	// without it and filter completed tasks locally.
	var filteredCalls, plainCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/me/todo/lists/c1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$filter") != "" {
			filteredCalls++
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(t, w, map[string]any{"error": map[string]string{"code": "invalidRequest", "message": "unsupported filter"}})
			return
		}
		plainCalls++
		writeJSON(t, w, map[string]any{"value": []Task{
			{ID: "t1", Title: "open", Status: StatusNotStarted},
			{ID: "t2", Title: "done", Status: StatusCompleted},
		}})
	})
	client, _ := newTestClient(t, mux)

	tasks, err := client.ListTasks(context.Background(), "c1", 0, true)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if filteredCalls != 1 || plainCalls != 1 {
		t.Errorf("calls: filtered=%d plain=%d, want 1 and 1", filteredCalls, plainCalls)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Errorf("client-side filter failed: %+v", tasks)
	}
}

func TestDo_RetriesOnceAfter401(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/me/todo/lists", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, map[string]any{"value": []Collection{{ID: "c1", DisplayName: "Tasks"}}})
	})
	client, tokens := newTestClient(t, mux)

	cols, err := client.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if calls != 2 || tokens.refreshed != 1 {
		t.Errorf("calls=%d refreshed=%d, want one retry after one forced refresh", calls, tokens.refreshed)
	}
	if len(cols) != 1 || cols[0].ID != "c1" {
		t.Errorf("unexpected collections: %+v", cols)
	}
}

func TestDo_SecondUnauthorizedFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/todo/lists", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, map[string]any{"error": map[string]string{"message": "token invalid"}})
	})
	client, _ := newTestClient(t, mux)

	_, err := client.ListCollections(context.Background())
	var re *RequestError
	if !errors.As(err, &re) || re.Status != http.StatusUnauthorized {
		t.Fatalf("want RequestError with 401, got %v", err)
	}
}

func TestRequestErrorDiagnostic(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/todo/lists/c1/tasks/t1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(t, w, map[string]any{"error": map[string]string{"code": "accessDenied", "message": "nope"}})
	})
	client, _ := newTestClient(t, mux)

	err := client.DeleteTask(context.Background(), "c1", "t1")
	if err == nil || !strings.Contains(err.Error(), "accessDenied: nope") {
		t.Errorf("diagnostic not built from error envelope: %v", err)
	}
}

func TestUpdateTask_DueDateTriState(t *testing.T) {
	var bodies []map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("/me/todo/lists/c1/tasks/t1", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad patch body: %v", err)
		}
		bodies = append(bodies, body)
		writeJSON(t, w, map[string]any{})
	})
	client, _ := newTestClient(t, mux)
	ctx := context.Background()
	title := "New title"

	// Unset due date: dueDateTime absent from the patch.
	if err := client.UpdateTask(ctx, "c1", "t1", TaskPatch{Title: &title}); err != nil {
		t.Fatal(err)
	}
	if _, present := bodies[0]["dueDateTime"]; present {
		t.Error("due date should be untouched when not set")
	}

	// Explicit clear: dueDateTime present as JSON null.
	if err := client.UpdateTask(ctx, "c1", "t1", TaskPatch{DueSet: true}); err != nil {
		t.Fatal(err)
	}
	if raw, present := bodies[1]["dueDateTime"]; !present || string(raw) != "null" {
		t.Errorf("clearing due date should send explicit null, got %s", raw)
	}

	// Set: dueDateTime carries the date.
	if err := client.UpdateTask(ctx, "c1", "t1", TaskPatch{DueSet: true, DueDate: "2024-05-01"}); err != nil {
		t.Fatal(err)
	}
	if raw := bodies[2]["dueDateTime"]; !strings.Contains(string(raw), "2024-05-01") {
		t.Errorf("due date not sent: %s", raw)
	}
}

func TestCreateTask_ScrubsTitle(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("/me/todo/lists/c1/tasks", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		got, _ = body["title"].(string)
		writeJSON(t, w, Task{ID: "t1", Title: got})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	scrub := func(s string) string { return strings.TrimSuffix(s, " <!-- mtd:mtd_aaaa1111 -->") }
	client := New(srv.URL, &staticTokens{token: "tok"}, scrub)

	_, err := client.CreateTask(context.Background(), "c1", TaskCreate{Title: "Write report <!-- mtd:mtd_aaaa1111 -->"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Write report" {
		t.Errorf("title not scrubbed before create: %q", got)
	}
}
