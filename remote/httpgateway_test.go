package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GoCodeAlone/tickler/assist"
	"github.com/GoCodeAlone/tickler/task"
)

func TestHTTPGateway_CreateAndUpdate(t *testing.T) {
	var gotPatch map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		var tk task.Task
		if err := json.NewDecoder(r.Body).Decode(&tk); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !tk.ID.IsZero() {
			t.Errorf("pending id leaked to server: %s", tk.ID)
		}
		if tk.ClientRef != "ref-1" {
			t.Errorf("client_ref = %q", tk.ClientRef)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "42"})
	})
	mux.HandleFunc("PATCH /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "42" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotPatch)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewHTTPGateway(srv.URL+"/", "tok")
	ctx := context.Background()

	id, err := g.CreateTask(ctx, owner, task.Task{ID: task.PendingID("ref-1"), ClientRef: "ref-1", Title: "Buy milk"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q, want 42", id)
	}

	title := "Buy oat milk"
	if err := g.UpdateTask(ctx, owner, "42", task.Patch{Title: &title, ClearList: true}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if gotPatch["title"] != "Buy oat milk" {
		t.Errorf("patch title = %v", gotPatch["title"])
	}
	if v, ok := gotPatch["list_id"]; !ok || v != nil {
		t.Errorf("patch list_id = %v, %v; want explicit null", v, ok)
	}
	if len(gotPatch) != 2 {
		t.Errorf("patch sent extra keys: %v", gotPatch)
	}

	err = g.UpdateTask(ctx, owner, "nope", task.Patch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: err = %v, want ErrNotFound", err)
	}
}

func TestHTTPGateway_RejectsPendingReferences(t *testing.T) {
	g := NewHTTPGateway("http://127.0.0.1:0", "")
	list := task.NewPendingID()
	if _, err := g.CreateTask(context.Background(), owner, task.Task{Title: "x", ListID: &list}); !errors.Is(err, ErrPendingID) {
		t.Errorf("CreateTask err = %v", err)
	}
	if err := g.UpdateTask(context.Background(), owner, "1", task.Patch{ListID: &list}); !errors.Is(err, ErrPendingID) {
		t.Errorf("UpdateTask err = %v", err)
	}
}

func TestHTTPGateway_ListAndGenerate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.Task{{ID: task.RemoteID("1"), Title: "a"}, {ID: task.RemoteID("2"), Title: "b", Position: 1}})
	})
	mux.HandleFunc("POST /api/assist", func(w http.ResponseWriter, r *http.Request) {
		var req assist.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		text := ""
		if req.Title == "Find a plumber" {
			text = "plumber near me"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	})
	mux.HandleFunc("GET /api/lists", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "")
	ctx := context.Background()

	tasks, err := g.ListTasks(ctx, owner)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[1].ID != task.RemoteID("2") {
		t.Errorf("tasks = %+v", tasks)
	}

	text, err := g.Generate(ctx, assist.Request{Title: "Find a plumber", Type: task.TypeWebSearch})
	if err != nil || text != "plumber near me" {
		t.Errorf("Generate = %q, %v", text, err)
	}
	if _, err := g.Generate(ctx, assist.Request{Title: "other"}); !errors.Is(err, assist.ErrEmptyResult) {
		t.Errorf("Generate empty: err = %v", err)
	}

	_, err = g.ListLists(ctx, owner)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("ListLists err = %v, want 500 StatusError", err)
	}
}
