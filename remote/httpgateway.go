package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoCodeAlone/tickler/assist"
	"github.com/GoCodeAlone/tickler/task"
)

// HTTPGateway is a Gateway that talks to a tickler server. The owner is
// implied by the bearer token; the owner arguments only label errors.
type HTTPGateway struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewHTTPGateway returns a gateway for the server at baseURL.
func NewHTTPGateway(baseURL, token string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type idResponse struct {
	ID string `json:"id"`
}

// StatusError is a non-2xx server response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Is maps 404 onto ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// do sends body as JSON and decodes the response into v (may be nil).
func (g *HTTPGateway) do(ctx context.Context, method, path string, body, v any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if v != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func escape(id string) string { return url.PathEscape(id) }

// Status returns the server's status payload.
func (g *HTTPGateway) Status(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := g.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login exchanges credentials for a token and keeps it on the gateway.
func (g *HTTPGateway) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := g.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	g.Token = out.Token
	return out.Token, nil
}

// --- tasks ---

func (g *HTTPGateway) ListTasks(ctx context.Context, owner string) ([]task.Task, error) {
	var tasks []task.Task
	if err := g.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", owner, err)
	}
	return tasks, nil
}

func (g *HTTPGateway) CreateTask(ctx context.Context, owner string, t task.Task) (string, error) {
	if err := checkOutgoing(&t); err != nil {
		return "", err
	}
	t.ID = task.ID{}
	var out idResponse
	if err := g.do(ctx, http.MethodPost, "/api/tasks", t, &out); err != nil {
		return "", fmt.Errorf("create task for %s: %w", owner, err)
	}
	return out.ID, nil
}

func (g *HTTPGateway) UpdateTask(ctx context.Context, owner, id string, p task.Patch) error {
	if err := checkPatch(p); err != nil {
		return err
	}
	if err := g.do(ctx, http.MethodPatch, "/api/tasks/"+escape(id), p, nil); err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}

func (g *HTTPGateway) DeleteTask(ctx context.Context, owner, id string) error {
	if err := g.do(ctx, http.MethodDelete, "/api/tasks/"+escape(id), nil, nil); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (g *HTTPGateway) UpsertPositions(ctx context.Context, owner string, positions []Position) error {
	if err := g.do(ctx, http.MethodPut, "/api/tasks/positions", positions, nil); err != nil {
		return fmt.Errorf("upsert positions for %s: %w", owner, err)
	}
	return nil
}

func (g *HTTPGateway) LogCompletion(ctx context.Context, owner, id string, at time.Time) error {
	body := map[string]any{"completed_at": task.WallOf(at)}
	if err := g.do(ctx, http.MethodPost, "/api/tasks/"+escape(id)+"/log", body, nil); err != nil {
		return fmt.Errorf("log completion %s: %w", id, err)
	}
	return nil
}

// --- lists ---

func (g *HTTPGateway) ListLists(ctx context.Context, owner string) ([]task.List, error) {
	var lists []task.List
	if err := g.do(ctx, http.MethodGet, "/api/lists", nil, &lists); err != nil {
		return nil, fmt.Errorf("list lists for %s: %w", owner, err)
	}
	return lists, nil
}

func (g *HTTPGateway) CreateList(ctx context.Context, owner string, l task.List) (string, error) {
	l.ID = task.ID{}
	var out idResponse
	if err := g.do(ctx, http.MethodPost, "/api/lists", l, &out); err != nil {
		return "", fmt.Errorf("create list for %s: %w", owner, err)
	}
	return out.ID, nil
}

func (g *HTTPGateway) RenameList(ctx context.Context, owner, id, title string) error {
	if err := g.do(ctx, http.MethodPatch, "/api/lists/"+escape(id), map[string]string{"title": title}, nil); err != nil {
		return fmt.Errorf("rename list %s: %w", id, err)
	}
	return nil
}

func (g *HTTPGateway) DeleteList(ctx context.Context, owner, id string) error {
	if err := g.do(ctx, http.MethodDelete, "/api/lists/"+escape(id), nil, nil); err != nil {
		return fmt.Errorf("delete list %s: %w", id, err)
	}
	return nil
}

// --- templates ---

func (g *HTTPGateway) ListTemplates(ctx context.Context, owner string) ([]task.Template, error) {
	var out []task.Template
	if err := g.do(ctx, http.MethodGet, "/api/templates", nil, &out); err != nil {
		return nil, fmt.Errorf("list templates for %s: %w", owner, err)
	}
	return out, nil
}

func (g *HTTPGateway) CreateTemplate(ctx context.Context, owner string, tp task.Template) (string, error) {
	tp.ID = task.ID{}
	var out idResponse
	if err := g.do(ctx, http.MethodPost, "/api/templates", tp, &out); err != nil {
		return "", fmt.Errorf("create template for %s: %w", owner, err)
	}
	return out.ID, nil
}

func (g *HTTPGateway) UpdateTemplate(ctx context.Context, owner, id string, tp task.Template) error {
	tp.ID = task.ID{}
	if err := g.do(ctx, http.MethodPatch, "/api/templates/"+escape(id), tp, nil); err != nil {
		return fmt.Errorf("update template %s: %w", id, err)
	}
	return nil
}

func (g *HTTPGateway) DeleteTemplate(ctx context.Context, owner, id string) error {
	if err := g.do(ctx, http.MethodDelete, "/api/templates/"+escape(id), nil, nil); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}

// Generate asks the server's assistant for text.
func (g *HTTPGateway) Generate(ctx context.Context, req assist.Request) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := g.do(ctx, http.MethodPost, "/api/assist", req, &out); err != nil {
		return "", fmt.Errorf("assist: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", assist.ErrEmptyResult
	}
	return out.Text, nil
}

var (
	_ Gateway          = (*HTTPGateway)(nil)
	_ Gateway          = (*SQLStore)(nil)
	_ assist.Generator = (*HTTPGateway)(nil)
)
