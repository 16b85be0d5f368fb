package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoCodeAlone/tickler/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	client_ref  TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT 'reminder',
	frequency   TEXT NOT NULL DEFAULT 'once',
	next_run    TEXT,
	last_run    TEXT,
	priority    INTEGER NOT NULL DEFAULT 0,
	is_flagged  BOOLEAN NOT NULL DEFAULT FALSE,
	is_paused   BOOLEAN NOT NULL DEFAULT FALSE,
	completed   BOOLEAN NOT NULL DEFAULT FALSE,
	is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
	list_id     TEXT,
	position    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS tasks_client_ref ON tasks (owner, client_ref) WHERE client_ref <> '';
CREATE INDEX IF NOT EXISTS tasks_owner_position ON tasks (owner, position);

CREATE TABLE IF NOT EXISTS task_log (
	id           TEXT PRIMARY KEY,
	owner        TEXT NOT NULL,
	task_id      TEXT NOT NULL,
	completed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS task_log_task ON task_log (owner, task_id);

CREATE TABLE IF NOT EXISTS lists (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	client_ref TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS lists_client_ref ON lists (owner, client_ref) WHERE client_ref <> '';

CREATE TABLE IF NOT EXISTS templates (
	id          TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	client_ref  TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT 'reminder',
	created_at  TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS templates_client_ref ON templates (owner, client_ref) WHERE client_ref <> '';
`

const taskColumns = `id, owner, client_ref, title, description, type, frequency, next_run, last_run,
	priority, is_flagged, is_paused, completed, is_deleted, list_id, position, created_at, updated_at`

// SQLStore is a Gateway backed by database/sql. Queries are written with ?
// placeholders and rebound to $n for Postgres.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// Open connects to driver ("sqlite" or "postgres") at dsn and ensures the
// schema exists. The caller is responsible for calling Close.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db, postgres: driver == "postgres", now: time.Now}, nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	return Open("sqlite", dbPath)
}

// Close releases the underlying database connection.
func (s *SQLStore) Close() error { return s.db.Close() }

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- tasks ---

// ListTasks returns owner's tasks ordered by position, then creation time.
func (s *SQLStore) ListTasks(ctx context.Context, owner string) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks
		WHERE owner = ? ORDER BY position ASC, created_at ASC, id ASC`), owner)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// GetTask returns one task.
func (s *SQLStore) GetTask(ctx context.Context, owner, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE owner = ? AND id = ?`), owner, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// CreateTask inserts t. When t.ClientRef matches an existing record for the
// owner, that record's id is returned and nothing is inserted.
func (s *SQLStore) CreateTask(ctx context.Context, owner string, t task.Task) (string, error) {
	if err := checkOutgoing(&t); err != nil {
		return "", err
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return "", err
	}
	if id, ok, err := s.byClientRef(ctx, "tasks", owner, t.ClientRef); err != nil || ok {
		return id, err
	}
	if err := s.ownsList(ctx, owner, t.ListID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := s.now().UTC()
	_, err := s.exec(ctx, s.db, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, owner, t.ClientRef, t.Title, t.Description, string(t.Type), string(t.Frequency),
		wallArg(t.NextRun), wallArg(t.LastRun),
		int(t.Priority), t.IsFlagged, t.IsPaused, t.Completed, t.IsDeleted,
		idArg(t.ListID), t.Position, now, now,
	)
	if err != nil {
		// A concurrent create with the same client_ref lost the race.
		if existing, ok, lookupErr := s.byClientRef(ctx, "tasks", owner, t.ClientRef); lookupErr == nil && ok {
			return existing, nil
		}
		return "", fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// UpdateTask applies the fields set in p.
func (s *SQLStore) UpdateTask(ctx context.Context, owner, id string, p task.Patch) error {
	if err := checkPatch(p); err != nil {
		return err
	}
	if !p.ClearList {
		if err := s.ownsList(ctx, owner, p.ListID); err != nil {
			return err
		}
	}
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Type != nil {
		set("type", string(*p.Type))
	}
	if p.Frequency != nil {
		set("frequency", string(*p.Frequency))
	}
	if p.ClearNextRun {
		set("next_run", nil)
	} else if p.NextRun != nil {
		set("next_run", p.NextRun.String())
	}
	if p.LastRun != nil {
		set("last_run", p.LastRun.String())
	}
	if p.Priority != nil {
		set("priority", int(*p.Priority))
	}
	if p.IsFlagged != nil {
		set("is_flagged", *p.IsFlagged)
	}
	if p.IsPaused != nil {
		set("is_paused", *p.IsPaused)
	}
	if p.Completed != nil {
		set("completed", *p.Completed)
	}
	if p.IsDeleted != nil {
		set("is_deleted", *p.IsDeleted)
	}
	if p.ClearList {
		set("list_id", nil)
	} else if p.ListID != nil {
		set("list_id", idArg(p.ListID))
	}
	if p.Position != nil {
		set("position", *p.Position)
	}
	set("updated_at", s.now().UTC())
	args = append(args, owner, id)

	res, err := s.exec(ctx, s.db, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE owner = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRow(res, "task", id)
}

// DeleteTask removes a task permanently. Its completion log is kept.
func (s *SQLStore) DeleteTask(ctx context.Context, owner, id string) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM tasks WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRow(res, "task", id)
}

// UpsertPositions writes a reorder batch in one transaction. Ids that no
// longer exist are skipped.
func (s *SQLStore) UpsertPositions(ctx context.Context, owner string, positions []Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin positions: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	for _, p := range positions {
		if _, err := s.exec(ctx, tx, `UPDATE tasks SET position = ?, updated_at = ? WHERE owner = ? AND id = ?`,
			p.Position, now, owner, p.ID); err != nil {
			return fmt.Errorf("update position %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit positions: %w", err)
	}
	return nil
}

// LogCompletion appends a completion event for a task.
func (s *SQLStore) LogCompletion(ctx context.Context, owner, id string, at time.Time) error {
	if _, err := s.GetTask(ctx, owner, id); err != nil {
		return err
	}
	_, err := s.exec(ctx, s.db, `INSERT INTO task_log (id, owner, task_id, completed_at) VALUES (?,?,?,?)`,
		uuid.NewString(), owner, id, task.WallOf(at).Time)
	if err != nil {
		return fmt.Errorf("log completion: %w", err)
	}
	return nil
}

// Completions returns the logged completion times of a task, oldest first.
func (s *SQLStore) Completions(ctx context.Context, owner, id string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT completed_at FROM task_log
		WHERE owner = ? AND task_id = ? ORDER BY completed_at ASC`), owner, id)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, at.UTC())
	}
	return out, rows.Err()
}

// --- lists ---

// ListLists returns owner's lists by creation time.
func (s *SQLStore) ListLists(ctx context.Context, owner string) ([]task.List, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, owner, client_ref, title FROM lists
		WHERE owner = ? ORDER BY created_at ASC, id ASC`), owner)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var lists []task.List
	for rows.Next() {
		var l task.List
		var id string
		if err := rows.Scan(&id, &l.Owner, &l.ClientRef, &l.Title); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		l.ID = task.RemoteID(id)
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// CreateList inserts l, idempotent on its ClientRef.
func (s *SQLStore) CreateList(ctx context.Context, owner string, l task.List) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	if id, ok, err := s.byClientRef(ctx, "lists", owner, l.ClientRef); err != nil || ok {
		return id, err
	}
	id := uuid.NewString()
	_, err := s.exec(ctx, s.db, `INSERT INTO lists (id, owner, client_ref, title, created_at) VALUES (?,?,?,?,?)`,
		id, owner, l.ClientRef, l.Title, s.now().UTC())
	if err != nil {
		if existing, ok, lookupErr := s.byClientRef(ctx, "lists", owner, l.ClientRef); lookupErr == nil && ok {
			return existing, nil
		}
		return "", fmt.Errorf("insert list: %w", err)
	}
	return id, nil
}

// RenameList changes a list's title.
func (s *SQLStore) RenameList(ctx context.Context, owner, id, title string) error {
	l := task.List{Title: title}
	if err := l.Validate(); err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, `UPDATE lists SET title = ? WHERE owner = ? AND id = ?`, title, owner, id)
	if err != nil {
		return fmt.Errorf("rename list: %w", err)
	}
	return expectRow(res, "list", id)
}

// DeleteList removes a list and moves its tasks to unfiled in one transaction.
func (s *SQLStore) DeleteList(ctx context.Context, owner, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete list: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := s.exec(ctx, tx, `UPDATE tasks SET list_id = NULL, updated_at = ? WHERE owner = ? AND list_id = ?`,
		s.now().UTC(), owner, id); err != nil {
		return fmt.Errorf("detach tasks: %w", err)
	}
	res, err := s.exec(ctx, tx, `DELETE FROM lists WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if err := expectRow(res, "list", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete list: %w", err)
	}
	return nil
}

// --- templates ---

// ListTemplates returns owner's templates by creation time.
func (s *SQLStore) ListTemplates(ctx context.Context, owner string) ([]task.Template, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, owner, client_ref, title, description, type FROM templates
		WHERE owner = ? ORDER BY created_at ASC, id ASC`), owner)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []task.Template
	for rows.Next() {
		var tp task.Template
		var id, typ string
		if err := rows.Scan(&id, &tp.Owner, &tp.ClientRef, &tp.Title, &tp.Description, &typ); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		tp.ID = task.RemoteID(id)
		tp.Type = task.Type(typ)
		out = append(out, tp)
	}
	return out, rows.Err()
}

// CreateTemplate inserts tp, idempotent on its ClientRef.
func (s *SQLStore) CreateTemplate(ctx context.Context, owner string, tp task.Template) (string, error) {
	if tp.Type == "" {
		tp.Type = task.TypeReminder
	}
	if err := tp.Validate(); err != nil {
		return "", err
	}
	if id, ok, err := s.byClientRef(ctx, "templates", owner, tp.ClientRef); err != nil || ok {
		return id, err
	}
	id := uuid.NewString()
	_, err := s.exec(ctx, s.db, `INSERT INTO templates (id, owner, client_ref, title, description, type, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		id, owner, tp.ClientRef, tp.Title, tp.Description, string(tp.Type), s.now().UTC())
	if err != nil {
		if existing, ok, lookupErr := s.byClientRef(ctx, "templates", owner, tp.ClientRef); lookupErr == nil && ok {
			return existing, nil
		}
		return "", fmt.Errorf("insert template: %w", err)
	}
	return id, nil
}

// UpdateTemplate replaces a template's content fields.
func (s *SQLStore) UpdateTemplate(ctx context.Context, owner, id string, tp task.Template) error {
	if tp.Type == "" {
		tp.Type = task.TypeReminder
	}
	if err := tp.Validate(); err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, `UPDATE templates SET title = ?, description = ?, type = ? WHERE owner = ? AND id = ?`,
		tp.Title, tp.Description, string(tp.Type), owner, id)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return expectRow(res, "template", id)
}

// DeleteTemplate removes a template.
func (s *SQLStore) DeleteTemplate(ctx context.Context, owner, id string) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM templates WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return expectRow(res, "template", id)
}

// --- helpers ---

// byClientRef looks up the id of the record created under ref. table is
// always a constant from this file.
func (s *SQLStore) byClientRef(ctx context.Context, table, owner, ref string) (string, bool, error) {
	if ref == "" {
		return "", false, nil
	}
	var id string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id FROM `+table+` WHERE owner = ? AND client_ref = ?`), owner, ref).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup client ref: %w", err)
	}
	return id, true, nil
}

// ownsList checks that a referenced list exists for owner. A nil id refers to
// no list.
func (s *SQLStore) ownsList(ctx context.Context, owner string, id *task.ID) error {
	if id == nil {
		return nil
	}
	lid, _ := id.Remote()
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM lists WHERE owner = ? AND id = ?`), owner, lid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("list %s: %w", lid, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup list %s: %w", lid, err)
	}
	return nil
}

func expectRow(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*task.Task, error) {
	var t task.Task
	var id, typ, freq string
	var nextRun, lastRun, listID sql.NullString
	var priority int

	err := s.Scan(
		&id, &t.Owner, &t.ClientRef, &t.Title, &t.Description, &typ, &freq,
		&nextRun, &lastRun,
		&priority, &t.IsFlagged, &t.IsPaused, &t.Completed, &t.IsDeleted,
		&listID, &t.Position, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ID = task.RemoteID(id)
	t.Type = task.Type(typ)
	t.Frequency = task.Frequency(freq)
	t.Priority = task.Priority(priority)
	if t.NextRun, err = nullWall(nextRun); err != nil {
		return nil, err
	}
	if t.LastRun, err = nullWall(lastRun); err != nil {
		return nil, err
	}
	if listID.Valid && listID.String != "" {
		l := task.RemoteID(listID.String)
		t.ListID = &l
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.Normalize()
	return &t, nil
}

func nullWall(ns sql.NullString) (*task.Wall, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	w, err := task.ParseWall(ns.String)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func wallArg(w *task.Wall) any {
	if w == nil {
		return nil
	}
	return w.String()
}

func idArg(id *task.ID) any {
	if id == nil || id.IsZero() {
		return nil
	}
	r, _ := id.Remote()
	return r
}
