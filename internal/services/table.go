package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradehub-admin/internal/metrics"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Table is the data access object for one remote table. T must carry a `db`
// tag for every entry of Columns.
type Table[T any] struct {
	DB       *sqlx.DB
	Name     string
	Columns  []string
	Writable []string
	OrderBy  string
	// Touch maintains updated_at on every write.
	Touch bool
}

func (t Table[T]) selectList() string {
	return strings.Join(t.Columns, ", ")
}

func (t Table[T]) List(ctx context.Context) ([]T, error) {
	defer metrics.TrackDBOperation(t.Name, "list")(time.Now())
	items := []T{}
	query := "SELECT " + t.selectList() + " FROM " + t.Name
	if t.OrderBy != "" {
		query += " ORDER BY " + t.OrderBy
	}
	if err := t.DB.SelectContext(ctx, &items, query); err != nil {
		return nil, classify(t.Name, "list", err)
	}
	return items, nil
}

// Where lists the rows whose column equals value. column must be one of
// Columns.
func (t Table[T]) Where(ctx context.Context, column string, value any) ([]T, error) {
	defer metrics.TrackDBOperation(t.Name, "list")(time.Now())
	if !contains(t.Columns, column) {
		return nil, fmt.Errorf("%s: unknown column %q", t.Name, column)
	}
	items := []T{}
	query := "SELECT " + t.selectList() + " FROM " + t.Name + " WHERE " + column + " = $1"
	if t.OrderBy != "" {
		query += " ORDER BY " + t.OrderBy
	}
	if err := t.DB.SelectContext(ctx, &items, query, value); err != nil {
		return nil, classify(t.Name, "list", err)
	}
	return items, nil
}

// notFound answers for ids that cannot name a row: every primary key is a
// uuid, so malformed ids never reach the database.
func (t Table[T]) notFound(op, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &RemoteError{Kind: RemoteNotFound, Table: t.Name, Op: op, Detail: "malformed id", Err: err}
	}
	return nil
}

func (t Table[T]) Get(ctx context.Context, id string) (T, error) {
	var item T
	if err := t.notFound("get", id); err != nil {
		return item, err
	}
	defer metrics.TrackDBOperation(t.Name, "get")(time.Now())
	query := "SELECT " + t.selectList() + " FROM " + t.Name + " WHERE id = $1"
	if err := t.DB.GetContext(ctx, &item, query, id); err != nil {
		return item, classify(t.Name, "get", err)
	}
	return item, nil
}

func (t Table[T]) Exists(ctx context.Context, id string) (bool, error) {
	if t.notFound("get", id) != nil {
		return false, nil
	}
	defer metrics.TrackDBOperation(t.Name, "get")(time.Now())
	var exists bool
	err := t.DB.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM "+t.Name+" WHERE id = $1)", id)
	if err != nil {
		return false, classify(t.Name, "get", err)
	}
	return exists, nil
}

func (t Table[T]) Count(ctx context.Context) (int, error) {
	defer metrics.TrackDBOperation(t.Name, "count")(time.Now())
	var total int
	if err := t.DB.GetContext(ctx, &total, "SELECT count(*) FROM "+t.Name); err != nil {
		return 0, classify(t.Name, "count", err)
	}
	return total, nil
}

// Create inserts a row from the writable entries of values and returns it.
// Keys outside Writable are ignored.
func (t Table[T]) Create(ctx context.Context, values map[string]any) (T, error) {
	defer metrics.TrackDBOperation(t.Name, "create")(time.Now())
	now := time.Now().UTC()
	cols := []string{"id", "created_at"}
	args := []any{uuid.NewString(), now}
	if t.Touch {
		cols = append(cols, "updated_at")
		args = append(args, now)
	}
	for _, col := range t.Writable {
		if value, ok := values[col]; ok {
			cols = append(cols, col)
			args = append(args, value)
		}
	}
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	query := "INSERT INTO " + t.Name + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") RETURNING " + t.selectList()

	var item T
	if err := t.DB.GetContext(ctx, &item, query, args...); err != nil {
		return item, classify(t.Name, "create", err)
	}
	return item, nil
}

// Update applies the writable entries of patch to row id and returns the
// stored row. An empty patch is a read.
func (t Table[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	if err := t.notFound("update", id); err != nil {
		var zero T
		return zero, err
	}
	sets := []string{}
	args := []any{id}
	for _, col := range t.Writable {
		if value, ok := patch[col]; ok {
			args = append(args, value)
			sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
		}
	}
	if len(sets) == 0 {
		return t.Get(ctx, id)
	}
	defer metrics.TrackDBOperation(t.Name, "update")(time.Now())
	if t.Touch {
		args = append(args, time.Now().UTC())
		sets = append(sets, "updated_at = $"+strconv.Itoa(len(args)))
	}
	query := "UPDATE " + t.Name + " SET " + strings.Join(sets, ", ") +
		" WHERE id = $1 RETURNING " + t.selectList()

	var item T
	if err := t.DB.GetContext(ctx, &item, query, args...); err != nil {
		return item, classify(t.Name, "update", err)
	}
	return item, nil
}

func (t Table[T]) Delete(ctx context.Context, id string) error {
	if err := t.notFound("delete", id); err != nil {
		return err
	}
	defer metrics.TrackDBOperation(t.Name, "delete")(time.Now())
	res, err := t.DB.ExecContext(ctx, "DELETE FROM "+t.Name+" WHERE id = $1", id)
	if err != nil {
		return classify(t.Name, "delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &RemoteError{Kind: RemoteNotFound, Table: t.Name, Op: "delete"}
	}
	return nil
}

func contains(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
