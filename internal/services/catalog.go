package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/metrics"

	"github.com/jmoiron/sqlx"
)

// ValidationError carries the per-field messages of a rejected form.
type ValidationError struct {
	Table  string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d invalid field(s)", e.Table, len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return form.ErrInvalid }

// Page is one rendered list page with the controls that produced it.
type Page struct {
	Items      any           `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
	State      listing.State `json:"state"`
}

// ViewOp is one control change applied to a stored list view.
type ViewOp struct {
	Search     *string `json:"search,omitempty"`
	Filter     *string `json:"filter,omitempty"`
	Tab        *string `json:"tab,omitempty"`
	ToggleSort *string `json:"toggleSort,omitempty"`
	PageSize   *int    `json:"pageSize,omitempty"`
	Page       *int    `json:"page,omitempty"`
	// Next and Prev move one page; PageInput is typed text committed at once.
	Next      bool    `json:"next,omitempty"`
	Prev      bool    `json:"prev,omitempty"`
	PageInput *string `json:"pageInput,omitempty"`
}

// Admin is the table-agnostic view of a Resource that the HTTP layer routes
// to by name.
type Admin interface {
	Name() string
	Page(ctx context.Context, st listing.State) (Page, error)
	// Apply runs op against st using the current row set and returns the
	// updated controls together with the page they select.
	Apply(ctx context.Context, st listing.State, op ViewOp) (Page, bool, error)
	Get(ctx context.Context, id string) (any, error)
	Create(ctx context.Context, actorID string, body form.Values) (any, error)
	Update(ctx context.Context, actorID, id string, body form.Values) (any, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type admin[T any] struct {
	res   Resource[T]
	cache *cache.Store
}

func Bind[T any](res Resource[T], store *cache.Store) Admin {
	return admin[T]{res: res, cache: store}
}

func (a admin[T]) Name() string { return a.res.Name() }

func (a admin[T]) load(ctx context.Context) ([]T, error) {
	return cache.Fetch(ctx, a.cache, a.res.Name(), a.res.Table.List)
}

func (a admin[T]) Page(ctx context.Context, st listing.State) (Page, error) {
	items, err := a.load(ctx)
	if err != nil {
		return Page{}, err
	}
	ctrl := listing.NewController(a.res.List, items, st.PageSize).WithState(st)
	ctrl.Clamp()
	return a.render(ctrl), nil
}

func (a admin[T]) Apply(ctx context.Context, st listing.State, op ViewOp) (Page, bool, error) {
	items, err := a.load(ctx)
	if err != nil {
		return Page{}, false, err
	}
	ctrl := listing.NewController(a.res.List, items, st.PageSize).WithState(st)
	ctrl.Clamp()
	accepted := true
	if op.Search != nil {
		ctrl.SetSearch(CleanSearchTerm(*op.Search))
	}
	if op.Filter != nil {
		ctrl.SetFilter(*op.Filter)
	}
	if op.Tab != nil {
		ctrl.SetTab(*op.Tab)
	}
	if op.ToggleSort != nil {
		ctrl.ToggleSort(*op.ToggleSort)
	}
	if op.PageSize != nil {
		ctrl.SetPageSize(*op.PageSize)
	}
	if op.Page != nil && !ctrl.GoTo(*op.Page) {
		accepted = false
	}
	if op.Next && !ctrl.Next() {
		accepted = false
	}
	if op.Prev && !ctrl.Prev() {
		accepted = false
	}
	if op.PageInput != nil {
		ctrl.SetPageInput(*op.PageInput)
		if !ctrl.CommitPageInput() {
			accepted = false
		}
	}
	return a.render(ctrl), accepted, nil
}

func (a admin[T]) render(ctrl *listing.Controller[T]) Page {
	view := ctrl.View()
	return Page{
		Items:      view.Items,
		Total:      view.Total,
		Page:       view.Page,
		PageSize:   view.PageSize,
		TotalPages: view.TotalPages,
		State:      ctrl.State(),
	}
}

func (a admin[T]) Get(ctx context.Context, id string) (any, error) {
	return a.res.Table.Get(ctx, id)
}

func (a admin[T]) Count(ctx context.Context) (int, error) {
	return a.res.Table.Count(ctx)
}

func (a admin[T]) Create(ctx context.Context, actorID string, body form.Values) (any, error) {
	return a.submit(actorID, true, form.Values{}, body, func(record map[string]any) (T, error) {
		return a.res.Table.Create(ctx, record)
	})
}

func (a admin[T]) Update(ctx context.Context, actorID, id string, body form.Values) (any, error) {
	current, err := a.res.Table.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.submit(actorID, false, a.res.Values(current), body, func(record map[string]any) (T, error) {
		return a.res.Table.Update(ctx, id, record)
	})
}

func (a admin[T]) Delete(ctx context.Context, id string) error {
	if err := a.res.Table.Delete(ctx, id); err != nil {
		return err
	}
	a.cache.Invalidate(a.res.Name(), cache.StatsKey)
	return nil
}

// submit edits initial with body through a form built from the table's
// schema and hands the changed columns to write.
func (a admin[T]) submit(actorID string, creating bool, initial, body form.Values, write func(map[string]any) (T, error)) (any, error) {
	f := form.New(a.res.SchemaFor(creating), initial, form.Options{ValidateOnSubmit: true})
	for _, name := range sortedKeys(body) {
		if a.res.IsNumeric(name) {
			f.SetNumber(name, numberText(body[name]))
			continue
		}
		f.SetField(name, body[name])
	}

	var saved T
	err := f.Submit(func(data form.Values) error {
		changed := data
		if !creating {
			changed = f.Changed()
		}
		w := &WriteContext{ActorID: actorID, Creating: creating, Data: data, Record: a.res.Record(changed)}
		if a.res.BeforeWrite != nil {
			if err := a.res.BeforeWrite(w); err != nil {
				return err
			}
		}
		var err error
		saved, err = write(w.Record)
		return err
	})
	if errors.Is(err, form.ErrInvalid) {
		metrics.ValidationFailures.WithLabelValues(a.res.Name()).Inc()
		return nil, &ValidationError{Table: a.res.Name(), Fields: f.Errors()}
	}
	if err != nil {
		return nil, err
	}
	a.cache.Invalidate(a.res.Name(), cache.StatsKey)
	return saved, nil
}

// numberText renders a decoded JSON value as the text a numeric input would
// hold.
func numberText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	}
	return fmt.Sprint(value)
}

func sortedKeys(v form.Values) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Catalog is the set of administrable tables keyed by name.
type Catalog map[string]Admin

func NewCatalog(db *sqlx.DB, tokens TokenService, store *cache.Store) Catalog {
	c := Catalog{}
	for _, a := range []Admin{
		Bind(NewBrokers(db), store),
		Bind(NewPosts(db), store),
		Bind(NewProducts(db), store),
		Bind(NewBanners(db), store),
		Bind(NewUsers(db, tokens), store),
	} {
		c[a.Name()] = a
	}
	return c
}

func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
