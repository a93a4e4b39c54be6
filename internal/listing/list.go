// Package listing derives the visible page of an in-memory record list from a
// small set of named controls: search text, filter, tab, sort and pagination.
//
// The pipeline is always search → filter → tab → stable sort → page slice.
// Nothing here touches the network; callers hand in already loaded rows.
package listing

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// All disables a filter or tab predicate, as does the empty string.
const All = "all"

// List describes how records of type T are searched, filtered and sorted.
type List[T any] struct {
	// SearchFields returns the text fields matched against the search term.
	SearchFields func(T) []string
	Filter       func(item T, value string) bool
	Tab          func(item T, value string) bool
	Sorters      map[string]func(a, b T) int
}

type Result[T any] struct {
	Filtered   []T `json:"-"`
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// TotalPages returns ceil(count/pageSize), never less than 1.
func TotalPages(count, pageSize int) int {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if count <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

// Apply filters, sorts and paginates items according to st. Items is never
// modified. A page beyond the filtered range is clamped into it.
func (l List[T]) Apply(items []T, st State) Result[T] {
	filtered := l.filter(items, st)
	if sorter, ok := l.Sorters[st.SortColumn]; ok && sorter != nil {
		compare := sorter
		if st.SortDir == Desc {
			compare = func(a, b T) int { return sorter(b, a) }
		}
		slices.SortStableFunc(filtered, compare)
	}

	pageSize := st.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	totalPages := TotalPages(len(filtered), pageSize)
	page := min(max(st.Page, 1), totalPages)

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(filtered))
	pageItems := make([]T, 0, end-start)
	if start < end {
		pageItems = append(pageItems, filtered[start:end]...)
	}
	return Result[T]{
		Filtered:   filtered,
		Items:      pageItems,
		Total:      len(filtered),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// Count returns the number of items that survive the predicates of st.
func (l List[T]) Count(items []T, st State) int {
	return len(l.filter(items, st))
}

func (l List[T]) filter(items []T, st State) []T {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(st.Search))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if needle != "" && !l.matches(fold, item, needle) {
			continue
		}
		if active(st.Filter) && l.Filter != nil && !l.Filter(item, st.Filter) {
			continue
		}
		if active(st.Tab) && l.Tab != nil && !l.Tab(item, st.Tab) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (l List[T]) matches(fold cases.Caser, item T, needle string) bool {
	if l.SearchFields == nil {
		return true
	}
	for _, field := range l.SearchFields(item) {
		if strings.Contains(fold.String(field), needle) {
			return true
		}
	}
	return false
}

func active(value string) bool {
	value = strings.TrimSpace(value)
	return value != "" && !strings.EqualFold(value, All)
}

// ByString orders by a text key under the same Unicode case folding that
// search uses, so "Straße" sorts where "strasse" does.
func ByString[T any](key func(T) string) func(a, b T) int {
	return func(a, b T) int {
		// A Caser keeps state; one per comparison keeps sorters safe to share.
		fold := cases.Fold()
		return cmp.Compare(fold.String(key(a)), fold.String(key(b)))
	}
}

// ByNumber orders by a numeric key.
func ByNumber[T any, N cmp.Ordered](key func(T) N) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

// ByOptionalInt orders by a nullable integer; nil sorts first.
func ByOptionalInt[T any](key func(T) *int) func(a, b T) int {
	return func(a, b T) int {
		x, y := key(a), key(b)
		switch {
		case x == nil && y == nil:
			return 0
		case x == nil:
			return -1
		case y == nil:
			return 1
		}
		return cmp.Compare(*x, *y)
	}
}

func ByTime[T any](key func(T) time.Time) func(a, b T) int {
	return func(a, b T) int {
		return key(a).Compare(key(b))
	}
}
