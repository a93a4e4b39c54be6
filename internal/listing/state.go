package listing

import (
	"strconv"
	"strings"
)

// DefaultPageSize is used whenever a page size below 1 is requested.
const DefaultPageSize = 10

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection maps "desc" (any case) to Desc and everything else to Asc.
func ParseDirection(raw string) Direction {
	if strings.EqualFold(strings.TrimSpace(raw), string(Desc)) {
		return Desc
	}
	return Asc
}

// State holds the named controls of one list view. The zero value is not
// ready for use; call NewState.
type State struct {
	Search     string    `json:"search"`
	Filter     string    `json:"filter"`
	Tab        string    `json:"tab"`
	SortColumn string    `json:"sortColumn"`
	SortDir    Direction `json:"sortDir"`
	PageSize   int       `json:"pageSize"`
	Page       int       `json:"page"`
	PageInput  string    `json:"pageInput"`
}

func NewState(pageSize int) State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return State{
		SortDir:   Asc,
		PageSize:  pageSize,
		Page:      1,
		PageInput: "1",
	}
}

func (s *State) SetSearch(term string) {
	s.Search = term
	s.resetPage()
}

func (s *State) SetFilter(value string) {
	s.Filter = value
	s.resetPage()
}

func (s *State) SetTab(value string) {
	s.Tab = value
	s.resetPage()
}

// ToggleSort flips the direction when column is already selected, otherwise
// selects column in ascending order.
func (s *State) ToggleSort(column string) {
	if s.SortColumn == column {
		if s.SortDir == Asc {
			s.SortDir = Desc
		} else {
			s.SortDir = Asc
		}
		return
	}
	s.SortColumn = column
	s.SortDir = Asc
}

// SetPageSize changes the page size and always returns to the first page.
func (s *State) SetPageSize(size int) {
	if size < 1 {
		size = DefaultPageSize
	}
	s.PageSize = size
	s.resetPage()
}

// GoTo moves to page when it lies in [1, totalPages] and reports whether it
// did. Any other page is rejected and leaves the state untouched.
func (s *State) GoTo(page, totalPages int) bool {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 || page > totalPages {
		return false
	}
	s.Page = page
	s.PageInput = strconv.Itoa(page)
	return true
}

// Next and Prev are no-ops at the last and first page.
func (s *State) Next(totalPages int) bool {
	return s.GoTo(s.Page+1, totalPages)
}

func (s *State) Prev(totalPages int) bool {
	return s.GoTo(s.Page-1, totalPages)
}

// Clamp pulls the current page back into [1, totalPages] after the
// underlying items changed, e.g. when rows were deleted or a filter
// narrowed the list.
func (s *State) Clamp(totalPages int) {
	if totalPages < 1 {
		totalPages = 1
	}
	s.Page = min(max(s.Page, 1), totalPages)
	s.PageInput = strconv.Itoa(s.Page)
}

// SetPageInput stores raw text typed into the page entry box without moving.
func (s *State) SetPageInput(raw string) {
	s.PageInput = raw
}

// CommitPageInput jumps to the page typed into the buffer. Entries that are
// not a number in [1, totalPages] are rejected: the page stays put and the
// buffer reverts to the current page number.
func (s *State) CommitPageInput(totalPages int) bool {
	if totalPages < 1 {
		totalPages = 1
	}
	page, err := strconv.Atoi(strings.TrimSpace(s.PageInput))
	if err != nil || page < 1 || page > totalPages {
		s.PageInput = strconv.Itoa(s.Page)
		return false
	}
	s.Page = page
	s.PageInput = strconv.Itoa(page)
	return true
}

func (s *State) resetPage() {
	s.Page = 1
	s.PageInput = "1"
}
