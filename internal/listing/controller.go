package listing

// Controller binds a List definition, the loaded items and one State, the
// way a single list screen owns its controls. Every navigation call uses the
// page count of the currently filtered items.
type Controller[T any] struct {
	list  List[T]
	items []T
	state State
}

func NewController[T any](list List[T], items []T, pageSize int) *Controller[T] {
	return &Controller[T]{list: list, items: items, state: NewState(pageSize)}
}

// WithState replaces the controls, e.g. when restoring a saved view.
func (c *Controller[T]) WithState(st State) *Controller[T] {
	if st.PageSize < 1 {
		st.PageSize = DefaultPageSize
	}
	if st.Page < 1 {
		st.Page = 1
	}
	if st.SortDir == "" {
		st.SortDir = Asc
	}
	c.state = st
	return c
}

// SetItems swaps in a freshly loaded list, keeping the controls.
func (c *Controller[T]) SetItems(items []T) {
	c.items = items
	c.Clamp()
}

func (c *Controller[T]) State() State { return c.state }

func (c *Controller[T]) TotalPages() int {
	return TotalPages(c.list.Count(c.items, c.state), c.state.PageSize)
}

func (c *Controller[T]) SetSearch(term string)  { c.state.SetSearch(term) }
func (c *Controller[T]) SetFilter(value string) { c.state.SetFilter(value) }
func (c *Controller[T]) SetTab(value string)    { c.state.SetTab(value) }
func (c *Controller[T]) ToggleSort(column string) {
	c.state.ToggleSort(column)
}
func (c *Controller[T]) SetPageSize(size int) { c.state.SetPageSize(size) }

func (c *Controller[T]) GoTo(page int) bool { return c.state.GoTo(page, c.TotalPages()) }
func (c *Controller[T]) Next() bool         { return c.state.Next(c.TotalPages()) }
func (c *Controller[T]) Prev() bool         { return c.state.Prev(c.TotalPages()) }

// Clamp keeps the current page valid for the current items.
func (c *Controller[T]) Clamp() { c.state.Clamp(c.TotalPages()) }

func (c *Controller[T]) SetPageInput(raw string) { c.state.SetPageInput(raw) }

func (c *Controller[T]) CommitPageInput() bool {
	return c.state.CommitPageInput(c.TotalPages())
}

func (c *Controller[T]) View() Result[T] {
	return c.list.Apply(c.items, c.state)
}
