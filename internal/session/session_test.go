package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradehub-admin/internal/listing"

	qt "github.com/frankban/quicktest"
)

func TestStartGetEnd(t *testing.T) {
	c := qt.New(t)
	m := NewManager(time.Hour)

	s := m.Start("u1", "admin@example.com", "admin")
	c.Assert(s.ID, qt.Not(qt.Equals), "")
	c.Assert(m.Len(), qt.Equals, 1)

	got, ok := m.Get(s.ID)
	c.Assert(ok, qt.IsTrue)
	c.Assert(got, qt.Equals, s)

	c.Assert(m.End(s.ID), qt.IsTrue)
	c.Assert(m.End(s.ID), qt.IsFalse)
	_, ok = m.Get(s.ID)
	c.Assert(ok, qt.IsFalse)
}

func TestExpiredSessionsAreDropped(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(time.Minute)
	m.now = func() time.Time { return now }

	a := m.Start("u1", "a@example.com", "editor")
	now = now.Add(30 * time.Second)
	b := m.Start("u2", "b@example.com", "viewer")
	now = now.Add(40 * time.Second)

	_, ok := m.Get(a.ID)
	c.Assert(ok, qt.IsFalse)
	_, ok = m.Get(b.ID)
	c.Assert(ok, qt.IsTrue)

	now = now.Add(time.Minute)
	c.Assert(m.Sweep(), qt.Equals, 1)
	c.Assert(m.Len(), qt.Equals, 0)
}

func TestEndUser(t *testing.T) {
	c := qt.New(t)
	m := NewManager(time.Hour)
	m.Start("u1", "a@example.com", "editor")
	m.Start("u1", "a@example.com", "editor")
	keep := m.Start("u2", "b@example.com", "admin")

	c.Assert(m.EndUser("u1"), qt.Equals, 2)
	c.Assert(m.Len(), qt.Equals, 1)
	_, ok := m.Get(keep.ID)
	c.Assert(ok, qt.IsTrue)
}

func TestEndStale(t *testing.T) {
	c := qt.New(t)
	m := NewManager(time.Hour)
	old := m.Start("u1", "a@example.com", "admin")
	current := m.Start("u1", "a@example.com", "viewer")
	other := m.Start("u2", "b@example.com", "admin")

	c.Assert(m.EndStale("u1", "viewer"), qt.Equals, 1)
	_, ok := m.Get(old.ID)
	c.Assert(ok, qt.IsFalse)
	_, ok = m.Get(current.ID)
	c.Assert(ok, qt.IsTrue)
	_, ok = m.Get(other.ID)
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.EndStale("u1", "viewer"), qt.Equals, 0)
}

func TestViewsArePerTable(t *testing.T) {
	c := qt.New(t)
	s := NewManager(time.Hour).Start("u1", "a@example.com", "admin")

	c.Assert(s.View("brokers", 10), qt.DeepEquals, listing.NewState(10))

	st := s.UpdateView("brokers", 10, func(st *listing.State) {
		st.SetSearch("alpha")
		st.ToggleSort("name")
	})
	c.Assert(st.Search, qt.Equals, "alpha")
	c.Assert(s.View("brokers", 10), qt.DeepEquals, st)
	c.Assert(s.View("posts", 10), qt.DeepEquals, listing.NewState(10))

	s.ResetView("brokers")
	c.Assert(s.View("brokers", 10).Search, qt.Equals, "")
}

func TestConcurrentViewUpdates(t *testing.T) {
	c := qt.New(t)
	s := NewManager(time.Hour).Start("u1", "a@example.com", "admin")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateView("posts", 10, func(st *listing.State) { st.GoTo(st.Page+1, 1000) })
		}()
	}
	wg.Wait()
	c.Assert(s.View("posts", 10).Page, qt.Equals, 51)
}

func TestContext(t *testing.T) {
	c := qt.New(t)
	_, ok := FromContext(context.Background())
	c.Assert(ok, qt.IsFalse)

	s := NewManager(time.Hour).Start("u1", "a@example.com", "admin")
	got, ok := FromContext(WithContext(context.Background(), s))
	c.Assert(ok, qt.IsTrue)
	c.Assert(got, qt.Equals, s)
}
