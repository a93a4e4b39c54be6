package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradehub-admin/internal/cache"

	qt "github.com/frankban/quicktest"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.events = append(f.events, v.(Event))
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func TestParseChange(t *testing.T) {
	c := qt.New(t)
	ch, err := ParseChange(`{"table":"brokers","op":"UPDATE","id":"b1"}`)
	c.Assert(err, qt.IsNil)
	c.Assert(ch, qt.Equals, Change{Table: "brokers", Op: "UPDATE", ID: "b1"})

	_, err = ParseChange(`{"op":"DELETE"}`)
	c.Assert(err, qt.ErrorMatches, `decode change: missing table`)

	_, err = ParseChange(`not json`)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestHandleInvalidatesAndBroadcasts(t *testing.T) {
	c := qt.New(t)
	store := cache.New(0)
	store.Set("posts", []string{"cached"})
	store.Set(cache.StatsKey, 1)
	store.Set("brokers", []string{"kept"})

	hub := NewHub(zap.NewNop())
	l := &Listener{Cache: store, Hub: hub, Log: zap.NewNop()}

	c.Assert(l.Handle(`{"table":"posts","op":"INSERT","id":"p1"}`), qt.IsNil)
	c.Assert(store.Keys(), qt.DeepEquals, []string{"brokers"})

	select {
	case ev := <-hub.ch:
		c.Assert(ev, qt.DeepEquals, Event{Type: EventChange, Payload: Change{Table: "posts", Op: "INSERT", ID: "p1"}})
	default:
		c.Fatal("no event queued")
	}
}

func TestSubscribedDropsEveryCachedTable(t *testing.T) {
	c := qt.New(t)
	store := cache.New(0)
	store.Set("posts", []string{"stale"})
	store.Set("brokers", []string{"stale"})
	store.Set(cache.StatsKey, 1)

	l := &Listener{Cache: store, Log: zap.NewNop()}
	l.Subscribed()
	c.Assert(store.Keys(), qt.HasLen, 0)

	// Without a cache there is nothing to drop.
	(&Listener{Log: zap.NewNop()}).Subscribed()
}

func TestHubFansOutAndDropsBrokenClients(t *testing.T) {
	c := qt.New(t)
	hub := NewHub(zap.NewNop())
	good := &fakeConn{}
	bad := &fakeConn{fail: true}
	hub.Add(good)
	hub.Add(bad)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	hub.Broadcast(Event{Type: EventMetrics, Payload: 1})
	deadline := time.Now().Add(time.Second)
	for (len(good.received()) == 0 || hub.Len() != 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Assert(good.received(), qt.HasLen, 1)
	c.Assert(hub.Len(), qt.Equals, 1)

	cancel()
	<-done
	c.Assert(hub.Len(), qt.Equals, 0)
	good.mu.Lock()
	c.Assert(good.closed, qt.IsTrue)
	good.mu.Unlock()
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	c := qt.New(t)
	hub := NewHub(zap.NewNop())
	for i := 0; i < cap(hub.ch); i++ {
		c.Assert(hub.Broadcast(Event{Type: EventChange}), qt.IsTrue)
	}
	c.Assert(hub.Broadcast(Event{Type: EventChange}), qt.IsFalse)
}
