// Package realtime turns database change notifications into cache
// invalidations and websocket pushes to connected dashboards.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Channel is the NOTIFY channel written by the notify_table_change trigger.
const Channel = "table_changes"

type Change struct {
	Table string `json:"table"`
	Op    string `json:"op"`
	ID    string `json:"id"`
}

func ParseChange(payload string) (Change, error) {
	var ch Change
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return ch, fmt.Errorf("decode change: %w", err)
	}
	if ch.Table == "" {
		return ch, fmt.Errorf("decode change: missing table")
	}
	return ch, nil
}

type Listener struct {
	Pool    *pgxpool.Pool
	Channel string
	Cache   *cache.Store
	Hub     *Hub
	Log     *zap.Logger
	// Retry is the pause before reconnecting after a failure.
	Retry time.Duration
}

// Run listens until ctx is done, reconnecting after connection failures.
func (l *Listener) Run(ctx context.Context) {
	retry := l.Retry
	if retry <= 0 {
		retry = 2 * time.Second
	}
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.Log.Warn("realtime listener stopped, reconnecting", zap.Error(err), zap.Duration("retry", retry))
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	channel := l.Channel
	if channel == "" {
		channel = Channel
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.Subscribed()
	l.Log.Info("listening for table changes", zap.String("channel", channel))
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		if err := l.Handle(n.Payload); err != nil {
			l.Log.Warn("ignoring notification", zap.String("payload", n.Payload), zap.Error(err))
		}
	}
}

// Subscribed runs once LISTEN is active on a fresh connection. Changes made
// while no connection was listening were never delivered, so every cached
// table is dropped and reloads from the database.
func (l *Listener) Subscribed() {
	if l.Cache == nil {
		return
	}
	n := len(l.Cache.Keys())
	l.Cache.InvalidateAll()
	if n > 0 {
		l.Log.Info("cache dropped after subscribing", zap.Int("keys", n))
	}
}

// Handle applies one notification payload: the changed table's cache entry
// and the statistics are invalidated and the change is pushed to dashboards.
func (l *Listener) Handle(payload string) error {
	ch, err := ParseChange(payload)
	if err != nil {
		return err
	}
	metrics.RealtimeEvents.WithLabelValues(ch.Table, ch.Op).Inc()
	if l.Cache != nil {
		l.Cache.Invalidate(ch.Table, cache.StatsKey)
	}
	if l.Hub != nil {
		l.Hub.Broadcast(Event{Type: EventChange, Payload: ch})
	}
	return nil
}
