package services

import (
	"context"

	"tradehub-admin/internal/cache"

	"github.com/jmoiron/sqlx"
)

type Stats struct {
	Counts         map[string]int    `json:"counts"`
	Images         int               `json:"images"`
	PostsByStatus  []PostStatusCount `json:"postsByStatus"`
	TotalPostViews int64             `json:"totalPostViews"`
}

// LoadStats returns the dashboard widgets, cached until the next write.
func LoadStats(ctx context.Context, db *sqlx.DB, catalog Catalog, images Images, store *cache.Store) (Stats, error) {
	return cache.Fetch(ctx, store, cache.StatsKey, func(ctx context.Context) (Stats, error) {
		stats := Stats{Counts: map[string]int{}}
		for _, name := range catalog.Names() {
			n, err := catalog[name].Count(ctx)
			if err != nil {
				return Stats{}, err
			}
			stats.Counts[name] = n
		}
		var err error
		if stats.Images, err = images.Table.Count(ctx); err != nil {
			return Stats{}, err
		}
		if stats.PostsByStatus, err = PostsByStatus(ctx, db); err != nil {
			return Stats{}, err
		}
		if stats.TotalPostViews, err = TotalPostViews(ctx, db); err != nil {
			return Stats{}, err
		}
		return stats, nil
	})
}
