package services

import (
	"context"
	"time"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/models"

	"github.com/jmoiron/sqlx"
)

var (
	PostTypes    = []string{"news", "analysis", "education", "promo"}
	PostStatuses = []string{"draft", "published", "archived"}
)

func NewPosts(db *sqlx.DB) Resource[models.Post] {
	return Resource[models.Post]{
		Table: Table[models.Post]{
			DB:       db,
			Name:     "posts",
			Columns:  []string{"id", "title", "content", "type", "status", "author_id", "view_count", "created_at", "updated_at"},
			Writable: []string{"title", "content", "type", "status", "author_id", "view_count"},
			OrderBy:  "created_at DESC",
			Touch:    true,
		},
		Schema: form.Schema{
			"title": {
				form.Required("Title is required"),
				form.MinLength(3, "Title must be at least 3 characters"),
				form.MaxLength(200, "Title must be at most 200 characters"),
			},
			"content": {form.Required("Content is required")},
			"type":    {form.Required("Type is required"), form.OneOf(PostTypes, "Unknown post type")},
			"status":  {form.Required("Status is required"), form.OneOf(PostStatuses, "Unknown post status")},
			"view_count": {
				form.Integer("View count must be a whole number"),
				form.Min(0, "View count cannot be negative"),
			},
		},
		List: listing.List[models.Post]{
			SearchFields: func(p models.Post) []string { return []string{p.Title, p.Content} },
			Filter:       func(p models.Post, value string) bool { return p.Status == value },
			Tab:          func(p models.Post, value string) bool { return p.Type == value },
			Sorters: map[string]func(a, b models.Post) int{
				"title":      listing.ByString(func(p models.Post) string { return p.Title }),
				"status":     listing.ByString(func(p models.Post) string { return p.Status }),
				"view_count": listing.ByNumber(func(p models.Post) int { return p.ViewCount }),
				"created_at": listing.ByTime(func(p models.Post) time.Time { return p.CreatedAt }),
				"updated_at": listing.ByTime(func(p models.Post) time.Time { return p.UpdatedAt }),
			},
		},
		Numeric: []string{"view_count"},
		Record: func(v form.Values) map[string]any {
			out := map[string]any{}
			copyField(out, v, "title", asString)
			copyField(out, v, "content", asString)
			copyField(out, v, "type", asString)
			copyField(out, v, "status", asString)
			copyField(out, v, "author_id", asOptionalString)
			copyField(out, v, "view_count", asInt)
			return out
		},
		Values: func(p models.Post) form.Values {
			return form.Values{
				"title":      p.Title,
				"content":    p.Content,
				"type":       p.Type,
				"status":     p.Status,
				"author_id":  optionalString(p.AuthorID),
				"view_count": p.ViewCount,
			}
		},
		BeforeWrite: func(w *WriteContext) error {
			if w.Creating {
				if _, ok := w.Record["author_id"]; !ok && w.ActorID != "" {
					w.Record["author_id"] = w.ActorID
				}
				if n, _ := w.Record["view_count"].(*int); n == nil {
					w.Record["view_count"] = 0
				}
			}
			return nil
		},
	}
}

type PostStatusCount struct {
	Status string `db:"status" json:"status"`
	Total  int    `db:"total" json:"total"`
}

func PostsByStatus(ctx context.Context, db *sqlx.DB) ([]PostStatusCount, error) {
	rows := []PostStatusCount{}
	err := db.SelectContext(ctx, &rows, `
SELECT status, count(*) AS total
FROM posts
GROUP BY status
ORDER BY status
`)
	return rows, classify("posts", "count", err)
}

func TotalPostViews(ctx context.Context, db *sqlx.DB) (int64, error) {
	var total int64
	err := db.GetContext(ctx, &total, `SELECT COALESCE(SUM(view_count), 0) FROM posts`)
	return total, classify("posts", "count", err)
}
