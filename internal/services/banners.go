package services

import (
	"regexp"
	"time"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/models"

	"github.com/jmoiron/sqlx"
)

var linkPattern = regexp.MustCompile(`^(https?://|/)\S*$`)

func NewBanners(db *sqlx.DB) Resource[models.Banner] {
	return Resource[models.Banner]{
		Table: Table[models.Banner]{
			DB:       db,
			Name:     "banners",
			Columns:  []string{"id", "title", "link_url", "position", "is_active", "starts_at", "ends_at", "created_at", "updated_at"},
			Writable: []string{"title", "link_url", "position", "is_active", "starts_at", "ends_at"},
			OrderBy:  "position ASC, created_at DESC",
			Touch:    true,
		},
		Schema: form.Schema{
			"title": {
				form.Required("Title is required"),
				form.MaxLength(160, "Title must be at most 160 characters"),
			},
			"link_url": {form.Pattern(linkPattern, "Link must be an absolute URL or a path")},
			"position": {form.Integer("Position must be a whole number"), form.Min(0, "Position cannot be negative")},
			"starts_at": {form.Custom(validTime, "Invalid start date")},
			"ends_at": {
				form.Custom(validTime, "Invalid end date"),
				form.Custom(endsAfterStart, "End date must be after the start date"),
			},
		},
		List: listing.List[models.Banner]{
			SearchFields: func(b models.Banner) []string { return []string{b.Title, derefString(b.LinkURL)} },
			Filter: func(b models.Banner, value string) bool {
				switch value {
				case "active":
					return b.IsActive
				case "inactive":
					return !b.IsActive
				}
				return true
			},
			Tab: func(b models.Banner, value string) bool {
				return bannerPhase(b, time.Now().UTC()) == value
			},
			Sorters: map[string]func(a, b models.Banner) int{
				"title":      listing.ByString(func(b models.Banner) string { return b.Title }),
				"position":   listing.ByNumber(func(b models.Banner) int { return b.Position }),
				"starts_at":  listing.ByTime(func(b models.Banner) time.Time { return timeOrZero(b.StartsAt) }),
				"ends_at":    listing.ByTime(func(b models.Banner) time.Time { return timeOrZero(b.EndsAt) }),
				"created_at": listing.ByTime(func(b models.Banner) time.Time { return b.CreatedAt }),
			},
		},
		Numeric: []string{"position"},
		Record: func(v form.Values) map[string]any {
			out := map[string]any{}
			copyField(out, v, "title", asString)
			copyField(out, v, "link_url", asOptionalString)
			copyField(out, v, "position", asInt)
			copyField(out, v, "is_active", asBool)
			copyField(out, v, "starts_at", asTime)
			copyField(out, v, "ends_at", asTime)
			return out
		},
		Values: func(b models.Banner) form.Values {
			return form.Values{
				"title":     b.Title,
				"link_url":  optionalString(b.LinkURL),
				"position":  b.Position,
				"is_active": b.IsActive,
				"starts_at": optionalTime(b.StartsAt),
				"ends_at":   optionalTime(b.EndsAt),
			}
		},
		BeforeWrite: func(w *WriteContext) error {
			if n, _ := w.Record["position"].(*int); w.Creating && n == nil {
				w.Record["position"] = 0
			}
			return nil
		},
	}
}

func endsAfterStart(value any, data form.Values) bool {
	end, ok := parseTime(value)
	if !ok {
		return true
	}
	start, ok := parseTime(data["starts_at"])
	if !ok {
		return true
	}
	return end.After(start)
}

// bannerPhase is "scheduled", "running" or "expired" relative to now.
func bannerPhase(b models.Banner, now time.Time) string {
	if b.StartsAt != nil && now.Before(*b.StartsAt) {
		return "scheduled"
	}
	if b.EndsAt != nil && !now.Before(*b.EndsAt) {
		return "expired"
	}
	return "running"
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
