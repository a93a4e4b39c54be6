package services

import (
	"strings"
	"time"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/models"

	"github.com/jmoiron/sqlx"
)

func NewBrokers(db *sqlx.DB) Resource[models.Broker] {
	return Resource[models.Broker]{
		Table: Table[models.Broker]{
			DB:       db,
			Name:     "brokers",
			Columns:  []string{"id", "name", "established_in", "headquarter", "description", "is_visible", "created_by", "created_at", "updated_at"},
			Writable: []string{"name", "established_in", "headquarter", "description", "is_visible", "created_by"},
			OrderBy:  "created_at DESC",
			Touch:    true,
		},
		Schema: form.Schema{
			"name": {
				form.Required("Broker name is required"),
				form.MinLength(2, "Broker name must be at least 2 characters"),
				form.MaxLength(120, "Broker name must be at most 120 characters"),
			},
			"established_in": {
				form.Integer("Year must be a whole number"),
				form.Min(1800, "Year must be 1800 or later"),
				form.Max(2100, "Year must be 2100 or earlier"),
			},
			"headquarter": {form.MaxLength(120, "Headquarter must be at most 120 characters")},
			"description": {form.MaxLength(5000, "Description must be at most 5000 characters")},
		},
		List: listing.List[models.Broker]{
			SearchFields: func(b models.Broker) []string {
				return []string{b.Name, derefString(b.Headquarter), derefString(b.Description)}
			},
			Filter: func(b models.Broker, value string) bool {
				switch strings.ToLower(value) {
				case "visible":
					return b.IsVisible
				case "hidden":
					return !b.IsVisible
				}
				return true
			},
			Sorters: map[string]func(a, b models.Broker) int{
				"name":           listing.ByString(func(b models.Broker) string { return b.Name }),
				"established_in": listing.ByOptionalInt(func(b models.Broker) *int { return b.EstablishedIn }),
				"headquarter":    listing.ByString(func(b models.Broker) string { return derefString(b.Headquarter) }),
				"created_at":     listing.ByTime(func(b models.Broker) time.Time { return b.CreatedAt }),
			},
		},
		Numeric: []string{"established_in"},
		Record: func(v form.Values) map[string]any {
			out := map[string]any{}
			copyField(out, v, "name", asString)
			copyField(out, v, "established_in", asInt)
			copyField(out, v, "headquarter", asOptionalString)
			copyField(out, v, "description", asOptionalString)
			copyField(out, v, "is_visible", asBool)
			return out
		},
		Values: func(b models.Broker) form.Values {
			return form.Values{
				"name":           b.Name,
				"established_in": optionalInt(b.EstablishedIn),
				"headquarter":    optionalString(b.Headquarter),
				"description":    optionalString(b.Description),
				"is_visible":     b.IsVisible,
			}
		},
		BeforeWrite: func(w *WriteContext) error {
			if w.Creating && w.ActorID != "" {
				w.Record["created_by"] = w.ActorID
			}
			return nil
		},
	}
}
