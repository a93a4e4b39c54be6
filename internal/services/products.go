package services

import (
	"time"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/models"

	"github.com/jmoiron/sqlx"
)

var ProductStatuses = []string{"active", "inactive"}

func NewProducts(db *sqlx.DB) Resource[models.Product] {
	return Resource[models.Product]{
		Table: Table[models.Product]{
			DB:       db,
			Name:     "products",
			Columns:  []string{"id", "name", "description", "price", "category", "status", "created_at", "updated_at"},
			Writable: []string{"name", "description", "price", "category", "status"},
			OrderBy:  "created_at DESC",
			Touch:    true,
		},
		Schema: form.Schema{
			"name": {
				form.Required("Product name is required"),
				form.MinLength(2, "Product name must be at least 2 characters"),
				form.MaxLength(160, "Product name must be at most 160 characters"),
			},
			"price": {
				form.Required("Price is required"),
				form.Min(0, "Price cannot be negative"),
				form.Max(9999999999.99, "Price is too large"),
			},
			"category": {form.Required("Category is required"), form.MaxLength(80, "Category must be at most 80 characters")},
			"status":   {form.OneOf(ProductStatuses, "Unknown product status")},
		},
		List: listing.List[models.Product]{
			SearchFields: func(p models.Product) []string {
				return []string{p.Name, p.Category, derefString(p.Description)}
			},
			Filter: func(p models.Product, value string) bool { return p.Status == value },
			Tab:    func(p models.Product, value string) bool { return p.Category == value },
			Sorters: map[string]func(a, b models.Product) int{
				"name":       listing.ByString(func(p models.Product) string { return p.Name }),
				"price":      listing.ByNumber(func(p models.Product) float64 { return p.Price }),
				"category":   listing.ByString(func(p models.Product) string { return p.Category }),
				"created_at": listing.ByTime(func(p models.Product) time.Time { return p.CreatedAt }),
			},
		},
		Numeric: []string{"price"},
		Record: func(v form.Values) map[string]any {
			out := map[string]any{}
			copyField(out, v, "name", asString)
			copyField(out, v, "description", asOptionalString)
			copyField(out, v, "price", asFloat)
			copyField(out, v, "category", asString)
			copyField(out, v, "status", asString)
			return out
		},
		Values: func(p models.Product) form.Values {
			return form.Values{
				"name":        p.Name,
				"description": optionalString(p.Description),
				"price":       p.Price,
				"category":    p.Category,
				"status":      p.Status,
			}
		},
		BeforeWrite: func(w *WriteContext) error {
			if status, _ := w.Record["status"].(string); w.Creating && status == "" {
				w.Record["status"] = "active"
			}
			return nil
		},
	}
}
