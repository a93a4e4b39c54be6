package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/listing"
	"tradehub-admin/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

var (
	UserRoles    = []string{RoleAdmin, RoleEditor, RoleViewer}
	UserStatuses = []string{"active", "suspended"}
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

func userSchema(withPassword bool) form.Schema {
	schema := form.Schema{
		"email": {
			form.Required("Email is required"),
			form.Pattern(emailPattern, "Invalid email address"),
			form.MaxLength(254, "Email must be at most 254 characters"),
		},
		"role":      {form.Required("Role is required"), form.OneOf(UserRoles, "Unknown role")},
		"status":    {form.OneOf(UserStatuses, "Unknown status")},
		"full_name": {form.MaxLength(120, "Name must be at most 120 characters")},
		"password":  {form.MinLength(8, "Password must be at least 8 characters")},
	}
	if withPassword {
		schema["password"] = append([]form.Rule{form.Required("Password is required")}, schema["password"]...)
	}
	return schema
}

func NewUsers(db *sqlx.DB, tokens TokenService) Resource[models.User] {
	return Resource[models.User]{
		Table: Table[models.User]{
			DB:       db,
			Name:     "users",
			Columns:  []string{"id", "email", "role", "status", "full_name", "password_hash", "created_at", "updated_at", "last_login_at"},
			Writable: []string{"email", "role", "status", "full_name", "password_hash"},
			OrderBy:  "created_at DESC",
			Touch:    true,
		},
		Schema:       userSchema(false),
		CreateSchema: userSchema(true),
		List: listing.List[models.User]{
			SearchFields: func(u models.User) []string { return []string{u.Email, derefString(u.FullName)} },
			Filter:       func(u models.User, value string) bool { return u.Role == value },
			Tab:          func(u models.User, value string) bool { return u.Status == value },
			Sorters: map[string]func(a, b models.User) int{
				"email":      listing.ByString(func(u models.User) string { return u.Email }),
				"full_name":  listing.ByString(func(u models.User) string { return derefString(u.FullName) }),
				"role":       listing.ByString(func(u models.User) string { return u.Role }),
				"created_at": listing.ByTime(func(u models.User) time.Time { return u.CreatedAt }),
				"last_login_at": listing.ByTime(func(u models.User) time.Time {
					return timeOrZero(u.LastLoginAt)
				}),
			},
		},
		Record: func(v form.Values) map[string]any {
			out := map[string]any{}
			copyField(out, v, "email", func(v form.Values, key string) any {
				return strings.ToLower(strings.TrimSpace(v.String(key)))
			})
			copyField(out, v, "role", asString)
			copyField(out, v, "status", asString)
			copyField(out, v, "full_name", asOptionalString)
			copyField(out, v, "password", asString)
			return out
		},
		Values: func(u models.User) form.Values {
			return form.Values{
				"email":     u.Email,
				"role":      u.Role,
				"status":    u.Status,
				"full_name": optionalString(u.FullName),
			}
		},
		BeforeWrite: func(w *WriteContext) error {
			raw, _ := w.Record["password"].(string)
			delete(w.Record, "password")
			if raw != "" {
				hash, err := tokens.HashPassword(raw)
				if err != nil {
					return err
				}
				w.Record["password_hash"] = hash
			}
			if status, _ := w.Record["status"].(string); w.Creating && status == "" {
				w.Record["status"] = "active"
			}
			return nil
		},
	}
}

func FindUserByEmail(ctx context.Context, db *sqlx.DB, email string) (models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, `
SELECT id, email, role, status, full_name, password_hash, created_at, updated_at, last_login_at
FROM users
WHERE email = $1
`, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return user, ErrNotFound("User not found")
	}
	return user, classify("users", "get", err)
}

func SetLastLogin(ctx context.Context, db *sqlx.DB, userID string) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, time.Now().UTC(), userID)
	return classify("users", "update", err)
}
