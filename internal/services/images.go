package services

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"tradehub-admin/internal/form"
	"tradehub-admin/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ImageOwners lists the tables an image row may point at. The owning table
// doubles as the storage bucket.
var ImageOwners = []string{"brokers", "posts", "products", "banners", "users"}

var ImageTypes = []string{"logo", "cover", "avatar", "gallery"}

var imageSchema = form.Schema{
	"table_name": {form.Required("Owner table is required"), form.OneOf(ImageOwners, "Unknown owner table")},
	"record_id":  {form.Required("Owner record is required")},
	"type":       {form.OneOf(ImageTypes, "Unknown image type")},
	"alt":        {form.MaxLength(200, "Alt text must be at most 200 characters")},
}

type ImageUpload struct {
	TableName   string
	RecordID    string
	Type        string
	Alt         string
	Filename    string
	ContentType string
	Body        io.Reader
}

type Images struct {
	Table Table[models.Image]
	Store MediaStore
}

func NewImages(db *sqlx.DB, store MediaStore) Images {
	return Images{
		Table: Table[models.Image]{
			DB:       db,
			Name:     "images",
			Columns:  []string{"id", "table_name", "record_id", "type", "path", "alt", "content_type", "size_bytes", "sha256", "created_at"},
			Writable: []string{"table_name", "record_id", "type", "path", "alt", "content_type", "size_bytes", "sha256"},
			OrderBy:  "created_at DESC",
		},
		Store: store,
	}
}

// Validate checks the metadata of an upload and returns the per-field error
// map, empty when the upload may proceed.
func (i Images) Validate(in ImageUpload) map[string]string {
	f := form.New(imageSchema, form.Values{
		"table_name": in.TableName,
		"record_id":  in.RecordID,
		"type":       in.Type,
		"alt":        in.Alt,
	}, form.DefaultOptions())
	f.Validate()
	errs := f.Errors()
	if !strings.HasPrefix(in.ContentType, "image/") {
		errs["file"] = "Only image files are accepted"
	}
	return errs
}

func (i Images) Upload(ctx context.Context, in ImageUpload) (models.Image, error) {
	if !contains(ImageOwners, in.TableName) {
		return models.Image{}, ErrBadRequest("Unknown owner table")
	}
	if in.Type == "" {
		in.Type = "gallery"
	}
	if strings.TrimSpace(in.Alt) == "" {
		in.Alt = altFromFilename(in.Filename)
	}
	exists, err := i.ownerExists(ctx, in.TableName, in.RecordID)
	if err != nil {
		return models.Image{}, err
	}
	if !exists {
		return models.Image{}, ErrNotFound("Owner record not found")
	}

	key := in.RecordID + "/" + uuid.NewString() + imageExt(in.Filename, in.ContentType)
	size, sha, err := i.Store.Save(in.TableName, key, in.Body)
	if err != nil {
		return models.Image{}, err
	}
	values := map[string]any{
		"table_name":   in.TableName,
		"record_id":    in.RecordID,
		"type":         in.Type,
		"path":         key,
		"alt":          nilIfEmpty(in.Alt),
		"content_type": in.ContentType,
		"size_bytes":   size,
		"sha256":       sha,
	}
	img, err := i.Table.Create(ctx, values)
	if err != nil {
		_ = i.Store.Remove(in.TableName, key)
		return models.Image{}, err
	}
	img.URL = BuildMediaURL(img.TableName, img.Path)
	return img, nil
}

// ForRecord lists the images of one owner; an empty recordID lists the
// whole table's images.
func (i Images) ForRecord(ctx context.Context, tableName, recordID string) ([]models.Image, error) {
	if !contains(ImageOwners, tableName) {
		return nil, ErrBadRequest("Unknown owner table")
	}
	if recordID != "" {
		if _, err := uuid.Parse(recordID); err != nil {
			return nil, ErrBadRequest("Invalid record id")
		}
	}
	var items []models.Image
	if recordID == "" {
		all, err := i.Table.Where(ctx, "table_name", tableName)
		if err != nil {
			return nil, err
		}
		items = all
	} else {
		items = []models.Image{}
		query := "SELECT " + i.Table.selectList() + " FROM images WHERE table_name = $1 AND record_id = $2 ORDER BY created_at DESC"
		if err := i.Table.DB.SelectContext(ctx, &items, query, tableName, recordID); err != nil {
			return nil, classify("images", "list", err)
		}
	}
	for n := range items {
		items[n].URL = BuildMediaURL(items[n].TableName, items[n].Path)
	}
	return items, nil
}

// Delete removes the row first, then the blob.
func (i Images) Delete(ctx context.Context, id string) (models.Image, error) {
	img, err := i.Table.Get(ctx, id)
	if err != nil {
		return img, err
	}
	if err := i.Table.Delete(ctx, id); err != nil {
		return img, err
	}
	if err := i.Store.Remove(img.TableName, img.Path); err != nil {
		return img, WrapError(err, "remove blob")
	}
	return img, nil
}

func (i Images) ownerExists(ctx context.Context, tableName, recordID string) (bool, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return false, nil
	}
	var exists bool
	// tableName is one of ImageOwners.
	err := i.Table.DB.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM "+tableName+" WHERE id = $1)", recordID)
	if err != nil {
		return false, classify(tableName, "get", err)
	}
	return exists, nil
}

func imageExt(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && len(ext) <= 6 {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// altFromFilename turns "Broker-Logo_2024.png" into "broker logo 2024".
func altFromFilename(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.ReplaceAll(Slugify(stem), "-", " ")
}

func nilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
