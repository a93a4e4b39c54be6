package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestMediaStoreSaveOpenRemove(t *testing.T) {
	c := qt.New(t)
	store := MediaStore{Root: t.TempDir()}

	size, sha, err := store.Save("brokers", "b1/logo.png", strings.NewReader("png-bytes"))
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, int64(9))
	c.Assert(sha, qt.HasLen, 64)

	f, err := store.Open("brokers", "b1/logo.png")
	c.Assert(err, qt.IsNil)
	body, err := io.ReadAll(f)
	f.Close()
	c.Assert(err, qt.IsNil)
	c.Assert(string(body), qt.Equals, "png-bytes")

	c.Assert(store.Remove("brokers", "b1/logo.png"), qt.IsNil)
	c.Assert(store.Remove("brokers", "b1/logo.png"), qt.IsNil)

	_, err = store.Open("brokers", "b1/logo.png")
	var serr ServiceError
	c.Assert(errors.As(err, &serr), qt.IsTrue)
	c.Assert(serr.Status, qt.Equals, 404)
}

func TestMediaStoreRejectsEmptyAndOversized(t *testing.T) {
	c := qt.New(t)
	root := t.TempDir()
	store := MediaStore{Root: root, MaxBytes: 4}

	_, _, err := store.Save("posts", "p1/a.png", strings.NewReader(""))
	c.Assert(err, qt.Equals, ErrEmptyFile)

	_, _, err = store.Save("posts", "p1/b.png", strings.NewReader("12345"))
	var serr ServiceError
	c.Assert(errors.As(err, &serr), qt.IsTrue)
	c.Assert(serr.Status, qt.Equals, 413)

	_, err = os.Stat(filepath.Join(root, "posts", "p1", "b.png"))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestMediaStoreKeepsKeysInsideBucket(t *testing.T) {
	c := qt.New(t)
	root := t.TempDir()
	store := MediaStore{Root: root}

	_, _, err := store.Save("users", "../../escape.txt", strings.NewReader("x"))
	c.Assert(err, qt.IsNil)
	_, err = os.Stat(filepath.Join(root, "users", "escape.txt"))
	c.Assert(err, qt.IsNil)

	for _, bucket := range []string{"", ".", "..", "a/b"} {
		_, _, err := store.Save(bucket, "k", strings.NewReader("x"))
		c.Assert(err, qt.Not(qt.IsNil), qt.Commentf("bucket %q", bucket))
	}
}

func TestBuildMediaURL(t *testing.T) {
	qt.Assert(t, BuildMediaURL("brokers", "/b1/x.png"), qt.Equals, "/api/media/brokers/b1/x.png")
}

func TestImagesValidate(t *testing.T) {
	c := qt.New(t)
	images := NewImages(nil, MediaStore{Root: t.TempDir()})

	errs := images.Validate(ImageUpload{TableName: "brokers", RecordID: "b1", Type: "logo", ContentType: "image/png"})
	c.Assert(errs, qt.HasLen, 0)

	errs = images.Validate(ImageUpload{TableName: "orders", Type: "poster", ContentType: "application/pdf"})
	c.Assert(errs, qt.DeepEquals, map[string]string{
		"table_name": "Unknown owner table",
		"record_id":  "Owner record is required",
		"type":       "Unknown image type",
		"file":       "Only image files are accepted",
	})
}

func TestImagesUploadRejectsUnknownOwnerTable(t *testing.T) {
	c := qt.New(t)
	root := t.TempDir()
	images := NewImages(nil, MediaStore{Root: root})

	_, err := images.Upload(context.Background(), ImageUpload{
		TableName: "orders", RecordID: "o1", ContentType: "image/png", Body: strings.NewReader("x"),
	})
	c.Assert(err, qt.ErrorMatches, "Unknown owner table")

	_, err = images.ForRecord(context.Background(), "orders", "")
	c.Assert(err, qt.ErrorMatches, "Unknown owner table")

	entries, err := os.ReadDir(root)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 0)
}

func TestImageExtAndAlt(t *testing.T) {
	c := qt.New(t)
	c.Assert(imageExt("Logo.PNG", "image/png"), qt.Equals, ".png")
	c.Assert(imageExt("blob", "image/png"), qt.Equals, ".png")
	c.Assert(imageExt("blob", "application/x-unknown-thing"), qt.Equals, "")
	c.Assert(altFromFilename("Broker-Logo_2024.png"), qt.Equals, "broker logo 2024")
}
