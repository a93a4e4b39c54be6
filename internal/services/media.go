package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrEmptyFile = ErrBadRequest("File is empty")

// MediaStore keeps blobs on the local filesystem under Root/<bucket>/<path>.
type MediaStore struct {
	Root string
	// MaxBytes caps a single upload; 0 means no limit.
	MaxBytes int64
}

func (m MediaStore) EnsureBucket(bucket string) (string, error) {
	path := filepath.Join(m.Root, bucket)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}

// resolve maps bucket and key to a file below Root, refusing keys that
// escape their bucket.
func (m MediaStore) resolve(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrBadRequest("Invalid bucket")
	}
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", ErrBadRequest("Invalid path")
	}
	return filepath.Join(m.Root, bucket, clean), nil
}

// Save streams body to bucket/key and returns its size and sha256.
func (m MediaStore) Save(bucket, key string, body io.Reader) (int64, string, error) {
	target, err := m.resolve(bucket, key)
	if err != nil {
		return 0, "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, "", err
	}
	file, err := os.Create(target)
	if err != nil {
		return 0, "", err
	}
	reader := body
	if m.MaxBytes > 0 {
		reader = io.LimitReader(body, m.MaxBytes+1)
	}
	hasher := sha256.New()
	writer := io.MultiWriter(file, hasher)
	size, err := io.Copy(writer, reader)
	_ = file.Close()
	if err != nil {
		_ = os.Remove(target)
		return 0, "", err
	}
	if size == 0 {
		_ = os.Remove(target)
		return 0, "", ErrEmptyFile
	}
	if m.MaxBytes > 0 && size > m.MaxBytes {
		_ = os.Remove(target)
		return 0, "", ServiceError{Status: 413, Message: "File is too large"}
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (m MediaStore) Open(bucket, key string) (*os.File, error) {
	target, err := m.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound("File not found")
	}
	return file, err
}

// Remove deletes bucket/key. A missing file is not an error.
func (m MediaStore) Remove(bucket, key string) error {
	target, err := m.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func BuildMediaURL(bucket, key string) string {
	return "/api/media/" + bucket + "/" + strings.TrimPrefix(key, "/")
}
