package logging

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func logFiles(c *qt.C, dir string) []string {
	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestDailyFileRotatesAndPrunes(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	for _, name := range []string{"app-2024-04-01.log", "app-2024-04-09.log", "notes.txt", "app-garbage.log"} {
		c.Assert(os.WriteFile(filepath.Join(dir, name), []byte("old\n"), 0o644), qt.IsNil)
	}

	now := time.Date(2024, 4, 10, 23, 59, 0, 0, time.Local)
	d := &DailyFile{dir: dir, retention: 3, now: func() time.Time { return now }}
	c.Assert(d.rotate(now.Format("2006-01-02")), qt.IsNil)
	defer d.Close()

	_, err := d.Write([]byte("first\n"))
	c.Assert(err, qt.IsNil)
	c.Assert(logFiles(c, dir), qt.DeepEquals, []string{"app-2024-04-09.log", "app-2024-04-10.log", "app-garbage.log", "notes.txt"})

	now = now.Add(2 * time.Minute)
	_, err = d.Write([]byte("second\n"))
	c.Assert(err, qt.IsNil)

	body, err := os.ReadFile(filepath.Join(dir, "app-2024-04-11.log"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(body), qt.Equals, "second\n")
	body, err = os.ReadFile(filepath.Join(dir, "app-2024-04-10.log"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(body), qt.Equals, "first\n")
}

func TestNewDailyFileClampsRetention(t *testing.T) {
	c := qt.New(t)
	d, err := NewDailyFile(t.TempDir(), 30)
	c.Assert(err, qt.IsNil)
	defer d.Close()
	c.Assert(d.retention, qt.Equals, 7)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"info":  zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
	}
	for in, want := range tests {
		qt.Assert(t, ParseLevel(in), qt.Equals, want)
	}
}

func TestNewWritesToFile(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	logger, cleanup, err := New(Options{Level: "info", Environment: "production", Dir: dir, RetentionDays: 7})
	c.Assert(err, qt.IsNil)
	logger.Info("hello", zap.String("k", "v"))
	cleanup()

	files := logFiles(c, dir)
	c.Assert(files, qt.HasLen, 1)
	body, err := os.ReadFile(filepath.Join(dir, files[0]))
	c.Assert(err, qt.IsNil)
	c.Assert(string(body), qt.Contains, `"msg":"hello"`)
	c.Assert(string(body), qt.Contains, `"k":"v"`)
}

func TestContextLogger(t *testing.T) {
	c := qt.New(t)
	logger := zap.NewNop()
	c.Assert(FromContext(WithContext(context.Background(), logger)), qt.Equals, logger)
	c.Assert(FromContext(context.Background()), qt.Not(qt.IsNil))
}
