package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	localdir, err := os.MkdirTemp("", "local")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(localdir)

	s := Storage{}
	dst := filepath.Join(localdir, "export", "enmap_results.json")
	if err := s.ExportFile(ctx, dst, []byte(`[]`)); err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[]" {
		t.Errorf("unexpected content %s", b)
	}

	src, err := s.ImportFile(ctx, "file://"+dst, "")
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if src != dst {
		t.Errorf("a local file must not be copied: got %s", src)
	}

	_, err = s.ImportFile(ctx, filepath.Join(localdir, "missing.csv"), "")
	if !errors.As(err, &ErrFileNotFound{}) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestImportPath(t *testing.T) {
	localdir, err := os.MkdirTemp("", "import")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(localdir)

	p1, err := importPath(localdir, "gs://a/bounds.csv")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := importPath(localdir, "s3://b/bounds.csv")
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Errorf("two imports of the same basename must not share %s", p1)
	}
	for _, p := range []string{p1, p2} {
		if filepath.Dir(p) != localdir || filepath.Ext(p) != ".csv" {
			t.Errorf("unexpected path %s", p)
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s must be reserved: %v", p, err)
		}
	}
}

func TestIsLocal(t *testing.T) {
	for location, expected := range map[string]bool{
		"results.json":                 true,
		"/tmp/results.json":            true,
		"file:///tmp/results.json":     true,
		"gs://bucket/results.json":     false,
		"s3://bucket/dir/results.json": false,
	} {
		if IsLocal(location) != expected {
			t.Errorf("IsLocal(%s): expected %v", location, expected)
		}
	}
}

func TestParseS3(t *testing.T) {
	bucket, key, err := parseS3("s3://enmap-exports/2026/results.json")
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "enmap-exports" || key != "2026/results.json" {
		t.Errorf("unexpected bucket/key: %s/%s", bucket, key)
	}
	for _, location := range []string{"s3://bucket", "s3:///key", "gs://bucket/key"} {
		if _, _, err := parseS3(location); err == nil || !Fatal(err) {
			t.Errorf("%s: expected a fatal error, got %v", location, err)
		}
	}
}
