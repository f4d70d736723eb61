// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	got := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		got[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"config":                "setting = 1\n",
		"state/counters.json":   `{"n": 42}`,
		"state/deep/nested/log": "line\n",
	}
	writeTree(t, src, files)

	archive := filepath.Join(t.TempDir(), "agent.tar.gz")
	if err := Create(src, archive); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "restored")
	if err := Restore(archive, dest); err != nil {
		t.Fatal(err)
	}

	got := readTree(t, dest)
	if len(got) != len(files) {
		t.Fatalf("restored %d files, want %d: %v", len(got), len(files), got)
	}
	for name, content := range files {
		if got[name] != content {
			t.Errorf("%s = %q, want %q", name, got[name], content)
		}
	}
}

func TestEmptyDirectory(t *testing.T) {
	src := t.TempDir()
	archive := filepath.Join(t.TempDir(), "empty.tar.gz")
	if err := Create(src, archive); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "restored")
	if err := Restore(archive, dest); err != nil {
		t.Fatal(err)
	}
	if got := readTree(t, dest); len(got) != 0 {
		t.Fatalf("restored files from an empty snapshot: %v", got)
	}
}

func TestPreservesFileMode(t *testing.T) {
	src := t.TempDir()
	script := filepath.Join(src, "hook.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "a.tar.gz")
	if err := Create(src, archive); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "restored")
	if err := Restore(archive, dest); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dest, "hook.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("restored mode = %v, want 0755", info.Mode().Perm())
	}
}

// craftArchive builds a tarball with arbitrary entry names, bypassing
// Create's relative-path discipline.
func craftArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0o600,
			Size:     int64(len(content)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "crafted.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRestoreRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../escape", "a/../../escape", "/etc/escape"} {
		archive := craftArchive(t, map[string]string{name: "x"})
		dest := filepath.Join(t.TempDir(), "restored")
		err := Restore(archive, dest)
		if !errors.Is(err, ErrUnsafePath) {
			t.Errorf("entry %q: Restore = %v, want ErrUnsafePath", name, err)
		}
	}
}
