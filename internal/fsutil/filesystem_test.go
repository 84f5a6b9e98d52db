package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_CreateRenameRemove(t *testing.T) {
	osfs := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "logs", "uci")
	if err := osfs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	a := filepath.Join(dir, "a.pcap")
	w, err := osfs.Create(a)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b := filepath.Join(dir, "b.pcap")
	if err := osfs.Rename(a, b); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if osfs.Exists(a) {
		t.Error("old path should not exist after rename")
	}
	data, err := osfs.ReadFile(b)
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if err := osfs.Remove(b); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if osfs.Exists(b) {
		t.Error("file should not exist after remove")
	}
}

func TestMemoryFileSystem_WritesVisibleBeforeClose(t *testing.T) {
	mfs := NewMemoryFileSystem()
	w, err := mfs.Create("/logs/uci.pcap")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := mfs.ReadFile("/logs/uci.pcap")
	if err != nil || string(data) != "abc" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if n := mfs.OpenWriters("/logs/uci.pcap"); n != 1 {
		t.Errorf("OpenWriters = %d, want 1", n)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if n := mfs.OpenWriters("/logs/uci.pcap"); n != 0 {
		t.Errorf("OpenWriters after close = %d, want 0", n)
	}
	if err := w.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("second Close err = %v, want ErrClosed", err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("Write after Close err = %v, want ErrClosed", err)
	}
}

func TestMemoryFileSystem_RenameFollowsOpenWriter(t *testing.T) {
	mfs := NewMemoryFileSystem()
	w, _ := mfs.Create("/d/current")
	_, _ = w.Write([]byte("1"))

	if err := mfs.Rename("/d/current", "/d/old"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	_, _ = w.Write([]byte("2"))

	data, err := mfs.ReadFile("/d/old")
	if err != nil || string(data) != "12" {
		t.Errorf("ReadFile(/d/old) = %q, %v", data, err)
	}
	if mfs.Exists("/d/current") {
		t.Error("/d/current should not exist after rename")
	}
}

func TestMemoryFileSystem_RenameMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.Rename("/nope", "/other"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_RemoveAndFiles(t *testing.T) {
	mfs := NewMemoryFileSystem()
	for _, name := range []string{"/d/b", "/d/a", "/e/c"} {
		w, _ := mfs.Create(name)
		_ = w.Close()
	}
	got := mfs.Files("/d")
	if len(got) != 2 || got[0] != "/d/a" || got[1] != "/d/b" {
		t.Errorf("Files(/d) = %v", got)
	}

	if err := mfs.Remove("/d/a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := mfs.Remove("/d/a"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second Remove err = %v", err)
	}
	if len(mfs.Files("/d")) != 1 {
		t.Errorf("Files after remove = %v", mfs.Files("/d"))
	}
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/var/log/uwb", 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/var", "/var/log", "/var/log/uwb"} {
		if !mfs.Exists(p) {
			t.Errorf("%s should exist", p)
		}
	}
}
