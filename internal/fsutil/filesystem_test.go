package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_ListDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_000002.png", "frame_000000.png", "frame_000001.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	names, err := OSFileSystem{}.ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir failed: %v", err)
	}
	want := []string{"frame_000000.png", "frame_000001.png", "frame_000002.png"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	feed := []byte(`[{"frame_number":0,"objects":[]}]`)
	if err := mfs.WriteFile("/feed.json", feed, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/feed.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(feed) {
		t.Errorf("expected %q, got %q", feed, data)
	}
}

func TestMemoryFileSystem_CreateRequiresParent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.Create("/out/frames/frame_000000.png"); err == nil {
		t.Fatal("expected error creating a file in a missing directory")
	}

	if err := mfs.MkdirAll("/out/frames", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	w, err := mfs.Create("/out/frames/frame_000000.png")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("png bytes")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := mfs.ReadFile("/out/frames/frame_000000.png")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "png bytes" {
		t.Errorf("expected 'png bytes', got %q", data)
	}
}

func TestMemoryFileSystem_Open(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/opentest.txt", []byte("open me"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	f, err := mfs.Open("/opentest.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if string(data) != "open me" {
		t.Errorf("expected 'open me', got %q", data)
	}

	if _, err := mfs.Open("/nonexistent.txt"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestMemoryFileSystem_StatAndListDir(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/seq/sub", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	_ = mfs.WriteFile("/seq/b.png", []byte("bb"), 0644)
	_ = mfs.WriteFile("/seq/a.png", []byte("a"), 0644)
	_ = mfs.WriteFile("/seq/sub/c.png", []byte("c"), 0644)

	info, err := mfs.Stat("/seq")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected /seq to be a directory")
	}

	info, err = mfs.Stat("/seq/b.png")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 2 || info.IsDir() {
		t.Errorf("unexpected file info: size=%d dir=%v", info.Size(), info.IsDir())
	}

	names, err := mfs.ListDir("/seq")
	if err != nil {
		t.Fatalf("ListDir failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a.png" || names[1] != "b.png" {
		t.Errorf("expected [a.png b.png], got %v", names)
	}

	if _, err := mfs.ListDir("/missing"); err == nil {
		t.Error("expected error listing a missing directory")
	}

	if got := mfs.Files("/seq/"); len(got) != 3 {
		t.Errorf("expected 3 files under /seq/, got %v", got)
	}
}
