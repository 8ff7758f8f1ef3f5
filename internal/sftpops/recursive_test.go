package sftpops

import (
	"os"
	"testing"
	"time"
)

type fakeFileInfo struct {
	name  string
	isDir bool
	mode  os.FileMode
	size  int64
	mtime time.Time
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() os.FileMode  { return f.mode }
func (f fakeFileInfo) ModTime() time.Time { return f.mtime }
func (f fakeFileInfo) IsDir() bool        { return f.isDir }
func (f fakeFileInfo) Sys() interface{}   { return nil }

type fakeFS struct {
	dirs map[string][]os.FileInfo
}

func (f *fakeFS) Lstat(path string) (os.FileInfo, error) {
	if path == "/root" {
		return fakeFileInfo{name: "root", isDir: true, mode: os.ModeDir}, nil
	}
	return nil, os.ErrNotExist
}

func (f *fakeFS) ReadDir(path string) ([]os.FileInfo, error) {
	children, ok := f.dirs[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return children, nil
}

func newFakeFS() *fakeFS {
	return &fakeFS{dirs: map[string][]os.FileInfo{
		"/root": {
			fakeFileInfo{name: "a.txt", size: 10},
			fakeFileInfo{name: "sub", isDir: true, mode: os.ModeDir},
			fakeFileInfo{name: "link", mode: os.ModeSymlink},
		},
		"/root/sub": {
			fakeFileInfo{name: "b.txt", size: 20},
		},
	}}
}

func TestGetDirectoryStatsSkipsSymlinksAndSumsSizes(t *testing.T) {
	stats, err := getDirectoryStats(newFakeFS(), "/root")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Files != 2 {
		t.Fatalf("got %d files, want 2", stats.Files)
	}
	if stats.Directories != 1 {
		t.Fatalf("got %d directories, want 1", stats.Directories)
	}
	if stats.TotalSize != 30 {
		t.Fatalf("got total size %d, want 30", stats.TotalSize)
	}
}

func TestListDirRecursiveEmitsOnlyFilesWithRelativePaths(t *testing.T) {
	files, err := listDirRecursive(newFakeFS(), "/root")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	seen := map[string]bool{}
	for _, f := range files {
		seen[f.Rel] = true
	}
	if !seen["a.txt"] || !seen["sub/b.txt"] {
		t.Fatalf("unexpected relative paths: %+v", files)
	}
}

func TestSortEntriesDirectoriesFirstThenName(t *testing.T) {
	entries := []Entry{
		{Name: "zfile.txt"},
		{Name: "adir", IsDir: true},
		{Name: "afile.txt"},
	}
	sortEntries(entries, ListOptions{})
	if !entries[0].IsDir || entries[0].Name != "adir" {
		t.Fatalf("expected directory first, got %+v", entries[0])
	}
	if entries[1].Name != "afile.txt" || entries[2].Name != "zfile.txt" {
		t.Fatalf("unexpected file ordering: %+v", entries[1:])
	}
}

func TestSortEntriesBySizeDescending(t *testing.T) {
	entries := []Entry{
		{Name: "small.txt", Size: 10},
		{Name: "big.txt", Size: 100},
	}
	sortEntries(entries, ListOptions{SortBy: SortBySize, Descending: true})
	if entries[0].Name != "big.txt" {
		t.Fatalf("expected big.txt first, got %+v", entries)
	}
}

func TestParentOf(t *testing.T) {
	cases := map[string]string{
		"/a/b/c": "/a/b",
		"/a":     "/",
		"/":      "/",
	}
	for in, want := range cases {
		if got := parentOf(in); got != want {
			t.Errorf("parentOf(%q) = %q, want %q", in, got, want)
		}
	}
}
