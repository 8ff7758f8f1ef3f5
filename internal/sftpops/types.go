// Package sftpops implements the stateless SFTP operation set: all
// functions take a borrowed *sftp.Client handle and retain no state of
// their own, grounded in
// _examples/zmb3-teleport/lib/sshutils/sftp/sftp.go's FileSystem
// interface (Stat/ReadDir/Open/Create/Mkdir/Chmod/Chtimes), generalized
// here to one concrete remote (SFTP) and one concrete local (os)
// implementation sharing a single traversal algorithm.
package sftpops

import (
	"os"
	"time"
)

// Entry is one directory listing item.
type Entry struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
	Mtime time.Time
	Mode  os.FileMode
}

// SortKey selects the list_dir sort dimension.
type SortKey string

const (
	SortByName  SortKey = "name"
	SortBySize  SortKey = "size"
	SortByMtime SortKey = "mtime"
)

// ListOptions controls list_dir sorting; directories always sort before
// files regardless of key.
type ListOptions struct {
	SortBy     SortKey // defaults to SortByName
	Descending bool
}

// RecursiveFile is one file produced by a recursive listing: Abs is the
// absolute path on its filesystem, Rel is the path relative to the walk
// base.
type RecursiveFile struct {
	Abs string
	Rel string
}

// DirStats is the result of get_directory_stats.
type DirStats struct {
	Files       int
	Directories int
	TotalSize   int64
}

// DeleteResult is the result of delete_recursive: symlinks and files
// are deleted before the directories that contained them.
type DeleteResult struct {
	DeletedCount int
	TotalCount   int
	Failures     []DeleteFailure
}

// DeleteFailure records one path that could not be removed during a
// recursive delete sweep; the sweep never aborts on an individual
// failure.
type DeleteFailure struct {
	Path string
	Err  error
}

// ProgressFunc receives recursive-delete progress. Called at most every
// 200ms plus once on completion.
type ProgressFunc func(root string, deletedCount, totalCount int, currentPath string)

// isSymlink reports whether mode describes a symbolic link (the
// S_IFLNK bit, 0o120000, per spec.md §4.3).
func isSymlink(mode os.FileMode) bool {
	return mode&os.ModeSymlink != 0
}
