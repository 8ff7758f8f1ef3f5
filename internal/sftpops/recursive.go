package sftpops

import (
	"path"
	"sort"
	"time"

	"github.com/pkg/sftp"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/logsetup"
	"sshterm-core/internal/pathutil"
)

var log = logsetup.Component("sftpops")

type stackEntry struct {
	abs string
	rel string
}

// GetDirectoryStats walks base with an explicit-stack DFS, skipping
// symlinks, counting files and directories (excluding the root) and
// summing file sizes. A readdir failure on a subdirectory is logged and
// the walk continues.
func GetDirectoryStats(client *sftp.Client, base string) (DirStats, error) {
	return getDirectoryStats(remoteFS{client}, base)
}

func getDirectoryStats(fs fileSystem, base string) (DirStats, error) {
	normalized, err := pathutil.ValidateRemotePath(base)
	if err != nil {
		return DirStats{}, corerrors.InvalidArgument("%v", err)
	}

	root, err := fs.Lstat(normalized)
	if err != nil {
		return DirStats{}, corerrors.FromSFTPStatus(normalized, err)
	}
	if !root.IsDir() {
		return DirStats{}, corerrors.InvalidArgument("%q is not a directory", normalized)
	}

	var stats DirStats
	stack := []string{normalized}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := fs.ReadDir(dir)
		if err != nil {
			log.WithError(err).WithField("path", dir).Warn("readdir failed during directory stat walk, skipping")
			continue
		}
		for _, c := range children {
			if c.Name() == "." || c.Name() == ".." {
				continue
			}
			if isSymlink(c.Mode()) {
				continue
			}
			childPath := path.Join(dir, c.Name())
			if c.IsDir() {
				stats.Directories++
				stack = append(stack, childPath)
				continue
			}
			stats.Files++
			stats.TotalSize += c.Size()
		}
	}
	return stats, nil
}

// ListDirRecursive produces (absolute, base-relative) pairs for every
// file under base (symlinks skipped, directories traversed but not
// emitted themselves).
func ListDirRecursive(client *sftp.Client, base string) ([]RecursiveFile, error) {
	return listDirRecursive(remoteFS{client}, base)
}

// ListLocalDirRecursive mirrors ListDirRecursive against the local
// filesystem.
func ListLocalDirRecursive(base string) ([]RecursiveFile, error) {
	return listDirRecursive(localFS{}, base)
}

func listDirRecursive(fs fileSystem, base string) ([]RecursiveFile, error) {
	root, err := fs.Lstat(base)
	if err != nil {
		return nil, corerrors.FromIOError(base, err)
	}
	if isSymlink(root.Mode()) {
		return nil, corerrors.InvalidArgument("base %q is a symlink", base)
	}
	if !root.IsDir() {
		return nil, corerrors.InvalidArgument("base %q is not a directory", base)
	}

	var out []RecursiveFile
	stack := []stackEntry{{abs: base, rel: ""}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := fs.ReadDir(cur.abs)
		if err != nil {
			log.WithError(err).WithField("path", cur.abs).Warn("readdir failed during recursive listing, skipping")
			continue
		}
		for _, c := range children {
			if c.Name() == "." || c.Name() == ".." || isSymlink(c.Mode()) {
				continue
			}
			childAbs := path.Join(cur.abs, c.Name())
			childRel := path.Join(cur.rel, c.Name())
			if c.IsDir() {
				stack = append(stack, stackEntry{abs: childAbs, rel: childRel})
				continue
			}
			out = append(out, RecursiveFile{Abs: childAbs, Rel: childRel})
		}
	}
	return out, nil
}

const deleteProgressInterval = 200 * time.Millisecond

// DeleteRecursive removes path and everything under it. A plain file or
// symlink root is unlinked directly. Otherwise every file/symlink is
// deleted first, then directories are removed deepest-first (sorted by
// descending path length) so each rmdir always finds an empty
// directory. Individual failures accrue into the result without
// aborting the sweep.
func DeleteRecursive(client *sftp.Client, rootPath string, progress ProgressFunc, now func() time.Time) (DeleteResult, error) {
	if now == nil {
		now = time.Now
	}
	normalized, err := pathutil.ValidateRemotePath(rootPath)
	if err != nil {
		return DeleteResult{}, corerrors.InvalidArgument("%v", err)
	}

	rootInfo, err := client.Lstat(normalized)
	if err != nil {
		return DeleteResult{}, corerrors.FromSFTPStatus(normalized, err)
	}

	if isSymlink(rootInfo.Mode()) || !rootInfo.IsDir() {
		if err := client.Remove(normalized); err != nil {
			return DeleteResult{TotalCount: 1, Failures: []DeleteFailure{{Path: normalized, Err: err}}}, nil
		}
		return DeleteResult{DeletedCount: 1, TotalCount: 1}, nil
	}

	var files []string
	var dirs []string
	stack := []string{normalized}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dirs = append(dirs, dir)

		children, err := client.ReadDir(dir)
		if err != nil {
			log.WithError(err).WithField("path", dir).Warn("readdir failed during recursive delete walk")
			continue
		}
		for _, c := range children {
			if c.Name() == "." || c.Name() == ".." {
				continue
			}
			childPath := path.Join(dir, c.Name())
			if c.IsDir() && !isSymlink(c.Mode()) {
				stack = append(stack, childPath)
				continue
			}
			files = append(files, childPath)
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	total := len(files) + len(dirs)
	result := DeleteResult{TotalCount: total}
	lastEmit := now()

	emit := func(current string, force bool) {
		if progress == nil {
			return
		}
		if force || now().Sub(lastEmit) >= deleteProgressInterval {
			progress(normalized, result.DeletedCount, total, current)
			lastEmit = now()
		}
	}

	for _, f := range files {
		if err := client.Remove(f); err != nil {
			result.Failures = append(result.Failures, DeleteFailure{Path: f, Err: err})
		} else {
			result.DeletedCount++
		}
		emit(f, false)
	}
	for _, d := range dirs {
		if err := client.RemoveDirectory(d); err != nil {
			result.Failures = append(result.Failures, DeleteFailure{Path: d, Err: err})
		} else {
			result.DeletedCount++
		}
		emit(d, false)
	}
	emit(normalized, true)

	return result, nil
}
