package sftpops

import (
	"path"
	"sort"
	"strings"

	"github.com/pkg/sftp"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/pathutil"
)

// ListDir lists dir's children, directories first, then sorted per opts
// (default: name ascending). "." and ".." are never returned.
func ListDir(client *sftp.Client, dir string, opts ListOptions) ([]Entry, error) {
	normalized, err := pathutil.ValidateRemotePath(dir)
	if err != nil {
		return nil, corerrors.InvalidArgument("%v", err)
	}

	info, err := client.Stat(normalized)
	if err != nil {
		return nil, corerrors.FromSFTPStatus(normalized, err)
	}
	if !info.IsDir() {
		return nil, corerrors.InvalidArgument("%q is not a directory", normalized)
	}

	infos, err := client.ReadDir(normalized)
	if err != nil {
		return nil, corerrors.FromSFTPStatus(normalized, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, Entry{
			Name:  name,
			Path:  path.Join(normalized, name),
			IsDir: fi.IsDir(),
			Size:  fi.Size(),
			Mtime: fi.ModTime(),
			Mode:  fi.Mode(),
		})
	}

	sortEntries(entries, opts)
	return entries, nil
}

func sortEntries(entries []Entry, opts ListOptions) {
	key := opts.SortBy
	if key == "" {
		key = SortByName
	}

	less := func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir // directories first, always
		}
		switch key {
		case SortBySize:
			if a.Size != b.Size {
				return a.Size < b.Size
			}
		case SortByMtime:
			if !a.Mtime.Equal(b.Mtime) {
				return a.Mtime.Before(b.Mtime)
			}
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if opts.Descending {
			// Directories must still sort before files even in
			// descending mode; only the within-group comparison flips.
			a, b := entries[i], entries[j]
			if a.IsDir != b.IsDir {
				return a.IsDir
			}
			return !less(i, j)
		}
		return less(i, j)
	})
}

// Stat returns info for path, following symlinks.
func Stat(client *sftp.Client, p string) (Entry, error) {
	normalized, err := pathutil.ValidateRemotePath(p)
	if err != nil {
		return Entry{}, corerrors.InvalidArgument("%v", err)
	}
	info, err := client.Stat(normalized)
	if err != nil {
		return Entry{}, corerrors.FromSFTPStatus(normalized, err)
	}
	return Entry{
		Name:  path.Base(normalized),
		Path:  normalized,
		IsDir: info.IsDir(),
		Size:  info.Size(),
		Mtime: info.ModTime(),
		Mode:  info.Mode(),
	}, nil
}
