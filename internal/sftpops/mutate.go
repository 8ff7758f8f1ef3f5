package sftpops

import (
	"errors"
	"os"
	"strings"

	"github.com/pkg/sftp"

	"sshterm-core/internal/corerrors"
	"sshterm-core/internal/pathutil"
)

const defaultDirMode = 0o755

// Mkdir creates path with mode 0755. Rejects a path whose final name is
// empty or that contains NUL; the parent must already exist.
func Mkdir(client *sftp.Client, p string) error {
	name := p[strings.LastIndex(p, "/")+1:]
	if name == "" || strings.ContainsRune(p, 0) {
		return corerrors.InvalidArgument("invalid directory name %q", p)
	}
	normalized, err := pathutil.ValidateRemotePath(p)
	if err != nil {
		return corerrors.InvalidArgument("%v", err)
	}

	parent := parentOf(normalized)
	if _, err := client.Stat(parent); err != nil {
		return corerrors.FromSFTPStatus(parent, err)
	}

	if err := client.Mkdir(normalized); err != nil {
		return corerrors.FromSFTPStatus(normalized, err)
	}
	return client.Chmod(normalized, defaultDirMode)
}

func parentOf(p string) string {
	idx := strings.LastIndex(strings.TrimSuffix(p, "/"), "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// Rename moves from to to. Source must exist, destination must not,
// and a directory may never be renamed into itself.
func Rename(client *sftp.Client, from, to string) error {
	nFrom, err := pathutil.ValidateRemotePath(from)
	if err != nil {
		return corerrors.InvalidArgument("%v", err)
	}
	nTo, err := pathutil.ValidateRemotePath(to)
	if err != nil {
		return corerrors.InvalidArgument("%v", err)
	}

	fromInfo, err := client.Stat(nFrom)
	if err != nil {
		return corerrors.FromSFTPStatus(nFrom, err)
	}
	if _, err := client.Stat(nTo); err == nil {
		return corerrors.AlreadyExists(nTo)
	}
	if fromInfo.IsDir() && strings.HasPrefix(nTo, strings.TrimSuffix(nFrom, "/")+"/") {
		return corerrors.InvalidArgument("cannot rename %q into itself", nFrom)
	}

	if err := client.Rename(nFrom, nTo); err != nil {
		return corerrors.FromSFTPStatus(nFrom, err)
	}
	return nil
}

// Delete removes path, which must be exactly isDir's type (a symlink is
// unlinked regardless of isDir). Directories must be empty.
func Delete(client *sftp.Client, p string, isDir bool) error {
	normalized, err := pathutil.ValidateRemotePath(p)
	if err != nil {
		return corerrors.InvalidArgument("%v", err)
	}
	if normalized == "/" || normalized == "." || normalized == ".." {
		return corerrors.InvalidArgument("refusing to delete %q", normalized)
	}

	info, err := client.Lstat(normalized)
	if err != nil {
		return corerrors.FromSFTPStatus(normalized, err)
	}

	if isSymlink(info.Mode()) {
		if err := client.Remove(normalized); err != nil {
			return corerrors.FromSFTPStatus(normalized, err)
		}
		return nil
	}

	if info.IsDir() != isDir {
		return corerrors.InvalidArgument("%q is not a %s", normalized, dirOrFile(isDir))
	}

	if isDir {
		children, err := client.ReadDir(normalized)
		if err != nil {
			return corerrors.FromSFTPStatus(normalized, err)
		}
		for _, c := range children {
			if c.Name() != "." && c.Name() != ".." {
				return corerrors.DirNotEmpty(normalized)
			}
		}
		if err := client.RemoveDirectory(normalized); err != nil {
			return corerrors.FromSFTPStatus(normalized, err)
		}
		return nil
	}

	if err := client.Remove(normalized); err != nil {
		return corerrors.FromSFTPStatus(normalized, err)
	}
	return nil
}

func dirOrFile(isDir bool) string {
	if isDir {
		return "directory"
	}
	return "file"
}

// Chmod sets the permission bits of path, rejecting root/"."/"..",
// modes above 0o777, and missing paths.
func Chmod(client *sftp.Client, p string, mode os.FileMode) error {
	normalized, err := pathutil.ValidateRemotePath(p)
	if err != nil {
		return corerrors.InvalidArgument("%v", err)
	}
	if normalized == "/" || normalized == "." || normalized == ".." {
		return corerrors.InvalidArgument("refusing to chmod %q", normalized)
	}
	if mode&^os.FileMode(0o777) != 0 {
		return corerrors.InvalidArgument("mode %o exceeds 0o777", mode)
	}
	if _, err := client.Stat(normalized); err != nil {
		return corerrors.FromSFTPStatus(normalized, err)
	}
	if err := client.Chmod(normalized, mode); err != nil {
		return corerrors.FromSFTPStatus(normalized, err)
	}
	return nil
}

// EnsureRemoteDir implements "mkdir -p" over SFTP: status codes that
// indicate the directory already exists are treated as success, so
// concurrent creation from two callers is safe.
func EnsureRemoteDir(client *sftp.Client, p string) error {
	normalized, err := pathutil.ValidateRemotePath(p)
	if err != nil {
		return corerrors.InvalidArgument("%v", err)
	}
	if normalized == "/" {
		return nil
	}

	if info, err := client.Stat(normalized); err == nil {
		if !info.IsDir() {
			return corerrors.InvalidArgument("%q exists and is not a directory", normalized)
		}
		return nil
	}

	if err := EnsureRemoteDir(client, parentOf(normalized)); err != nil {
		return err
	}

	err = client.Mkdir(normalized)
	if err == nil {
		return client.Chmod(normalized, defaultDirMode)
	}
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) && (statusErr.Code == 4 || statusErr.Code == 11) {
		return nil
	}
	return corerrors.FromSFTPStatus(normalized, err)
}
