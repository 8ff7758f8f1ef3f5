package sftpops

import (
	"os"

	"github.com/pkg/sftp"
)

// fileSystem is the minimal surface the recursive traversal algorithms
// need, shared between the remote (SFTP) and local (os) sides so
// list_dir_recursive and list_local_dir_recursive are one algorithm, not
// two, per SPEC_FULL §4.3.
type fileSystem interface {
	Lstat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
}

// remoteFS adapts *sftp.Client to fileSystem.
type remoteFS struct {
	client *sftp.Client
}

func (r remoteFS) Lstat(path string) (os.FileInfo, error)      { return r.client.Lstat(path) }
func (r remoteFS) ReadDir(path string) ([]os.FileInfo, error)  { return r.client.ReadDir(path) }

// localFS adapts the local filesystem to fileSystem.
type localFS struct{}

func (localFS) Lstat(path string) (os.FileInfo, error) { return os.Lstat(path) }

func (localFS) ReadDir(path string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
