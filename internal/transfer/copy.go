package transfer

import (
	"io"
	"os"
	"time"

	"github.com/pkg/sftp"

	"sshterm-core/internal/corerrors"
)

const chunkSize = 64 * 1024

// copyUpload streams localPath to remotePath in chunkSize increments,
// checking cancel once per chunk and feeding each chunk to tracker.
func copyUpload(client *sftp.Client, localPath, remotePath string, buf []byte, tracker *progressTracker, cancel *cancelToken, now func() time.Time) error {
	local, err := os.Open(localPath)
	if err != nil {
		return corerrors.FromIOError(localPath, err)
	}
	defer local.Close()

	remote, err := client.Create(remotePath)
	if err != nil {
		return corerrors.FromSFTPStatus(remotePath, err)
	}
	defer remote.Close()

	return copyLoop(local, remote, buf, tracker, cancel, now, func() {}, localPath, remotePath, true)
}

// copyDownload stats remotePath for Total, then streams it to
// localPath; on cancellation the partial local file is removed.
func copyDownload(client *sftp.Client, remotePath, localPath string, buf []byte, tracker *progressTracker, cancel *cancelToken, now func() time.Time) error {
	info, err := client.Stat(remotePath)
	if err != nil {
		return corerrors.FromSFTPStatus(remotePath, err)
	}
	tracker.setTotal(info.Size())

	remote, err := client.Open(remotePath)
	if err != nil {
		return corerrors.FromSFTPStatus(remotePath, err)
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return corerrors.FromIOError(localPath, err)
	}
	defer local.Close()

	cleanupPartial := func() {
		local.Close()
		os.Remove(localPath)
	}

	return copyLoop(remote, local, buf, tracker, cancel, now, cleanupPartial, remotePath, localPath, false)
}

// copyLoop reads src into buf and writes to dst, chunkSize at a time,
// checking cancel between iterations (spec.md's "~64 KiB granularity").
// onCancel is invoked only for the download side, to delete the partial
// local file; uploads leave whatever was written in place (documented
// behavior: the server retains what it received).
func copyLoop(src io.Reader, dst io.Writer, buf []byte, tracker *progressTracker, cancel *cancelToken, now func() time.Time, onCancel func(), srcPath, dstPath string, isUpload bool) error {
	for {
		if cancel.Canceled() {
			onCancel()
			return corerrors.Canceled("transfer canceled")
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				if isUpload {
					return corerrors.RemoteIoError(writeErr, "writing to "+dstPath)
				}
				return corerrors.FromIOError(dstPath, writeErr)
			}
			tracker.add(n, now())
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if isUpload {
				return corerrors.FromIOError(srcPath, readErr)
			}
			return corerrors.FromSFTPStatus(srcPath, readErr)
		}
	}
}
