// Command sshtermctl is a minimal manual-exercise driver for
// daemon.Service: not a GUI, not a protocol server, it only lets a
// human run one connect+transfer cycle end to end during development
// and watch transfer:progress events render as a progress bar. The
// front end itself is external per spec.md §1; this tool has no
// client-server surface of its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"sshterm-core/internal/daemon"
	"sshterm-core/internal/logsetup"
	"sshterm-core/internal/memstore"
	"sshterm-core/internal/sftpops"
	"sshterm-core/internal/store"
	"sshterm-core/internal/transfer"
)

func main() {
	var (
		host       = flag.String("host", "", "remote host")
		port       = flag.Int("port", 22, "remote port")
		user       = flag.String("user", "", "remote username")
		keyPath    = flag.String("key", "", "private key path (omit to use -password)")
		password   = flag.String("password", "", "password auth secret")
		upload     = flag.String("upload", "", "local file to upload")
		download   = flag.String("download", "", "remote file to download")
		remoteDir  = flag.String("remote-dir", ".", "remote directory for -upload, or directory to list when neither -upload nor -download is given")
		localDir   = flag.String("local-dir", ".", "local directory for -download")
		debug      = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	if *host == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "usage: sshtermctl -host H -user U [-key K | -password P] [-upload F | -download F]")
		os.Exit(2)
	}

	level := logrus.InfoLevel
	if *debug {
		level = logrus.DebugLevel
	}
	logsetup.Init(logsetup.ForCLI, level)

	db := memstore.NewDB()
	vault := memstore.NewVault()

	svc, err := daemon.New(daemon.Config{
		DB:    db,
		Vault: vault,
		Log:   logsetup.Component("sshtermctl"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon.New:", err)
		os.Exit(1)
	}
	defer svc.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	profile := &store.Profile{
		ID:       uuid.NewString(),
		Name:     *host,
		Host:     *host,
		Port:     *port,
		Username: *user,
	}
	if *keyPath != "" {
		profile.AuthType = store.AuthKey
		profile.PrivateKeyPath = *keyPath
	} else {
		profile.AuthType = store.AuthPassword
	}

	outcome, err := svc.SessionConnect(ctx, profile, *password, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	if outcome.NeedHostKeyConfirm {
		fmt.Printf("unknown host key for %s:%d, fingerprint %s\n", outcome.PendingHost, outcome.PendingPort, outcome.Fingerprint)
		fmt.Print("trust it? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "host key not trusted, aborting")
			os.Exit(1)
		}
		if err := svc.SecurityTrustHostkey(ctx, outcome.PendingHost, outcome.PendingPort, outcome.PendingKeyType, outcome.Fingerprint); err != nil {
			fmt.Fprintln(os.Stderr, "trust_hostkey:", err)
			os.Exit(1)
		}
		outcome, err = svc.SessionConnectAfterTrust(ctx, profile, *password, "")
		if err != nil {
			fmt.Fprintln(os.Stderr, "connect:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("connected: session=%s home=%s fingerprint=%s\n", outcome.SessionID, outcome.HomePath, outcome.Fingerprint)

	switch {
	case *upload != "":
		runTransfer(ctx, svc, func() (string, error) {
			return svc.TransferUpload(ctx, outcome.SessionID, *upload, *remoteDir)
		})
	case *download != "":
		runTransfer(ctx, svc, func() (string, error) {
			return svc.TransferDownload(ctx, outcome.SessionID, *download, *localDir)
		})
	default:
		entries, err := svc.SftpListDir(outcome.SessionID, *remoteDir, sftpops.ListOptions{})
		if err != nil {
			fmt.Fprintln(os.Stderr, "list_dir:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%10d  %s\n", e.Size, e.Name)
		}
	}

	svc.SessionDisconnect(outcome.SessionID)
}

// runTransfer schedules create, a subscriber that renders the task's
// progress through a progressbar.ProgressBar (the same library and
// configuration lib/sshutils/sftp/sftp.go's NewProgressBar uses), and
// blocks until the task leaves Running.
func runTransfer(ctx context.Context, svc *daemon.Service, create func() (string, error)) {
	taskID, err := create()
	if err != nil {
		fmt.Fprintln(os.Stderr, "transfer:", err)
		os.Exit(1)
	}

	sub, unsubscribe := svc.Events().Subscribe()
	defer unsubscribe()

	var bar *progressbar.ProgressBar
	for ev := range sub {
		snap, ok := ev.Payload.(transfer.Snapshot)
		if !ok || snap.TaskID != taskID {
			continue
		}
		if bar == nil && snap.Total != nil {
			bar = newProgressBar(*snap.Total, filepath.Base(snap.FileName))
		}
		if bar != nil && snap.Transferred > 0 {
			bar.Set64(snap.Transferred)
		}
		switch snap.Status {
		case transfer.StatusSuccess:
			if bar != nil {
				bar.Finish()
			}
			return
		case transfer.StatusFailed:
			fmt.Fprintf(os.Stderr, "\ntransfer failed: %+v\n", snap.Err)
			os.Exit(1)
		case transfer.StatusCanceled:
			fmt.Fprintln(os.Stderr, "\ntransfer canceled")
			os.Exit(1)
		}
	}
}

func newProgressBar(size int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stdout, "\n") }),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
