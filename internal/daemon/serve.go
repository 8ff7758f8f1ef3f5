package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/trace"
)

// defaultShutdownSignals mirrors the teacher's cfg.ShutdownSignals
// default (SIGINT/SIGTERM), since this core has no equivalent of the
// grpc transport Serve used to race against.
var defaultShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Serve constructs a Service from cfg and blocks until ctx is canceled
// or a shutdown signal arrives, then shuts the Service down. There is
// no transport layer here to accept connections on: command dispatch
// to the Service's methods is the front end's concern, out of scope
// for this core.
func Serve(ctx context.Context, cfg Config) error {
	svc, err := New(cfg)
	if err != nil {
		return trace.Wrap(err)
	}

	sigCh := make(chan os.Signal, len(defaultShutdownSignals))
	signal.Notify(sigCh, defaultShutdownSignals...)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		svc.log.Info("context closed, stopping service")
	case sig := <-sigCh:
		svc.log.Infof("captured %s, stopping service", sig)
	}

	return trace.Wrap(svc.Shutdown())
}
