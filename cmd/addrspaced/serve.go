package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager"
	"github.com/contractor/addrspace/manager/httpapi"
	"github.com/contractor/addrspace/xnet"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API over the state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return errors.Errorf("%s command does not take any arguments", cmd.Name())
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		ctx = log.WithModule(ctx, "addrspaced")

		m, err := manager.New(ctx, managerConfig(v))
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Stop(); err != nil {
				log.G(ctx).WithError(err).Error("failed to stop manager")
			}
		}()

		return serve(ctx, m, v.GetString(keyHTTPAddress))
	},
}

func init() {
	serveCmd.Flags().String("listen-address", "127.0.0.1:8080", "Listen address of the HTTP API (tcp://, unix:// or npipe://)")
}

// newRouter mounts the API and the metrics endpoint.
func newRouter(m *manager.Manager) *mux.Router {
	r := mux.NewRouter()
	httpapi.NewHTTP(m).RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// serve runs the HTTP server and the state file sync until ctx is done or
// either of them fails.
func serve(ctx context.Context, m *manager.Manager, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l, err := xnet.ListenAddr(addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           newRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		log.G(ctx).WithField("address", addr).Info("serving http api")
		srvErr <- srv.Serve(l)
	}()

	var runDone bool
	select {
	case <-ctx.Done():
	case err = <-srvErr:
		err = errors.Wrap(err, "http server")
	case err = <-runErr:
		runDone = true
		if err != nil {
			err = errors.Wrap(err, "state sync")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.G(ctx).WithError(serr).Warn("http server shutdown")
	}

	// The final save happens when Run sees the cancellation.
	cancel()
	if !runDone {
		if rerr := <-runErr; rerr != nil && err == nil {
			err = errors.Wrap(rerr, "state sync")
		}
	}
	log.G(ctx).Info("stopped")
	return err
}
