// Package debugsvc contains the debug HTTP API of the rule-set service: the
// health check, prometheus metrics, and pprof endpoints.
package debugsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/golibs/errors"
	pprofutil "github.com/AdguardTeam/golibs/netutil/httputil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config is the debug HTTP service configuration structure.
type Config struct {
	// Logger is used for logging the operation of the service.  It must not
	// be nil.
	Logger *slog.Logger

	// Addr is the address to listen on.  It must not be empty.
	Addr string
}

// Service is the debug HTTP service.
type Service struct {
	log  *slog.Logger
	http *http.Server
}

// New returns a new properly initialized *Service.  c must not be nil.
func New(c *Config) (svc *Service) {
	svc = &Service{
		log: c.Logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health-check", svc.middleware(
		http.HandlerFunc(serveHealthCheck),
		slog.LevelDebug,
	))
	mux.Handle("GET /metrics", svc.middleware(promhttp.Handler(), slog.LevelDebug))
	pprofutil.RoutePprof(mux)

	// #nosec G112 -- Do not set the timeouts, since debug/pprof and similar
	// debug APIs may be busy for a long time.
	svc.http = &http.Server{
		Addr:     c.Addr,
		Handler:  mux,
		ErrorLog: slog.NewLogLogger(c.Logger.Handler(), slog.LevelDebug),
	}

	return svc
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It starts
// serving but does not wait for the listener to actually go online.  err is
// always nil.
func (svc *Service) Start(ctx context.Context) (err error) {
	go func() {
		svc.log.InfoContext(ctx, "listening", "addr", svc.http.Addr)

		srvErr := svc.http.ListenAndServe()
		if !errors.Is(srvErr, http.ErrServerClosed) {
			svc.log.ErrorContext(ctx, "listening failed", "addr", svc.http.Addr, "err", srvErr)
		}
	}()

	return nil
}

// Shutdown implements the [service.Interface] interface for *Service.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	err = svc.http.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("debug svc shutdown: %w", err)
	}

	return nil
}
