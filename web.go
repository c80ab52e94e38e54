package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/buzzbox/internal/metrics"
	"github.com/Seednode/buzzbox/internal/room"
	"github.com/Seednode/buzzbox/internal/store"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, logger *slog.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		if _, err := io.WriteString(w, "buzzbox v"+releaseVersion+"\n"); err != nil {
			logger.Debug("SERVE: failed to write version", "error", err)
			return
		}

		logger.Debug("SERVE: version",
			"ip", realIP(r),
			"duration", time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// openStore builds the room store selected by --store. The returned func
// releases its connection.
func openStore(ctx context.Context, cfg *Config, logger *slog.Logger) (room.Store, func(), error) {
	switch cfg.store {
	case "nats":
		s, closeFn, err := store.OpenNATS(ctx, cfg.natsURL, cfg.natsBucket, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, closeFn, nil
	case "redis":
		s, closeFn, err := store.OpenRedis(ctx, cfg.redisAddr, cfg.redisPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, closeFn, nil
	case "memory":
		logger.Info("STORE: using in-memory rooms")
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.store)
	}
}

func newRouter(ctx context.Context, cfg *Config, svc *room.Service, reg *prometheus.Registry, logger *slog.Logger) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logger.Error("SERVE: panic", "path", r.URL.Path, "ip", realIP(r), "panic", i)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, logger))

	registerMetricsHandler(cfg, mux, reg)

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerBuzzer(newBuzzer(ctx, cfg, svc, logger), mux)

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logger := newLogger(cfg, os.Stderr)

	logger.Info("START: buzzbox", "version", releaseVersion)

	rooms, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := room.NewService(cfg.roomConfig(), rooms, logger, room.WithObserver(metrics.New(reg)))
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	resumed, err := svc.ResumeTimers(ctx)
	if err != nil {
		return err
	}
	if resumed > 0 {
		logger.Info("ROOMS: resumed running timers", "count", resumed)
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(ctx, cfg, svc, reg, logger),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	errs := make(chan error, 1)

	go func() {
		var err error

		logger.Info("SERVE: listening", "url", fmt.Sprintf("%s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix))

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("STOP: shutting down")
	case err := <-errs:
		return fmt.Errorf("listener failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
