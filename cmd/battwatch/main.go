package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/battwatch/battwatch/internal/alerts"
	"github.com/battwatch/battwatch/internal/api"
	"github.com/battwatch/battwatch/internal/auth"
	"github.com/battwatch/battwatch/internal/config"
	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/metrics"
	"github.com/battwatch/battwatch/internal/mirror"
	"github.com/battwatch/battwatch/internal/rpc"
	"github.com/battwatch/battwatch/internal/scheduler"
	"github.com/battwatch/battwatch/internal/telemetry"
	"github.com/battwatch/battwatch/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	var level slog.LevelVar
	slog.SetDefault(newLogger(os.Stdout, "json", &level))

	slog.Info("battwatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())
	slog.SetDefault(newLogger(os.Stdout, cfg.Log.Format, &level))

	slog.Info("config loaded",
		"dataset", cfg.Dataset.Path,
		"interval", cfg.Scheduler.Interval,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"alert_rules", len(cfg.Alerts.Rules),
		"redis", cfg.Redis.Enabled(),
	)
	if cfg.Server.Auth.Mode == "apikey" && cfg.Server.Auth.Key() == "" {
		slog.Warn("api key auth disabled: key env var is unset or empty", "key_env", cfg.Server.Auth.KeyEnv)
	}

	ds, err := telemetry.Load(cfg.Dataset.Path)
	if err != nil {
		slog.Error("failed to load dataset", "err", err)
		os.Exit(1)
	}
	slog.Info("dataset loaded", "path", cfg.Dataset.Path, "samples", ds.Len())

	alertEngine, err := alerts.New(cfg.Alerts)
	if err != nil {
		slog.Error("invalid alert rules", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The metrics collector reads the scheduler's latest record, and the
	// scheduler feeds the metrics observer, so the source is bound late.
	var latest latestRef
	m := metrics.New(&latest, ds.Len())

	observers := []scheduler.Option{
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithObserver(m.Observe),
		scheduler.WithObserver(func(ev scheduler.Event) { alertEngine.Evaluate(ev.Record) }),
	}

	var mir *mirror.Mirror
	if cfg.Redis.Enabled() {
		rdb := mirror.NewClient(cfg.Redis)
		defer rdb.Close()
		mir = mirror.New(rdb, cfg.Redis.Key, cfg.Redis.TTL)
		observers = append(observers, scheduler.WithObserver(mir.Observe))
	}

	sched, err := scheduler.New(ds.Samples, observers...)
	if err != nil {
		slog.Error("failed to start scheduler", "err", err)
		os.Exit(1)
	}
	latest.src = sched
	// Rules see the start-up record before the first tick.
	alertEngine.Evaluate(sched.Latest())
	startMirror(ctx, mir, sched.Latest())
	go sched.Run(ctx)

	// Config hot reload: alert rules, webhooks and log level only.
	go func() {
		err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(updated.Log.SlogLevel())
			if err := alertEngine.Reconfigure(updated.Alerts); err != nil {
				slog.Error("config reload: alert rules rejected, keeping previous rules and webhooks", "err", err)
				return
			}
			slog.Info("config hot-reloaded",
				"log_level", updated.Log.SlogLevel(),
				"alert_rules", len(updated.Alerts.Rules),
			)
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// gRPC query service, optional.
	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort != 0 {
		svc, err := rpc.NewService(sched, ds.Raw)
		if err != nil {
			slog.Error("failed to build gRPC service", "err", err)
			os.Exit(1)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(auth.APIKeyInterceptor(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
			rpc.MethodHealth,
		)))
		rpc.Register(grpcSrv, svc)

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port", "port", cfg.Server.GRPCPort, "err", err)
			os.Exit(1)
		}
		go func() {
			slog.Info("gRPC server listening", "port", cfg.Server.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	// WebSocket hub, pushes the latest record every stream interval.
	hub := ws.New(sched, cfg.Stream.Interval, ws.WithAllowedOrigins(cfg.Server.CORS.AllowedOrigins))
	go hub.Run(ctx)

	handler, err := newHTTPHandler(cfg, sched, ds, alertEngine, hub, m)
	if err != nil {
		slog.Error("failed to build HTTP handler", "err", err)
		os.Exit(1)
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("battwatch shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "err", err)
	}
	alertEngine.Wait()
}

// newHTTPHandler mounts the REST API, the WebSocket stream and /metrics.
// The API and stream sit behind the API key check; /api/health and /metrics
// stay open for probes and scrapers.
func newHTTPHandler(
	cfg *config.Config,
	sched *scheduler.Scheduler,
	ds *telemetry.Dataset,
	alertEngine *alerts.Engine,
	hub *ws.Hub,
	m *metrics.Metrics,
) (http.Handler, error) {
	apiHandler, err := api.New(sched, ds.Raw, api.WithAlerts(alertEngine))
	if err != nil {
		return nil, err
	}

	guard := auth.Middleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
		"/api/health",
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", guard(apiHandler))
	mux.Handle("/ws/stream", guard(hub))
	mux.Handle("/metrics", m.Handler())

	return api.CORS(cfg.Server.CORS.AllowedOrigins)(mux), nil
}

// startMirror seeds m with the start-up record and starts its writer, so
// Redis holds a record before the first tick. A nil m is a no-op.
func startMirror(ctx context.Context, m *mirror.Mirror, initial *diagnose.Record) {
	if m == nil {
		return
	}
	m.Observe(scheduler.Event{Record: initial})
	go m.Run(ctx)
}

// newLogger builds the process logger in the configured format.
func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
