// Command btu-scheduler-daemon runs the BTU scheduler daemon: it bridges
// a relational schedule store and a Redis-backed worker queue, projecting
// cron expressions into due-time firings and handing off serialized
// callables to a Python RQ-compatible worker fleet.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Datahenge/btu-scheduler-daemon/internal/config"
	"github.com/Datahenge/btu-scheduler-daemon/internal/dueindex"
	"github.com/Datahenge/btu-scheduler-daemon/internal/engine"
	"github.com/Datahenge/btu-scheduler-daemon/internal/fifo"
	"github.com/Datahenge/btu-scheduler-daemon/internal/ipc"
	"github.com/Datahenge/btu-scheduler-daemon/internal/obslog"
	"github.com/Datahenge/btu-scheduler-daemon/internal/rq"
	"github.com/Datahenge/btu-scheduler-daemon/internal/store"
	"github.com/Datahenge/btu-scheduler-daemon/internal/webapp"
)

func main() {
	configPath := flag.String("config", "", "path to btu_scheduler.toml (defaults to "+config.DefaultConfigPath+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		obslog.Log.Fatal().Err(err).Msg("failed to load configuration")
	}
	obslog.Configure(cfg.LogLevel)

	sqlStore, err := store.NewSQLStore(cfg.SQL.DSN())
	if err != nil {
		obslog.Log.Fatal().Err(err).Msg("failed to open SQL store")
	}
	defer sqlStore.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer rdb.Close()

	if err := probeConnections(sqlStore, rdb, cfg.StartupWithoutDatabaseConns); err != nil {
		obslog.Log.Fatal().Err(err).Msg("startup connectivity probe failed")
	}

	queue := fifo.New()
	index := dueindex.New(rdb)
	writer := rq.NewWriter(rdb)
	webappClient := webapp.New(cfg.WebApp.BaseURL(), cfg.WebApp.HostHeader, cfg.WebApp.Token)

	engCfg := engine.DefaultConfig()
	engCfg.SchedulerPollingInterval = time.Duration(cfg.SchedulerPollingIntervalSeconds) * time.Second
	engCfg.FullRefreshInterval = time.Duration(cfg.FullRefreshIntervalSeconds) * time.Second

	eng := engine.New(engCfg, queue, sqlStore, index, writer, webappClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		obslog.Log.Info().Msg("received shutdown signal")
		cancel()
	}()

	ipcServer := ipc.NewServer(cfg.SocketPath, cfg.SocketFileGroupOwner, queue, index, rdb)
	go func() {
		if err := ipcServer.ListenAndServe(ctx); err != nil {
			obslog.Log.Error().Err(err).Msg("control plane exited")
		}
	}()

	go serveMetrics(ctx, cfg.MetricsAddr)

	obslog.Log.Info().Msg("btu-scheduler-daemon started")
	eng.Run(ctx)
}

// probeConnections checks SQL and Redis connectivity at startup. If
// startupWithoutDatabaseConns is false, any failure is fatal; otherwise
// failures are logged and the daemon starts anyway, retrying on each
// worker iteration (spec.md 5).
func probeConnections(st *store.SQLStore, rdb *redis.Client, startupWithoutDatabaseConns bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sqlErr := st.Ping(ctx)
	redisErr := rdb.Ping(ctx).Err()

	if sqlErr == nil && redisErr == nil {
		return nil
	}
	if sqlErr != nil {
		obslog.Log.Warn().Err(sqlErr).Msg("SQL connectivity probe failed at startup")
	}
	if redisErr != nil {
		obslog.Log.Warn().Err(redisErr).Msg("Redis connectivity probe failed at startup")
	}
	if !startupWithoutDatabaseConns {
		if sqlErr != nil {
			return sqlErr
		}
		return redisErr
	}
	obslog.Log.Warn().Msg("starting despite failed connectivity probe (startup_without_database_connections=true)")
	return nil
}

func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	obslog.Log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		obslog.Log.Error().Err(err).Msg("metrics server exited")
	}
}
