package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"flashliquidity/core/clock"
	"flashliquidity/core/events"
	"flashliquidity/core/genesis"
	nativecommon "flashliquidity/native/common"
	"flashliquidity/native/flashloan"
	"flashliquidity/native/oracle"
	"flashliquidity/observability/logging"
	telemetry "flashliquidity/observability/otel"
	"flashliquidity/services/flashloand/callback"
	"flashliquidity/services/flashloand/config"
	"flashliquidity/services/flashloand/server"
	"flashliquidity/state/ledger"
	"flashliquidity/storage"
	"flashliquidity/storage/journal"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "services/flashloand/config.yaml", "path to flashloand config")
	pflag.Parse()

	if err := run(*cfgPath); err != nil {
		slog.Error("flashloand exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service: "flashloand",
		Env:     cfg.Environment,
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "flashloand",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	spec, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	history, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer history.Close()
	history.SetLogger(logger.With(slog.String("component", "journal")))

	bus := events.NewBroadcaster(256)
	ldg, err := ledger.New(db, events.Multi{bus, history})
	if err != nil {
		return err
	}

	wall := clockwork.NewRealClock()
	slots, err := clock.NewSlotClock(wall, spec.GenesisTimestamp(), spec.SlotDuration())
	if err != nil {
		return err
	}
	engine := flashloan.NewEngine(spec.EngineConfig())
	engine.SetClock(slots)
	engine.SetOracle(buildOracle(ctx, cfg.Oracle, wall))

	pauses := nativecommon.NewPauseSet()
	pauses.Set("flashloan", cfg.Paused)
	engine.SetPauses(pauses)

	if cfg.Callback.URL != "" {
		hook, err := callback.New(cfg.Callback.URL, cfg.Callback.Secret, cfg.Callback.Timeout, nil)
		if err != nil {
			return err
		}
		engine.SetCallback(hook)
	}

	created, err := genesis.Apply(ctx, ldg, engine, spec)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("ledger ready",
		slog.Bool("bootstrapped", created),
		slog.String("program", spec.EngineConfig().ProgramID.String()),
		slog.Uint64("slot", slots.Slot()),
		slog.Bool("paused", cfg.Paused))

	auth, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret:       cfg.Auth.HMACSecret,
		Issuer:           cfg.Auth.Issuer,
		Audience:         cfg.Auth.Audience,
		ClockSkew:        cfg.Auth.ClockSkew,
		RequireSignature: cfg.Auth.RequireSignature,
	}, logger)
	if err != nil {
		return err
	}
	srv, err := server.New(server.Options{
		Engine:  engine,
		Ledger:  ldg,
		History: history,
		Events:  bus,
		Auth:    auth,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	err = srv.Run(ctx, cfg.ListenAddress)
	logger.Info("shutdown complete")
	return err
}

// buildOracle registers Hermes ahead of the manual override. A configured
// manual price is republished periodically so it stays within the freshness
// bound.
func buildOracle(ctx context.Context, cfg config.OracleConfig, wall clockwork.Clock) oracle.PriceOracle {
	agg := oracle.NewAggregator()
	if cfg.HermesEndpoint != "" {
		client := &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
		agg.Register("hermes", oracle.NewHermesOracle(client, cfg.HermesEndpoint, cfg.FeedID))
	}
	if cfg.ManualPrice != 0 {
		manual := oracle.NewManualOracle()
		manual.Set(cfg.ManualPrice, cfg.ManualExpo, wall.Now().Unix())
		agg.Register("manual", manual)
		go func() {
			ticker := wall.NewTicker(flashloan.OracleMaxAgeSeconds * time.Second / 4)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.Chan():
					manual.Set(cfg.ManualPrice, cfg.ManualExpo, now.Unix())
				}
			}
		}()
	}
	return agg
}
