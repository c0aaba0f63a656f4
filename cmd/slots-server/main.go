package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"
	"padelslots-backend/lib/telemetry"
	"padelslots-backend/lib/util/serviceutil"
	"padelslots-backend/services/slots"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json5", "path to the server config")
	flag.Parse()

	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		serviceutil.Fatal("failed to load .env", err)
	}

	config, err := readConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	logs := telemetry.InitSlog(config.Log)
	defer logs.Close()

	ctx := serviceutil.SignalContext()

	providers, err := telemetry.SetupFromEnv(ctx, "cmd/slots-server")
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no telemetry.json5 found, telemetry disabled")
	} else if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	} else {
		telemetry.InstrumentPerfStats(ctx)
		defer providers.Shutdown(context.Background())
	}

	coordinator, err := slots.NewCoordinator(config.coordinatorOptions())
	if err != nil {
		serviceutil.Fatal("failed to create coordinator", err)
	}

	slog.Info(
		"starting slots server",
		"environment", config.Environment,
		"allowed_origins", config.AllowedOrigins,
		"browser", config.Browser.Backend,
	)

	go func() {
		initCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		err := coordinator.Init(initCtx)
		if err != nil {
			slog.Error("failed to start browser session, retrying on first request", "err", err)
			return
		}
		slog.Info("browser session ready")
	}()

	handler := slots.NewHandler(coordinator, config.AllowedOrigins)
	err = serviceutil.ServeHttp(ctx, config.Port, handler)
	if err != nil {
		slog.Error("http server stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	err = coordinator.Shutdown(shutdownCtx)
	if err != nil {
		slog.Warn("failed to close browser session", "err", err)
	}
}
