package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	redis_ipc "github.com/rescoot/redis-ipc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/bootloader"
	"github.com/librescoot/ble-ota-peripheral/internal/config"
	"github.com/librescoot/ble-ota-peripheral/internal/diag"
	"github.com/librescoot/ble-ota-peripheral/internal/hardware"
	"github.com/librescoot/ble-ota-peripheral/internal/hibernation"
	"github.com/librescoot/ble-ota-peripheral/internal/hoststack"
	"github.com/librescoot/ble-ota-peripheral/internal/indicator"
	"github.com/librescoot/ble-ota-peripheral/internal/logging"
	"github.com/librescoot/ble-ota-peripheral/internal/metrics"
	"github.com/librescoot/ble-ota-peripheral/internal/service"
	"github.com/librescoot/ble-ota-peripheral/internal/systemd"
)

var version = "dev"

func main() {
	cfg := config.New()
	if err := cfg.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	if cfg.Version {
		fmt.Printf("ble-ota-peripheral %s\n", version)
		return
	}

	logger, err := logging.New(os.Stdout, logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Journal: logging.UnderSystemd(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", version).Bool("dry_run", cfg.DryRun).Msg("Starting BLE OTA peripheral")

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Service failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	rdb := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		DB:   0,
	})
	defer rdb.Close()

	ipc, err := redis_ipc.New(redis_ipc.Config{
		Address:       cfg.RedisHost,
		Port:          cfg.RedisPort,
		RetryInterval: 5 * time.Second,
		MaxRetries:    3,
	})
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	defer ipc.Close()

	var hw *hardware.Manager
	wake := hibernation.NewWake(func() error { return hw.ArmWake() })

	hw, err = hardware.NewManager(ctx, rdb, hardware.LineConfig{
		Chip: cfg.GPIOChip,
		Outputs: map[string]int{
			indicator.Bootloading:  cfg.BootloadingLine,
			indicator.Advertising1: cfg.Advertising1Line,
			indicator.Advertising2: cfg.Advertising2Line,
		},
		Wake: cfg.WakeLine,
	}, logger.With().Str("component", "hardware").Logger(), cfg.DryRun, func() {
		wake.Fire(hibernation.WakeReasonButton)
	})
	if err != nil {
		return fmt.Errorf("failed to create hardware manager: %w", err)
	}
	defer hw.Close()

	if err := hw.InitializeRedisState(indicator.Names); err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize indicator state")
	}

	var platform hibernation.Platform = hibernation.NoPark{}
	if cfg.SuspendOnPark {
		logind, err := systemd.NewClient(logger.With().Str("component", "logind").Logger(), cfg.DryRun)
		if err != nil {
			return err
		}
		defer logind.Close()

		parker, err := logind.Parker(ctx, cfg.ParkCommand)
		if err != nil {
			logger.Warn().Err(err).Msg("Hibernating without parking the system")
		} else {
			platform = hw.ParkWith(parker)
		}
	}

	var driver hoststack.Driver
	if cfg.DryRun || cfg.Backend == "sim" {
		driver = hoststack.NewSim(logger.With().Str("component", "sim").Logger())
	} else {
		driver = hoststack.NewBlueZ(hoststack.BlueZConfig{
			LocalName:         cfg.LocalName,
			BootloaderService: cfg.BootloaderUUID,
			ServiceChanged:    ble.AttrHandle(cfg.ServiceChanged),
			SerialNumber:      ble.AttrHandle(cfg.SerialNumberAttr),
		}, logger.With().Str("component", "bluez").Logger())
	}

	svc, err := service.New(cfg, service.Deps{
		Driver:     driver,
		Outputs:    hw,
		Platform:   platform,
		Wake:       wake,
		Bootloader: bootloader.NewRedisGate(rdb, logger.With().Str("component", "bootloader").Logger()),
		Publisher:  service.NewIPCPublisher(ipc),
		Sink: diag.Multi{
			diag.NewLogSink(logger),
			diag.NewRedisSink(ctx, rdb, logger, cfg.DiagnosticsMax),
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	ipc.HandleRequests(service.CommandChannel, svc.HandleCommand)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
			if err := metrics.Serve(gctx, cfg.MetricsAddr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info().Msg("Shutting down")
	return nil
}
