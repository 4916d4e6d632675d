package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"motionsense/internal/config"
	"motionsense/internal/indicator"
	"motionsense/internal/logging"
	"motionsense/internal/monitor"
	"motionsense/internal/mqttsync"
	"motionsense/internal/notify"
	"motionsense/internal/source"
	"motionsense/internal/store"
	"motionsense/internal/udp"
	"motionsense/internal/web"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runService(ctx, cfg, opts.configPath, opts.verbose)
		},
	}
}

func newSource(cfg config.SourceConfig) (source.Source, error) {
	switch cfg.Kind {
	case config.SourceIMU:
		return source.NewIMU(source.IMUConfig{I2CBus: cfg.IMU.I2CBus, Addr: cfg.IMU.Addr, Interval: cfg.IMU.Interval}), nil
	case config.SourceSerial:
		return source.NewSerial(source.SerialConfig{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud}), nil
	case config.SourceReplay:
		return source.NewReplay(source.ReplayConfig{Path: cfg.Replay.Path, Interval: cfg.Replay.Interval, Loop: cfg.Replay.Loop}), nil
	case config.SourceSim:
		return source.NewSim(source.SimConfig{Interval: cfg.Sim.Interval, Still: cfg.Sim.Still, Moving: cfg.Sim.Moving}), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

func resolveDeviceID(ctx context.Context, cfg config.Config, db *store.DB) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}
	return db.DeviceID(ctx)
}

func newSyncer(cfg config.SyncConfig, db *store.DB, deviceID string) *mqttsync.Syncer {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "motionsense-" + deviceID
	}
	return mqttsync.NewMQTT(
		mqttsync.Config{Topic: cfg.Topic, Batch: cfg.Batch},
		db,
		mqttsync.ClientConfig{Broker: cfg.Broker, ClientID: clientID},
	)
}

type labeler interface {
	SetLabel(label string)
}

// applyReload pushes a reloaded config into the running service. The
// --verbose flag keeps debug logging on regardless of the file.
func applyReload(svc labeler, next config.Config, verbose bool) {
	svc.SetLabel(next.Label)
	logging.SetDebug(next.Debug || verbose)
}

func runService(ctx context.Context, cfg config.Config, configPath string, verbose bool) error {
	log := logging.New("main")

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	deviceID, err := resolveDeviceID(ctx, cfg, db)
	if err != nil {
		return err
	}

	src, err := newSource(cfg.Source)
	if err != nil {
		return err
	}

	hub := notify.NewHub()
	hub.AddObserver(notify.ObserverFuncs{
		Start: func() { log.Info("significant motion started") },
		End:   func() { log.Info("significant motion ended") },
	})
	deps := monitor.Deps{Source: src, Store: db, Hub: hub}

	if cfg.Notify.UDPDest != "" {
		b, err := udp.NewBroadcaster(cfg.Notify.UDPDest)
		if err != nil {
			return fmt.Errorf("udp notify init failed: %w", err)
		}
		defer b.Close()
		deps.UDP = notify.NewUDP(b)
	}

	if cfg.Notify.GPIOPin > 0 {
		ind, err := indicator.Open(cfg.Notify.GPIOPin)
		if err != nil {
			log.WithError(err).Warn("motion indicator unavailable")
		} else {
			deps.Indicator = ind
		}
	}

	if cfg.Sync.Enable {
		syncer := newSyncer(cfg.Sync, db, deviceID)
		deps.Syncer = syncer
		go syncer.Run(ctx, cfg.Sync.Interval)
	}

	svc := monitor.New(monitor.Config{DeviceID: deviceID, Label: cfg.Label, Motion: motionConfig(cfg)}, deps)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.WithError(err).Warn("monitor close failed")
		}
	}()

	go func() {
		err := config.Watch(ctx, configPath,
			func(next config.Config) { applyReload(svc, next, verbose) },
			func(err error) { log.WithError(err).Warn("config reload failed") },
		)
		if err != nil {
			log.WithError(err).Warn("config watch disabled")
		}
	}()

	log.WithFields(logrus.Fields{
		"device_id": deviceID,
		"source":    src.Name(),
		"listen":    cfg.Web.Listen,
		"store":     cfg.Store.Path,
	}).Info("motionsense starting")

	err = web.Serve(ctx, cfg.Web.Listen, web.New(svc, db, hub, logging.SharedBuffer()).Handler())
	log.Info("motionsense stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
