// Automation Bridge
//
// This is the main entry point for the automation bridge daemon. It
// connects a serial-attached automation I/O board (relays, PWM outputs,
// digital inputs, ADCs) to MQTT and a local HTTP API, with optional
// SQLite history and InfluxDB metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dwrandle/automation-bridge/internal/api"
	"github.com/dwrandle/automation-bridge/internal/board"
	"github.com/dwrandle/automation-bridge/internal/bridge"
	"github.com/dwrandle/automation-bridge/internal/history"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/config"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/database"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/influxdb"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/logging"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/mqtt"
	"github.com/dwrandle/automation-bridge/internal/service"
	"github.com/dwrandle/automation-bridge/internal/state"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting automation bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open history database (optional)
	var store *history.Store
	if cfg.Database.Enabled {
		db, dbErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		store, err = history.New(db, cfg.Database.RetentionRows, log)
		if err != nil {
			return fmt.Errorf("initialising history store: %w", err)
		}
		log.Info("history store ready",
			"path", cfg.Database.Path,
			"retention_rows", cfg.Database.RetentionRows,
		)
	} else {
		log.Info("history database disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Board link: the poll loop owns connection and reconnection, so a
	// missing board at startup is not fatal.
	link := board.NewLink(board.Config{
		Port:              cfg.Serial.Port,
		Baud:              cfg.Serial.Baud,
		ReadTimeout:       cfg.Serial.GetReadTimeout(),
		CommandTimeout:    cfg.Serial.GetCommandTimeout(),
		ReconnectInterval: cfg.Serial.GetReconnectInterval(),
	}, log.With("component", "board"))

	cache := state.NewCache()

	// MQTT dialler: retried by the service until the broker appears.
	var connectMQTT func() (service.MQTTSession, service.MessageBridge, error)
	if cfg.MQTT.Enabled {
		bridgeLog := log.With("component", "bridge")
		connectMQTT = func() (service.MQTTSession, service.MessageBridge, error) {
			client, mqttErr := mqtt.Connect(cfg.MQTT)
			if mqttErr != nil {
				return nil, nil, mqttErr
			}
			client.SetLogger(log.With("component", "mqtt"))
			client.SetOnConnect(func() {
				log.Info("MQTT reconnected")
			})
			client.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})
			msgBridge := bridge.New(client, link, bridgeLog, byte(cfg.MQTT.QoS))
			if store != nil {
				msgBridge.SetRecorder(store)
			}
			return client, msgBridge, nil
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Orchestrator
	svc := service.New(service.Deps{
		Config:      cfg,
		Logger:      log.With("component", "service"),
		Link:        link,
		Cache:       cache,
		ConnectMQTT: connectMQTT,
		History:     snapshotRecorder(store),
		Metrics:     metricsRecorder(influxClient),
	})
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	defer svc.Stop()

	// HTTP API
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.With("component", "api"),
		Board:   link,
		Cache:   cache,
		History: store,
		Health:  svc,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTOBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTOBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// snapshotRecorder avoids handing the service a non-nil interface
// wrapping a nil *history.Store.
func snapshotRecorder(store *history.Store) service.SnapshotRecorder {
	if store == nil {
		return nil
	}
	return store
}

// metricsRecorder avoids handing the service a non-nil interface
// wrapping a nil *influxdb.Client.
func metricsRecorder(client *influxdb.Client) service.MetricsRecorder {
	if client == nil {
		return nil
	}
	return client
}
