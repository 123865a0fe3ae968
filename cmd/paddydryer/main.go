// Paddy Dryer Core
//
// This is the main entry point for the facility core that runs on the
// dryer-floor kiosk. It owns:
//   - PIN login, lockout and the single kiosk session
//   - The batch lifecycle for every dryer, with edit history
//   - The HTTP/WebSocket API the kiosk screens talk to
//   - Optional MQTT and InfluxDB telemetry
//
// The core keeps working when MQTT or InfluxDB is down. Only the SQLite
// database is required.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "time/tzdata"

	_ "github.com/nerrad567/paddy-dryer-core/migrations"

	"github.com/nerrad567/paddy-dryer-core/internal/api"
	"github.com/nerrad567/paddy-dryer-core/internal/audit"
	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/batch"
	"github.com/nerrad567/paddy-dryer-core/internal/clock"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/config"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/database"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/logging"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/paddy-dryer-core/internal/kvstore"
	"github.com/nerrad567/paddy-dryer-core/internal/metrics"
	"github.com/nerrad567/paddy-dryer-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupHealthTimeout bounds the health check run once everything is wired.
const startupHealthTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Paddy Dryer Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	clk := clock.System{}

	sessions, perms, monitor, err := buildAuth(cfg, db, clk, log)
	if err != nil {
		return err
	}

	var history *audit.SQLiteRepository
	if cfg.Features.EditHistory {
		history = audit.NewSQLiteRepository(db)
	}
	lifecycle := buildLifecycle(cfg, db, clk, sessions, perms, history)
	lifecycle.SetLogger(log)
	log.Info("batch lifecycle initialised",
		"dryers", cfg.Drying.DryerCount,
		"edit_history", cfg.Features.EditHistory,
		"soft_delete", cfg.Features.SoftDelete,
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, monitor, clk, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	}

	// Telemetry runs on its own goroutine; it drains its queue after the
	// context is cancelled, so shutdown waits for it before closing the
	// clients above.
	var telemetryDone sync.WaitGroup
	if sink := buildTelemetrySink(mqttClient, influxClient); sink != nil {
		sink.SetLogger(log)
		lifecycle.AddSink(sink)

		sinkCtx, stopSink := context.WithCancel(context.Background())
		telemetryDone.Add(1)
		go func() {
			defer telemetryDone.Done()
			sink.Run(sinkCtx)
		}()
		defer func() {
			log.Info("flushing telemetry")
			stopSink()
			telemetryDone.Wait()
		}()
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Sessions: sessions,
		Perms:    perms,
		Monitor:  monitor,
		Batches:  lifecycle,
		DB:       db,
		Version:  version,

		Prometheus: metrics.New(),
	}
	// Leave interface fields untyped nil when a client is absent so the
	// server reports it as disabled.
	if history != nil {
		deps.History = history
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	monitor.Start(ctx)
	defer monitor.Stop()
	log.Info("activity monitor started", "interval", cfg.Auth.CheckIntervalDuration())

	healthCtx, cancelHealth := context.WithTimeout(ctx, startupHealthTimeout)
	err = healthCheck(healthCtx, db, mqttClient, influxClient, log)
	cancelHealth()
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Activity monitor
	// 2. API server
	// 3. Telemetry sink
	// 4. InfluxDB and MQTT (if enabled)
	// 5. Database

	log.Info("Paddy Dryer Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PADDYDRYER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PADDYDRYER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openSessionStore returns the key-value store the session and lockout
// records live in.
func openSessionStore(cfg config.AuthConfig, db *database.DB) (kvstore.Store, error) {
	switch cfg.SessionStore {
	case "memory":
		return kvstore.NewMemoryStore(), nil
	case "sqlite":
		return kvstore.NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

// buildAuth wires the role catalogue, lockout guard, session manager,
// permission model and activity monitor from configuration.
func buildAuth(cfg *config.Config, db *database.DB, clk clock.Clock, log *logging.Logger) (*auth.SessionManager, *auth.PermissionModel, *auth.ActivityMonitor, error) {
	roles, err := auth.NewRoleCatalog(cfg.Auth.Roles)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading roles: %w", err)
	}

	store, err := openSessionStore(cfg.Auth, db)
	if err != nil {
		return nil, nil, nil, err
	}

	guard := auth.NewLockoutGuard(store, clk, auth.LockoutPolicy{
		MaxAttempts:   cfg.Auth.MaxPINAttempts,
		Duration:      cfg.Auth.LockoutDuration(),
		AttemptWindow: cfg.Auth.AttemptWindowDuration(),
	})
	guard.SetLogger(log)

	sessions := auth.NewSessionManager(store, clk, roles, guard, auth.SessionPolicy{
		Timeout:           cfg.Auth.SessionTimeoutDuration(),
		InactivityTimeout: cfg.Auth.InactivityTimeoutDuration(),
	})
	sessions.SetLogger(log)

	perms := auth.NewPermissionModel(sessions, roles)

	monitor := auth.NewActivityMonitor(sessions, auth.TickerScheduler{}, cfg.Auth.CheckIntervalDuration())
	monitor.SetLogger(log)

	log.Info("auth initialised",
		"roles", len(cfg.Auth.Roles),
		"session_store", cfg.Auth.SessionStore,
		"session_timeout", cfg.Auth.SessionTimeoutDuration(),
		"inactivity_timeout", cfg.Auth.InactivityTimeoutDuration(),
	)
	return sessions, perms, monitor, nil
}

// buildLifecycle wires the batch lifecycle. A nil history disables edit
// history.
func buildLifecycle(cfg *config.Config, db *database.DB, clk clock.Clock, sessions *auth.SessionManager, perms *auth.PermissionModel, history *audit.SQLiteRepository) *batch.Lifecycle {
	var recorder batch.HistoryRecorder = batch.DiscardHistory{}
	if history != nil {
		recorder = history
	}

	var deleter batch.Deleter = batch.HardDelete{}
	if cfg.Features.SoftDelete {
		deleter = batch.SoftDelete{}
	}

	return batch.NewLifecycle(batch.Config{
		Store:     batch.NewSQLiteStore(db),
		Validator: batch.NewValidator(batch.BoundsFrom(cfg.Drying), clk),
		Codes:     batch.NewCodeGenerator(cfg.Site.Location()),
		Clock:     clk,
		Access:    perms,
		Activity:  sessions,
		History:   recorder,
		Deleter:   deleter,
	})
}

// connectMQTT connects to the broker, feeds kiosk activity into the
// monitor and announces forced logouts back to the kiosk.
func connectMQTT(cfg *config.Config, monitor *auth.ActivityMonitor, clk clock.Clock, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"terminal_id", cfg.MQTT.TerminalID,
	)

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	topic := mqtt.Topics{}.TerminalActivity(cfg.MQTT.TerminalID)
	//nolint:gosec // QoS is validated to 0..2 by config.Validate
	if subErr := client.Subscribe(topic, byte(cfg.MQTT.QoS), telemetry.ActivityHandler(monitor, cfg.MQTT.TerminalID)); subErr != nil {
		client.Close() //nolint:errcheck // Already failing startup
		return nil, fmt.Errorf("subscribing to %s: %w", topic, subErr)
	}

	monitor.OnForcedLogout(telemetry.ForcedLogoutAnnouncer(client, cfg.MQTT.TerminalID, clk.Now, log))
	return client, nil
}

// buildTelemetrySink returns nil when neither transport is available.
// Each transport is passed as an untyped nil when absent.
func buildTelemetrySink(mqttClient *mqtt.Client, influxClient *influxdb.Client) *telemetry.Sink {
	var pub telemetry.Publisher
	if mqttClient != nil {
		pub = mqttClient
	}
	var metrics telemetry.MetricsWriter
	if influxClient != nil {
		metrics = influxClient
	}
	if pub == nil && metrics == nil {
		return nil
	}
	return telemetry.NewSink(pub, metrics)
}

// healthCheck verifies the infrastructure connections at startup.
//
// The database must be healthy. MQTT and InfluxDB are optional: a failure
// is logged and the core starts degraded.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			log.Warn("MQTT unhealthy, continuing without it", "error", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			log.Warn("InfluxDB unhealthy, continuing without it", "error", err)
		}
	}

	return nil
}
