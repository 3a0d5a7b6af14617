// Presence - router-based device presence for the home network.
//
// The service polls a FRITZ!Box over TR-064 for the hosts it knows, keeps a
// live registry of which devices are connected and fans changes out to MQTT,
// InfluxDB, a SQLite history and a small HTTP/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"

	"github.com/nerrad567/gray-logic-presence/internal/api"
	"github.com/nerrad567/gray-logic-presence/internal/history"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-presence/internal/metrics"
	"github.com/nerrad567/gray-logic-presence/internal/presence"
	"github.com/nerrad567/gray-logic-presence/internal/router"
	"github.com/nerrad567/gray-logic-presence/internal/router/tr064"
	"github.com/nerrad567/gray-logic-presence/internal/timeseries"
	"github.com/nerrad567/gray-logic-presence/internal/tracker"
	"github.com/nerrad567/gray-logic-presence/migrations"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// closer is one component to release on shutdown.
type closer struct {
	name  string
	close func() error
}

// shutdown closes components in reverse start order and combines their errors.
func shutdown(log *logging.Logger, closers []closer) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		log.Info("closing " + c.name)
		if closeErr := c.close(); closeErr != nil {
			log.Error("error closing "+c.name, "error", closeErr)
			err = multierr.Append(err, fmt.Errorf("closing %s: %w", c.name, closeErr))
		}
	}
	return err
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or every startup and shutdown failure combined
func run(ctx context.Context) (err error) {
	log := logging.Default()
	log.Info("starting presence",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"router", cfg.RouterAddress(),
		"level", cfg.Logging.Level,
	)

	var closers []closer
	defer func() {
		err = multierr.Append(err, shutdown(log, closers))
		log.Info("presence stopped")
	}()

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	closers = append(closers, closer{"database", db.Close})

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	historyRepo := history.NewSQLiteRepository(db.DB)
	if retention := cfg.HistoryRetention(); retention > 0 {
		pruned, pruneErr := historyRepo.Prune(ctx, retention)
		if pruneErr != nil {
			log.Warn("pruning presence history failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("pruned presence history", "rows", pruned)
		}
	}
	log.Info("database ready", "path", db.Path())

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		closers = append(closers, closer{"InfluxDB", influxClient.Close})
	}

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		closers = append(closers, closer{"MQTT", mqttClient.Close})
	}

	if healthErr := healthCheck(ctx, db, mqttClient, influxClient); healthErr != nil {
		return fmt.Errorf("health check failed: %w", healthErr)
	}

	m := metrics.New()
	observers := []presence.ScanObserver{m}
	var tsRecorder *timeseries.Recorder
	if influxClient != nil {
		tsRecorder = timeseries.NewRecorder(influxClient)
		observers = append(observers, tsRecorder)
	}

	engine := presence.New(ctx, tr064.Authenticate, routerConfig(cfg), presence.Options{
		Logger:    log,
		Observers: observers,
	})
	status := engine.Status()
	m.SetRouterUp(engine.UniqueID(), status.OK)
	if !status.OK {
		// Keep serving the empty registry; fixing the router needs a restart.
		log.Error("router setup failed, presence tracking disabled",
			"kind", status.Kind,
			"error", status.Err,
		)
	} else {
		log.Info("presence tracking started",
			"unique_id", engine.UniqueID(),
			"model", engine.DeviceInfo().ShortModel(),
			"devices", engine.Devices().Len(),
		)

		attached, attachErr := attachSubscribers(ctx, cfg, engine, historyRepo, tsRecorder, mqttClient, log)
		closers = append(closers, attached...)
		if attachErr != nil {
			return attachErr
		}
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Engine:   engine,
			History:  historyRepo,
			Metrics:  m.Handler(),
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		closers = append(closers, closer{"API server", srv.Close})
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// attachSubscribers wires every consumer of engine signals and starts the
// scheduler. It returns the closers of whatever it attached, even on error.
func attachSubscribers(
	ctx context.Context,
	cfg *config.Config,
	engine *presence.Engine,
	historyRepo history.Repository,
	tsRecorder *timeseries.Recorder,
	mqttClient *mqtt.Client,
	log *logging.Logger,
) ([]closer, error) {
	var closers []closer

	detachHistory := history.NewRecorder(historyRepo, engine, log).Attach(ctx)
	closers = append(closers, closer{"history recorder", func() error { detachHistory(); return nil }})

	if tsRecorder != nil {
		detachTS := tsRecorder.Attach(engine)
		closers = append(closers, closer{"time-series recorder", func() error { detachTS(); return nil }})
	}

	if mqttClient != nil {
		detachTracker, err := tracker.New(mqttClient, engine, log).Attach(ctx)
		if err != nil {
			return closers, fmt.Errorf("attaching MQTT tracker: %w", err)
		}
		closers = append(closers, closer{"MQTT tracker", func() error { detachTracker(); return nil }})
	}

	if cfg.Tracker.Enabled {
		scheduler := presence.NewScheduler(engine, cfg.Tracker.ScanInterval, presence.SchedulerOptions{Logger: log})
		scheduler.Start(ctx)
		closers = append(closers, closer{"scheduler", func() error { scheduler.Stop(); return nil }})
		log.Info("scheduler started", "interval", cfg.Tracker.ScanInterval)
	}

	return closers, nil
}

// getConfigPath returns the configuration file path.
// Uses PRESENCE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PRESENCE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// routerConfig converts the router section into router.Config.
func routerConfig(cfg *config.Config) router.Config {
	return router.Config{
		Host:     cfg.Router.Host,
		Port:     cfg.Router.Port,
		Username: cfg.Router.Username,
		Password: cfg.Router.Password,
		Profiles: cfg.Router.Profiles,
		Timeout:  cfg.Router.Timeout,
	}
}

// connectInflux connects to InfluxDB when enabled. It returns nil, nil when disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// connectMQTT connects to the broker when enabled. It returns nil, nil when disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// healthCheck verifies every enabled infrastructure connection.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
