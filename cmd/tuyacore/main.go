// Tuya Core - Zigbee Datapoint Gateway
//
// This is the main entry point for the Tuya Core application. Tuya Core
// translates vendor-specific Tuya Zigbee datapoints into generic device
// capabilities and manages OTA firmware updates for the attached mesh:
//   - Datapoint decode/encode with runtime inference for unknown devices
//   - Rate-limited outbound command dispatch
//   - Multi-source firmware resolution with local caching
//   - Update orchestration with MQTT progress reporting
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zigmesh/tuya-core/internal/api"
	"github.com/zigmesh/tuya-core/internal/datapoint"
	"github.com/zigmesh/tuya-core/internal/firmware"
	"github.com/zigmesh/tuya-core/internal/infrastructure/config"
	"github.com/zigmesh/tuya-core/internal/infrastructure/database"
	"github.com/zigmesh/tuya-core/internal/infrastructure/logging"
	"github.com/zigmesh/tuya-core/internal/infrastructure/mqtt"
	"github.com/zigmesh/tuya-core/internal/telemetry"
	"github.com/zigmesh/tuya-core/internal/update"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Tuya Core",
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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var telemetryClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		telemetryClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Datapoint mapping and dispatch
	mapperOpts := datapoint.MapperOptions{Logger: log}
	if telemetryClient != nil {
		mapperOpts.Recorder = telemetryClient
	}
	mapper := datapoint.NewMapper(mapperOpts)

	limiter := datapoint.NewLimiter(datapoint.LimiterOptions{
		Quota:      cfg.Datapoint.CommandQuota,
		Window:     cfg.GetQuotaWindow(),
		MinSpacing: cfg.GetMinSpacing(),
	})

	sender, err := datapoint.NewMQTTSender(mqttClient)
	if err != nil {
		return fmt.Errorf("creating datapoint sender: %w", err)
	}
	dispatcher := datapoint.NewDispatcher(datapoint.DispatcherOptions{
		Mapper:  mapper,
		Limiter: limiter,
		Sender:  sender,
		Logger:  log,
	})

	stream, err := datapoint.NewStream(datapoint.StreamOptions{
		Broker:     mqttClient,
		Mapper:     mapper,
		Dispatcher: dispatcher,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating datapoint stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting datapoint stream: %w", err)
	}
	defer func() {
		log.Info("stopping datapoint stream")
		if closeErr := stream.Close(); closeErr != nil {
			log.Error("error closing datapoint stream", "error", closeErr)
		}
	}()
	log.Info("datapoint stream started",
		"command_quota", cfg.Datapoint.CommandQuota,
		"quota_window", cfg.GetQuotaWindow(),
	)

	// Firmware repository
	sources := make([]firmware.Source, 0, len(cfg.Firmware.Sources))
	for _, src := range cfg.Firmware.Sources {
		sources = append(sources, firmware.Source{Name: src.Name, URL: src.URL})
	}
	firmwareRepo := firmware.NewRepository(firmware.RepositoryOptions{
		Sources:     sources,
		Fetcher:     firmware.NewHTTPFetcher(cfg.GetFetchTimeout()),
		ManifestTTL: cfg.GetManifestTTL(),
		ImageTTL:    cfg.GetImageTTL(),
		Logger:      log,
	})
	log.Info("firmware repository initialised", "sources", len(sources))

	// Update orchestration
	transport, err := update.NewBridgeTransport(update.BridgeTransportOptions{
		Client: mqttClient,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge transport: %w", err)
	}

	var archiver update.Archiver
	if cfg.Update.Archive {
		archiver = update.NewSQLiteArchiver(db.DB)
		log.Info("update archive enabled")
	}

	orchestratorOpts := update.OrchestratorOptions{
		Source:      firmwareRepo,
		Transport:   transport,
		HistorySize: cfg.Update.HistorySize,
		Archiver:    archiver,
		Publisher:   update.NewMQTTPublisher(mqttClient),
		Logger:      log,
	}
	if telemetryClient != nil {
		orchestratorOpts.Recorder = telemetryClient
	}
	orchestrator := update.NewOrchestrator(orchestratorOpts)
	log.Info("update orchestrator initialised", "history_size", cfg.Update.HistorySize)

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:       cfg.API,
		Logger:       log,
		Mapper:       mapper,
		Orchestrator: orchestrator,
		Firmware:     firmwareRepo,
		Archiver:     archiver,
		MQTT:         mqttClient,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, telemetryClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"gateway_id", cfg.Gateway.ID,
	)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Datapoint stream
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Tuya Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TUYACORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TUYACORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - telemetryClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
