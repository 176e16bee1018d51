// fieldsim runs a simulated IoT field site against a hierarchical resource
// broker.
//
// The simulator side registers an application, creates one subtree per
// sensor and actuator and pushes randomised readings. The monitor side
// discovers those containers, subscribes to measurements and commands
// actuators when a reading crosses a rule threshold.
//
// Both sides run in one process by default over an in-memory broker, or
// separately over MQTT (optionally with an embedded broker).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/fieldsim/internal/app"
	"github.com/nerrad567/fieldsim/internal/archive"
	"github.com/nerrad567/fieldsim/internal/broker/memory"
	"github.com/nerrad567/fieldsim/internal/broker/mqttbroker"
	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim/internal/infrastructure/database"
	"github.com/nerrad567/fieldsim/internal/infrastructure/influxdb"
	"github.com/nerrad567/fieldsim/internal/infrastructure/logging"
	"github.com/nerrad567/fieldsim/internal/infrastructure/mqtt"
	"github.com/nerrad567/fieldsim/internal/infrastructure/mqttserver"
	"github.com/nerrad567/fieldsim/internal/resource"
	"github.com/nerrad567/fieldsim/internal/schedule"
	"github.com/nerrad567/fieldsim/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting fieldsim",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"transport", cfg.Broker.Transport,
	)

	var server *mqttserver.Server
	if cfg.Broker.Transport == config.TransportMQTT && cfg.MQTT.Embedded.Enabled {
		server, err = mqttserver.Start(cfg.MQTT.Embedded, log.Logger)
		if err != nil {
			return fmt.Errorf("starting embedded MQTT broker: %w", err)
		}
		defer func() {
			log.Info("stopping embedded MQTT broker")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping embedded MQTT broker", "error", closeErr)
			}
		}()
		log.Info("embedded MQTT broker listening", "address", server.Address())
	}

	// Open the archive (optional)
	var db *database.DB
	var repo *archive.SQLiteRepository
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		repo = archive.NewSQLiteRepository(db.DB)
		log.Info("archive ready", "path", cfg.Database.Path)
	} else {
		log.Info("archive disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection", "write_errors", influxClient.WriteErrors())
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	conns, err := connectBrokers(cfg, log)
	defer conns.close(log)
	if err != nil {
		return err
	}

	if err := healthCheck(ctx, db, server, conns.mqttClients(), influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	g, _ := schedule.NewGroup(ctx, log)

	if conns.simulator != nil {
		sim, err := app.NewSimulator(cfg, conns.simulator.broker, log)
		if err != nil {
			return fmt.Errorf("creating simulator: %w", err)
		}
		if repo != nil {
			sim.SetSampleArchive(repo)
			sim.SetCommandLog(repo)
		}
		if influxClient != nil {
			sim.AddRecorder(influxClient)
		}
		g.Go("simulator", sim.Run)
	}
	if conns.monitor != nil {
		mon, err := app.NewMonitor(cfg, conns.monitor.broker, log)
		if err != nil {
			return fmt.Errorf("creating monitor: %w", err)
		}
		g.Go("monitor", mon.Run)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	runErr := g.Wait()

	log.Info("shutdown signal received, cleaning up")
	if influxClient != nil {
		influxClient.Flush()
	}

	// Deferred Close() calls run in reverse order:
	// 1. Broker connections
	// 2. InfluxDB (if enabled)
	// 3. Database (if enabled)
	// 4. Embedded MQTT broker (if enabled)

	if runErr != nil {
		return runErr
	}
	log.Info("fieldsim stopped")
	return nil
}

// endpoint is one application's broker connection.
type endpoint struct {
	broker resource.Broker

	// client is the underlying MQTT connection, nil for the memory transport.
	client *mqtt.Client
}

// connections holds the broker endpoints of the enabled applications.
type connections struct {
	simulator *endpoint
	monitor   *endpoint
}

func (c connections) endpoints() []*endpoint {
	var eps []*endpoint
	for _, ep := range []*endpoint{c.simulator, c.monitor} {
		if ep != nil {
			eps = append(eps, ep)
		}
	}
	return eps
}

func (c connections) mqttClients() []*mqtt.Client {
	var clients []*mqtt.Client
	for _, ep := range c.endpoints() {
		if ep.client != nil {
			clients = append(clients, ep.client)
		}
	}
	return clients
}

func (c connections) close(log *logging.Logger) {
	for _, ep := range c.endpoints() {
		if err := ep.broker.Close(); err != nil {
			log.Error("error closing broker connection", "error", err)
		}
		if ep.client != nil {
			log.Info("disconnecting from MQTT", "client_id", ep.client.ClientID())
			if err := ep.client.Close(); err != nil {
				log.Error("error closing MQTT", "error", err)
			}
		}
	}
}

// connectBrokers opens one broker connection per enabled application.
//
// With the memory transport both applications share one hub. With MQTT
// each gets its own client, with the application name appended to the
// configured client ID. The returned connections are valid to close even
// when an error is returned.
func connectBrokers(cfg *config.Config, log *logging.Logger) (connections, error) {
	var conns connections

	if cfg.Broker.Transport == config.TransportMemory {
		hub := memory.NewHub(cfg.Broker.NotificationBuffer, cfg.Broker.CSEBase)
		hub.SetLogger(log.Component("broker"))
		if cfg.Simulator.Enabled {
			conns.simulator = &endpoint{broker: hub.Connect(cfg.Simulator.AppName)}
		}
		if cfg.Monitor.Enabled {
			conns.monitor = &endpoint{broker: hub.Connect(cfg.Monitor.AppName)}
		}
		log.Info("in-memory broker ready", "cse_base", cfg.Broker.CSEBase)
		return conns, nil
	}

	var err error
	if cfg.Simulator.Enabled {
		if conns.simulator, err = connectMQTT(cfg, cfg.Simulator.AppName, log); err != nil {
			return conns, err
		}
	}
	if cfg.Monitor.Enabled {
		if conns.monitor, err = connectMQTT(cfg, cfg.Monitor.AppName, log); err != nil {
			return conns, err
		}
	}
	return conns, nil
}

// connectMQTT connects one application's MQTT client and wraps it in a
// resource broker.
func connectMQTT(cfg *config.Config, appName string, log *logging.Logger) (*endpoint, error) {
	mqttCfg := cfg.MQTT
	mqttCfg.Broker.ClientID = fmt.Sprintf("%s-%s", cfg.MQTT.Broker.ClientID, appName)

	client, err := mqtt.Connect(mqttCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting %s to MQTT: %w", appName, err)
	}
	client.SetLogger(log.Component("mqtt").With("client_id", mqttCfg.Broker.ClientID))
	client.SetOnConnect(func() {
		log.Info("MQTT connection up", "client_id", mqttCfg.Broker.ClientID)
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "client_id", mqttCfg.Broker.ClientID, "error", err)
	})

	b, err := mqttbroker.New(client, mqttbroker.Options{
		Bases:              []string{cfg.Broker.CSEBase},
		NotificationBuffer: cfg.Broker.NotificationBuffer,
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating %s broker: %w", appName, err)
	}
	b.SetLogger(log.Component("broker").With("app", appName))

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttCfg.Broker.ClientID,
	)
	return &endpoint{broker: b, client: client}, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Archive database (nil if disabled)
//   - server: Embedded MQTT broker (nil if not running)
//   - clients: MQTT clients (empty for the memory transport)
//   - influxClient: InfluxDB client (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, server *mqttserver.Server, clients []*mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if server != nil {
		if err := server.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqttserver: %w", err)
		}
	}

	for _, c := range clients {
		if err := c.HealthCheck(ctx); err != nil {
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
