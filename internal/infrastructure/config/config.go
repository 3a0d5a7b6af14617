package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors configs/config.yaml. See Load for how values are layered.
type Config struct {
	Router    RouterConfig    `yaml:"router"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// RouterConfig contains the connection settings for the polled router.
type RouterConfig struct {
	// Host is the router's address on the LAN.
	// Default: "192.168.178.1"
	Host string `yaml:"host"`

	// Port is the TR-064 port. Default: 49000
	Port int `yaml:"port"`

	// Username and Password authenticate against the router.
	// An empty username is valid for routers that only use a password.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Profiles lists parental-control profile names that must exist on the router.
	// Only validated by router clients that support profiles.
	Profiles []string `yaml:"profiles"`

	// Timeout bounds every request to the router. Some calls are slow.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`
}

// TrackerConfig contains presence scanning settings.
type TrackerConfig struct {
	Enabled bool `yaml:"enabled"`

	// ScanInterval is the time between two host scans.
	// Default: 30s
	ScanInterval time.Duration `yaml:"scan_interval"`
}

// DatabaseConfig is the SQLite history store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays bounds how long presence transitions are kept.
	// Zero keeps them forever. Default: 90
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig enables publishing device state to a broker.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig locates the broker; TLS switches to ssl://.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig is optional; an empty username connects anonymously.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig is the REST and WebSocket listener.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig is in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists browser origins allowed to call the API. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig tunes the event stream. Intervals are in seconds.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig enables time series export. FlushInterval is in seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects level, format (json or text) and output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig guards the API.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT validation settings.
// An empty secret leaves the read-only API open, which suits a trusted LAN.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load builds the configuration in three layers: Default, then the YAML
// file at path, then PRESENCE_* environment variables (for example
// PRESENCE_ROUTER_PASSWORD). The result is validated before it is returned.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults for a FRITZ!Box on its factory address.
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			Host:    "192.168.178.1",
			Port:    49000,
			Timeout: 60 * time.Second,
		},
		Tracker: TrackerConfig{
			Enabled:      true,
			ScanInterval: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:                 "./data/presence.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "presence-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnv overlays the secrets and addresses most often set per deployment.
// Empty variables are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		name   string
		target *string
	}{
		{"PRESENCE_ROUTER_HOST", &c.Router.Host},
		{"PRESENCE_ROUTER_USERNAME", &c.Router.Username},
		{"PRESENCE_ROUTER_PASSWORD", &c.Router.Password},
		{"PRESENCE_DATABASE_PATH", &c.Database.Path},
		{"PRESENCE_MQTT_HOST", &c.MQTT.Broker.Host},
		{"PRESENCE_MQTT_USERNAME", &c.MQTT.Auth.Username},
		{"PRESENCE_MQTT_PASSWORD", &c.MQTT.Auth.Password},
		{"PRESENCE_INFLUXDB_TOKEN", &c.InfluxDB.Token},
		{"PRESENCE_JWT_SECRET", &c.Security.JWT.Secret},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.name); ok && v != "" {
			*o.target = v
		}
	}
}

const (
	minScanInterval    = time.Second
	minJWTSecretLength = 32
)

// Validate reports every problem at once, joined into one error, so a
// single run shows everything that needs fixing.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	validPort := func(p int) bool { return p >= 1 && p <= 65535 }

	check(c.Router.Host != "", "router.host is required")
	check(validPort(c.Router.Port), "router.port must be between 1 and 65535")
	check(c.Router.Timeout > 0, "router.timeout must be positive")
	for i, p := range c.Router.Profiles {
		check(strings.TrimSpace(p) != "", "router.profiles[%d] must not be empty", i)
	}

	check(!c.Tracker.Enabled || c.Tracker.ScanInterval >= minScanInterval,
		"tracker.scan_interval must be at least %v", minScanInterval)

	check(c.Database.Path != "", "database.path is required")
	check(c.Database.HistoryRetentionDays >= 0, "database.history_retention_days must not be negative")

	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2")
	check(!c.MQTT.Enabled || c.MQTT.Broker.Host != "", "mqtt.broker.host is required when mqtt is enabled")

	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")

	check(!c.API.Enabled || validPort(c.API.Port), "api.port must be between 1 and 65535")

	secret := c.Security.JWT.Secret
	check(secret == "" || len(secret) >= minJWTSecretLength,
		"security.jwt.secret must be at least %d characters", minJWTSecretLength)

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RouterAddress is the router's host:port, for logs.
func (c *Config) RouterAddress() string {
	return net.JoinHostPort(c.Router.Host, strconv.Itoa(c.Router.Port))
}

// HistoryRetention is database.history_retention_days as a Duration.
// Zero means keep forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetentionDays) * 24 * time.Hour
}

// ReadTimeout, WriteTimeout and IdleTimeout convert the api.timeouts
// seconds for http.Server.
func (a APIConfig) ReadTimeout() time.Duration  { return time.Duration(a.Timeouts.Read) * time.Second }
func (a APIConfig) WriteTimeout() time.Duration { return time.Duration(a.Timeouts.Write) * time.Second }
func (a APIConfig) IdleTimeout() time.Duration  { return time.Duration(a.Timeouts.Idle) * time.Second }
