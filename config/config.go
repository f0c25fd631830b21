// Package config loads tempr settings from an optional YAML file.
//
// Values are applied in order: built-in defaults, the YAML file, then
// environment variables named TEMPR_SECTION_KEY (for example
// TEMPR_GRAPHITE_HOST). Command-line flags are applied by the caller last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Config is the root configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Unit     string         `yaml:"unit"`
	Graphite GraphiteConfig `yaml:"graphite"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Textfile TextfileConfig `yaml:"textfile"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig selects the sensor and bounds each USB transfer.
type DeviceConfig struct {
	VendorID  uint16        `yaml:"vendor_id"`
	ProductID uint16        `yaml:"product_id"`
	Timeout   time.Duration `yaml:"timeout"`
}

// GraphiteConfig is the carbon plaintext destination.
type GraphiteConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Metric         string        `yaml:"metric"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	QoS      int           `yaml:"qos"`
	Retained bool          `yaml:"retained"`
	Timeout  time.Duration `yaml:"timeout"`
}

// InfluxDBConfig contains InfluxDB v2 settings.
type InfluxDBConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Org         string        `yaml:"org"`
	Bucket      string        `yaml:"bucket"`
	Measurement string        `yaml:"measurement"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TextfileConfig points at a node_exporter textfile collector file.
type TextfileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains the logrus level name.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			VendorID:  0x0c45,
			ProductID: 0x7401,
			Timeout:   4 * time.Second,
		},
		Unit: "celsius",
		Graphite: GraphiteConfig{
			Enabled:        true,
			Host:           "localhost",
			Port:           2003,
			Metric:         "local.temp",
			ConnectTimeout: 2 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "tempr",
			Timeout:  5 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Measurement: "temperature",
			Timeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TEMPR_UNIT"); v != "" {
		cfg.Unit = v
	}

	// Graphite
	if v := os.Getenv("TEMPR_GRAPHITE_HOST"); v != "" {
		cfg.Graphite.Host = v
	}
	if v := os.Getenv("TEMPR_GRAPHITE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TEMPR_GRAPHITE_PORT: %v", ErrInvalid, err)
		}
		cfg.Graphite.Port = port
	}
	if v := os.Getenv("TEMPR_GRAPHITE_METRIC"); v != "" {
		cfg.Graphite.Metric = v
	}

	// MQTT
	if v := os.Getenv("TEMPR_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("TEMPR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("TEMPR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TEMPR_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("TEMPR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("TEMPR_TEXTFILE_PATH"); v != "" {
		cfg.Textfile.Path = v
	}
	if v := os.Getenv("TEMPR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for values no sink could work with.
func (c *Config) Validate() error {
	var errs []string

	if _, err := ParseUnit(c.Unit); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Device.Timeout <= 0 {
		errs = append(errs, "device.timeout must be positive")
	}
	if c.Graphite.Metric == "" {
		errs = append(errs, "graphite.metric is required")
	}
	if c.Graphite.Enabled {
		if c.Graphite.Host == "" {
			errs = append(errs, "graphite.host is required")
		}
		if c.Graphite.Port < 1 || c.Graphite.Port > 65535 {
			errs = append(errs, fmt.Sprintf("graphite.port %d out of range", c.Graphite.Port))
		}
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required")
		}
	}
	if c.Textfile.Enabled && c.Textfile.Path == "" {
		errs = append(errs, "textfile.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// ParseUnit accepts "celsius"/"c" and "fahrenheit"/"f", in any case, and
// reports whether the unit is Fahrenheit.
func ParseUnit(s string) (fahrenheit bool, err error) {
	switch strings.ToLower(s) {
	case "", "c", "celsius":
		return false, nil
	case "f", "fahrenheit":
		return true, nil
	}
	return false, fmt.Errorf("unknown unit %q", s)
}
