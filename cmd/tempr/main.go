package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ruudud/tempr"
	"github.com/ruudud/tempr/config"
	"github.com/ruudud/tempr/publish"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitDelivery = 2
)

type options struct {
	noSend     bool
	fahrenheit bool
	host       string
	port       int
	metric     string
	configPath string
	logLevel   string
}

// openBus returns the USB host-access layer and its cleanup.
var openBus = func() (tempr.Enumerator, func()) {
	usb := tempr.NewUSB()
	return usb, func() {
		if err := usb.Close(); err != nil {
			log.Warnf("Failed to close libusb context: %v", err)
		}
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	var opts options
	flagSet := pflag.NewFlagSet("tempr", pflag.ContinueOnError)
	flagSet.BoolVar(&opts.noSend, "no-send", false, "do not send reading to graphite server")
	flagSet.BoolVar(&opts.fahrenheit, "fahrenheit", false, "output temperature in fahrenheit")
	flagSet.StringVar(&opts.host, "host", "localhost", "address of graphite server")
	flagSet.IntVar(&opts.port, "port", 2003, "port of graphite server")
	flagSet.StringVar(&opts.metric, "metric", "local.temp", "graphite metric name")
	flagSet.StringVar(&opts.configPath, "config", "", "path to YAML configuration file")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}

	cfg, err := loadConfig(flagSet, &opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	setupLogging(cfg.Logging.Level)

	bus, closeBus := openBus()
	defer closeBus()

	reading, err := sample(bus, cfg)
	if err != nil {
		log.Errorf("Failed to get temperature: %v", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Temperature reading: %v\n", reading)

	if opts.noSend {
		return exitOK
	}
	sinks, err := buildSinks(cfg, reading.Unit)
	if err != nil {
		log.Errorf("Failed to set up delivery: %v", err)
		return exitFailure
	}
	if len(sinks) == 0 {
		return exitOK
	}
	if cfg.Graphite.Enabled {
		fmt.Fprintf(stdout, "Sending to Graphite on %s:%d...\n", cfg.Graphite.Host, cfg.Graphite.Port)
	}

	m := publish.NewMetric(cfg.Graphite.Metric, reading.Value())
	results := publish.Fanout(sinks).Publish(context.Background(), m)
	if err := publish.Err(results); err != nil {
		return exitDelivery
	}
	fmt.Fprintln(stdout, "Data sent successfully.")
	return exitOK
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(flagSet *pflag.FlagSet, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if flagSet.Changed("fahrenheit") && opts.fahrenheit {
		cfg.Unit = "fahrenheit"
	}
	if flagSet.Changed("host") {
		cfg.Graphite.Host = opts.host
	}
	if flagSet.Changed("port") {
		cfg.Graphite.Port = opts.port
	}
	if flagSet.Changed("metric") {
		cfg.Graphite.Metric = opts.metric
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func sample(enum tempr.Enumerator, cfg *config.Config) (tempr.Reading, error) {
	session := tempr.NewSession(enum)
	session.Identity = tempr.DeviceIdentity{VendorID: cfg.Device.VendorID, ProductID: cfg.Device.ProductID}
	session.Timeout = cfg.Device.Timeout

	unit := tempr.Celsius
	if f, _ := config.ParseUnit(cfg.Unit); f {
		unit = tempr.Fahrenheit
	}
	return tempr.NewSampler(session).Read(unit)
}

func buildSinks(cfg *config.Config, unit tempr.Unit) ([]publish.Publisher, error) {
	var sinks []publish.Publisher

	if cfg.Graphite.Enabled {
		g := publish.NewGraphite(publish.Endpoint{Host: cfg.Graphite.Host, Port: uint16(cfg.Graphite.Port)})
		g.ConnectTimeout = cfg.Graphite.ConnectTimeout
		sinks = append(sinks, g)
	}
	if cfg.MQTT.Enabled {
		m, err := publish.NewMQTT(publish.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
			Retained: cfg.MQTT.Retained,
			Timeout:  cfg.MQTT.Timeout,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	if cfg.InfluxDB.Enabled {
		i, err := publish.NewInflux(publish.InfluxOptions{
			URL:         cfg.InfluxDB.URL,
			Token:       cfg.InfluxDB.Token,
			Org:         cfg.InfluxDB.Org,
			Bucket:      cfg.InfluxDB.Bucket,
			Measurement: cfg.InfluxDB.Measurement,
			Timeout:     cfg.InfluxDB.Timeout,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, i)
	}
	if cfg.Textfile.Enabled {
		tf, err := publish.NewTextfile(cfg.Textfile.Path, unit.String())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tf)
	}
	return sinks, nil
}
