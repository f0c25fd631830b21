package publish

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	log "github.com/sirupsen/logrus"
)

const (
	defaultInfluxTimeout     = 5 * time.Second
	defaultInfluxMeasurement = "temperature"
)

// InfluxOptions configures an InfluxDB v2 sink.
type InfluxOptions struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	Timeout     time.Duration
}

// Influx writes each metric as one point through the blocking write API.
type Influx struct {
	opts InfluxOptions
}

func NewInflux(opts InfluxOptions) (*Influx, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: influxdb url not set", ErrDisabled)
	}
	if opts.Measurement == "" {
		opts.Measurement = defaultInfluxMeasurement
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultInfluxTimeout
	}
	return &Influx{opts: opts}, nil
}

func (p *Influx) Name() string { return "influxdb" }

// Point converts m into the point written to InfluxDB.
func (p *Influx) Point(m Metric) *write.Point {
	return write.NewPoint(
		p.opts.Measurement,
		map[string]string{"metric": m.Name},
		map[string]interface{}{"value": m.Value},
		time.Unix(m.Timestamp, 0),
	)
}

func (p *Influx) Publish(ctx context.Context, m Metric) error {
	// #nosec G115 -- timeout is positive
	client := influxdb2.NewClientWithOptions(
		p.opts.URL,
		p.opts.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(p.opts.Timeout/time.Second)+1).
			SetPrecision(time.Second),
	)
	defer client.Close()

	writeCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	writeAPI := client.WriteAPIBlocking(p.opts.Org, p.opts.Bucket)
	if err := writeAPI.WritePoint(writeCtx, p.Point(m)); err != nil {
		return fmt.Errorf("%w: influxdb %s: %v", ErrSendFailure, p.opts.URL, err)
	}
	log.Debugf("Wrote %s=%f to influxdb bucket %s", m.Name, m.Value, p.opts.Bucket)
	return nil
}
