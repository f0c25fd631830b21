package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Textfile writes the latest reading for the node_exporter textfile
// collector. The file is replaced atomically on every call.
type Textfile struct {
	Path string
	Unit string
}

func NewTextfile(path, unit string) (*Textfile, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: textfile path not set", ErrDisabled)
	}
	return &Textfile{Path: path, Unit: unit}, nil
}

func (p *Textfile) Name() string { return "textfile" }

func (p *Textfile) Publish(ctx context.Context, m Metric) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	value := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: MetricName(m.Name),
		Help: "Temperature read from the TEMPer sensor.",
	}, []string{"unit"})
	stamp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tempr_last_sample_timestamp_seconds",
		Help: "Unix time of the last temperature sample.",
	})
	for _, c := range []prometheus.Collector{value, stamp} {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("%w: textfile metric %q: %v", ErrSendFailure, m.Name, err)
		}
	}

	value.WithLabelValues(p.Unit).Set(m.Value)
	stamp.Set(float64(m.Timestamp))

	if err := prometheus.WriteToTextfile(p.Path, registry); err != nil {
		return fmt.Errorf("%w: textfile %s: %v", ErrSendFailure, p.Path, err)
	}
	return nil
}

// MetricName maps a dotted Graphite name onto a valid Prometheus name.
func MetricName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "tempr_temperature"
	}
	return b.String()
}
