// Package publish delivers temperature readings to metric collectors.
//
// The Graphite plaintext protocol is the primary transport. MQTT, InfluxDB
// and Prometheus textfile sinks share the same Publisher interface so a
// caller can fan a reading out to any combination of them.
package publish

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Metric is one line-protocol sample. Timestamp is Unix seconds.
type Metric struct {
	Name      string
	Value     float64
	Timestamp int64
}

// NewMetric stamps value with the current wall-clock time.
func NewMetric(name string, value float64) Metric {
	return Metric{Name: name, Value: value, Timestamp: time.Now().Unix()}
}

// Line renders m in the Graphite plaintext format.
func (m Metric) Line() string {
	return fmt.Sprintf("%s %f %d\n", m.Name, m.Value, m.Timestamp)
}

// Endpoint is a host and TCP port.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// Publisher delivers one metric per call. Implementations hold no
// connection between calls.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, m Metric) error
}
