package publish

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMQTTTimeout = 5 * time.Second
	topicPrefix        = "tempr/"
	maxQoS             = 2
)

// MQTTOptions configures an MQTT sink.
type MQTTOptions struct {
	// Broker is a paho broker URL, e.g. "tcp://localhost:1883".
	Broker   string
	ClientID string
	// Topic defaults to "tempr/" followed by the metric name with dots
	// turned into slashes.
	Topic    string
	Username string
	Password string
	QoS      byte
	Retained bool
	Timeout  time.Duration
}

// MQTT publishes the reading as a plain decimal payload. It connects and
// disconnects on every call.
type MQTT struct {
	opts MQTTOptions
}

func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("%w: mqtt broker not set", ErrDisabled)
	}
	if opts.QoS > maxQoS {
		return nil, fmt.Errorf("mqtt: invalid QoS %d (must be 0, 1, or 2)", opts.QoS)
	}
	if opts.ClientID == "" {
		opts.ClientID = "tempr"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultMQTTTimeout
	}
	return &MQTT{opts: opts}, nil
}

func (p *MQTT) Name() string { return "mqtt" }

// TopicFor returns the topic a metric is published on.
func (p *MQTT) TopicFor(m Metric) string {
	if p.opts.Topic != "" {
		return p.opts.Topic
	}
	return topicPrefix + strings.ReplaceAll(m.Name, ".", "/")
}

// Payload renders the value the way the Graphite line does.
func Payload(m Metric) []byte {
	return []byte(strconv.FormatFloat(m.Value, 'f', 6, 64))
}

func (p *MQTT) Publish(ctx context.Context, m Metric) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(p.opts.Broker).
		SetClientID(p.opts.ClientID).
		SetConnectTimeout(p.opts.Timeout).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	if p.opts.Username != "" {
		opts.SetUsername(p.opts.Username)
		opts.SetPassword(p.opts.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !waitToken(ctx, token, p.opts.Timeout) {
		// Stops the connect attempt still running in the background.
		client.Disconnect(0)
		return fmt.Errorf("%w: mqtt %s: after %v", ErrConnectTimeout, p.opts.Broker, p.opts.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt %s: %v", ErrConnectFailed, p.opts.Broker, err)
	}
	defer client.Disconnect(250)

	topic := p.TopicFor(m)
	token = client.Publish(topic, p.opts.QoS, p.opts.Retained, Payload(m))
	if !waitToken(ctx, token, p.opts.Timeout) {
		return fmt.Errorf("%w: mqtt publish to %s timed out", ErrSendFailure, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt publish to %s: %v", ErrSendFailure, topic, err)
	}
	log.Debugf("Published %s to mqtt topic %s", Payload(m), topic)
	return nil
}

// waitToken waits for t to complete, for at most timeout or until ctx is done.
func waitToken(ctx context.Context, t pahomqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
