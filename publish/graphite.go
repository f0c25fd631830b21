package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultConnectTimeout bounds the TCP connect to the collector.
	DefaultConnectTimeout = 2 * time.Second
	// DefaultSendTimeout bounds the write of the line.
	DefaultSendTimeout = 2 * time.Second
)

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Graphite sends metrics to a carbon plaintext listener, one connection per
// metric.
type Graphite struct {
	Endpoint       Endpoint
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	Dialer         Dialer
}

// NewGraphite returns a Graphite publisher for ep with the default timeouts.
func NewGraphite(ep Endpoint) *Graphite {
	return &Graphite{
		Endpoint:       ep,
		ConnectTimeout: DefaultConnectTimeout,
		SendTimeout:    DefaultSendTimeout,
		Dialer:         &net.Dialer{},
	}
}

func (g *Graphite) Name() string { return "graphite" }

func (g *Graphite) Publish(ctx context.Context, m Metric) error {
	return g.Send(ctx, g.Endpoint, m)
}

// Send opens a connection to ep, writes m and shuts the write half down
// before closing. A connect that does not finish within ConnectTimeout
// returns ErrConnectTimeout without sending anything.
func (g *Graphite) Send(ctx context.Context, ep Endpoint, m Metric) error {
	connectTimeout := g.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	sendTimeout := g.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	dialer := g.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	log.Debugf("Connecting to %v", ep)
	conn, err := dialer.DialContext(dialCtx, "tcp", ep.String())
	if err != nil {
		if isTimeout(err) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: took over %v to connect to %v", ErrConnectTimeout, connectTimeout, ep)
		}
		return fmt.Errorf("%w: %v: %v", ErrConnectFailed, ep, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return fmt.Errorf("%w: %v: %v", ErrSendFailure, ep, err)
	}
	if _, err := io.WriteString(conn, m.Line()); err != nil {
		return fmt.Errorf("%w: %v: %v", ErrSendFailure, ep, err)
	}

	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			log.Warnf("Failed to shut down write half to %v: %v", ep, err)
		}
	}
	log.Debugf("Sent %q to %v", m.Line(), ep)
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
