package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/georgemunganga/warehouse-backend/internal/log"
)

// NATSConfig is the configuration of the NATS publisher.
type NATSConfig struct {
	URL string
	// Prefix is prepended to every subject, "warehouse" by default.
	Prefix string
	Logger log.Logger
}

func (c *NATSConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("nats url is required")
	}
	if c.Prefix == "" {
		c.Prefix = "warehouse"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "events.NATS"})
	return nil
}

// NATSPublisher publishes JSON encoded events on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger log.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the NATS server.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	conn, err := nats.Connect(cfg.URL,
		nats.Name("warehouse-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warningf("disconnected from nats: %s", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("reconnected to nats at %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.WithValues(log.Kv{"url": cfg.URL, "prefix": cfg.Prefix}).Infof("NATS publisher connected")
	return &NATSPublisher{conn: conn, prefix: cfg.Prefix, logger: logger}, nil
}

// Publish marshals payload as JSON and publishes it on <prefix>.<subject>.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject = p.prefix + "." + subject
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debugf("Published event on %s", subject)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
