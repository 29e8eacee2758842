package hub

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"justapengu.in/livetiming/internal/timing"
)

// NATSPublisher mirrors timing messages onto a NATS subject per message type and action,
// e.g. livetiming.laptime.updated.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger Logger
}

func DialNATS(url, prefix string, logger Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("livetiming"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)

	if err != nil {
		return nil, errors.Wrapf(err, "hub: could not connect to nats at %s", url)
	}

	logger.Infof("Publishing timing messages to NATS at %s under %s", conn.ConnectedUrl(), prefix)

	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (p *NATSPublisher) Broadcast(message timing.Message) error {
	data, err := json.Marshal(message)

	if err != nil {
		return errors.Wrap(err, "hub: could not marshal message for nats")
	}

	subject := Subject(p.prefix, message)

	return errors.Wrapf(p.conn.Publish(subject, data), "hub: could not publish to %s", subject)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

func Subject(prefix string, message timing.Message) string {
	if prefix == "" {
		return message.Type + "." + message.Action
	}

	return prefix + "." + message.Type + "." + message.Action
}
