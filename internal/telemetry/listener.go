package telemetry

import (
	"context"
	"net"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	maxPacketSize = 2048
	readTimeout   = time.Second
)

var (
	packetsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livetiming",
		Subsystem: "telemetry",
		Name:      "packets_received_total",
		Help:      "UDP telemetry packets received.",
	})

	packetsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetiming",
		Subsystem: "telemetry",
		Name:      "packets_handled_total",
		Help:      "Telemetry packets decoded and passed on, by packet id.",
	}, []string{"packet_id"})

	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livetiming",
		Subsystem: "telemetry",
		Name:      "decode_errors_total",
		Help:      "Telemetry packets dropped because they could not be decoded.",
	})
)

type Handler interface {
	Handle(message Message)
}

// Listener receives telemetry from the game over UDP.
type Listener struct {
	address string
	decoder Decoder
	handler Handler
	logger  Logger

	packetConn net.PacketConn
}

func NewListener(address string, decoder Decoder, handler Handler, logger Logger) *Listener {
	return &Listener{
		address: address,
		decoder: decoder,
		handler: handler,
		logger:  logger,
	}
}

// Bind opens the UDP socket. It is called by Listen if needed.
func (l *Listener) Bind() (net.Addr, error) {
	if l.packetConn != nil {
		return l.packetConn.LocalAddr(), nil
	}

	packetConn, err := net.ListenPacket("udp", l.address)

	if err != nil {
		return nil, errors.Wrapf(err, "telemetry: could not listen on %s", l.address)
	}

	l.packetConn = packetConn

	return packetConn.LocalAddr(), nil
}

// Listen reads packets until ctx is done. ctx is checked between reads, each of which
// gives up after readTimeout, so shutdown takes up to that long.
func (l *Listener) Listen(ctx context.Context) error {
	addr, err := l.Bind()

	if err != nil {
		return err
	}

	defer l.packetConn.Close()

	l.logger.Infof("Telemetry listener listening on: %s", addr)

	buf := make([]byte, maxPacketSize)

	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("Closing telemetry listener")
			return nil
		default:
		}

		_ = l.packetConn.SetReadDeadline(time.Now().Add(readTimeout))

		n, _, err := l.packetConn.ReadFrom(buf)

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			if ctx.Err() != nil {
				return nil
			}

			return errors.Wrap(err, "telemetry: could not read from udp socket")
		}

		l.handlePacket(buf[:n])
	}
}

func (l *Listener) handlePacket(b []byte) {
	packetsReceived.Inc()

	message, err := l.decoder.Decode(b)

	if errors.Is(err, ErrUnknownPacket) {
		return
	} else if err != nil {
		decodeErrors.Inc()
		l.logger.WithError(err).Warnf("Could not decode telemetry packet (%d bytes), dropping it", len(b))
		l.logger.Debugf("Dropped packet:\n%s", spew.Sdump(b))
		return
	}

	packetsHandled.WithLabelValues(packetIDLabel(message.PacketID())).Inc()

	l.handler.Handle(message)
}

func packetIDLabel(id PacketID) string {
	switch id {
	case PacketIDParticipants:
		return "participants"
	case PacketIDLapData:
		return "lap_data"
	default:
		return "other"
	}
}
