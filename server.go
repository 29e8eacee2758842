package livetiming

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cj123/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"justapengu.in/livetiming/internal/auth"
	"justapengu.in/livetiming/internal/hub"
	"justapengu.in/livetiming/internal/telemetry"
	"justapengu.in/livetiming/internal/timing"
)

const shutdownTimeout = 5 * time.Second

// Server ties the timing board to its inputs (the HTTP API and UDP telemetry) and its
// outputs (websocket clients and, optionally, NATS).
type Server struct {
	config *Config
	clock  clockwork.Clock
	logger logrus.FieldLogger

	field  *timing.Field
	roster *timing.Roster

	hub       *hub.Hub
	publisher *hub.NATSPublisher
	notifier  timing.Notifier

	adapter       *telemetry.Adapter
	telemetry     *telemetry.Service
	telemetryPort int

	exporter *Exporter

	store    *sessions.CookieStore
	accounts *auth.Accounts
	sessions *auth.Sessions

	startedAt time.Time
}

func NewServer(config *Config, clock clockwork.Clock, logger logrus.FieldLogger) (*Server, error) {
	s := &Server{
		config:    config,
		clock:     clock,
		logger:    logger,
		startedAt: clock.Now(),
	}

	// the hub reads snapshots from the field, and the field notifies the hub, so the
	// notifier is resolved on each message.
	notifier := timing.NotifierFunc(func(message timing.Message) error {
		return s.notifier.Broadcast(message)
	})

	s.field = timing.NewField(notifier, logger)
	s.exporter = NewExporter(config.Export.Dir, clock)
	s.roster = timing.NewRoster(notifier, logger)
	s.hub = hub.New(s.field.Snapshot, hub.DefaultConfig(), logger)

	notifiers := []timing.Notifier{s.hub, metricsNotifier{field: s.field}}

	if config.NATS.URL != "" {
		publisher, err := hub.DialNATS(config.NATS.URL, config.NATS.SubjectPrefix, logger)

		if err != nil {
			return nil, err
		}

		s.publisher = publisher
		notifiers = append(notifiers, publisher)
	}

	s.notifier = timing.MultiNotifier(notifiers...)

	host, port, err := splitTelemetryAddress(config.Telemetry.Address)

	if err != nil {
		return nil, err
	}

	s.adapter = telemetry.NewAdapter(s.field, logger)
	s.telemetry = telemetry.NewService(host, telemetry.F1Decoder{}, s.adapter, logger)
	s.telemetryPort = port

	s.accounts = auth.NewAccounts(bcrypt.DefaultCost, logger)

	if err := s.accounts.Add(config.Admin.Username, config.Admin.Password); err != nil {
		return nil, errors.Wrapf(err, "livetiming: could not add admin %s", config.Admin.Username)
	}

	for _, account := range config.Admin.Accounts {
		if err := s.accounts.Add(account.Username, account.Password); err != nil {
			return nil, errors.Wrapf(err, "livetiming: could not add admin %s", account.Username)
		}
	}

	s.sessions = auth.NewSessions(time.Duration(config.Admin.SessionMaxAge)*time.Second, clock, logger)
	s.store = newSessionStore(config)

	for _, user := range config.Users {
		if _, err := s.roster.Add(user); err != nil {
			return nil, errors.Wrapf(err, "livetiming: could not add user %s", user.Name)
		}
	}

	return s, nil
}

func splitTelemetryAddress(address string) (string, int, error) {
	host, portString, err := net.SplitHostPort(address)

	if err != nil {
		return "", 0, errors.Wrapf(err, "livetiming: invalid telemetry address %s", address)
	}

	port, err := strconv.Atoi(portString)

	if err != nil {
		return "", 0, errors.Wrapf(err, "livetiming: invalid telemetry port in %s", address)
	}

	return host, port, nil
}

// Run serves HTTP, and listens for telemetry unless it is disabled, until ctx is done.
// A telemetry listener failure is logged and does not stop the HTTP server. The
// listener can be stopped and started again through the API while Run serves.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.HTTP.Hostname)

	if err != nil {
		return errors.Wrapf(err, "livetiming: could not listen on %s", s.config.HTTP.Hostname)
	}

	if s.config.HTTP.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.HTTP.MaxConnections)
	}

	httpServer := &http.Server{
		Handler: s.Router(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Infof("HTTP server listening on: %s", listener.Addr())

		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "livetiming: http server stopped")
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		s.logger.Infof("Shutting down")

		s.hub.Close()

		if err := s.telemetry.Stop(); err != nil && !errors.Is(err, telemetry.ErrNotRunning) {
			s.logger.WithError(err).Error("Could not stop telemetry listener")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	if !s.config.Telemetry.Disabled {
		if _, err := s.telemetry.Start(s.telemetryPort); err != nil {
			s.logger.WithError(err).Error("Could not start telemetry listener")
		}
	}

	return g.Wait()
}

func (s *Server) Close() error {
	if err := s.telemetry.Stop(); err != nil && !errors.Is(err, telemetry.ErrNotRunning) {
		return err
	}

	if s.publisher != nil {
		return s.publisher.Close()
	}

	return nil
}

func (s *Server) Field() *timing.Field {
	return s.field
}

func (s *Server) Roster() *timing.Roster {
	return s.roster
}
