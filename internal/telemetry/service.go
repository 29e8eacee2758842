package telemetry

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New("telemetry: listener is already running")
	ErrNotRunning     = errors.New("telemetry: listener is not running")
)

// Status describes the listener. Host and Port are only set while it runs.
type Status struct {
	Running       bool   `json:"running"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	ActiveDrivers int    `json:"active_drivers"`
	Error         string `json:"error,omitempty"`
}

// Service starts and stops the telemetry Listener on demand. Each run gets its own
// context, which Stop cancels.
type Service struct {
	host    string
	decoder Decoder
	adapter *Adapter
	logger  Logger

	port    int
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error

	mutex sync.Mutex
}

func NewService(host string, decoder Decoder, adapter *Adapter, logger Logger) *Service {
	return &Service{
		host:    host,
		decoder: decoder,
		adapter: adapter,
		logger:  logger,
	}
}

// Start binds the UDP socket on port and listens in the background until Stop is
// called. Port 0 picks a free port. The bound address is returned.
func (s *Service) Start(port int) (*net.UDPAddr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.done != nil {
		return nil, errors.Wrapf(ErrAlreadyRunning, "host %s, port %d", s.host, s.port)
	}

	listener := NewListener(net.JoinHostPort(s.host, strconv.Itoa(port)), s.decoder, s.adapter, s.logger)

	addr, err := listener.Bind()

	if err != nil {
		s.lastErr = err
		return nil, err
	}

	udpAddr, ok := addr.(*net.UDPAddr)

	if !ok {
		return nil, errors.Errorf("telemetry: unexpected address type %T", addr)
	}

	s.adapter.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.port = udpAddr.Port
	s.cancel = cancel
	s.done = done
	s.lastErr = nil

	go func() {
		defer close(done)
		defer cancel()

		err := listener.Listen(ctx)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		if err != nil {
			s.logger.WithError(err).Error("Telemetry listener stopped")
			s.lastErr = err
		}

		// Stop has already cleared the state if it is what ended this run.
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
	}()

	return udpAddr, nil
}

// Stop cancels the running listener and waits for it to close its socket.
func (s *Service) Stop() error {
	s.mutex.Lock()

	if s.done == nil {
		s.mutex.Unlock()
		return ErrNotRunning
	}

	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil

	s.mutex.Unlock()

	cancel()
	<-done

	return nil
}

func (s *Service) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.done != nil
}

func (s *Service) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := Status{
		Running: s.done != nil,
	}

	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}

	if status.Running {
		status.Host = s.host
		status.Port = s.port
		status.ActiveDrivers = s.adapter.ActiveCars()
	}

	return status
}

// LiveData is the latest per-car data the game has sent.
type LiveData struct {
	Running       bool         `json:"is_running"`
	ActiveDrivers int          `json:"active_drivers"`
	Drivers       []LiveDriver `json:"drivers"`
	Error         string       `json:"error,omitempty"`
}

func (s *Service) LiveData() LiveData {
	status := s.Status()

	data := LiveData{
		Running:       status.Running,
		ActiveDrivers: status.ActiveDrivers,
		Drivers:       []LiveDriver{},
		Error:         status.Error,
	}

	if status.Running {
		data.Drivers = s.adapter.Live()
	}

	return data
}
