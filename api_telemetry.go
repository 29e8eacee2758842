package livetiming

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/telemetry"
)

const (
	minTelemetryPort = 1024
	maxTelemetryPort = 65535
)

type telemetryStartResponse struct {
	Message string `json:"message"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// startTelemetry starts the listener on ?port=, or on the configured port.
func (s *Server) startTelemetry(w http.ResponseWriter, r *http.Request) {
	port := s.telemetryPort

	if value := r.URL.Query().Get("port"); value != "" {
		p, err := strconv.Atoi(value)

		if err != nil || p < minTelemetryPort || p > maxTelemetryPort {
			writeError(w, http.StatusUnprocessableEntity, []validationError{{
				Loc:  []string{"query", "port"},
				Msg:  fmt.Sprintf("Port must be a number between %d and %d", minTelemetryPort, maxTelemetryPort),
				Type: "value_error",
			}})
			return
		}

		port = p
	}

	addr, err := s.telemetry.Start(port)

	if errors.Is(err, telemetry.ErrAlreadyRunning) {
		status := s.telemetry.Status()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Telemetry listener is already running on host %s, port %d", status.Host, status.Port))
		return
	} else if err != nil {
		logrus.WithError(err).Error("Could not start telemetry listener")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start telemetry listener: %s", err))
		return
	}

	status := s.telemetry.Status()

	writeJSON(w, http.StatusOK, telemetryStartResponse{
		Message: fmt.Sprintf("UDP telemetry listener started on host %s, port %d", status.Host, addr.Port),
		Host:    status.Host,
		Port:    addr.Port,
	})
}

func (s *Server) stopTelemetry(w http.ResponseWriter, r *http.Request) {
	if err := s.telemetry.Stop(); errors.Is(err, telemetry.ErrNotRunning) {
		writeError(w, http.StatusBadRequest, "Telemetry listener is not running.")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to stop telemetry listener: %s", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "UDP telemetry listener stopped."})
}

func (s *Server) telemetryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.telemetry.Status())
}

func (s *Server) telemetryLiveData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.telemetry.LiveData())
}
