package livetiming

import (
	"net/http"

	"github.com/hako/durafmt"
)

type statusResponse struct {
	Track            string `json:"track"`
	NumDrivers       int    `json:"num_drivers"`
	NumUsers         int    `json:"num_users"`
	ConnectedClients int    `json:"connected_clients"`
	TelemetryRunning bool   `json:"telemetry_running"`
	Uptime           string `json:"uptime"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) status() statusResponse {
	uptime := s.clock.Since(s.startedAt)

	return statusResponse{
		Track:            s.field.Track(),
		NumDrivers:       s.field.Len(),
		NumUsers:         len(s.roster.All()),
		ConnectedClients: s.hub.NumClients(),
		TelemetryRunning: s.telemetry.Running(),
		Uptime:           durafmt.Parse(uptime).LimitFirstN(2).String(),
		UptimeSeconds:    int64(uptime.Seconds()),
	}
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}
