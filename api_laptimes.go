package livetiming

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/timing"
)

// validationError matches the shape of the 422 errors the frontend was written against.
type validationError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func missingField(name string) validationError {
	return validationError{
		Loc:  []string{"body", name},
		Msg:  "Field required",
		Type: "missing",
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logrus.WithError(err).Warn("Could not decode request body")

		writeError(w, http.StatusUnprocessableEntity, []validationError{{
			Loc:  []string{"body"},
			Msg:  "Invalid JSON body",
			Type: "json_invalid",
		}})

		return false
	}

	return true
}

type lapTimeRequest struct {
	Name *string `json:"name"`
	Team *string `json:"team"`
	Time *string `json:"time"`
}

func (l lapTimeRequest) validate() []validationError {
	var errs []validationError

	if l.Name == nil {
		errs = append(errs, missingField("name"))
	}

	if l.Team == nil {
		errs = append(errs, missingField("team"))
	}

	if l.Time == nil {
		errs = append(errs, missingField("time"))
	} else if err := timing.ValidateLapTime(*l.Time); err != nil {
		errs = append(errs, validationError{
			Loc:  []string{"body", "time"},
			Msg:  "Time must be in a recognizable format (mm:ss.sss, mm.ss.sss, ss.sss, or seconds)",
			Type: "value_error",
		})
	}

	return errs
}

type lapTimeDeleteRequest struct {
	Name *string `json:"name"`
	Time *string `json:"time"`
}

func (l lapTimeDeleteRequest) validate() []validationError {
	var errs []validationError

	if l.Name == nil {
		errs = append(errs, missingField("name"))
	}

	if l.Time == nil {
		errs = append(errs, missingField("time"))
	}

	return errs
}

type trackRequest struct {
	Name string `json:"name"`
}

type trackResponse struct {
	Name string `json:"name"`
}

func (s *Server) getDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.field.Drivers())
}

func (s *Server) addLapTime(w http.ResponseWriter, r *http.Request) {
	var req lapTimeRequest

	if !decodeBody(w, r, &req) {
		return
	}

	if errs := req.validate(); len(errs) > 0 {
		writeError(w, http.StatusUnprocessableEntity, errs)
		return
	}

	_, drivers := s.field.SubmitLap(*req.Name, *req.Team, *req.Time)

	writeJSON(w, http.StatusOK, drivers)
}

func (s *Server) deleteLapTime(w http.ResponseWriter, r *http.Request) {
	var req lapTimeDeleteRequest

	if !decodeBody(w, r, &req) {
		return
	}

	if errs := req.validate(); len(errs) > 0 {
		writeError(w, http.StatusUnprocessableEntity, errs)
		return
	}

	if !s.field.DeleteLap(*req.Name, *req.Time) {
		writeError(w, http.StatusNotFound, "Driver or specified lap time not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Lap time deleted successfully"})
}

func (s *Server) getTrack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, trackResponse{Name: s.field.Track()})
}

func (s *Server) setTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest

	if !decodeBody(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Track name cannot be empty")
		return
	}

	writeJSON(w, http.StatusOK, trackResponse{Name: s.field.SetTrack(req.Name)})
}
