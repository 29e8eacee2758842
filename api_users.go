package livetiming

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"justapengu.in/livetiming/internal/timing"
)

type usersResponse struct {
	Users map[string]timing.User `json:"users"`
}

func (s *Server) getUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, usersResponse{Users: s.roster.All()})
}

func (s *Server) addUser(w http.ResponseWriter, r *http.Request) {
	var user timing.User

	if !decodeBody(w, r, &user) {
		return
	}

	added, err := s.roster.Add(user)

	if errors.Is(err, timing.ErrInvalidUser) {
		writeError(w, http.StatusBadRequest, "Name and team cannot be empty")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add user")
		return
	}

	writeJSON(w, http.StatusCreated, added)
}

// deleteUser removes the user and any lap times recorded under their name.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	// names arrive encoded when the router matched on the raw path.
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	if !s.roster.Delete(name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("User '%s' not found", name))
		return
	}

	s.field.RemoveDriver(name)

	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("User '%s' deleted successfully", name)})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	user, ok := s.roster.Get(name)

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("User '%s' not found", name))
		return
	}

	writeJSON(w, http.StatusOK, user)
}
