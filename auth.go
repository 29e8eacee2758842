package livetiming

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/cj123/sessions"
	"github.com/hako/durafmt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/auth"
)

const (
	sessionName  = "livetiming-session"
	sessionIDKey = "session_id"

	timeFormat = time.RFC3339
)

// newSessionStore signs the cookie that carries the session ID. The cookie and its
// signature expire with the session, which is also expired on the server.
func newSessionStore(config *Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(config.HTTP.SessionKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   config.Admin.SessionMaxAge,
		HttpOnly: true,
	}
	store.MaxAge(config.Admin.SessionMaxAge)

	return store
}

// adminSession returns the session of the logged in admin. Cookies for sessions that
// have expired or been logged out are rejected.
func (s *Server) adminSession(r *http.Request) (auth.Session, bool) {
	cookie, err := s.store.Get(r, sessionName)

	if err != nil {
		return auth.Session{}, false
	}

	id, _ := cookie.Values[sessionIDKey].(string)

	if id == "" {
		return auth.Session{}, false
	}

	session, ok := s.sessions.Get(id)

	if !ok || !s.accounts.Exists(session.Username) {
		return auth.Session{}, false
	}

	return session, true
}

// adminUsername returns the name of the logged in admin, or "" if the request has no
// valid session.
func (s *Server) adminUsername(r *http.Request) string {
	session, ok := s.adminSession(r)

	if !ok {
		return ""
	}

	return session.Username
}

// requireAdmin guards the API. Requests without a session get a 401.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminUsername(r) == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAdminPages sends requests for the admin pages to the login page when there is
// no session.
func (s *Server) requireAdminPages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAdminPath(r.URL.Path) && s.adminUsername(r) == "" {
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isAdminPath(path string) bool {
	return path == "/admin" || strings.HasPrefix(path, "/admin/")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.config.HTTP.StaticDir, "login.html"))
}

// login accepts either a JSON body or a form post. Form posts are redirected back to
// the page they came from, JSON requests get a JSON response.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var credentials loginRequest

	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	if isJSON {
		if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Invalid login request")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		credentials.Username = r.FormValue("username")
		credentials.Password = r.FormValue("password")
	}

	if !s.accounts.Authenticate(credentials.Username, credentials.Password) {
		logrus.WithField("username", credentials.Username).Warn("Failed admin login")

		if isJSON {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
		} else {
			http.Redirect(w, r, "/login?error=1&next="+url.QueryEscape(r.FormValue("next")), http.StatusFound)
		}

		return
	}

	session := s.sessions.Create(credentials.Username)

	cookie, _ := s.store.Get(r, sessionName)
	cookie.Values[sessionIDKey] = session.ID

	if err := cookie.Save(r, w); err != nil {
		s.sessions.Delete(session.ID)

		logrus.WithError(err).Error("Could not save admin session")
		writeError(w, http.StatusInternalServerError, "Could not save session")
		return
	}

	logrus.WithField("username", credentials.Username).Info("Admin logged in")

	if isJSON {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"message":  "Login successful",
			"username": credentials.Username,
		})
		return
	}

	http.Redirect(w, r, safeRedirect(r.FormValue("next")), http.StatusFound)
}

// safeRedirect only allows redirects to paths on this server.
func safeRedirect(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/admin/"
	}

	return next
}

// logout ends the session on the server as well as clearing the cookie, so a copy of
// the cookie is no longer accepted.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	cookie, _ := s.store.Get(r, sessionName)

	if id, ok := cookie.Values[sessionIDKey].(string); ok {
		s.sessions.Delete(id)
	}

	delete(cookie.Values, sessionIDKey)
	cookie.Options.MaxAge = -1

	if err := cookie.Save(r, w); err != nil {
		logrus.WithError(err).Error("Could not clear admin session")
	}

	if r.Method == http.MethodGet {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logout successful",
	})
}

func (s *Server) authStatus(w http.ResponseWriter, r *http.Request) {
	username := s.adminUsername(r)

	if username == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated":   true,
		"username":        username,
		"active_sessions": s.sessions.Len(),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest

	if !decodeBody(w, r, &req) {
		return
	}

	err := s.accounts.ChangePassword(s.adminUsername(r), req.CurrentPassword, req.NewPassword)

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	case errors.Is(err, auth.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, "New password cannot be empty")
		return
	case err != nil:
		logrus.WithError(err).Error("Could not change admin password")
		writeError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Password changed successfully",
	})
}

func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest

	if !decodeBody(w, r, &req) {
		return
	}

	err := s.accounts.Add(req.Username, req.Password)

	switch {
	case errors.Is(err, auth.ErrAccountExists):
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	case errors.Is(err, auth.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, "Username and password cannot be empty")
		return
	case err != nil:
		logrus.WithError(err).Error("Could not create admin account")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("User '%s' created successfully", strings.TrimSpace(req.Username)),
	})
}

type adminUsersResponse struct {
	AdminUsers  []auth.Account `json:"admin_users"`
	CurrentUser string         `json:"current_user"`
}

func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, adminUsersResponse{
		AdminUsers:  s.accounts.List(),
		CurrentUser: s.adminUsername(r),
	})
}

type sessionInfo struct {
	SessionID    string `json:"session_id"`
	Username     string `json:"username"`
	CreatedAt    string `json:"created_at"`
	LastAccessed string `json:"last_accessed"`
	Duration     string `json:"duration"`
}

type sessionsResponse struct {
	ActiveSessions []sessionInfo `json:"active_sessions"`
	TotalCount     int           `json:"total_count"`
}

// truncatedSessionID hides most of a session ID, which is enough to log in with.
func truncatedSessionID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}

	return id + "..."
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	active := s.sessions.Active()
	now := s.clock.Now()

	out := make([]sessionInfo, len(active))

	for i, session := range active {
		out[i] = sessionInfo{
			SessionID:    truncatedSessionID(session.ID),
			Username:     session.Username,
			CreatedAt:    session.CreatedAt.Format(timeFormat),
			LastAccessed: session.LastAccessed.Format(timeFormat),
			Duration:     durafmt.Parse(now.Sub(session.CreatedAt)).LimitFirstN(2).String(),
		}
	}

	writeJSON(w, http.StatusOK, sessionsResponse{
		ActiveSessions: out,
		TotalCount:     len(out),
	})
}
