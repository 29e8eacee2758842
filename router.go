package livetiming

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-http-utils/etag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/login", s.loginPage)
	r.Post("/login", s.login)
	r.Get("/logout", s.logout)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.Get("/auth/status", s.authStatus)

		r.Get("/drivers", s.getDrivers)
		r.Get("/track", s.getTrack)
		r.Get("/users", s.getUsers)
		r.Get("/users/{name}", s.getUser)
		r.Get("/status", s.getStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Post("/auth/change-password", s.changePassword)
			r.Post("/auth/create-user", s.createAdmin)
			r.Get("/auth/users", s.listAdmins)
			r.Get("/auth/sessions", s.listSessions)

			r.Post("/telemetry/start", s.startTelemetry)
			r.Post("/telemetry/stop", s.stopTelemetry)
			r.Get("/telemetry/status", s.telemetryStatus)
			r.Get("/telemetry/live_data", s.telemetryLiveData)

			r.Post("/laptime", s.addLapTime)
			r.Delete("/laptime", s.deleteLapTime)
			r.Post("/track", s.setTrack)
			r.Post("/users", s.addUser)
			r.Delete("/users/{name}", s.deleteUser)
			r.Get("/export", s.export)
			r.Get("/export/csv", s.exportCSV)
			r.Get("/debug", s.debugBundle)
		})
	})

	r.Handle("/ws", s.hub)
	r.Handle("/metrics", promhttp.Handler())

	// admin, display and the rest of the frontend are all served from the static dir.
	static := etag.Handler(http.FileServer(http.Dir(s.config.HTTP.StaticDir)), false)
	r.With(s.requireAdminPages).Handle("/*", static)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Could not encode JSON response")
	}
}

// writeError sends the {"detail": ...} body that the frontend expects for errors.
func writeError(w http.ResponseWriter, status int, detail interface{}) {
	writeJSON(w, status, map[string]interface{}{"detail": detail})
}
