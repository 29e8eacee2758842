package livetiming

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/timing"
)

const testPassword = "correct-horse-battery-staple"

var testStartTime = time.Date(2024, time.July, 7, 14, 30, 5, 0, time.UTC)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)

	return logger
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	staticDir := t.TempDir()

	for path, content := range map[string]string{
		"index.html":         "<h1>home</h1>",
		"login.html":         "<form>login</form>",
		"admin/index.html":   "<h1>admin</h1>",
		"display/index.html": "<h1>display</h1>",
	} {
		if err := os.MkdirAll(filepath.Dir(filepath.Join(staticDir, path)), 0755); err != nil {
			t.Fatal(err)
		}

		if err := ioutil.WriteFile(filepath.Join(staticDir, path), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	config := &Config{
		HTTP:      HTTPConfig{StaticDir: staticDir},
		Telemetry: TelemetryConfig{Disabled: true, Address: "127.0.0.1:0"},
		Admin:     AdminConfig{Password: testPassword},
		Export:    ExportConfig{Dir: filepath.Join(t.TempDir(), "exports")},
	}

	if err := config.setDefaults(); err != nil {
		t.Fatal(err)
	}

	return config
}

type testClient struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
}

func newTestClient(t *testing.T, s *Server) *testClient {
	t.Helper()

	jar, err := cookiejar.New(nil)

	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(s.Router())
	t.Cleanup(server.Close)

	return &testClient{
		t:      t,
		server: server,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (tc *testClient) do(method, path string, body interface{}) (int, []byte) {
	tc.t.Helper()

	var reader *bytes.Reader

	if body != nil {
		data, err := json.Marshal(body)

		if err != nil {
			tc.t.Fatal(err)
		}

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, tc.server.URL+path, reader)

	if err != nil {
		tc.t.Fatal(err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := tc.client.Do(req)

	if err != nil {
		tc.t.Fatal(err)
	}

	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)

	if err != nil {
		tc.t.Fatal(err)
	}

	return resp.StatusCode, data
}

func (tc *testClient) login() {
	tc.t.Helper()

	tc.loginAs(defaultAdminUsername, testPassword)
}

func (tc *testClient) loginAs(username, password string) {
	tc.t.Helper()

	status, body := tc.do(http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	})

	if status != http.StatusOK {
		tc.t.Fatalf("could not log in as %s: %d %s", username, status, body)
	}
}

// withCookies returns a client for the same server that starts out with the given
// cookies and no others.
func (tc *testClient) withCookies(cookies []*http.Cookie) *testClient {
	tc.t.Helper()

	jar, err := cookiejar.New(nil)

	if err != nil {
		tc.t.Fatal(err)
	}

	u, err := url.Parse(tc.server.URL)

	if err != nil {
		tc.t.Fatal(err)
	}

	jar.SetCookies(u, cookies)

	return &testClient{
		t:      tc.t,
		server: tc.server,
		client: &http.Client{
			Jar:           jar,
			CheckRedirect: tc.client.CheckRedirect,
		},
	}
}

func (tc *testClient) cookies() []*http.Cookie {
	tc.t.Helper()

	u, err := url.Parse(tc.server.URL)

	if err != nil {
		tc.t.Fatal(err)
	}

	return tc.client.Jar.Cookies(u)
}

func newTestServer(t *testing.T) (*Server, *testClient) {
	t.Helper()

	s, _, tc := newTestServerWithClock(t)

	return s, tc
}

func newTestServerWithClock(t *testing.T) (*Server, *clockwork.FakeClock, *testClient) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testStartTime)

	s, err := NewServer(testConfig(t), clock, testLogger())

	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s, clock, newTestClient(t, s)
}

type driverResponse struct {
	Name     string `json:"name"`
	Team     string `json:"team"`
	LapTimes []struct {
		Time        string   `json:"time"`
		IsFastest   bool     `json:"is_fastest"`
		TimeSeconds *float64 `json:"time_seconds"`
	} `json:"lap_times"`
}

func decodeDrivers(t *testing.T, data []byte) map[string]driverResponse {
	t.Helper()

	var drivers map[string]driverResponse

	if err := json.Unmarshal(data, &drivers); err != nil {
		t.Fatalf("could not decode drivers %s: %s", data, err)
	}

	return drivers
}

func TestAuthentication(t *testing.T) {
	_, tc := newTestServer(t)

	t.Run("Mutations need a session", func(t *testing.T) {
		status, _ := tc.do(http.MethodPost, "/api/track", map[string]string{"name": "Monza"})

		if status != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", status)
		}
	})

	t.Run("Reads are public", func(t *testing.T) {
		for _, path := range []string{"/api/drivers", "/api/track", "/api/users", "/api/status", "/display/"} {
			if status, _ := tc.do(http.MethodGet, path, nil); status != http.StatusOK {
				t.Errorf("%s: expected 200, got %d", path, status)
			}
		}
	})

	t.Run("Admin pages redirect to login", func(t *testing.T) {
		status, _ := tc.do(http.MethodGet, "/admin/", nil)

		if status != http.StatusFound {
			t.Errorf("expected 302, got %d", status)
		}
	})

	t.Run("Wrong password", func(t *testing.T) {
		status, _ := tc.do(http.MethodPost, "/api/login", map[string]string{
			"username": defaultAdminUsername,
			"password": "nope",
		})

		if status != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", status)
		}
	})

	t.Run("Login then logout", func(t *testing.T) {
		tc.login()

		if status, body := tc.do(http.MethodGet, "/admin/", nil); status != http.StatusOK || string(body) != "<h1>admin</h1>" {
			t.Errorf("expected admin page, got %d %s", status, body)
		}

		if status, _ := tc.do(http.MethodPost, "/api/track", map[string]string{"name": "Monza"}); status != http.StatusOK {
			t.Errorf("expected 200, got %d", status)
		}

		tc.do(http.MethodPost, "/api/logout", nil)

		if status, _ := tc.do(http.MethodPost, "/api/track", map[string]string{"name": "Spa"}); status != http.StatusUnauthorized {
			t.Errorf("expected 401 after logout, got %d", status)
		}
	})
}

func TestLapTimeAPI(t *testing.T) {
	s, tc := newTestServer(t)
	tc.login()

	t.Run("Add lap times", func(t *testing.T) {
		tc.do(http.MethodPost, "/api/laptime", map[string]string{"name": "Max", "team": "Red Bull Racing", "time": "1:24.000"})
		status, body := tc.do(http.MethodPost, "/api/laptime", map[string]string{"name": "Lando", "team": "McLaren", "time": "83.5"})

		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", status, body)
		}

		drivers := decodeDrivers(t, body)

		if len(drivers) != 2 {
			t.Fatalf("expected 2 drivers, got %d", len(drivers))
		}

		if !drivers["Lando"].LapTimes[0].IsFastest || drivers["Max"].LapTimes[0].IsFastest {
			t.Errorf("expected Lando to be fastest: %+v", drivers)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		testCases := []struct {
			name string
			body interface{}
		}{
			{name: "missing time", body: map[string]string{"name": "Max", "team": "Red Bull Racing"}},
			{name: "missing name", body: map[string]string{"team": "Red Bull Racing", "time": "1:20.000"}},
			{name: "bad time", body: map[string]string{"name": "Max", "team": "Red Bull Racing", "time": "fast"}},
			{name: "negative time", body: map[string]string{"name": "Max", "team": "Red Bull Racing", "time": "-1:23.456"}},
			{name: "infinite time", body: map[string]string{"name": "Max", "team": "Red Bull Racing", "time": "-inf"}},
			{name: "not json", body: "nope"},
		}

		for _, testCase := range testCases {
			t.Run(testCase.name, func(t *testing.T) {
				status, body := tc.do(http.MethodPost, "/api/laptime", testCase.body)

				if status != http.StatusUnprocessableEntity {
					t.Errorf("expected 422, got %d: %s", status, body)
				}
			})
		}

		if s.field.Len() != 2 {
			t.Errorf("expected invalid requests to leave the board alone, have %d drivers", s.field.Len())
		}
	})

	t.Run("Delete lap time", func(t *testing.T) {
		if status, _ := tc.do(http.MethodDelete, "/api/laptime", map[string]string{"name": "Lando", "time": "1:20.000"}); status != http.StatusNotFound {
			t.Errorf("expected 404 for wrong time, got %d", status)
		}

		if status, _ := tc.do(http.MethodDelete, "/api/laptime", map[string]string{"name": "Lando", "time": "1:23.500"}); status != http.StatusOK {
			t.Errorf("expected 200 for matching time, got %d", status)
		}

		_, body := tc.do(http.MethodGet, "/api/drivers", nil)
		drivers := decodeDrivers(t, body)

		if len(drivers["Lando"].LapTimes) != 0 {
			t.Errorf("expected Lando to have no laps, got %+v", drivers["Lando"])
		}

		if !drivers["Max"].LapTimes[0].IsFastest {
			t.Error("expected Max to take the fastest lap")
		}
	})
}

func TestTrackAPI(t *testing.T) {
	s, tc := newTestServer(t)
	tc.login()

	if status, _ := tc.do(http.MethodPost, "/api/track", map[string]string{"name": "   "}); status != http.StatusBadRequest {
		t.Errorf("expected 400 for blank track, got %d", status)
	}

	s.field.SubmitLap("Charles", "Ferrari", "1:21.000")

	status, body := tc.do(http.MethodPost, "/api/track", map[string]string{"name": "  Monaco "})

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	var track trackResponse

	if err := json.Unmarshal(body, &track); err != nil {
		t.Fatal(err)
	}

	if track.Name != "Monaco" {
		t.Errorf("expected Monaco, got %q", track.Name)
	}

	if s.field.Len() != 0 {
		t.Error("expected changing track to clear the board")
	}
}

func TestUsersAPI(t *testing.T) {
	s, tc := newTestServer(t)
	tc.login()

	if status, _ := tc.do(http.MethodPost, "/api/users", map[string]string{"name": " ", "team": "Haas"}); status != http.StatusBadRequest {
		t.Errorf("expected 400 for blank name, got %d", status)
	}

	if status, _ := tc.do(http.MethodPost, "/api/users", map[string]string{"name": "Nico Hülkenberg", "team": "Sauber"}); status != http.StatusCreated {
		t.Errorf("expected 201, got %d", status)
	}

	s.field.SubmitLap("Nico Hülkenberg", "Sauber", "1:25.000")

	_, body := tc.do(http.MethodGet, "/api/users", nil)

	var users usersResponse

	if err := json.Unmarshal(body, &users); err != nil {
		t.Fatal(err)
	}

	if users.Users["Nico Hülkenberg"].Team != "Sauber" {
		t.Errorf("unexpected users: %+v", users)
	}

	t.Run("Get user", func(t *testing.T) {
		status, body := tc.do(http.MethodGet, "/api/users/Nico%20H%C3%BClkenberg", nil)

		var user timing.User

		if err := json.Unmarshal(body, &user); err != nil {
			t.Fatal(err)
		}

		if status != http.StatusOK || user.Team != "Sauber" {
			t.Errorf("expected Sauber user, got %d %+v", status, user)
		}

		if status, _ := tc.do(http.MethodGet, "/api/users/Nobody", nil); status != http.StatusNotFound {
			t.Errorf("expected 404, got %d", status)
		}
	})

	if status, _ := tc.do(http.MethodDelete, "/api/users/Nobody", nil); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}

	if status, _ := tc.do(http.MethodDelete, "/api/users/Nico%20H%C3%BClkenberg", nil); status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}

	if len(s.roster.All()) != 0 || s.field.Len() != 0 {
		t.Error("expected user and their driver to be removed")
	}
}

func TestStatusAPI(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStartTime)

	s, err := NewServer(testConfig(t), clock, testLogger())

	if err != nil {
		t.Fatal(err)
	}

	tc := newTestClient(t, s)

	s.field.SetTrack("Suzuka")
	clock.Advance(90 * time.Minute)

	_, body := tc.do(http.MethodGet, "/api/status", nil)

	var status statusResponse

	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}

	if status.Track != "Suzuka" {
		t.Errorf("expected Suzuka, got %q", status.Track)
	}

	if status.UptimeSeconds != 5400 {
		t.Errorf("expected 5400 seconds uptime, got %d", status.UptimeSeconds)
	}

	if !strings.Contains(status.Uptime, "30 minutes") {
		t.Errorf("unexpected uptime %q", status.Uptime)
	}
}

func TestNewServerSeedsUsers(t *testing.T) {
	config := testConfig(t)
	config.Users = []timing.User{{Name: "Oscar", Team: "McLaren"}}

	s, err := NewServer(config, clockwork.NewFakeClock(), testLogger())

	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.roster.Get("Oscar"); !ok {
		t.Error("expected seeded user to be in the roster")
	}
}
