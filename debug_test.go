package livetiming

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
)

func TestBuildDebugInfo(t *testing.T) {
	s, tc := newTestServer(t)
	s.config.Admin.Accounts = []AdminAccount{{Username: "steward", Password: "blue-flag"}}

	s.field.SetTrack("Zandvoort")
	s.field.SubmitLap("Max", "Red Bull Racing", "1:11.097")

	buf := new(bytes.Buffer)

	if err := s.BuildDebugInfo(buf); err != nil {
		t.Fatal(err)
	}

	z, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))

	if err != nil {
		t.Fatal(err)
	}

	files := make(map[string]string)

	for _, f := range z.File {
		rc, err := f.Open()

		if err != nil {
			t.Fatal(err)
		}

		data, err := ioutil.ReadAll(rc)
		rc.Close()

		if err != nil {
			t.Fatal(err)
		}

		files[f.Name] = string(data)
	}

	for _, name := range []string{"board.json", "standings.json", "users.json", "status.json", "telemetry.json", "livetiming_config.json"} {
		if _, ok := files[name]; !ok {
			t.Errorf("expected %s in bundle", name)
		}
	}

	if strings.Contains(files["livetiming_config.json"], testPassword) || strings.Contains(files["livetiming_config.json"], "blue-flag") {
		t.Error("expected admin passwords to be redacted")
	}

	if s.config.Admin.Accounts[0].Password != "blue-flag" {
		t.Error("expected redaction to leave the server config alone")
	}

	if !strings.Contains(files["standings.json"], "Max") {
		t.Errorf("expected Max in standings, got %s", files["standings.json"])
	}

	var board struct {
		Track string `json:"track"`
	}

	if err := json.Unmarshal([]byte(files["board.json"]), &board); err != nil {
		t.Fatal(err)
	}

	if board.Track != "Zandvoort" {
		t.Errorf("expected Zandvoort, got %q", board.Track)
	}

	t.Run("Needs a session", func(t *testing.T) {
		if status, _ := tc.do(http.MethodGet, "/api/debug", nil); status != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", status)
		}
	})
}
