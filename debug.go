package livetiming

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const redacted = "_redacted_"

// debugBundle serves a zip of the board, roster, status and config for troubleshooting.
func (s *Server) debugBundle(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Disposition", fmt.Sprintf(`attachment;filename="livetiming_debug_bundle_%s.zip"`, s.clock.Now().Format("2006-01-02_15_04")))
	w.Header().Add("Content-Type", "application/zip")

	if err := s.BuildDebugInfo(w); err != nil {
		logrus.WithError(err).Error("Could not build debug information")
		http.Error(w, "Could not build debug information", http.StatusInternalServerError)
		return
	}
}

func (s *Server) BuildDebugInfo(w io.Writer) (err error) {
	z := zip.NewWriter(w)
	defer func() {
		closeErr := z.Close()

		if err == nil {
			err = closeErr
		}
	}()

	c := *s.config
	c.Admin.Password = redacted
	c.HTTP.SessionKey = redacted
	c.Admin.Accounts = make([]AdminAccount, len(s.config.Admin.Accounts))

	for i, account := range s.config.Admin.Accounts {
		c.Admin.Accounts[i] = AdminAccount{Username: account.Username, Password: redacted}
	}

	files := []struct {
		name string
		data interface{}
	}{
		{"board.json", s.field.Snapshot()},
		{"standings.json", s.field.Standings()},
		{"telemetry.json", s.telemetry.Status()},
		{"users.json", s.roster.All()},
		{"status.json", s.status()},
		{"livetiming_config.json", c},
	}

	for _, file := range files {
		if err := addJSONFileToZip(z, file.name, file.data); err != nil {
			return err
		}
	}

	return nil
}

func addJSONFileToZip(z *zip.Writer, filename string, data interface{}) error {
	f, err := z.Create(filename)

	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(data)
}
