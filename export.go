package livetiming

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/timing"
)

var (
	ErrNoTrack    = errors.New("livetiming: no track name set")
	ErrNoLapTimes = errors.New("livetiming: no lap time data to export")
)

const exportTimestampFormat = "20060102_150405"

// pointsForPosition awards points to the top 14, 25 for first down to 1 for fourteenth.
var pointsForPosition = []int{25, 18, 15, 12, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

func pointsFor(position int) int {
	if position < 1 || position > len(pointsForPosition) {
		return 0
	}

	return pointsForPosition[position-1]
}

var exportHeader = []string{"Position", "Driver", "Team", "Time", "Points"}

type ExportRow struct {
	Position int    `json:"position"`
	Driver   string `json:"driver"`
	Team     string `json:"team"`
	Time     string `json:"time"`
	Points   int    `json:"points"`
}

// ExportRows orders the drivers that have a lap, fastest first. Equal times are ordered
// by name.
func ExportRows(drivers map[string]timing.Driver) []ExportRow {
	var withLaps []timing.Driver

	for _, driver := range drivers {
		if driver.HasLap() {
			withLaps = append(withLaps, driver)
		}
	}

	sort.Slice(withLaps, func(i, j int) bool {
		a, b := withLaps[i].FastestLap.Seconds(), withLaps[j].FastestLap.Seconds()

		if a == b {
			return withLaps[i].Name < withLaps[j].Name
		}

		return a < b
	})

	rows := make([]ExportRow, len(withLaps))

	for i, driver := range withLaps {
		rows[i] = ExportRow{
			Position: i + 1,
			Driver:   driver.Name,
			Team:     driver.Team,
			Time:     driver.FastestLap.Time,
			Points:   pointsFor(i + 1),
		}
	}

	return rows
}

func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	for _, row := range rows {
		err := cw.Write([]string{
			strconv.Itoa(row.Position),
			row.Driver,
			row.Team,
			row.Time,
			strconv.Itoa(row.Points),
		})

		if err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// Exporter writes the board to CSV and JSON files in a directory.
type Exporter struct {
	dir   string
	clock clockwork.Clock
}

func NewExporter(dir string, clock clockwork.Clock) *Exporter {
	return &Exporter{
		dir:   dir,
		clock: clock,
	}
}

func checkExportable(snapshot timing.Snapshot) error {
	if snapshot.Track == "" {
		return ErrNoTrack
	}

	if len(snapshot.Drivers) == 0 {
		return ErrNoLapTimes
	}

	return nil
}

func safeTrackName(track string) string {
	return strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(track)
}

func (e *Exporter) baseFilename(track string) string {
	return fmt.Sprintf("%s_%s_laptimes", safeTrackName(track), e.clock.Now().Format(exportTimestampFormat))
}

// Export writes <track>_<timestamp>_laptimes.csv, and a .json file alongside it. It
// returns the path of the CSV file.
func (e *Exporter) Export(snapshot timing.Snapshot) (string, error) {
	if err := checkExportable(snapshot); err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", errors.Wrapf(err, "livetiming: could not create export dir %s", e.dir)
	}

	rows := ExportRows(snapshot.Drivers)
	base := filepath.Join(e.dir, e.baseFilename(snapshot.Track))
	csvFilename := base + ".csv"

	buf := new(bytes.Buffer)

	if err := WriteCSV(buf, rows); err != nil {
		return "", errors.Wrap(err, "livetiming: could not build csv")
	}

	if err := ioutil.WriteFile(csvFilename, buf.Bytes(), 0644); err != nil {
		return "", errors.Wrapf(err, "livetiming: could not write %s", csvFilename)
	}

	logrus.Infof("Exported %d lap times to %s (%s)", len(rows), csvFilename, humanize.Bytes(uint64(buf.Len())))

	jsonData, err := json.MarshalIndent(rows, "", "  ")

	if err != nil {
		return "", errors.Wrap(err, "livetiming: could not build json export")
	}

	if err := ioutil.WriteFile(base+".json", jsonData, 0644); err != nil {
		return "", errors.Wrapf(err, "livetiming: could not write %s.json", base)
	}

	return csvFilename, nil
}

type exportResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

func exportErrorMessage(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNoTrack):
		return http.StatusBadRequest, "No track name set"
	case errors.Is(err, ErrNoLapTimes):
		return http.StatusBadRequest, "No lap time data to export"
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Export failed: %s", err)
	}
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	filename, err := s.exporter.Export(s.field.Snapshot())

	if err != nil {
		status, message := exportErrorMessage(err)

		logrus.WithError(err).Warn("Export failed")

		writeJSON(w, status, exportResponse{Success: false, Message: message})
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{
		Success:  true,
		Filename: filename,
		Message:  "Export successful",
	})
}

// exportCSV sends the CSV as a download without writing it to disk.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	snapshot := s.field.Snapshot()

	if err := checkExportable(snapshot); err != nil {
		status, message := exportErrorMessage(err)
		writeJSON(w, status, exportResponse{Success: false, Message: message})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.exporter.baseFilename(snapshot.Track)+".csv"))

	if err := WriteCSV(w, ExportRows(snapshot.Drivers)); err != nil {
		logrus.WithError(err).Error("Could not write csv export")
	}
}
