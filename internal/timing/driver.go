package timing

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type Driver struct {
	Name string
	Team string

	// FastestLap is the only lap kept for a driver. Slower laps are discarded.
	FastestLap *LapTime
}

func newDriver(name, team string) *Driver {
	return &Driver{
		Name: name,
		Team: team,
	}
}

// submitLap sets the team and keeps the lap if it is strictly faster than the current
// one. It reports whether the stored lap changed.
func (d *Driver) submitLap(time, team string) bool {
	d.Team = team

	lap := &LapTime{Time: time}

	if d.FastestLap == nil || lap.Seconds() < d.FastestLap.Seconds() {
		d.FastestLap = lap
		return true
	}

	return false
}

func (d *Driver) HasLap() bool {
	return d.FastestLap != nil
}

func (d *Driver) copy() Driver {
	out := Driver{
		Name: d.Name,
		Team: d.Team,
	}

	if d.FastestLap != nil {
		lap := *d.FastestLap
		out.FastestLap = &lap
	}

	return out
}

// MarshalJSON keeps the lap_times list shape that the timing board frontend reads,
// even though there is only ever one lap in it.
func (d Driver) MarshalJSON() ([]byte, error) {
	lapTimes := make([]LapTime, 0, 1)

	if d.FastestLap != nil {
		lapTimes = append(lapTimes, *d.FastestLap)
	}

	return json.Marshal(struct {
		Name     string    `json:"name"`
		Team     string    `json:"team"`
		LapTimes []LapTime `json:"lap_times"`
	}{
		Name:     d.Name,
		Team:     d.Team,
		LapTimes: lapTimes,
	})
}

// NormaliseName trims a driver name and puts it in NFC form, so that names typed in
// the admin panel and names sent by the game refer to the same driver.
func NormaliseName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
