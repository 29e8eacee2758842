package telemetry

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/timing"
)

type Logger = logrus.FieldLogger

// LapSubmitter is where the adapter sends completed laps.
type LapSubmitter interface {
	SubmitLap(name, team, time string) (bool, map[string]timing.Driver)
}

// placeholderNames are sent for cars that have no driver yet. They are compared in
// lower case.
var placeholderNames = map[string]bool{
	"player":  true,
	"driver":  true,
	"unknown": true,
	"n/a":     true,
}

// isPlaceholderName also matches the run of question marks the game sends in place of
// every online name that is hidden, which would otherwise merge all of those cars into
// one driver.
func isPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)

	if name == "" || placeholderNames[strings.ToLower(name)] {
		return true
	}

	return strings.Trim(name, "?") == ""
}

type submittedLap struct {
	name string
	ms   uint32
}

// LiveDriver is what the game last reported for a car slot.
type LiveDriver struct {
	CarIndex        int    `json:"car_index"`
	Name            string `json:"name"`
	TeamID          uint8  `json:"team_id"`
	Team            string `json:"team"`
	LastLapTimeInMS uint32 `json:"last_lap_time_ms"`
	LastLapTime     string `json:"last_lap_time,omitempty"`
	Placeholder     bool   `json:"placeholder"`
}

// Adapter turns decoded packets into lap submissions. It keeps the latest participants
// packet so that lap data can be matched to driver names, and remembers what it last
// submitted for each slot so that the same lap, which the game repeats in every lap
// data packet, is only submitted once.
type Adapter struct {
	field  LapSubmitter
	logger Logger

	sessionUID    uint64
	numActiveCars int
	participants  [MaxCars]Participant
	laps          [MaxCars]Lap
	lastSubmitted [MaxCars]submittedLap

	mutex sync.Mutex
}

func NewAdapter(field LapSubmitter, logger Logger) *Adapter {
	return &Adapter{
		field:  field,
		logger: logger,
	}
}

// Handle processes a decoded packet. Messages other than participants and lap data are
// ignored.
func (a *Adapter) Handle(message Message) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	switch m := message.(type) {
	case Participants:
		a.checkSession(m.Header)
		a.setParticipants(m)
	case Laps:
		a.checkSession(m.Header)
		a.ingest(m.Cars)
	}
}

// Reset forgets all participants, laps and submissions.
func (a *Adapter) Reset() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.reset()
}

// reset must be called with a.mutex held.
func (a *Adapter) reset() {
	a.sessionUID = 0
	a.numActiveCars = 0
	a.participants = [MaxCars]Participant{}
	a.laps = [MaxCars]Lap{}
	a.lastSubmitted = [MaxCars]submittedLap{}
}

// checkSession forgets everything known about the previous session when a new one
// starts. a.mutex must be held.
func (a *Adapter) checkSession(header Header) {
	if header.SessionUID == a.sessionUID {
		return
	}

	a.logger.Infof("New telemetry session: %d", header.SessionUID)

	a.reset()
	a.sessionUID = header.SessionUID
}

// setParticipants must be called with a.mutex held.
func (a *Adapter) setParticipants(participants Participants) {
	a.participants = participants.Cars
	a.numActiveCars = int(participants.NumActiveCars)

	if a.numActiveCars > MaxCars {
		a.numActiveCars = MaxCars
	}
}

// Ingest submits the last lap of every active slot that has a driver name and a lap
// time. It returns the number of laps submitted.
func (a *Adapter) Ingest(participants Participants, laps [MaxCars]Lap) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.setParticipants(participants)

	return a.ingest(laps)
}

// ingest does the work of Ingest. a.mutex must be held.
func (a *Adapter) ingest(laps [MaxCars]Lap) int {
	a.laps = laps

	numSubmitted := 0

	for slot := 0; slot < a.numActiveCars; slot++ {
		participant, lap := a.participants[slot], laps[slot]

		if isPlaceholderName(participant.Name) || lap.LastLapTimeInMS == 0 {
			continue
		}

		submitted := submittedLap{name: participant.Name, ms: lap.LastLapTimeInMS}

		if a.lastSubmitted[slot] == submitted {
			continue
		}

		a.lastSubmitted[slot] = submitted

		lapTime := timing.FormatMilliseconds(lap.LastLapTimeInMS)

		a.logger.WithFields(logrus.Fields{
			"slot":   slot,
			"driver": participant.Name,
			"lap":    lapTime,
		}).Debug("Submitting lap from telemetry")

		a.field.SubmitLap(participant.Name, TeamName(participant.TeamID), lapTime)
		numSubmitted++
	}

	return numSubmitted
}

// ActiveCars is the number of active cars in the latest participants packet.
func (a *Adapter) ActiveCars() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.numActiveCars
}

// Live returns the latest participant and lap data of every active slot with a name.
func (a *Adapter) Live() []LiveDriver {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]LiveDriver, 0, a.numActiveCars)

	for slot := 0; slot < a.numActiveCars; slot++ {
		participant, lap := a.participants[slot], a.laps[slot]

		if strings.TrimSpace(participant.Name) == "" {
			continue
		}

		driver := LiveDriver{
			CarIndex:        slot,
			Name:            participant.Name,
			TeamID:          participant.TeamID,
			Team:            TeamName(participant.TeamID),
			LastLapTimeInMS: lap.LastLapTimeInMS,
			Placeholder:     isPlaceholderName(participant.Name),
		}

		if lap.LastLapTimeInMS > 0 {
			driver.LastLapTime = timing.FormatMilliseconds(lap.LastLapTimeInMS)
		}

		out = append(out, driver)
	}

	return out
}
