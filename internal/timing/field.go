package timing

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// lapTimeEpsilon absorbs float round trip error when matching a lap to delete.
const lapTimeEpsilon = 1e-6

// Field is every driver on the current track. All access goes through its methods,
// each of which holds the lock for the whole operation, including the recalculation of
// the overall fastest lap. Callers only ever get copies of drivers.
type Field struct {
	drivers         map[string]*Driver
	namesInLapOrder []string
	track           string
	seq             uint64

	notifier Notifier
	logger   Logger

	mutex sync.Mutex
}

func NewField(notifier Notifier, logger Logger) *Field {
	if notifier == nil {
		notifier = nilNotifier{}
	}

	return &Field{
		drivers:  make(map[string]*Driver),
		notifier: notifier,
		logger:   logger,
	}
}

// Drivers returns a copy of every driver, keyed by name.
func (f *Field) Drivers() map[string]Driver {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.copyDrivers()
}

// Standings returns a copy of every driver, fastest first. Drivers without a lap are
// at the end.
func (f *Field) Standings() []Driver {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	out := make([]Driver, 0, len(f.namesInLapOrder))

	for _, name := range f.namesInLapOrder {
		out = append(out, f.drivers[name].copy())
	}

	return out
}

// Snapshot returns the track and a copy of the drivers, read together.
func (f *Field) Snapshot() Snapshot {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return Snapshot{
		Seq:     f.seq,
		Track:   f.track,
		Drivers: f.copyDrivers(),
	}
}

func (f *Field) Len() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.drivers)
}

// SubmitLap creates the driver if needed, sets their team and keeps the lap if it is
// their fastest. It reports whether the stored lap changed, along with a copy of all
// drivers after the update.
func (f *Field) SubmitLap(name, team, time string) (bool, map[string]Driver) {
	name = NormaliseName(name)

	f.mutex.Lock()

	driver, ok := f.drivers[name]

	if !ok {
		driver = newDriver(name, team)
		f.drivers[name] = driver
		f.namesInLapOrder = append(f.namesInLapOrder, name)

		f.logger.Infof("Created new driver: %s", name)
	}

	teamChanged := driver.Team != team
	updated := driver.submitLap(time, team)

	if updated {
		f.logger.Infof("Updated fastest lap for %s to %s", name, time)
	} else {
		f.logger.Debugf("New lap %s not faster than existing %s for %s", time, driver.FastestLap.Time, name)
	}

	f.updateFastestLap()
	drivers := f.copyDrivers()

	var message *Message

	switch {
	case !ok:
		message = f.message(TypeLapTime, ActionAdded, drivers)
	case updated || teamChanged:
		message = f.message(TypeLapTime, ActionUpdated, drivers)
	}

	f.mutex.Unlock()

	if message != nil {
		f.notify(*message)
	}

	return updated, drivers
}

// DeleteLap clears a driver's lap if it matches time. Times are compared by value, so
// "83.456" deletes a lap stored as "1:23.456". The driver itself stays in the field.
func (f *Field) DeleteLap(name, time string) bool {
	name = NormaliseName(name)
	seconds := ParseLapTime(time)

	f.mutex.Lock()

	driver, ok := f.drivers[name]

	if !ok || !driver.HasLap() || !lapTimesMatch(driver.FastestLap, time, seconds) {
		f.mutex.Unlock()
		return false
	}

	driver.FastestLap = nil
	f.updateFastestLap()
	message := f.message(TypeLapTime, ActionDeleted, LapTimeDeleted{Name: name, Time: time, Drivers: f.copyDrivers()})

	f.mutex.Unlock()

	f.logger.Infof("Deleted lap time %s for driver %s", time, name)

	f.notify(*message)

	return true
}

func lapTimesMatch(lap *LapTime, time string, seconds float64) bool {
	if lap.Time == time {
		return true
	}

	return math.Abs(lap.Seconds()-seconds) <= lapTimeEpsilon
}

// RemoveDriver deletes a driver and their lap entirely.
func (f *Field) RemoveDriver(name string) bool {
	name = NormaliseName(name)

	f.mutex.Lock()

	if _, ok := f.drivers[name]; !ok {
		f.mutex.Unlock()
		return false
	}

	delete(f.drivers, name)

	for i, n := range f.namesInLapOrder {
		if n == name {
			f.namesInLapOrder = append(f.namesInLapOrder[:i], f.namesInLapOrder[i+1:]...)
			break
		}
	}

	f.updateFastestLap()
	message := f.message(TypeDriver, ActionDeleted, f.copyDrivers())

	f.mutex.Unlock()

	f.logger.Infof("Removed driver %s", name)

	f.notify(*message)

	return true
}

func (f *Field) Track() string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.track
}

// SetTrack changes the active track. Changing to a different track clears every driver,
// setting the current track again changes nothing.
func (f *Field) SetTrack(name string) string {
	name = strings.TrimSpace(name)

	f.mutex.Lock()

	if name == f.track {
		f.mutex.Unlock()
		return name
	}

	previous := f.track

	f.track = name
	f.drivers = make(map[string]*Driver)
	f.namesInLapOrder = nil
	message := f.message(TypeTrack, ActionChanged, TrackChanged{Name: name})

	f.mutex.Unlock()

	f.logger.Infof("Track name set to: %s (was: %s), lap times cleared", name, previous)

	f.notify(*message)

	return name
}

// updateFastestLap sorts the field by lap time and flags the single fastest lap. A lap
// which can't be parsed is never the fastest. f.mutex must be held.
func (f *Field) updateFastestLap() {
	sort.SliceStable(f.namesInLapOrder, func(i, j int) bool {
		return lapSeconds(f.drivers[f.namesInLapOrder[i]]) < lapSeconds(f.drivers[f.namesInLapOrder[j]])
	})

	fastest := ""

	if len(f.namesInLapOrder) > 0 {
		if leader := f.drivers[f.namesInLapOrder[0]]; leader.HasLap() && !math.IsInf(leader.FastestLap.Seconds(), 1) {
			fastest = leader.Name
		}
	}

	for name, driver := range f.drivers {
		if driver.HasLap() {
			driver.FastestLap.IsFastest = name == fastest
		}
	}
}

func lapSeconds(d *Driver) float64 {
	if !d.HasLap() {
		return math.Inf(1)
	}

	return d.FastestLap.Seconds()
}

func (f *Field) copyDrivers() map[string]Driver {
	out := make(map[string]Driver, len(f.drivers))

	for name, driver := range f.drivers {
		out[name] = driver.copy()
	}

	return out
}

// message numbers a notification. Messages are sent after the lock is released, so
// clients use Seq to drop any that arrive out of order. f.mutex must be held.
func (f *Field) message(messageType, action string, data interface{}) *Message {
	f.seq++

	return &Message{
		Seq:    f.seq,
		Type:   messageType,
		Action: action,
		Data:   data,
	}
}

func (f *Field) notify(message Message) {
	if err := f.notifier.Broadcast(message); err != nil {
		f.logger.WithError(err).Errorf("Could not broadcast %s/%s", message.Type, message.Action)
	}
}
