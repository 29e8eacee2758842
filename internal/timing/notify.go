package timing

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Logger = logrus.FieldLogger

const (
	TypeLapTime  = "laptime"
	TypeTrack    = "track"
	TypeDriver   = "driver"
	TypeUser     = "user"
	TypeSnapshot = "snapshot"

	ActionAdded   = "added"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionChanged = "changed"
	ActionFull    = "full"
)

// Message is a change notification sent to everyone watching the timing board.
type Message struct {
	Seq    uint64      `json:"seq"`
	Type   string      `json:"type"`
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

type Notifier interface {
	Broadcast(message Message) error
}

type NotifierFunc func(message Message) error

func (fn NotifierFunc) Broadcast(message Message) error {
	return fn(message)
}

type nilNotifier struct{}

func (nilNotifier) Broadcast(Message) error {
	return nil
}

type multiNotifier struct {
	notifiers []Notifier
}

// MultiNotifier sends each message to all of the given notifiers concurrently. nil
// notifiers are skipped.
func MultiNotifier(notifiers ...Notifier) Notifier {
	mn := &multiNotifier{}

	for _, notifier := range notifiers {
		if notifier != nil {
			mn.notifiers = append(mn.notifiers, notifier)
		}
	}

	return mn
}

func (mn *multiNotifier) Broadcast(message Message) error {
	g, _ := errgroup.WithContext(context.Background())

	for _, notifier := range mn.notifiers {
		notifier := notifier
		g.Go(func() error {
			return notifier.Broadcast(message)
		})
	}

	return g.Wait()
}

// LapTimeDeleted is the data of a laptime/deleted message.
type LapTimeDeleted struct {
	Name    string            `json:"name"`
	Time    string            `json:"time"`
	Drivers map[string]Driver `json:"drivers"`
}

// TrackChanged is the data of a track/changed message.
type TrackChanged struct {
	Name string `json:"name"`
}

// Snapshot is the full board state, sent to clients as they connect.
type Snapshot struct {
	Seq     uint64            `json:"seq"`
	Track   string            `json:"track"`
	Drivers map[string]Driver `json:"drivers"`
}
