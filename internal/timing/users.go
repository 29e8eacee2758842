package timing

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var ErrInvalidUser = errors.New("timing: name and team cannot be empty or just whitespace")

// User is a driver registered ahead of time with the team they drive for.
type User struct {
	Name string `json:"name" yaml:"name"`
	Team string `json:"team" yaml:"team"`
}

// Roster is the list of registered users. Unlike the Field it survives track changes.
type Roster struct {
	users map[string]User

	notifier Notifier
	logger   Logger

	mutex sync.Mutex
}

func NewRoster(notifier Notifier, logger Logger) *Roster {
	if notifier == nil {
		notifier = nilNotifier{}
	}

	return &Roster{
		users:    make(map[string]User),
		notifier: notifier,
		logger:   logger,
	}
}

// Add registers a user, or updates the team of an existing one.
func (r *Roster) Add(user User) (User, error) {
	user.Name = NormaliseName(user.Name)
	user.Team = strings.TrimSpace(user.Team)

	if user.Name == "" || user.Team == "" {
		return User{}, ErrInvalidUser
	}

	r.mutex.Lock()
	_, existed := r.users[user.Name]
	r.users[user.Name] = user
	r.mutex.Unlock()

	action := ActionAdded

	if existed {
		action = ActionUpdated
	}

	r.logger.Infof("User %s %s (team: %s)", user.Name, action, user.Team)

	if err := r.notifier.Broadcast(Message{Type: TypeUser, Action: action, Data: user}); err != nil {
		r.logger.WithError(err).Errorf("Could not broadcast user %s", action)
	}

	return user, nil
}

func (r *Roster) Get(name string) (User, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, ok := r.users[NormaliseName(name)]

	return user, ok
}

func (r *Roster) All() map[string]User {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make(map[string]User, len(r.users))

	for name, user := range r.users {
		out[name] = user
	}

	return out
}

func (r *Roster) Delete(name string) bool {
	name = NormaliseName(name)

	r.mutex.Lock()
	user, ok := r.users[name]
	delete(r.users, name)
	r.mutex.Unlock()

	if !ok {
		return false
	}

	r.logger.Infof("User %s deleted", name)

	if err := r.notifier.Broadcast(Message{Type: TypeUser, Action: ActionDeleted, Data: user}); err != nil {
		r.logger.WithError(err).Error("Could not broadcast user deletion")
	}

	return true
}
