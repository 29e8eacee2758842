package auth

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type Logger = logrus.FieldLogger

var (
	ErrAccountExists      = errors.New("auth: account already exists")
	ErrInvalidAccount     = errors.New("auth: username and password cannot be empty")
	ErrInvalidCredentials = errors.New("auth: incorrect username or password")
)

// Account is an admin login. The password is only kept as a bcrypt hash.
type Account struct {
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`

	passwordHash []byte
}

// Accounts is the set of admin logins.
type Accounts struct {
	accounts map[string]*Account
	cost     int
	logger   Logger

	mutex sync.RWMutex
}

// NewAccounts hashes passwords with the given bcrypt cost, e.g. bcrypt.DefaultCost.
func NewAccounts(cost int, logger Logger) *Accounts {
	return &Accounts{
		accounts: make(map[string]*Account),
		cost:     cost,
		logger:   logger,
	}
}

func (a *Accounts) hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)

	if err != nil {
		return nil, errors.Wrap(err, "auth: could not hash password")
	}

	return hash, nil
}

// Add creates an account. Existing accounts are never replaced.
func (a *Accounts) Add(username, password string) error {
	username = strings.TrimSpace(username)

	if username == "" || password == "" {
		return ErrInvalidAccount
	}

	hash, err := a.hash(password)

	if err != nil {
		return err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, ok := a.accounts[username]; ok {
		return errors.Wrapf(ErrAccountExists, "username %s", username)
	}

	a.accounts[username] = &Account{
		Username:     username,
		IsActive:     true,
		passwordHash: hash,
	}

	a.logger.Infof("Added admin account: %s", username)

	return nil
}

// Authenticate reports whether the password is correct for an active account.
func (a *Accounts) Authenticate(username, password string) bool {
	a.mutex.RLock()
	account, ok := a.accounts[username]

	var hash []byte

	if ok {
		hash = account.passwordHash
		ok = account.IsActive
	}

	a.mutex.RUnlock()

	if !ok {
		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// ChangePassword replaces the password of username after checking the current one.
func (a *Accounts) ChangePassword(username, currentPassword, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidAccount
	}

	if !a.Authenticate(username, currentPassword) {
		return ErrInvalidCredentials
	}

	hash, err := a.hash(newPassword)

	if err != nil {
		return err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	account, ok := a.accounts[username]

	if !ok {
		return ErrInvalidCredentials
	}

	account.passwordHash = hash

	a.logger.Infof("Password changed for admin account: %s", username)

	return nil
}

func (a *Accounts) Exists(username string) bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	account, ok := a.accounts[username]

	return ok && account.IsActive
}

// List returns every account, ordered by username.
func (a *Accounts) List() []Account {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	out := make([]Account, 0, len(a.accounts))

	for _, account := range a.accounts {
		out = append(out, Account{Username: account.Username, IsActive: account.IsActive})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})

	return out
}
