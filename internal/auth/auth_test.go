package auth

import (
	"io/ioutil"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func testLogger() Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)

	return logger
}

func TestAccounts(t *testing.T) {
	accounts := NewAccounts(bcrypt.MinCost, testLogger())

	if err := accounts.Add("admin", "hunter2"); err != nil {
		t.Fatal(err)
	}

	t.Run("Authenticate", func(t *testing.T) {
		testCases := []struct {
			username, password string
			want               bool
		}{
			{"admin", "hunter2", true},
			{"admin", "hunter3", false},
			{"admin", "", false},
			{"nobody", "hunter2", false},
		}

		for _, testCase := range testCases {
			if got := accounts.Authenticate(testCase.username, testCase.password); got != testCase.want {
				t.Errorf("%s/%s: expected %t, got %t", testCase.username, testCase.password, testCase.want, got)
			}
		}
	})

	t.Run("Add", func(t *testing.T) {
		if err := accounts.Add("admin", "other"); !errors.Is(err, ErrAccountExists) {
			t.Errorf("expected ErrAccountExists, got %v", err)
		}

		if err := accounts.Add(" ", "pw"); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("expected ErrInvalidAccount, got %v", err)
		}

		if err := accounts.Add("marshal", ""); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("expected ErrInvalidAccount, got %v", err)
		}

		if err := accounts.Add(" marshal ", "flag"); err != nil {
			t.Fatal(err)
		}

		if !accounts.Authenticate("marshal", "flag") {
			t.Error("expected new account to log in")
		}

		list := accounts.List()

		if len(list) != 2 || list[0].Username != "admin" || list[1].Username != "marshal" || !list[1].IsActive {
			t.Errorf("unexpected accounts: %+v", list)
		}
	})

	t.Run("Change password", func(t *testing.T) {
		if err := accounts.ChangePassword("admin", "wrong", "new"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}

		if err := accounts.ChangePassword("admin", "hunter2", ""); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("expected ErrInvalidAccount, got %v", err)
		}

		if err := accounts.ChangePassword("admin", "hunter2", "correct-horse"); err != nil {
			t.Fatal(err)
		}

		if accounts.Authenticate("admin", "hunter2") || !accounts.Authenticate("admin", "correct-horse") {
			t.Error("expected only the new password to work")
		}
	})
}

func TestSessions(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.May, 26, 13, 0, 0, 0, time.UTC))
	sessions := NewSessions(24*time.Hour, clock, testLogger())

	first := sessions.Create("admin")

	clock.Advance(time.Hour)

	second := sessions.Create("marshal")

	if first.ID == second.ID {
		t.Fatal("expected unique session ids")
	}

	t.Run("Get marks access", func(t *testing.T) {
		clock.Advance(time.Minute)

		session, ok := sessions.Get(first.ID)

		if !ok || session.Username != "admin" {
			t.Fatalf("expected admin session, got %+v", session)
		}

		if !session.LastAccessed.Equal(clock.Now()) {
			t.Errorf("expected last access %s, got %s", clock.Now(), session.LastAccessed)
		}
	})

	t.Run("Active", func(t *testing.T) {
		active := sessions.Active()

		if len(active) != 2 || active[0].ID != first.ID || sessions.Len() != 2 {
			t.Errorf("unexpected active sessions: %+v", active)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		// first was created 24h ago, second 23h ago
		clock.Advance(23*time.Hour - time.Minute + time.Second)

		if _, ok := sessions.Get(first.ID); ok {
			t.Error("expected first session to have expired")
		}

		if _, ok := sessions.Get(second.ID); !ok {
			t.Error("expected second session to still be valid")
		}

		if sessions.Len() != 1 {
			t.Errorf("expected 1 session, got %d", sessions.Len())
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if !sessions.Delete(second.ID) {
			t.Error("expected session to be deleted")
		}

		if sessions.Delete(second.ID) {
			t.Error("expected second delete to report not found")
		}

		if _, ok := sessions.Get(second.ID); ok {
			t.Error("expected deleted session to be gone")
		}
	})
}
