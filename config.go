package livetiming

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-diceware/diceware"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"justapengu.in/livetiming/internal/timing"
)

const (
	defaultHostname         = "0.0.0.0:8080"
	defaultTelemetryAddress = "0.0.0.0:20777"
	defaultStaticDir        = "static"
	defaultExportDir        = "exports"
	defaultAdminUsername    = "admin"
	defaultSessionMaxAge    = 24 * 60 * 60
	defaultLogLevel         = "info"
	defaultSubjectPrefix    = "livetiming"

	generatedPasswordWords = 4
)

const (
	envAdminUsername    = "LIVETIMING_ADMIN_USERNAME"
	envAdminPassword    = "LIVETIMING_ADMIN_PASSWORD"
	envSessionKey       = "LIVETIMING_SESSION_KEY"
	envHTTPHostname     = "LIVETIMING_HTTP_HOSTNAME"
	envTelemetryAddress = "LIVETIMING_TELEMETRY_ADDRESS"
	envNATSURL          = "LIVETIMING_NATS_URL"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Admin     AdminConfig     `yaml:"admin"`
	NATS      NATSConfig      `yaml:"nats"`
	Export    ExportConfig    `yaml:"export"`

	LogLevel    string `yaml:"log_level"`
	OpenBrowser bool   `yaml:"open_browser"`

	// Users are added to the roster at startup.
	Users []timing.User `yaml:"users"`

	// GeneratedAdminPassword is true when Admin.Password was not configured and a
	// passphrase was made up instead.
	GeneratedAdminPassword bool `yaml:"-"`
}

type HTTPConfig struct {
	Hostname       string `yaml:"hostname"`
	StaticDir      string `yaml:"static_dir"`
	SessionKey     string `yaml:"session_key"`
	MaxConnections int    `yaml:"max_connections"`
}

type TelemetryConfig struct {
	Disabled bool   `yaml:"disabled"`
	Address  string `yaml:"address"`
}

type AdminConfig struct {
	Username string `yaml:"username"`

	// Password is the plain text admin password. It is hashed at startup and not kept.
	Password string `yaml:"password"`

	// SessionMaxAge is in seconds.
	SessionMaxAge int `yaml:"session_max_age"`

	// Accounts are further admin logins, alongside Username.
	Accounts []AdminAccount `yaml:"accounts"`
}

type AdminAccount struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// ReadConfig loads .env if there is one, then the YAML config at path. A missing
// config file is not an error, defaults are used for everything that isn't set.
func ReadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "livetiming: could not load .env")
	}

	config := &Config{}

	f, err := os.Open(path)

	if os.IsNotExist(err) {
		logrus.Warnf("No config file found at %s, using defaults", path)
	} else if err != nil {
		return nil, errors.Wrapf(err, "livetiming: could not open config %s", path)
	} else {
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(config); err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "livetiming: could not parse config %s", path)
		}
	}

	config.applyEnvironment(os.LookupEnv)

	if err := config.setDefaults(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyEnvironment(lookup func(key string) (string, bool)) {
	for key, field := range map[string]*string{
		envAdminUsername:    &c.Admin.Username,
		envAdminPassword:    &c.Admin.Password,
		envSessionKey:       &c.HTTP.SessionKey,
		envHTTPHostname:     &c.HTTP.Hostname,
		envTelemetryAddress: &c.Telemetry.Address,
		envNATSURL:          &c.NATS.URL,
	} {
		if value, ok := lookup(key); ok && value != "" {
			*field = value
		}
	}
}

func (c *Config) setDefaults() error {
	if c.HTTP.Hostname == "" {
		c.HTTP.Hostname = defaultHostname
	}

	if c.HTTP.StaticDir == "" {
		c.HTTP.StaticDir = defaultStaticDir
	}

	if c.HTTP.SessionKey == "" {
		key, err := randomKey()

		if err != nil {
			return err
		}

		c.HTTP.SessionKey = key
	}

	if c.Telemetry.Address == "" {
		c.Telemetry.Address = defaultTelemetryAddress
	}

	if c.Admin.Username == "" {
		c.Admin.Username = defaultAdminUsername
	}

	if c.Admin.Password == "" {
		words, err := diceware.Generate(generatedPasswordWords)

		if err != nil {
			return errors.Wrap(err, "livetiming: could not generate admin password")
		}

		c.Admin.Password = strings.Join(words, "-")
		c.GeneratedAdminPassword = true
	}

	if c.Admin.SessionMaxAge <= 0 {
		c.Admin.SessionMaxAge = defaultSessionMaxAge
	}

	if c.Export.Dir == "" {
		c.Export.Dir = defaultExportDir
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = defaultSubjectPrefix
	}

	for i, account := range c.Admin.Accounts {
		if strings.TrimSpace(account.Username) == "" || account.Password == "" {
			return errors.Errorf("livetiming: admin.accounts[%d] needs a username and a password", i)
		}
	}

	for i, user := range c.Users {
		if strings.TrimSpace(user.Name) == "" || strings.TrimSpace(user.Team) == "" {
			return errors.Wrapf(timing.ErrInvalidUser, "livetiming: users[%d] needs a name and a team", i)
		}
	}

	return nil
}

// randomKey is used for the session cookie key when none is configured.
func randomKey() (string, error) {
	b := make([]byte, 32)

	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "livetiming: could not generate session key")
	}

	return hex.EncodeToString(b), nil
}
