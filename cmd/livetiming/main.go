package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "c", "./config.yml", "config path")
	flag.Parse()
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	config, err := livetiming.ReadConfig(configPath)

	if err != nil {
		logrus.WithError(err).Fatalf("Could not read config at %s", configPath)
	}

	level, err := logrus.ParseLevel(config.LogLevel)

	if err != nil {
		logrus.WithError(err).Warnf("Unknown log level %q, using info", config.LogLevel)
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)

	logrus.Infof("Starting livetiming")

	if config.GeneratedAdminPassword {
		logrus.Warnf("No admin password set, using generated password for user %s: %s", config.Admin.Username, config.Admin.Password)
	}

	server, err := livetiming.NewServer(config, clockwork.NewRealClock(), logrus.StandardLogger())

	if err != nil {
		logrus.WithError(err).Fatal("Could not initialise server")
	}

	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if config.OpenBrowser {
		go openBrowser(config.HTTP.Hostname)
	}

	if err := server.Run(ctx); err != nil {
		logrus.WithError(err).Fatal("Could not run server")
	}

	logrus.Infof("Server stopped. Exiting")
}

func openBrowser(hostname string) {
	host, port, err := net.SplitHostPort(hostname)

	if err != nil {
		logrus.WithError(err).Warn("Could not work out where to open the browser")
		return
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	if err := browser.OpenURL(fmt.Sprintf("http://%s/display/", net.JoinHostPort(host, port))); err != nil {
		logrus.WithError(err).Warn("Could not open browser")
	}
}
