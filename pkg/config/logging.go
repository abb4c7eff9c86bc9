package config

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type LoggingSettings struct {
	Level  string
	Format string `validate:"omitempty,oneof=text json"`
}

// ConfigureLogging sets up the standard logrus logger.
func ConfigureLogging(s LoggingSettings) error {
	level := log.InfoLevel
	if s.Level != "" {
		parsed, err := log.ParseLevel(s.Level)
		if err != nil {
			return errors.Wrapf(err, "log level %q", s.Level)
		}
		level = parsed
	}
	log.SetLevel(level)
	if s.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)
	return nil
}
