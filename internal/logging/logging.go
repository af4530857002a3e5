// Package logging wraps logrus the way the platform's other services do:
// one *Logger per process, structured fields instead of formatted strings,
// level/format selected by configuration.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger so subsystems depend on this package instead
// of importing logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config controls level and format.
type Config struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

// New builds a Logger from Config, defaulting to info/text on bad input.
func New(cfg Config) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: l}
}

// NewDefault builds a Logger at info level, ignoring the component name
// beyond documenting call-site intent; callers that want the field on every
// line should chain WithField("component", name) themselves.
func NewDefault(component string) *Logger {
	return New(Config{Level: "info", Format: "text"})
}

// ForContainer returns an entry pre-populated with the container's id and
// name, the fields every container-scoped log line carries.
func (l *Logger) ForContainer(containerID int64, name string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"container_id":   containerID,
		"container_name": name,
	})
}

// ForModule returns an entry pre-populated with a module name, the fields
// every module-scoped log line carries.
func (l *Logger) ForModule(module string) *logrus.Entry {
	return l.WithField("module", module)
}

// Default is the package-level logger used by code that has no container
// context to attach fields to (e.g. the fleet manager itself).
var Default = New(Config{Level: "info", Format: "text"})
