// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w. Outside "dev" it emits JSON so log
// shippers can index fields; in dev it uses the text formatter.
func New(env, level string, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	if strings.EqualFold(env, "dev") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		log.WithField("level", level).Warn("unknown log level, using info")
	}
	log.SetLevel(lvl)
	return log
}

// Setup configures the standard logger the same way as New and returns it,
// so packages that log through logrus directly share the settings.
func Setup(env, level string) *logrus.Logger {
	std := logrus.StandardLogger()
	configured := New(env, level, os.Stdout)
	std.SetOutput(configured.Out)
	std.SetFormatter(configured.Formatter)
	std.SetLevel(configured.Level)
	return std
}
