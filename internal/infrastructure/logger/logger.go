package logger

import (
	"os"
	"strings"

	"ridepay/internal/config"

	"github.com/sirupsen/logrus"
)

// New builds the process logger from the log section of the config.
// Unknown levels fall back to info.
func New(cfg *config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
