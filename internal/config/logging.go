package config

import (
	"github.com/sirupsen/logrus"
)

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func ConfigureLogging(cfg Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
