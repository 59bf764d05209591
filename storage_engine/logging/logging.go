// Package logging provides the process-wide logger every component in
// this engine writes through. Grounded on the teacher pack's
// zhukovaskychina-xmysql-server/logger package: a logrus.Logger singleton,
// initialised once, exposing level-qualified free functions so callers
// never have to thread a logger instance through constructors.
//
// The log directory is selectable via STORAGE_ENGINE_LOG_DIR, per the
// engine's external-interfaces contract. When unset, logs go to stderr.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const logDirEnvVar = "STORAGE_ENGINE_LOG_DIR"

var (
	once   sync.Once
	logger *logrus.Logger
)

func ensure() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})

		dir := os.Getenv(logDirEnvVar)
		if dir == "" {
			logger.SetOutput(os.Stderr)
			return
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.SetOutput(os.Stderr)
			logger.Warnf("logging: could not create log dir %s, falling back to stderr: %v", dir, err)
			return
		}

		file, err := os.OpenFile(filepath.Join(dir, "storage_engine.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.SetOutput(os.Stderr)
			logger.Warnf("logging: could not open log file in %s, falling back to stderr: %v", dir, err)
			return
		}
		logger.SetOutput(file)
	})
	return logger
}

// Info logs at info level.
func Info(args ...interface{}) { ensure().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) { ensure().Infof(format, args...) }

// Warn logs at warning level.
func Warn(args ...interface{}) { ensure().Warn(args...) }

// Warnf logs a formatted message at warning level.
func Warnf(format string, args ...interface{}) { ensure().Warnf(format, args...) }

// Error logs at error level.
func Error(args ...interface{}) { ensure().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) { ensure().Errorf(format, args...) }
