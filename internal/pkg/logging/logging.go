package logging

import (
	"context"
	"fmt"
	"os"
	"path"

	stdlog "log"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

/*
 *  Provides diagnostics logging for the SDM client, the CLI and the status server
 */

type ctxID int

const (
	requestIDKey ctxID = iota
	correlationIDKey
)

// WithRequestID returns a context which knows its request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// WithCorrelationID returns a context which carries the caller's correlation ID
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok
}

type logger struct {
	logger  *logrus.Entry
	logFile *os.File
}

// The one singleton logger
var gLogger logger
var gInstanceID string

// Logger returns the global logger, tagged with the request and correlation
// IDs if ctx has them
func Logger(ctx context.Context) *logrus.Entry {
	entry := gLogger.logger
	if id, ok := RequestID(ctx); ok {
		entry = entry.WithField("reqid", id)
	}
	if id, ok := CorrelationID(ctx); ok && id != "" {
		entry = entry.WithField("corrid", id)
	}

	return entry
}

// InstanceID identifies this process in log output
func InstanceID() string {
	return gInstanceID
}

func processFields() logrus.Fields {
	return logrus.Fields{
		"pid":      os.Getpid(),
		"exe":      path.Base(os.Args[0]),
		"instance": gInstanceID,
	}
}

func init() {
	// Viper defaults
	viper.SetDefault("logging.location", "stderr")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.level", "info")

	gInstanceID = uuid.New().String()
	gLogger.logger = logrus.WithFields(processFields())
}

// Configure sets the log level and output location/format
func Configure(cfg *viper.Viper) error {
	switch loc := cfg.GetString("logging.location"); loc {
	case "stdout":
		logrus.SetOutput(os.Stdout)
		gLogger.logger = logrus.WithFields(logrus.Fields{})
	case "stderr", "":
		logrus.SetOutput(os.Stderr)
		gLogger.logger = logrus.WithFields(logrus.Fields{})
	default:
		file, err := os.OpenFile(loc, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}

		gLogger.logger.Debugf("Switching system log to %s", loc)
		logrus.SetOutput(file)

		if gLogger.logFile != nil {
			gLogger.logFile.Close()
		}
		gLogger.logFile = file

		// a shared log file needs to say who wrote each line
		gLogger.logger = logrus.WithFields(processFields())
	}

	// Obey the level setting in the config if not already in debug mode
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		level := cfg.GetString("logging.level")
		val, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("bad log level: [%s]", level)
		}
		logrus.SetLevel(val)
	}

	switch format := cfg.GetString("logging.format"); format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("bad log format: [%s]", format)
	}

	// Override the standard system logger
	stdlog.SetOutput(Logger(nil).WriterLevel(logrus.DebugLevel))

	return nil
}
