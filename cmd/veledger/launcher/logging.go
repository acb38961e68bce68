package launcher

import (
	"fmt"
	"io"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

var verbosityLevels = []logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

// makeLogger builds the process logger. Errors and worse are also reported to
// Sentry when a DSN is configured.
func makeLogger(cfg LoggingConfig, name string, out io.Writer) (*logrus.Entry, error) {
	if cfg.Verbosity < 0 || cfg.Verbosity >= len(verbosityLevels) {
		return nil, fmt.Errorf("log verbosity %d out of range 0..%d", cfg.Verbosity, len(verbosityLevels)-1)
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(verbosityLevels[cfg.Verbosity])

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
			FullTimestamp: true,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		logger.AddHook(hook)
	}
	return logger.WithField("instance", name), nil
}
