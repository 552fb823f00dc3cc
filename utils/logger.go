package utils

import (
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Packages should prefer WithComponent.
var Log = logrus.New()

// InitLogger configures level, format and outputs. Production uses JSON,
// anything else a readable text format. When logFile is set the output is
// duplicated into that file.
func InitLogger(level, logFile string, production bool) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if production {
		Log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	if logFile == "" {
		Log.SetOutput(os.Stdout)
		return nil
	}

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		Log.SetOutput(os.Stdout)
		return err
	}
	Log.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// WithComponent returns an entry tagged with the subsystem name
func WithComponent(component string) *logrus.Entry {
	return Log.WithField("component", component)
}

// WithRequest returns an entry tagged with the fiber request id and path
func WithRequest(c *fiber.Ctx) *logrus.Entry {
	entry := Log.WithField("path", c.Path())
	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	return entry
}
