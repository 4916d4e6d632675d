package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	base    = newBase()
	buffer  = NewBuffer(0)
	loggers = make(map[string]*logrus.Entry)
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Setup applies cfg to every component logger. Lines are written to stderr
// and to the shared Buffer.
func Setup(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	levelStr := "info"
	if env := os.Getenv("MOTIONSENSE_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if cfg.Level != "" {
		levelStr = cfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch cfg.Format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.BufferLines > 0 {
		buffer.Resize(cfg.BufferLines)
	}
	base.SetOutput(io.MultiWriter(os.Stderr, buffer))
}

// New returns the logger for a component. Loggers share one configuration.
func New(component string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	if e, ok := loggers[component]; ok {
		return e
	}
	e := base.WithField("component", component)
	loggers[component] = e
	return e
}

// SharedBuffer is the in-memory tail that Setup writes into.
func SharedBuffer() *Buffer { return buffer }

// SetOutput redirects every component logger, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// IsDebug reports whether debug lines are emitted.
func IsDebug() bool {
	return base.IsLevelEnabled(logrus.DebugLevel)
}

// SetDebug toggles between debug and info level.
func SetDebug(on bool) {
	if on {
		base.SetLevel(logrus.DebugLevel)
		return
	}
	base.SetLevel(logrus.InfoLevel)
}
