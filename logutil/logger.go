package logutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var mu sync.Mutex
var loggers = make(map[string]*Logger)

// Logger is a named logrus logger.
type Logger struct {
	logrus.Logger

	name string
}

// Format ...
func (l *Logger) Format(e *logrus.Entry) ([]byte, error) {
	const timeFormat = "2006/01/02 15:04:05.000000"
	timestamp := e.Time.Format(timeFormat)

	str := fmt.Sprintf("%v %s[%d] <%v>: %v",
		timestamp,
		l.name,
		os.Getpid(),
		strings.ToUpper(e.Level.String()),
		e.Message)

	if len(e.Data) != 0 {
		str += fmt.Sprintf(" %v", e.Data)
	}

	str += "\n"
	return []byte(str), nil
}

func newLogger(name string) *Logger {
	l := &Logger{name: name}
	l.Out = os.Stderr
	l.Formatter = l
	l.Level = logrus.InfoLevel
	l.Hooks = make(logrus.LevelHooks)
	l.ExitFunc = os.Exit
	return l
}

// GetLogger returns the logger mapped to name, creating it on first use.
func GetLogger(name string) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger, ok := loggers[name]; ok {
		return logger
	}
	logger := newLogger(name)
	loggers[name] = logger
	return logger
}

// SetLogLevel sets lvl on every registered logger.
func SetLogLevel(lvl logrus.Level) {
	mu.Lock()
	defer mu.Unlock()

	for _, logger := range loggers {
		logger.SetLevel(lvl)
	}
}

// SetOutput redirects every registered logger to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	for _, logger := range loggers {
		logger.SetOutput(w)
	}
}

// ParseLevel ...
func ParseLevel(s string) (logrus.Level, error) {
	return logrus.ParseLevel(s)
}
