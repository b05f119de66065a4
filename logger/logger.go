package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
)

const maxBufferedLogs = 500

var (
	logger    = logging.MustGetLogger("sing-l2tp")
	logBuffer []struct {
		time  string
		level logging.Level
		log   string
	}
	bufferMu sync.Mutex
)

func InitLogger(level logging.Level) {
	newLogger := logging.MustGetLogger("sing-l2tp")
	backend := logging.NewLogBackend(os.Stderr, "", 0)

	// journald stamps its own time
	format := logging.MustStringFormatter(`%{time:2006/01/02 15:04:05} %{level:.4s} - %{message}`)
	if os.Getenv("INVOCATION_ID") != "" {
		format = logging.MustStringFormatter(`%{level:.4s} - %{message}`)
	}

	backendFormatter := logging.NewBackendFormatter(backend, format)
	backendLeveled := logging.AddModuleLevel(backendFormatter)
	backendLeveled.SetLevel(level, "sing-l2tp")
	newLogger.SetBackend(backendLeveled)

	logger = newLogger
}

func Debug(args ...interface{}) {
	logger.Debug(args...)
	addToBuffer(logging.DEBUG, fmt.Sprint(args...))
}

func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
	addToBuffer(logging.DEBUG, fmt.Sprintf(format, args...))
}

func Info(args ...interface{}) {
	logger.Info(args...)
	addToBuffer(logging.INFO, fmt.Sprint(args...))
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
	addToBuffer(logging.INFO, fmt.Sprintf(format, args...))
}

func Warning(args ...interface{}) {
	logger.Warning(args...)
	addToBuffer(logging.WARNING, fmt.Sprint(args...))
}

func Warningf(format string, args ...interface{}) {
	logger.Warningf(format, args...)
	addToBuffer(logging.WARNING, fmt.Sprintf(format, args...))
}

func Error(args ...interface{}) {
	logger.Error(args...)
	addToBuffer(logging.ERROR, fmt.Sprint(args...))
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
	addToBuffer(logging.ERROR, fmt.Sprintf(format, args...))
}

func addToBuffer(level logging.Level, newLog string) {
	t := time.Now()
	bufferMu.Lock()
	defer bufferMu.Unlock()
	if len(logBuffer) >= maxBufferedLogs {
		logBuffer = logBuffer[1:]
	}
	logBuffer = append(logBuffer, struct {
		time  string
		level logging.Level
		log   string
	}{
		time:  t.Format("2006/01/02 15:04:05"),
		level: level,
		log:   newLog,
	})
}

// GetLogs returns up to c buffered lines, newest first, at or above level.
func GetLogs(c int, level string) []string {
	minLevel, err := logging.LogLevel(strings.ToUpper(level))
	if err != nil {
		minLevel = logging.DEBUG
	}
	bufferMu.Lock()
	defer bufferMu.Unlock()
	var output []string
	for i := len(logBuffer) - 1; i >= 0 && len(output) < c; i-- {
		if logBuffer[i].level <= minLevel {
			output = append(output, fmt.Sprintf("%s %s - %s", logBuffer[i].time, logBuffer[i].level, logBuffer[i].log))
		}
	}
	return output
}
