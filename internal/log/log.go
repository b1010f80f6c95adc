// Package log is daygrid's minimal leveled key=value logger. Lines go to
// stderr with an RFC3339 timestamp:
//
//	2025-01-01T00:00:00Z [LEVEL] msg key=value ...
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.Mutex
	logger   = stdlog.New(os.Stderr, "", 0)
	minLevel = LevelInfo
)

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// SetOutput redirects log output; tests use this to silence or capture
// diagnostics.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger.SetOutput(w)
	mu.Unlock()
}

func Debug(msg string, kv ...any) {
	write(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	write(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	write(LevelWarn, msg, kv...)
}

// Error logs msg with err prepended to the key-value list as "err".
func Error(msg string, err error, kv ...any) {
	write(LevelError, msg, append([]any{"err", err}, kv...)...)
}

func write(level Level, msg string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()

	if severity(level) < severity(minLevel) {
		return
	}

	line := time.Now().Format(time.RFC3339Nano) + " [" + string(level) + "] " + msg
	// kv comes in pairs; a trailing odd value is ignored.
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		line += " " + key + "=" + fmt.Sprint(kv[i+1])
	}

	logger.Println(line)
}

func severity(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}
