package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// swapWriter lets tests redirect output after child loggers were derived.
type swapWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *swapWriter) swap(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.w
	s.w = w
	return prev
}

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
	output     = &swapWriter{w: os.Stdout}
)

// Logger returns the shared structured logger used across the service.
// Lines are JSON objects with ts, level and msg keys.
func Logger() *zerolog.Logger {
	loggerOnce.Do(func() {
		zerolog.TimestampFieldName = "ts"
		zerolog.MessageFieldName = "msg"
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
		logger = zerolog.New(output).With().Timestamp().Logger()
	})
	return &logger
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// SetOutput redirects all log output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	Logger()
	return output.swap(w)
}

// SetLevel adjusts the global minimum level ("debug", "info", "warn", ...).
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// LogRequest emits a structured JSON log line with common HTTP fields.
// "msg" and "level" keys in entry are lifted into the line header.
func LogRequest(entry map[string]any) {
	msg, _ := entry["msg"].(string)
	level, _ := entry["level"].(string)
	fields := make(map[string]any, len(entry))
	for k, v := range entry {
		if k == "msg" || k == "level" {
			continue
		}
		fields[k] = v
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	Logger().WithLevel(lvl).Fields(fields).Msg(msg)
}
