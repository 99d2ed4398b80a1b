package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	diagFileName       = "diagnostics_log.txt"
	transcribeFileName = "transcribe_log.txt"
)

var (
	diagLog        zerolog.Logger
	diagWriter     io.WriteCloser
	transcribeFile *os.File
	logMu          sync.Mutex
	pid            int
	dir            string

	// ready is set between Init and Close. Helpers called outside that
	// window are no-ops.
	ready atomic.Bool
)

// Rotation bounds the diagnostics log. Zero values fall back to 5 MB and
// three backups.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: SCRIBE_LOG_PATH environment variable
	if envPath := os.Getenv("SCRIBE_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return defaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init(rot Rotation) error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()
	if rot.MaxSizeMB <= 0 {
		rot.MaxSizeMB = 5
	}
	if rot.MaxBackups <= 0 {
		rot.MaxBackups = 3
	}

	var err error
	transcribeFile, err = os.OpenFile(filepath.Join(dir, transcribeFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	diagWriter = &lumberjack.Logger{
		Filename:   filepath.Join(dir, diagFileName),
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
	}
	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagWriter,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	ready.Store(true)
	diagLog.Info().Msg("log_open")
	return nil
}

func Close() {
	ready.Store(false)
	logMu.Lock()
	defer logMu.Unlock()
	if diagWriter != nil {
		diagWriter.Close()
		diagWriter = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
}

func Info(msg string) {
	if ready.Load() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if ready.Load() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if ready.Load() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if ready.Load() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if ready.Load() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if ready.Load() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// StateChange records a recording state transition.
func StateChange(from, to string) {
	if !ready.Load() {
		return
	}
	diagLog.Info().Str("from", from).Str("to", to).Msg("state_change")
}

// RecognitionError records an error event reported by the recognizer.
func RecognitionError(code, message string, fatal bool) {
	if !ready.Load() {
		return
	}
	ev := diagLog.Warn()
	if fatal {
		ev = diagLog.Error()
	}
	ev.Str("code", code).Str("message", message).Msg("recognition_error")
}

func Restart(attempt int, err error) {
	if !ready.Load() {
		return
	}
	ev := diagLog.Info().Int("attempt", attempt)
	if err != nil {
		ev = diagLog.Warn().Int("attempt", attempt).Err(err)
	}
	ev.Msg("recognition_restart")
}

func SessionStart(engine, language, level string) {
	if !ready.Load() {
		return
	}
	diagLog.Info().
		Str("engine", engine).
		Str("language", language).
		Str("punctuation", level).
		Msg("session_start")
}

func SessionEnd(words int, elapsed time.Duration) {
	if !ready.Load() {
		return
	}
	diagLog.Info().
		Int("words", words).
		Dur("elapsed", elapsed).
		Msg("session_end")
}

// TranscriptionText appends one finished dictation to the transcript log.
// Newlines are flattened so every entry stays on one line.
func TranscriptionText(text string) {
	if !ready.Load() {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	flat := strings.Join(strings.Fields(text), " ")
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, flat)
	transcribeFile.WriteString(line)
}
