package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const appName = "mediassist"

const (
	DiagnosticsFile = "diagnostics_log.txt"
	TranscribeFile  = "transcribe_log.txt"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	debug          bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// -logpath flag, then MEDIASSIST_LOG_PATH, then the OS default
	for _, p := range []string{flagPath, os.Getenv("MEDIASSIST_LOG_PATH")} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return p, nil
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, p), nil
	}
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetDebug enables debug-level events. Call before Init.
func SetDebug(on bool) {
	debug = on
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, DiagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribeFile, err = os.OpenFile(filepath.Join(dir, TranscribeFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	initLogger(zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	})
	logReady = true
	return nil
}

func initLogger(w io.Writer) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	diagLog = zerolog.New(w).Level(level).With().Timestamp().Int("pid", pid).Logger()
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Analysis logs a deep-analysis lifecycle event.
func Analysis(jobID, event, status string) {
	if !logReady {
		return
	}
	ev := diagLog.Info().Str("job_id", jobID)
	if status != "" {
		ev = ev.Str("status", status)
	}
	ev.Msg(event)
}

// Recording logs a recording-session lifecycle event.
func Recording(sessionID, event string, fields map[string]any) {
	if !logReady {
		return
	}
	diagLog.Info().Str("session_id", sessionID).Fields(fields).Msg(event)
}

func TranscriptionMetrics(provider string, payloadKB, encodedKB float64, total time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Float64("payload_kb", payloadKB).
		Float64("encoded_kb", encodedKB).
		Int64("total_ms", total.Milliseconds()).
		Msg("transcription")
}

func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionStart(backend, provider string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("backend", backend).
		Str("provider", provider).
		Msg("session_start")
}

func SessionEnd(analyses, transcriptions int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("analyses", analyses).
		Int("transcriptions", transcriptions).
		Msg("session_end")
}
