package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LevelEnv names the environment variable holding the minimum log level.
const LevelEnv = "LOG_LEVEL"

// NewLogger returns a zerolog logger configured for console output on stderr.
// Stdout stays free for the record counts printed by dry runs.
func NewLogger() zerolog.Logger {
	return New(os.Stderr, ParseLevel(os.Getenv(LevelEnv)))
}

// New returns a console logger writing to out at the given level.
func New(out io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", short, line))
	}
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

// ParseLevel maps a zerolog level name to its level, defaulting to info
// when the name is empty or unknown.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
