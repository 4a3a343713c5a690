package logger

import (
	"errors"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
)

const simpleTimeFormat = "02-01-2006 15:04:05"

// New constructs a zerolog logger according to the runtime environment.
// Development and test environments receive human readable console logs while
// other environments emit JSON. Custom writers always receive JSON.
func New(env, level string, writers ...io.Writer) (*zerolog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = simpleTimeFormat
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer
	switch {
	case len(writers) > 0:
		output = io.MultiWriter(writers...)
	case isConsoleEnv(env):
		cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: simpleTimeFormat}
		cw.FieldsExclude = []string{zerolog.TimestampFieldName}
		output = cw
	default:
		output = os.Stdout
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(lvl)
	return &logger, nil
}

func isConsoleEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Component tags parent with component=name. A zero parent yields a no-op
// logger so callers can leave their logger dependency unset.
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	if reflect.ValueOf(parent).IsZero() {
		return zerolog.Nop()
	}
	return parent.With().Str("component", name).Logger()
}

// Err attaches err to e together with its taxonomy code and transport name
// when err is a *common.Error.
func Err(e *zerolog.Event, err error) *zerolog.Event {
	e = e.Err(err)
	var ce *common.Error
	if errors.As(err, &ce) {
		e = e.Str("error_code", ce.Code())
		if ce.Transport != "" {
			e = e.Str("transport", ce.Transport)
		}
	}
	return e
}

func parseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, err
	}
	return lvl, nil
}
