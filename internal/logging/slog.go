package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// swapped by tests
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// timeLayout keeps milliseconds, steps are shorter than a second.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SlogManager builds the process logger: text on the session file (stdout
// when there is none), the OTel bridge when a provider is given and any
// extra sinks such as GELF. Session attributes are added to every record.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider

	extra   []slog.Handler
	context ContextProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts the slog level names in any case. Anything else is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.TimeKey || len(groups) > 0 {
				return a
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.UTC().Format(timeLayout))
			}
			return a
		},
	}
}

// AddHandler registers an extra sink. It takes effect at the next Setup.
func (m *SlogManager) AddHandler(h slog.Handler) {
	m.extra = append(m.extra, h)
}

// SetContextProvider sets the attributes appended to every record. It
// takes effect at the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.context = p
}

// Setup (re)builds the logger. A nil provider leaves the OTel bridge out.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	if file == nil {
		file = osStdout
	}
	m.logProvider = provider

	sinks := []slog.Handler{slog.NewTextHandler(file, handlerOptions(parseLevel(level)))}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler("mk8gym", otelslog.WithLoggerProvider(provider)))
	}
	var h slog.Handler = NewFanout(append(sinks, m.extra...)...)
	if m.context != nil {
		h = newSessionHandler(h, m.context)
	}

	m.logger = slog.New(h)
	m.logger.Debug("logger ready", "level", parseLevel(level).String(), "sinks", len(sinks)+len(m.extra))
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes pending OTel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// WriteLog writes one entry tagged with the calling function. The storage
// backends report through it.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
