package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/logging"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/otel"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/session"
)

// logs is everything setupLogging opens.
type logs struct {
	dir      string
	path     string
	manager  *logging.SlogManager
	logger   *slog.Logger
	zerolog  zerolog.Logger
	provider *otel.Provider

	closers []io.Closer
}

// setupLogging opens the session log file and builds both loggers. The OTel
// provider carries the Prometheus metrics and, when enabled, a JSON copy of
// every record. sc may be nil for one-shot commands.
func setupLogging(name string, sc *session.Context) (*logs, error) {
	l := &logs{dir: viper.GetString("logsDir"), manager: logging.NewSlogManager()}
	level := viper.GetString("logLevel")

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	l.path = logging.LogFilePath(l.dir, name, time.Now())
	if _, err := os.Stat(l.path); err == nil {
		_ = os.Rename(l.path, l.path+".old")
	}
	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l.closers = append(l.closers, file)

	oc := config.GetOTelConfig()
	otelCfg := otel.Config{
		Enabled:      oc.Enabled,
		ServiceName:  oc.ServiceName,
		BatchTimeout: oc.BatchTimeout,
		Endpoint:     oc.Endpoint,
		Insecure:     oc.Insecure,
		Metrics:      oc.MetricsAddr != "",
	}
	if oc.Enabled {
		otelFile, err := os.OpenFile(filepath.Join(l.dir, name+".otel.jsonl"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			l.close()
			return nil, fmt.Errorf("opening otel log file: %w", err)
		}
		l.closers = append(l.closers, otelFile)
		otelCfg.LogWriter = otelFile
	}
	l.provider, err = otel.New(otelCfg)
	if err != nil {
		l.close()
		return nil, fmt.Errorf("otel: %w", err)
	}

	if gc := config.GetGraylogConfig(); gc.Enabled {
		h, closer, err := logging.NewGELFHandler(gc.Address, name, level)
		if err != nil {
			// not fatal, the file log still works
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			l.manager.AddHandler(h)
			l.closers = append(l.closers, closer)
		}
	}
	if sc != nil {
		l.manager.SetContextProvider(sc.LogAttrs)
	}

	l.manager.Setup(io.MultiWriter(os.Stdout, file), level, l.provider.LoggerProvider())
	l.logger = l.manager.Logger()
	l.zerolog = logging.NewZerolog(file, level)
	l.logger.Info("logging to file", "path", l.path, "otel", l.provider.Enabled())
	return l, nil
}

// close flushes the pipelines and closes the files in reverse order.
func (l *logs) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if l.manager != nil {
		errs = append(errs, l.manager.Flush(ctx))
	}
	if l.provider != nil {
		errs = append(errs, l.provider.Shutdown(ctx))
	}
	for i := len(l.closers) - 1; i >= 0; i-- {
		errs = append(errs, l.closers[i].Close())
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "closing logs: %v\n", err)
	}
}
