package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/owltrackers/extension/internal/config"
	"github.com/owltrackers/extension/internal/logging"
	intOtel "github.com/owltrackers/extension/internal/otel"
	"github.com/owltrackers/extension/internal/worker"
)

// app holds the process-wide logging and telemetry setup shared by every
// command
type app struct {
	configDir    string
	sessionStart time.Time

	logManager  *logging.SlogManager
	logger      *slog.Logger
	zlog        zerolog.Logger
	logFile     *os.File
	logFilePath string
	graylog     io.WriteCloser
	otel        *intOtel.Provider

	// set once the sync worker exists; read by the log context provider
	worker atomic.Pointer[worker.Manager]
}

func newApp(configDir string) *app {
	return &app{
		configDir:    configDir,
		sessionStart: time.Now(),
		logManager:   logging.NewSlogManager(),
	}
}

// setup loads the configuration, then routes logs to the session log file,
// the optional Graylog sink and the optional OTel pipeline.
func (a *app) setup(ctx context.Context) error {
	a.logManager.Setup(os.Stderr, "info", nil)
	a.logger = a.logManager.Logger()

	if err := config.Load(a.configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "path", viper.ConfigFileUsed())
	}

	level := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	a.logFilePath = logging.LogFilePath(logsDir, ServiceName, a.sessionStart)
	if _, err := os.Stat(a.logFilePath); err == nil {
		os.Rename(a.logFilePath, a.logFilePath+".old")
	}
	f, err := os.OpenFile(a.logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", a.logFilePath)
	} else {
		a.logFile = f
	}

	if viper.GetBool("graylog.enabled") {
		w, err := logging.NewGraylogWriter(viper.GetString("graylog.address"), ServiceName)
		if err != nil {
			a.logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			a.graylog = w
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var logWriter io.Writer
		if a.logFile != nil {
			logWriter = a.logFile
		}
		provider, err := intOtel.New(ctx, intOtel.FromConfig(otelCfg, logWriter))
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.otel = provider
			a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	var out io.Writer = os.Stderr
	if a.logFile != nil {
		out = a.logFile
	}
	var extra []io.Writer
	if a.graylog != nil {
		extra = append(extra, a.graylog)
	}
	a.logManager.SetContextProvider(logging.SceneAttrs(a.role, a.following))
	a.logManager.Setup(out, level, provider, extra...)
	a.logger = a.logManager.Logger()

	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	var zout io.Writer = os.Stderr
	if a.logFile != nil {
		zout = a.logFile
	}
	a.zlog = zerolog.New(zout).Level(zlevel).With().Timestamp().Str("service", ServiceName).Logger()

	a.logger.Info("Logging to file", "path", a.logFilePath, "version", BuildVersion)
	return nil
}

func (a *app) role() string {
	if w := a.worker.Load(); w != nil {
		return string(w.Role())
	}
	return ""
}

func (a *app) following() bool {
	if w := a.worker.Load(); w != nil {
		return w.Subscribed()
	}
	return false
}

// close flushes telemetry and releases the log sinks
func (a *app) close(ctx context.Context) error {
	var errs []error
	if err := a.logManager.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.graylog != nil {
		if err := a.graylog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
