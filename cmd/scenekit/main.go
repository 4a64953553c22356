package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/internal/dispatcher"
	"github.com/vantagecv/scenekit/v2/internal/handlers"
	"github.com/vantagecv/scenekit/v2/internal/influx"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/monitor"
	intOtel "github.com/vantagecv/scenekit/v2/internal/otel"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/internal/worker"
)

// EngineVersion can be overridden at build time via ldflags.
var (
	EngineVersion string = "2.0.0"
	BuildDate     string = "unknown"
)

// file paths, resolved in init()
var (
	// ConfigDir is where scenekit.cfg.json lives. Defaults to the working
	// directory, overridable with SCENEKIT_CONFIG_DIR.
	ConfigDir string

	LogsDir     string
	LogFilePath string
	LogFile     *os.File
)

// global services
var (
	SlogManager *logging.SlogManager
	Logger      *slog.Logger

	OTelProvider *intOtel.Provider

	// DBLogger is the zerolog instance shared by the database manager and
	// the InfluxDB writer.
	DBLogger zerolog.Logger

	eventDispatcher *dispatcher.Dispatcher
	handlerService  *handlers.Service
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	influxManager   *influx.Manager
	storageBackend  storage.Backend

	SessionStartTime time.Time = time.Now()
)

func init() {
	ConfigDir = os.Getenv("SCENEKIT_CONFIG_DIR")
	if ConfigDir == "" {
		ConfigDir = "."
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(ConfigDir); err != nil {
		if path, werr := config.WriteDefault(ConfigDir); werr == nil {
			Logger.Warn("No config file found, wrote defaults", "path", path)
		} else {
			Logger.Warn("Failed to load config, using defaults", "error", err)
		}
	} else {
		Logger.Info("Loaded config", "dir", ConfigDir)
	}

	LogsDir = viper.GetString("logsDir")
	if err := os.MkdirAll(LogsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logs directory: %v\n", err)
	}

	LogFilePath = logging.LogFilePath(LogsDir, "scenekit", SessionStartTime)

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create log file, logging to stdout only", "error", err, "path", LogFilePath)
	}

	// OTel before the logging re-setup so the slog bridge can attach.
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logWriter(),
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var extras []slog.Handler
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		gelf, gerr := logging.NewGelfHandler(graylogCfg.Address, parseSlogLevel(viper.GetString("logLevel")))
		if gerr != nil {
			Logger.Error("Failed to connect GELF sink", "error", gerr, "address", graylogCfg.Address)
		} else {
			extras = append(extras, gelf)
		}
	}

	SlogManager.Setup(logWriter(), viper.GetString("logLevel"), otelLogProvider, extras...)
	Logger = SlogManager.Logger()
	if LogFile != nil {
		Logger.Info("Logging to file", "path", LogFilePath)
	}

	DBLogger = newConsoleZerolog(viper.GetString("logLevel"))
}

func main() {
	defer shutdown()

	Logger.Info("scenekit starting", "version", EngineVersion, "build", BuildDate)

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		return
	}

	var err error
	switch strings.ToLower(args[0]) {
	case "generate":
		err = runGenerate(false)
	case "demo":
		err = runGenerate(true)
	case "validate":
		err = runValidate(args[1:])
	case "setupdb":
		err = runSetupDB()
	case "export":
		err = runExport(args[1:])
	default:
		usage()
		return
	}

	if err != nil {
		Logger.Error("Command failed", "command", args[0], "error", err)
	}
}

func usage() {
	fmt.Println("usage: scenekit <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  generate            run dataset generation against the configured scene host")
	fmt.Println("  demo                run dataset generation against the in-process simulator")
	fmt.Println("  validate [path]     check the zone manifest and configuration, print violations")
	fmt.Println("  setupdb             connect to the database and migrate the schema")
	fmt.Println("  export <runID> [dir] re-export the COCO document for a persisted run")
}

// logWriter returns the log file, or nil to let the manager fall back
// to stdout.
func logWriter() io.Writer {
	if LogFile == nil {
		return nil
	}
	return LogFile
}

func newConsoleZerolog(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func parseSlogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if monitorService != nil {
		monitorService.Stop()
	}
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shut down telemetry: %v\n", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}
