package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/camera"
	"github.com/vantagecv/scenekit/v2/internal/channel"
	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/internal/database"
	"github.com/vantagecv/scenekit/v2/internal/dispatcher"
	"github.com/vantagecv/scenekit/v2/internal/handlers"
	"github.com/vantagecv/scenekit/v2/internal/influx"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/manifest"
	"github.com/vantagecv/scenekit/v2/internal/model"
	"github.com/vantagecv/scenekit/v2/internal/model/convert"
	"github.com/vantagecv/scenekit/v2/internal/monitor"
	"github.com/vantagecv/scenekit/v2/internal/pipeline"
	"github.com/vantagecv/scenekit/v2/internal/pool"
	"github.com/vantagecv/scenekit/v2/internal/scenehost"
	"github.com/vantagecv/scenekit/v2/internal/spacing"
	"github.com/vantagecv/scenekit/v2/internal/spawner"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	"github.com/vantagecv/scenekit/v2/internal/storage/factory"
	"github.com/vantagecv/scenekit/v2/internal/worker"
	"github.com/vantagecv/scenekit/v2/internal/zone"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// runGenerate executes one full generation run. With useSimulator the
// in-process scene host stands in for the remote engine, which is the
// demo path and the only difference between the two subcommands.
func runGenerate(useSimulator bool) error {
	if violations := config.Validate(); len(violations) > 0 {
		for _, v := range violations {
			Logger.Error("Configuration violation", "violation", v)
		}
		// Structurally invalid config is the one hard-exit condition.
		shutdown()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := config.GetRunConfig()
	hostCfg := config.GetSceneHostConfig()
	cameraCfg := config.GetCameraConfig()

	host, err := buildHost(ctx, useSimulator, hostCfg)
	if err != nil {
		return err
	}

	registry := zone.NewRegistry(Logger)
	manifestPath := viper.GetString("manifest.path")
	loaded, err := manifest.NewLoader(Logger).LoadFile(manifestPath, registry)
	switch {
	case err == nil:
		Logger.Info("Zone manifest loaded", "path", manifestPath, "zones", loaded)
	case useSimulator:
		Logger.Warn("No usable zone manifest, registering demo zones", "path", manifestPath, "error", err)
		registerDemoZones(registry)
	default:
		return fmt.Errorf("failed to load zone manifest %s: %w", manifestPath, err)
	}
	if violations := registry.Validate(); len(violations) > 0 {
		for _, v := range violations {
			Logger.Error("Zone manifest violation", "violation", v)
		}
		return fmt.Errorf("zone manifest failed validation with %d violations", len(violations))
	}

	spawnCfg := config.GetSpawnerConfig()
	spacingCfg := config.GetSpacingConfig()

	actorPool := pool.New(host, spawnCfg.ActorPools, Logger)
	checker := spacing.NewChecker(host, spacingCfg.MarginCm, spacingCfg.MinCenterDistanceCm, Logger)
	sp := spawner.New(registry, actorPool, checker, spawnCfg, Logger)

	eventDispatcher, err = dispatcher.New(logging.NewConsoleDispatcherLogger(viper.GetString("logLevel")))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	storageBackend, err = factory.NewBackend(config.GetStorageConfig(), SlogManager, DBLogger)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := storageBackend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer storageBackend.Close()

	if config.GetInfluxConfig().Enabled {
		influxManager = influx.NewManager(DBLogger, filepath.Join(LogsDir, "influx_backup.gz"))
		if err := influxManager.Connect(); err != nil {
			Logger.Warn("InfluxDB unavailable, generation metrics disabled", "error", err)
			influxManager = nil
		}
	}

	workerManager = worker.NewManager(worker.Dependencies{LogManager: SlogManager}, storageBackend)
	workerManager.RegisterHandlers(eventDispatcher)

	runContext := handlers.NewRunContext()
	handlerService = handlers.NewService(handlers.Dependencies{
		LogManager: SlogManager,
		Influx:     influxManager,
	}, runContext)
	handlerService.RegisterHandlers(eventDispatcher)

	frames := channel.New[storage.FrameRecord](256)
	failures := channel.New[storage.FailureRecord](64)
	workerManager.Start(frames, failures)

	monitorService = monitor.NewService(monitor.Dependencies{
		LogManager:    SlogManager,
		Handlers:      handlerService,
		WorkerManager: workerManager,
		Frames:        frames,
		Failures:      failures,
		Influx:        influxManager,
		StatusDir:     LogsDir,
		Interval:      viper.GetDuration("monitor.interval"),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Failed to start run monitor", "error", err)
	}

	coord := pipeline.New(pipeline.Dependencies{
		Spawner:    sp,
		Camera:     camera.NewController(cameraCfg, Logger),
		Generator:  annotation.NewGenerator(config.GetAnnotationConfig(), Logger),
		Validator:  annotation.NewValidator(config.GetValidationConfig(), Logger),
		Host:       host,
		Dispatcher: eventDispatcher,
		LogManager: SlogManager,
		RunContext: runContext,
		Frames:     frames,
		Failures:   failures,
	}, pipeline.Config{
		Experiment:   runCfg.Experiment,
		AssetID:      assetIDFromLevelPath(hostCfg.LevelPath),
		Seed:         runCfg.Seed,
		TargetFrames: runCfg.Frames,
		OutputDir:    runCfg.OutputDir,
		ImageWidth:   cameraCfg.ImageWidth,
		ImageHeight:  cameraCfg.ImageHeight,
		CaptureActor: hostCfg.CaptureActor,
		Settings:     viper.AllSettings(),
	})

	stats, err := coord.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Generated %d frames (%d failed attempts) into %s\n",
		stats.FramesGenerated, stats.FramesFailed, runCfg.OutputDir)
	return nil
}

// buildHost resolves the scene host: the in-process simulator or the
// remote HTTP control API, healthchecked before any placement work.
func buildHost(ctx context.Context, useSimulator bool, cfg config.SceneHostConfig) (scenehost.Host, error) {
	if useSimulator || cfg.Mode == "simulator" {
		Logger.Info("Using in-process scene simulator")
		return scenehost.NewSimulator(), nil
	}

	client := scenehost.NewClient(cfg.URL, cfg.LevelPath, cfg.CaptureActor, cfg.Timeout)
	if err := client.Healthcheck(ctx); err != nil {
		return nil, fmt.Errorf("scene host unreachable at %s: %w", cfg.URL, err)
	}
	Logger.Info("Connected to scene host", "url", cfg.URL, "level", cfg.LevelPath)
	return client, nil
}

// registerDemoZones sets up a small parking lot and a two-lane road in
// front of the fixed camera so the demo subcommand works without a
// manifest file.
func registerDemoZones(registry *zone.Registry) {
	lot := &zone.ParkingZone{
		ZoneMeta: zone.ZoneMeta{
			ID:      "demo_lot",
			AssetID: "demo",
			Enabled: true,
			Bounds: zone.Box{
				BoxCenter: core.Vector3{X: 5000},
				Size:      core.Vector3{X: 3000, Y: 2000, Z: 500},
			},
		},
	}
	for i := 0; i < 8; i++ {
		lot.Slots = append(lot.Slots, &zone.ParkingSlot{
			ID: fmt.Sprintf("demo_slot_%d", i+1),
			Transform: core.Transform{
				Location: core.Vector3{X: 4000 + float64(i%4)*400, Y: -600 + float64(i/4)*1200},
				Rotation: core.Rotation3{Yaw: 90},
			},
		})
	}
	registry.Register(lot)

	registry.Register(&zone.RoadZone{
		ZoneMeta: zone.ZoneMeta{
			ID:      "demo_road",
			AssetID: "demo",
			Enabled: true,
			Bounds: zone.Box{
				BoxCenter: core.Vector3{X: 8000},
				Size:      core.Vector3{X: 2000, Y: 6000, Z: 500},
			},
		},
		Lanes: []zone.Lane{
			{LateralOffset: -300, Width: 350},
			{LateralOffset: 300, Width: 350},
		},
		Direction: zone.DirectionBidirectional,
	})
}

// runValidate loads the zone manifest and checks the configuration,
// printing every violation instead of stopping at the first.
func runValidate(args []string) error {
	manifestPath := viper.GetString("manifest.path")
	if len(args) > 0 {
		manifestPath = args[0]
	}

	clean := true

	if violations := config.Validate(); len(violations) > 0 {
		clean = false
		for _, v := range violations {
			fmt.Printf("config: %s\n", v)
		}
	}

	registry := zone.NewRegistry(Logger)
	loaded, err := manifest.NewLoader(Logger).LoadFile(manifestPath, registry)
	if err != nil {
		fmt.Printf("manifest: %v\n", err)
		return fmt.Errorf("manifest %s failed to load", manifestPath)
	}
	if violations := registry.Validate(); len(violations) > 0 {
		clean = false
		for _, v := range violations {
			fmt.Printf("manifest: %s\n", v)
		}
	}

	if !clean {
		return fmt.Errorf("validation found problems")
	}
	fmt.Printf("OK: %d zones, configuration valid\n", loaded)
	return nil
}

// runSetupDB connects to the configured database and migrates the schema.
func runSetupDB() error {
	manager := database.NewManager(DBLogger)
	if err := manager.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := manager.Setup(); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if manager.ShouldSaveLocal {
		Logger.Info("Schema migrated on local SQLite fallback", "path", manager.SqliteFilePath)
	} else {
		Logger.Info("Schema migrated", "database", viper.GetString("db.database"))
	}
	return nil
}

// runExport rebuilds the COCO document for a persisted run from the
// database and writes it under the output directory.
func runExport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: export <runID> [outputDir]")
	}
	runID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}
	outputDir := config.GetRunConfig().OutputDir
	if len(args) > 1 {
		outputDir = args[1]
	}

	manager := database.NewManager(DBLogger)
	if err := manager.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	var run model.Run
	if err := manager.DB.First(&run, runID).Error; err != nil {
		return fmt.Errorf("run %d not found: %w", runID, err)
	}

	var rows []model.Frame
	err = manager.DB.
		Preload("Annotations").
		Where("run_id = ? AND accepted = ?", runID, true).
		Order("frame_index").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to load frames for run %d: %w", runID, err)
	}

	builder := annotation.NewDatasetBuilder()
	for _, row := range rows {
		builder.AddFrame(convert.RowToFrame(row))
	}
	dataset := builder.Dataset()

	annotationsDir := filepath.Join(outputDir, "annotations")
	if err := os.MkdirAll(annotationsDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", annotationsDir, err)
	}
	cocoPath := filepath.Join(annotationsDir, "instances.json")
	if err := writeJSON(cocoPath, dataset); err != nil {
		return fmt.Errorf("failed to write COCO document: %w", err)
	}

	Logger.Info("Run exported",
		"run", run.RunName,
		"frames", len(rows),
		"annotations", len(dataset.Annotations),
		"path", cocoPath)
	fmt.Printf("Exported %d frames from run %q to %s\n", len(rows), run.RunName, cocoPath)
	return nil
}

// assetIDFromLevelPath extracts the asset name from an engine level
// path like /Game/automobileV2.automobileV2.
func assetIDFromLevelPath(levelPath string) string {
	base := filepath.Base(levelPath)
	if i := strings.LastIndex(base, "."); i >= 0 && i+1 < len(base) {
		return base[i+1:]
	}
	return base
}

func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
