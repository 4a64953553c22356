package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// ConfigFileName is the JSON config file looked up in the config directory.
const ConfigFileName = "scenekit.cfg.json"

// Load reads configuration from the JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// WriteDefault writes a config file populated with defaults into configDir
// when none exists yet. Returns the written path.
func WriteDefault(configDir string) (string, error) {
	setDefaults()
	path := configDir + "/" + ConfigFileName
	viper.SetConfigType("json")
	if err := viper.SafeWriteConfigAs(path); err != nil {
		return "", fmt.Errorf("error writing default config: %v", err)
	}
	return path, nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("manifest.path", "./zones.manifest.json")

	viper.SetDefault("run.seed", 42)
	viper.SetDefault("run.frames", 1000)
	viper.SetDefault("run.experiment", "scenekit")
	viper.SetDefault("run.outputDir", "./output")

	viper.SetDefault("spawn.count.singleWeight", 0.20)
	viper.SetDefault("spawn.count.smallWeight", 0.50)
	viper.SetDefault("spawn.count.largeWeight", 0.30)
	viper.SetDefault("spawn.count.smallMin", 2)
	viper.SetDefault("spawn.count.smallMax", 4)
	viper.SetDefault("spawn.count.largeMin", 5)
	viper.SetDefault("spawn.count.largeMax", 6)

	viper.SetDefault("spawn.classWeights.car", 0.35)
	viper.SetDefault("spawn.classWeights.truck", 0.25)
	viper.SetDefault("spawn.classWeights.bus", 0.15)
	viper.SetDefault("spawn.classWeights.motorcycle", 0.15)
	viper.SetDefault("spawn.classWeights.bicycle", 0.10)

	viper.SetDefault("spawn.lane.positionMin", 0.2)
	viper.SetDefault("spawn.lane.positionMax", 0.8)
	viper.SetDefault("spawn.lane.lateralJitterCm", 30.0)
	viper.SetDefault("spawn.lane.yawJitterDeg", 2.0)
	viper.SetDefault("spawn.lane.placementAttempts", 10)

	viper.SetDefault("spawn.spaceValues.car", 1000)
	viper.SetDefault("spawn.spaceValues.truck", 1000)
	viper.SetDefault("spawn.spaceValues.bus", 3000)
	viper.SetDefault("spawn.spaceValues.motorcycle", 1000)
	viper.SetDefault("spawn.spaceValues.bicycle", 1000)

	viper.SetDefault("spawn.parking.jitterEnabled", false)
	viper.SetDefault("spawn.parking.jitterCm", 10.0)
	viper.SetDefault("spawn.parking.jitterDeg", 5.0)
	viper.SetDefault("spawn.parking.reverseEnabled", false)
	viper.SetDefault("spawn.parking.reverseProbability", 0.3)

	viper.SetDefault("spawn.actors.car", []string{
		"StaticMeshActor_4", "StaticMeshActor_7", "StaticMeshActor_13",
		"StaticMeshActor_18", "StaticMeshActor_19", "StaticMeshActor_23",
		"StaticMeshActor_26", "StaticMeshActor_29", "StaticMeshActor_33",
		"StaticMeshActor_34", "StaticMeshActor_39",
	})
	viper.SetDefault("spawn.actors.truck", []string{
		"StaticMeshActor_25", "StaticMeshActor_27", "StaticMeshActor_31", "StaticMeshActor_41",
	})
	viper.SetDefault("spawn.actors.bus", []string{
		"StaticMeshActor_9", "StaticMeshActor_11",
	})
	viper.SetDefault("spawn.actors.motorcycle", []string{
		"StaticMeshActor_2", "StaticMeshActor_8", "SkeletalMeshActor_5",
	})
	viper.SetDefault("spawn.actors.bicycle", []string{
		"StaticMeshActor_1", "StaticMeshActor_3", "StaticMeshActor_5",
	})

	viper.SetDefault("spacing.marginCm", 50.0)
	viper.SetDefault("spacing.minCenterDistanceCm", 500.0)

	viper.SetDefault("camera.heightCm", 150.0)
	viper.SetDefault("camera.baseFovDeg", 90.0)
	viper.SetDefault("camera.fovStepDeg", 10.0)
	viper.SetDefault("camera.fovMinDeg", 60.0)
	viper.SetDefault("camera.fovMaxDeg", 120.0)
	viper.SetDefault("camera.maxRetries", 5)
	viper.SetDefault("camera.minVisibility", 0.50)
	viper.SetDefault("camera.imageWidth", 1920)
	viper.SetDefault("camera.imageHeight", 1080)

	viper.SetDefault("annotation.minBboxAreaPx", 100.0)
	viper.SetDefault("annotation.minBboxDimensionPx", 10.0)
	viper.SetDefault("annotation.maxTruncation", 0.8)

	viper.SetDefault("validation.rejectZeroVehicles", true)
	viper.SetDefault("validation.rejectAllTruncated", true)
	viper.SetDefault("validation.truncationWarnThreshold", 0.5)
	viper.SetDefault("validation.requirePositiveArea", true)
	viper.SetDefault("validation.requireInFrame", true)

	viper.SetDefault("scenehost.mode", "remote")
	viper.SetDefault("scenehost.url", "http://localhost:30010")
	viper.SetDefault("scenehost.timeout", "30s")
	viper.SetDefault("scenehost.levelPath", "/Game/automobileV2.automobileV2")
	viper.SetDefault("scenehost.captureActor", "DataCapture_1")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.compressOutput", false)
	viper.SetDefault("storage.sqlite.dumpInterval", "30s")
	viper.SetDefault("storage.sqlite.dumpDir", "./data")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "scenekit")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "scenekit-metrics")
	viper.SetDefault("influx.bucket", "generation")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "scenekit")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.interval", "10s")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float64 config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// RunConfig holds run-level settings.
type RunConfig struct {
	Seed       int64
	Frames     int
	Experiment string
	OutputDir  string
}

// GetRunConfig returns run-level settings.
func GetRunConfig() RunConfig {
	return RunConfig{
		Seed:       viper.GetInt64("run.seed"),
		Frames:     viper.GetInt("run.frames"),
		Experiment: viper.GetString("run.experiment"),
		OutputDir:  viper.GetString("run.outputDir"),
	}
}

// CountDistribution holds the frame vehicle-count sampling split.
type CountDistribution struct {
	SingleWeight float64
	SmallWeight  float64
	LargeWeight  float64
	SmallMin     int
	SmallMax     int
	LargeMin     int
	LargeMax     int
}

// ParkingPlacement holds optional slot jitter settings.
type ParkingPlacement struct {
	JitterEnabled      bool
	JitterCm           float64
	JitterDeg          float64
	ReverseEnabled     bool
	ReverseProbability float64
}

// SpawnerConfig holds everything the spawner samples from.
type SpawnerConfig struct {
	Count             CountDistribution
	ClassWeights      map[core.VehicleClass]float64
	LanePositionMin   float64
	LanePositionMax   float64
	LateralJitterCm   float64
	YawJitterDeg      float64
	PlacementAttempts int
	SpaceValues       map[core.VehicleClass]int
	Parking           ParkingPlacement
	ActorPools        map[core.VehicleClass][]string
}

// GetSpawnerConfig returns the spawner settings.
func GetSpawnerConfig() SpawnerConfig {
	weights := make(map[core.VehicleClass]float64, len(core.Classes()))
	space := make(map[core.VehicleClass]int, len(core.Classes()))
	pools := make(map[core.VehicleClass][]string, len(core.Classes()))
	for _, c := range core.Classes() {
		weights[c] = viper.GetFloat64("spawn.classWeights." + string(c))
		space[c] = viper.GetInt("spawn.spaceValues." + string(c))
		pools[c] = viper.GetStringSlice("spawn.actors." + string(c))
	}
	return SpawnerConfig{
		Count: CountDistribution{
			SingleWeight: viper.GetFloat64("spawn.count.singleWeight"),
			SmallWeight:  viper.GetFloat64("spawn.count.smallWeight"),
			LargeWeight:  viper.GetFloat64("spawn.count.largeWeight"),
			SmallMin:     viper.GetInt("spawn.count.smallMin"),
			SmallMax:     viper.GetInt("spawn.count.smallMax"),
			LargeMin:     viper.GetInt("spawn.count.largeMin"),
			LargeMax:     viper.GetInt("spawn.count.largeMax"),
		},
		ClassWeights:      weights,
		LanePositionMin:   viper.GetFloat64("spawn.lane.positionMin"),
		LanePositionMax:   viper.GetFloat64("spawn.lane.positionMax"),
		LateralJitterCm:   viper.GetFloat64("spawn.lane.lateralJitterCm"),
		YawJitterDeg:      viper.GetFloat64("spawn.lane.yawJitterDeg"),
		PlacementAttempts: viper.GetInt("spawn.lane.placementAttempts"),
		SpaceValues:       space,
		Parking: ParkingPlacement{
			JitterEnabled:      viper.GetBool("spawn.parking.jitterEnabled"),
			JitterCm:           viper.GetFloat64("spawn.parking.jitterCm"),
			JitterDeg:          viper.GetFloat64("spawn.parking.jitterDeg"),
			ReverseEnabled:     viper.GetBool("spawn.parking.reverseEnabled"),
			ReverseProbability: viper.GetFloat64("spawn.parking.reverseProbability"),
		},
		ActorPools: pools,
	}
}

// SpacingConfig holds footprint test settings.
type SpacingConfig struct {
	MarginCm            float64
	MinCenterDistanceCm float64
}

// GetSpacingConfig returns the spacing checker settings.
func GetSpacingConfig() SpacingConfig {
	return SpacingConfig{
		MarginCm:            viper.GetFloat64("spacing.marginCm"),
		MinCenterDistanceCm: viper.GetFloat64("spacing.minCenterDistanceCm"),
	}
}

// CameraConfig holds camera fit settings.
type CameraConfig struct {
	HeightCm      float64
	BaseFovDeg    float64
	FovStepDeg    float64
	FovMinDeg     float64
	FovMaxDeg     float64
	MaxRetries    int
	MinVisibility float64
	ImageWidth    int
	ImageHeight   int
}

// GetCameraConfig returns the camera controller settings.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		HeightCm:      viper.GetFloat64("camera.heightCm"),
		BaseFovDeg:    viper.GetFloat64("camera.baseFovDeg"),
		FovStepDeg:    viper.GetFloat64("camera.fovStepDeg"),
		FovMinDeg:     viper.GetFloat64("camera.fovMinDeg"),
		FovMaxDeg:     viper.GetFloat64("camera.fovMaxDeg"),
		MaxRetries:    viper.GetInt("camera.maxRetries"),
		MinVisibility: viper.GetFloat64("camera.minVisibility"),
		ImageWidth:    viper.GetInt("camera.imageWidth"),
		ImageHeight:   viper.GetInt("camera.imageHeight"),
	}
}

// AnnotationConfig holds per-instance validity thresholds.
type AnnotationConfig struct {
	MinBboxAreaPx      float64
	MinBboxDimensionPx float64
	MaxTruncation      float64
}

// GetAnnotationConfig returns the annotation settings.
func GetAnnotationConfig() AnnotationConfig {
	return AnnotationConfig{
		MinBboxAreaPx:      viper.GetFloat64("annotation.minBboxAreaPx"),
		MinBboxDimensionPx: viper.GetFloat64("annotation.minBboxDimensionPx"),
		MaxTruncation:      viper.GetFloat64("annotation.maxTruncation"),
	}
}

// ValidationConfig holds frame-level validation toggles.
type ValidationConfig struct {
	RejectZeroVehicles      bool
	RejectAllTruncated      bool
	TruncationWarnThreshold float64
	RequirePositiveArea     bool
	RequireInFrame          bool
}

// GetValidationConfig returns the frame validator settings.
func GetValidationConfig() ValidationConfig {
	return ValidationConfig{
		RejectZeroVehicles:      viper.GetBool("validation.rejectZeroVehicles"),
		RejectAllTruncated:      viper.GetBool("validation.rejectAllTruncated"),
		TruncationWarnThreshold: viper.GetFloat64("validation.truncationWarnThreshold"),
		RequirePositiveArea:     viper.GetBool("validation.requirePositiveArea"),
		RequireInFrame:          viper.GetBool("validation.requireInFrame"),
	}
}

// SceneHostConfig holds the remote scene host connection settings.
type SceneHostConfig struct {
	Mode         string
	URL          string
	Timeout      time.Duration
	LevelPath    string
	CaptureActor string
}

// GetSceneHostConfig returns the scene host settings.
func GetSceneHostConfig() SceneHostConfig {
	return SceneHostConfig{
		Mode:         viper.GetString("scenehost.mode"),
		URL:          viper.GetString("scenehost.url"),
		Timeout:      viper.GetDuration("scenehost.timeout"),
		LevelPath:    viper.GetString("scenehost.levelPath"),
		CaptureActor: viper.GetString("scenehost.captureActor"),
	}
}

// DBConfig holds relational database connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// MemoryStorageConfig holds in-memory backend settings.
type MemoryStorageConfig struct {
	CompressOutput bool
}

// SqliteStorageConfig holds the local SQLite backend settings.
type SqliteStorageConfig struct {
	DumpInterval time.Duration
	DumpDir      string
}

// StorageConfig holds storage backend settings.
type StorageConfig struct {
	Type   string
	DB     DBConfig
	Memory MemoryStorageConfig
	Sqlite SqliteStorageConfig
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		Memory: MemoryStorageConfig{
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		Sqlite: SqliteStorageConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpDir:      viper.GetString("storage.sqlite.dumpDir"),
		},
	}
}

// InfluxConfig holds generation metrics settings.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GraylogConfig holds the GELF log sink settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// GetGraylogConfig returns the Graylog settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// OTelConfig holds telemetry provider settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// Validate checks start-time configuration for structural problems and
// returns the full violation list, not just the first.
func Validate() []string {
	var violations []string

	sc := GetSpawnerConfig()
	countSum := sc.Count.SingleWeight + sc.Count.SmallWeight + sc.Count.LargeWeight
	if math.Abs(countSum-1.0) > 0.01 {
		violations = append(violations, fmt.Sprintf("count distribution weights sum to %.3f, expected 1.0", countSum))
	}
	var classSum float64
	for _, w := range sc.ClassWeights {
		classSum += w
	}
	if math.Abs(classSum-1.0) > 0.01 {
		violations = append(violations, fmt.Sprintf("class weights sum to %.3f, expected 1.0", classSum))
	}
	if sc.PlacementAttempts < 1 {
		violations = append(violations, "lane placement attempts must be at least 1")
	}

	cc := GetCameraConfig()
	if cc.BaseFovDeg < 30 || cc.BaseFovDeg > 150 {
		violations = append(violations, fmt.Sprintf("base FOV %.1f outside [30,150]", cc.BaseFovDeg))
	}
	if cc.FovMinDeg > cc.FovMaxDeg {
		violations = append(violations, "camera FOV range is inverted")
	}
	if cc.ImageWidth < 1 || cc.ImageHeight < 1 {
		violations = append(violations, "image dimensions must be positive")
	}
	if cc.MaxRetries < 1 {
		violations = append(violations, "camera retry budget must be at least 1")
	}

	rc := GetRunConfig()
	if rc.Frames < 1 {
		violations = append(violations, "run frame target must be at least 1")
	}

	return violations
}
