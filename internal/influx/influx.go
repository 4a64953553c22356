package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/vantagecv/scenekit/v2/internal/storage"
)

// Bucket names for generation metrics.
const (
	BucketFrames      = "generation_frames"
	BucketRuns        = "generation_runs"
	BucketPerformance = "generation_performance"
)

// DefaultBucketNames are the default InfluxDB buckets used by scenekit.
var DefaultBucketNames = []string{
	BucketFrames,
	BucketRuns,
	BucketPerformance,
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influxdb.Enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		// create backup writer
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		err = m.setupOrganizationAndBuckets()
		if err != nil {
			return err
		}
		m.CreateWriters()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	return nil
}

func (m *Manager) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// get influxOrg
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		_, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 90, // 90 days
			})
			if err != nil {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)

		m.Logger.Trace().Str("bucket", bucket).Msg("InfluxDB writer created")
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		if _, ok := m.Writers[bucket]; !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		m.Writers[bucket].WritePoint(point)
	} else {
		if m.BackupWriter == nil {
			return fmt.Errorf("influxDB client not initialized and backup writer not available")
		}

		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Duration(1*time.Nanosecond))
		_, err := m.BackupWriter.Write([]byte(lineProtocol + "\n"))
		if err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
		}
	}

	return nil
}

// FramePoint builds a generation_frames point from one frame attempt.
func FramePoint(runName string, rec *storage.FrameRecord) *influxdb2_write.Point {
	minVisibility := 1.0
	for _, v := range rec.Camera.Visibility {
		if v.Ratio < minVisibility {
			minVisibility = v.Ratio
		}
	}

	return influxdb2_write.NewPointWithMeasurement("frame").
		AddTag("run", runName).
		AddTag("verdict", string(rec.Verdict.OverallResult)).
		AddField("frame_index", rec.Annotation.FrameIndex).
		AddField("accepted", rec.Accepted()).
		AddField("vehicle_count", len(rec.Vehicles)).
		AddField("valid_count", rec.Annotation.ValidCount()).
		AddField("camera_fov", rec.Camera.FOV).
		AddField("camera_attempts", rec.Camera.Attempts).
		AddField("min_visibility", minVisibility).
		AddField("generation_ms", rec.GenerationMs).
		SetTime(rec.RecordedAt)
}

// FailurePoint builds a generation_frames point from a structured failure.
func FailurePoint(runName string, rec *storage.FailureRecord) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("failure").
		AddTag("run", runName).
		AddTag("stage", string(rec.Failure.Kind)).
		AddField("frame_index", rec.FrameIndex).
		AddField("affected", len(rec.Failure.Affected)).
		SetTime(rec.OccurredAt)
}

// RunSummaryPoint builds a generation_runs point closing out a run.
func RunSummaryPoint(info *storage.RunInfo, summary *storage.RunSummary) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("run").
		AddTag("run", info.Name).
		AddTag("status", summary.Status).
		AddField("seed", info.Seed).
		AddField("target_frames", info.TargetFrames).
		AddField("frames_generated", summary.FramesGenerated).
		AddField("frames_failed", summary.FramesFailed).
		AddField("vehicles", summary.Vehicles).
		AddField("annotations", summary.Annotations).
		AddField("avg_vehicles", summary.AvgVehicles).
		AddField("avg_frame_ms", summary.AvgFrameMillis).
		AddField("duration_s", summary.EndedAt.Sub(info.StartedAt).Seconds()).
		SetTime(summary.EndedAt)
}
