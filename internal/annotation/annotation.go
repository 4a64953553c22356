// Package annotation turns placed vehicles into per-instance image
// annotations and judges whole frames against the dataset rules. A
// vehicle whose box projects entirely behind the camera is annotated
// as invalid rather than dropped: the record keeps the failure visible
// and the frame validator decides what it means for the frame.
package annotation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vantagecv/scenekit/v2/internal/camera"
	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// Instance is one vehicle's annotation within a frame. Invalid
// instances stay in the frame record with their issues spelled out.
type Instance struct {
	InstanceID   string      `json:"instanceId"`
	CategoryID   int         `json:"categoryId"`
	CategoryName string      `json:"categoryName"`
	BBox         camera.Rect `json:"bbox"`
	Area         float64     `json:"area"`
	Truncation   float64     `json:"truncation"`
	Occluded     bool        `json:"occluded"`
	Valid        bool        `json:"valid"`
	Issues       []string    `json:"issues,omitempty"`
}

// Frame is the annotation record of one captured frame.
type Frame struct {
	FrameIndex    int        `json:"frameIndex"`
	ImageID       int        `json:"imageId"`
	ImageFilename string     `json:"imageFilename"`
	ImageWidth    int        `json:"imageWidth"`
	ImageHeight   int        `json:"imageHeight"`
	Instances     []Instance `json:"instances"`
}

// ValidInstances returns the instances that passed validation.
func (f *Frame) ValidInstances() []Instance {
	var out []Instance
	for _, inst := range f.Instances {
		if inst.Valid {
			out = append(out, inst)
		}
	}
	return out
}

// ValidCount returns the number of valid instances.
func (f *Frame) ValidCount() int {
	n := 0
	for _, inst := range f.Instances {
		if inst.Valid {
			n++
		}
	}
	return n
}

// Stats accumulates annotation outcomes across a run.
type Stats struct {
	TotalFrames        int                       `json:"totalFrames"`
	TotalInstances     int                       `json:"totalInstances"`
	ValidInstances     int                       `json:"validInstances"`
	ProjectionFailures int                       `json:"projectionFailures"`
	ClassCounts        map[core.VehicleClass]int `json:"classCounts"`
	ValidityRate       float64                   `json:"validityRate"`
}

// Generator projects vehicles through a resolved camera and grades
// each bounding box against the annotation thresholds.
type Generator struct {
	logger *slog.Logger
	cfg    config.AnnotationConfig

	mu    sync.Mutex
	stats Stats
}

// NewGenerator builds a generator with the given thresholds.
func NewGenerator(cfg config.AnnotationConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Annotation generator initialized",
		"min_bbox_area", cfg.MinBboxAreaPx,
		"min_bbox_dimension", cfg.MinBboxDimensionPx,
		"max_truncation", cfg.MaxTruncation)
	return &Generator{
		logger: logger,
		cfg:    cfg,
		stats:  Stats{ClassCounts: make(map[core.VehicleClass]int)},
	}
}

// AnnotateFrame annotates every vehicle of a frame through the
// projector resolved by the camera fit.
func (g *Generator) AnnotateFrame(frameIndex, imageID int, filename string, vehicles []core.SpawnedVehicle, proj camera.Projector) Frame {
	g.logger.Info("Annotation pass started",
		"frame_index", frameIndex,
		"image_id", imageID,
		"vehicle_count", len(vehicles))

	frame := Frame{
		FrameIndex:    frameIndex,
		ImageID:       imageID,
		ImageFilename: filename,
		ImageWidth:    int(proj.ImageWidth),
		ImageHeight:   int(proj.ImageHeight),
	}

	for i := range vehicles {
		inst := g.annotateVehicle(&vehicles[i], proj)
		frame.Instances = append(frame.Instances, inst)
	}

	g.mu.Lock()
	g.stats.TotalFrames++
	g.stats.TotalInstances += len(frame.Instances)
	for _, inst := range frame.Instances {
		if inst.Valid {
			g.stats.ValidInstances++
			g.stats.ClassCounts[core.VehicleClass(inst.CategoryName)]++
		}
	}
	g.mu.Unlock()

	g.logger.Info("Annotation pass completed",
		"frame_index", frameIndex,
		"total_instances", len(frame.Instances),
		"valid_instances", frame.ValidCount())
	return frame
}

func (g *Generator) annotateVehicle(v *core.SpawnedVehicle, proj camera.Projector) Instance {
	inst := Instance{
		InstanceID:   v.InstanceID,
		CategoryID:   categoryID(v.Class),
		CategoryName: string(v.Class),
	}

	rect, maxDepth := proj.ProjectBox(camera.BoxCorners(v.Transform.Location, v.Dimensions))
	if maxDepth <= 0 {
		g.mu.Lock()
		g.stats.ProjectionFailures++
		g.mu.Unlock()

		g.logger.Warn("Projection failed",
			"instance_id", v.InstanceID,
			"class", string(v.Class),
			"reason", "vehicle behind camera, not visible")

		inst.Truncation = 1.0
		inst.Issues = []string{"projection failed: vehicle not visible"}
		return inst
	}

	clipped := rect.Clip(proj.ImageWidth, proj.ImageHeight)
	truncation := 1.0
	if total := rect.Area(); total > 0 {
		truncation = 1.0 - clipped.Area()/total
	}

	valid, issues := g.validateBBox(clipped, truncation, proj)
	if valid {
		g.logger.Debug("Instance annotated",
			"instance_id", v.InstanceID,
			"class", string(v.Class),
			"truncation", truncation)
	} else {
		g.logger.Warn("Instance annotation invalid",
			"instance_id", v.InstanceID,
			"class", string(v.Class),
			"issues", issues)
	}

	inst.BBox = clipped
	inst.Area = clipped.Area()
	inst.Truncation = truncation
	inst.Valid = valid
	inst.Issues = issues
	return inst
}

// validateBBox checks one clipped box against the thresholds and
// returns every violated rule.
func (g *Generator) validateBBox(bbox camera.Rect, truncation float64, proj camera.Projector) (bool, []string) {
	var issues []string

	if bbox.Area() < g.cfg.MinBboxAreaPx {
		issues = append(issues, fmt.Sprintf("area %.1f below minimum %.0f", bbox.Area(), g.cfg.MinBboxAreaPx))
	}
	if bbox.Width < g.cfg.MinBboxDimensionPx {
		issues = append(issues, fmt.Sprintf("width %.1f below minimum %.0f", bbox.Width, g.cfg.MinBboxDimensionPx))
	}
	if bbox.Height < g.cfg.MinBboxDimensionPx {
		issues = append(issues, fmt.Sprintf("height %.1f below minimum %.0f", bbox.Height, g.cfg.MinBboxDimensionPx))
	}
	if truncation > g.cfg.MaxTruncation {
		issues = append(issues, fmt.Sprintf("truncation %.2f exceeds maximum %.2f", truncation, g.cfg.MaxTruncation))
	}
	if bbox.X >= proj.ImageWidth || bbox.Y >= proj.ImageHeight {
		issues = append(issues, "bbox completely outside image")
	}
	if bbox.X+bbox.Width <= 0 || bbox.Y+bbox.Height <= 0 {
		issues = append(issues, "bbox completely outside image (negative)")
	}

	return len(issues) == 0, issues
}

// Stats returns a snapshot of the accumulated statistics.
func (g *Generator) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := g.stats
	out.ClassCounts = make(map[core.VehicleClass]int, len(g.stats.ClassCounts))
	for k, v := range g.stats.ClassCounts {
		out.ClassCounts[k] = v
	}
	if g.stats.TotalInstances > 0 {
		out.ValidityRate = float64(g.stats.ValidInstances) / float64(g.stats.TotalInstances)
	}
	return out
}

// Reset clears the accumulated statistics for a new run.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats = Stats{ClassCounts: make(map[core.VehicleClass]int)}
	g.logger.Info("Annotation state reset")
}

// categoryID returns the stable 1-based dataset category id.
func categoryID(class core.VehicleClass) int {
	for i, c := range core.Classes() {
		if c == class {
			return i + 1
		}
	}
	return 0
}
