package annotation

import (
	"sync"

	"github.com/vantagecv/scenekit/v2/pkg/core"
)

// Dataset is the COCO-style document written at the end of a run.
type Dataset struct {
	Info        Info                `json:"info"`
	Licenses    []string            `json:"licenses"`
	Categories  []Category          `json:"categories"`
	Images      []Image             `json:"images"`
	Annotations []DatasetAnnotation `json:"annotations"`
}

// Info identifies the dataset release.
type Info struct {
	Description string `json:"description"`
	Version     string `json:"version"`
	Year        int    `json:"year"`
	Contributor string `json:"contributor"`
}

// Category is one entry of the fixed class table.
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// Image is one rendered frame entry.
type Image struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// DatasetAnnotation is one valid instance in COCO form plus the
// custom fields downstream training consumes.
type DatasetAnnotation struct {
	ID         int        `json:"id"`
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	BBox       [4]float64 `json:"bbox"`
	Area       float64    `json:"area"`
	IsCrowd    int        `json:"iscrowd"`

	InstanceID string  `json:"instance_id"`
	Truncation float64 `json:"truncation"`
	Occluded   bool    `json:"is_occluded"`
}

// Categories returns the category table, ids 1-based in class order.
func Categories() []Category {
	classes := core.Classes()
	out := make([]Category, len(classes))
	for i, cls := range classes {
		out[i] = Category{
			ID:            i + 1,
			Name:          string(cls),
			Supercategory: "vehicle",
		}
	}
	return out
}

// DatasetBuilder accumulates accepted frames into a dataset. Only
// frames that pass validation should be added; annotation ids are
// assigned monotonically from 1 across the whole run.
type DatasetBuilder struct {
	mu     sync.Mutex
	nextID int
	data   Dataset
}

// NewDatasetBuilder returns a builder with the fixed info block and
// category table already in place.
func NewDatasetBuilder() *DatasetBuilder {
	return &DatasetBuilder{
		nextID: 1,
		data: Dataset{
			Info: Info{
				Description: "VantageCV Research v2 Dataset",
				Version:     "2.0.0",
				Year:        2024,
				Contributor: "VantageCV",
			},
			Licenses:    make([]string, 0),
			Categories:  Categories(),
			Images:      make([]Image, 0),
			Annotations: make([]DatasetAnnotation, 0),
		},
	}
}

// AddFrame appends the frame's image entry and one annotation per
// valid instance. Invalid instances are dropped from the export.
func (b *DatasetBuilder) AddFrame(frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data.Images = append(b.data.Images, Image{
		ID:       frame.ImageID,
		FileName: frame.ImageFilename,
		Width:    frame.ImageWidth,
		Height:   frame.ImageHeight,
	})

	for _, inst := range frame.ValidInstances() {
		b.data.Annotations = append(b.data.Annotations, DatasetAnnotation{
			ID:         b.nextID,
			ImageID:    frame.ImageID,
			CategoryID: inst.CategoryID,
			BBox:       [4]float64{inst.BBox.X, inst.BBox.Y, inst.BBox.Width, inst.BBox.Height},
			Area:       inst.Area,
			IsCrowd:    0,
			InstanceID: inst.InstanceID,
			Truncation: inst.Truncation,
			Occluded:   inst.Occluded,
		})
		b.nextID++
	}
}

// Dataset returns a copy of the accumulated dataset.
func (b *DatasetBuilder) Dataset() Dataset {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.data
	out.Licenses = append(make([]string, 0, len(b.data.Licenses)), b.data.Licenses...)
	out.Categories = append(make([]Category, 0, len(b.data.Categories)), b.data.Categories...)
	out.Images = append(make([]Image, 0, len(b.data.Images)), b.data.Images...)
	out.Annotations = append(make([]DatasetAnnotation, 0, len(b.data.Annotations)), b.data.Annotations...)
	return out
}

// ImageCount returns the number of accepted frames added so far.
func (b *DatasetBuilder) ImageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data.Images)
}

// AnnotationCount returns the number of exported instances so far.
func (b *DatasetBuilder) AnnotationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data.Annotations)
}

// Reset discards all accumulated frames and restarts annotation ids.
func (b *DatasetBuilder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID = 1
	b.data.Images = make([]Image, 0)
	b.data.Annotations = make([]DatasetAnnotation, 0)
}
