package convert

import (
	"encoding/json"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/camera"
	"github.com/vantagecv/scenekit/v2/internal/model"
)

// RowToFrame converts a persisted model.Frame back to an annotation.Frame.
// The export command uses this to rebuild a COCO dataset from the database.
func RowToFrame(row model.Frame) annotation.Frame {
	frame := annotation.Frame{
		FrameIndex:    int(row.FrameIndex),
		ImageID:       row.ImageID,
		ImageFilename: row.ImageFile,
		ImageWidth:    row.ImageWidth,
		ImageHeight:   row.ImageHeight,
	}
	for _, ann := range row.Annotations {
		frame.Instances = append(frame.Instances, RowToInstance(ann))
	}
	return frame
}

// RowToInstance converts a persisted model.Annotation back to an
// annotation.Instance.
func RowToInstance(row model.Annotation) annotation.Instance {
	inst := annotation.Instance{
		InstanceID:   row.InstanceID,
		CategoryID:   row.CategoryID,
		CategoryName: row.CategoryName,
		BBox: camera.Rect{
			X:      row.Bbox.X,
			Y:      row.Bbox.Y,
			Width:  row.Bbox.Width,
			Height: row.Bbox.Height,
		},
		Area:       row.Area,
		Truncation: row.Truncation,
		Occluded:   row.Occluded,
		Valid:      row.Valid,
	}
	if len(row.Issues) > 0 {
		var issues []string
		if err := json.Unmarshal(row.Issues, &issues); err == nil {
			inst.Issues = issues
		}
	}
	return inst
}
