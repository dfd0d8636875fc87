package detect

import (
	"context"
	"errors"

	"webcammonitor/internal/model"
)

// ErrInferenceTimeout reports that a frame exceeded the per-frame inference
// budget. The frame is treated as having no detections; never fatal.
var ErrInferenceTimeout = errors.New("detect: inference timed out")

// Detector runs an object-detection model over single frames. Detect must not
// mutate the frame; the loaded model is shared read-only across cycles.
type Detector interface {
	// Detect returns the objects found in the frame, in model output order.
	Detect(ctx context.Context, frame model.Frame) (model.DetectionSet, error)

	// Annotate returns a copy of the frame image with bounding boxes and
	// labels drawn on it.
	Annotate(frame model.Frame, detections model.DetectionSet) ([]byte, error)

	// Close releases the model.
	Close() error
}
