package detect

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"webcammonitor/internal/model"
)

// minConfidence is the floor below which model output rows are discarded as
// noise. The configured per-class trigger thresholds are applied later by the
// event policy, not here.
const minConfidence = 0.2

// DNNDetector wraps an OpenCV DNN network (SSD MobileNet style: one output row
// per detection, 7 floats each). The mutex serializes inference: a timed-out
// run may still be executing when the next frame arrives, and the network must
// never see concurrent Forward calls.
type DNNDetector struct {
	net      gocv.Net
	rotation int
	timeout  time.Duration
	mu       sync.Mutex
}

type inferenceResult struct {
	detections model.DetectionSet
	err        error
}

// NewDNNDetector loads the model once. Any failure here is fatal for the
// process: the monitor cannot run without a model.
func NewDNNDetector(modelPath, configPath string, rotation int, timeout time.Duration) (*DNNDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model config file not found: %s", configPath)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		return nil, fmt.Errorf("failed to set network backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		return nil, fmt.Errorf("failed to set network target: %w", err)
	}

	return &DNNDetector{net: net, rotation: rotation, timeout: timeout}, nil
}

// Detect decodes the frame, applies the configured rotation and runs the
// network. Inference past the per-frame timeout returns ErrInferenceTimeout;
// the worker finishes in the background and its result is discarded.
func (d *DNNDetector) Detect(ctx context.Context, frame model.Frame) (model.DetectionSet, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	results := make(chan inferenceResult, 1)
	go func() {
		detections, err := d.infer(frame.Data)
		results <- inferenceResult{detections: detections, err: err}
	}()

	select {
	case r := <-results:
		return r.detections, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrInferenceTimeout
		}
		return nil, ctx.Err()
	}
}

func (d *DNNDetector) infer(data []byte) (model.DetectionSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := d.decode(data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	reshaped := output.Reshape(1, output.Total()/7)

	var detections model.DetectionSet
	for i := 0; i < reshaped.Rows(); i++ {
		confidence := float64(reshaped.GetFloatAt(i, 2))
		if confidence < minConfidence {
			continue
		}

		classID := int(reshaped.GetFloatAt(i, 1))
		x := int(reshaped.GetFloatAt(i, 3) * float32(mat.Cols()))
		y := int(reshaped.GetFloatAt(i, 4) * float32(mat.Rows()))
		width := int(reshaped.GetFloatAt(i, 5)*float32(mat.Cols())) - x
		height := int(reshaped.GetFloatAt(i, 6)*float32(mat.Rows())) - y

		detections = append(detections, model.Detection{
			Label:      classLabel(classID),
			Confidence: confidence,
			X:          x,
			Y:          y,
			Width:      width,
			Height:     height,
		})
	}
	return detections, nil
}

// Annotate draws boxes and "label (confidence)" captions on the frame image
// and returns it re-encoded as JPEG.
func (d *DNNDetector) Annotate(frame model.Frame, detections model.DetectionSet) ([]byte, error) {
	mat, err := d.decode(frame.Data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}
	for _, det := range detections {
		rect := image.Rect(det.X, det.Y, det.X+det.Width, det.Y+det.Height)
		if err := gocv.Rectangle(&mat, rect, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		caption := fmt.Sprintf("%s (%.2f)", det.Label, det.Confidence)
		pt := image.Pt(det.X, det.Y-5)
		if err := gocv.PutText(&mat, caption, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw caption: %w", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	return d.net.Close()
}

func (d *DNNDetector) decode(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("decoded image is empty")
	}

	if d.rotation == 0 {
		return mat, nil
	}

	var code gocv.RotateFlag
	switch d.rotation {
	case 90:
		code = gocv.Rotate90Clockwise
	case 180:
		code = gocv.Rotate180Clockwise
	case 270:
		code = gocv.Rotate90CounterClockwise
	default:
		return mat, nil
	}

	rotated := gocv.NewMat()
	gocv.Rotate(mat, &rotated, code)
	mat.Close()
	return rotated, nil
}
