package camera

import (
	"context"
	"errors"
	"fmt"

	"webcammonitor/internal/model"
)

// ErrEndOfStream reports that the source will produce no more frames. It is
// distinct from a capture failure, which may succeed on retry.
var ErrEndOfStream = errors.New("camera: end of stream")

// CaptureError wraps a transient device or transport failure. The monitor
// retries these with backoff instead of terminating.
type CaptureError struct {
	Source string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture from %s failed: %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// IsCaptureError reports whether err is (or wraps) a CaptureError.
func IsCaptureError(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}

// Source produces a sequence of frames from one camera. NextFrame must honour
// ctx cancellation and never block past the source's configured timeout.
type Source interface {
	NextFrame(ctx context.Context) (model.Frame, error)
	Close() error
}
