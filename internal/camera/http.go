package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"webcammonitor/internal/model"
)

// Snapshot cameras (ESP32-CAM and most webcam services) expose a capture URL
// returning one JPEG per GET. maxBodySize guards against a misconfigured URL
// serving something that is not a still image.
const maxBodySize = 32 << 20

// HTTPSource fetches frames from a snapshot capture URL.
type HTTPSource struct {
	url    string
	id     string
	client *http.Client
}

// NewHTTPSource creates a source for the given capture URL. The timeout bounds
// the whole request, connection included.
func NewHTTPSource(url, id string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		id:     id,
		client: &http.Client{Timeout: timeout},
	}
}

// NextFrame fetches one snapshot. Transport errors, non-200 responses and
// empty or non-JPEG bodies all come back as a CaptureError.
func (s *HTTPSource) NextFrame(ctx context.Context) (model.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.Frame{}, &CaptureError{Source: s.id, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Frame{}, &CaptureError{Source: s.id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Frame{}, &CaptureError{Source: s.id, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return model.Frame{}, &CaptureError{Source: s.id, Err: err}
	}
	if !isJPEG(data) {
		return model.Frame{}, &CaptureError{Source: s.id, Err: fmt.Errorf("response is not a JPEG (%d bytes)", len(data))}
	}

	return model.Frame{
		Timestamp: time.Now(),
		Source:    s.id,
		Data:      data,
	}, nil
}

// Close is a no-op; HTTP snapshots hold no device handle.
func (s *HTTPSource) Close() error {
	return nil
}

func isJPEG(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff
}
