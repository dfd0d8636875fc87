package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcammonitor/internal/camera"
	"webcammonitor/internal/detect"
	"webcammonitor/internal/logger"
	"webcammonitor/internal/model"
	"webcammonitor/internal/policy"
	"webcammonitor/internal/store"
)

// scripted is one NextFrame outcome.
type scripted struct {
	frame model.Frame
	err   error
}

// fakeSource plays back a script, then keeps producing the exhausted outcome
// (clean empty frames unless an error is configured). A non-nil gate holds
// back post-script frames until the test closes it.
type fakeSource struct {
	mu        sync.Mutex
	script    []scripted
	idx       int
	exhausted scripted // returned once the script runs out
	gate      chan struct{}
	served    atomic.Int32
	closed    atomic.Bool
}

func (s *fakeSource) NextFrame(ctx context.Context) (model.Frame, error) {
	if ctx.Err() != nil {
		return model.Frame{}, &camera.CaptureError{Source: "fake", Err: ctx.Err()}
	}
	s.mu.Lock()
	if s.idx < len(s.script) {
		item := s.script[s.idx]
		s.idx++
		s.mu.Unlock()
		if item.err == nil {
			s.served.Add(1)
		}
		return item.frame, item.err
	}
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-ctx.Done():
			return model.Frame{}, &camera.CaptureError{Source: "fake", Err: ctx.Err()}
		case <-gate:
		}
	}

	if s.exhausted.err != nil {
		return model.Frame{}, s.exhausted.err
	}
	frame := s.exhausted.frame
	if frame.Timestamp.IsZero() {
		frame = model.Frame{Timestamp: time.Now(), Source: "fake", Data: []byte{0xff, 0xd8, 0xff}}
	}
	s.served.Add(1)
	return frame, nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeDetector returns whatever detect function it was given.
type fakeDetector struct {
	calls  atomic.Int32
	detect func(model.Frame) (model.DetectionSet, error)
}

func (d *fakeDetector) Detect(ctx context.Context, frame model.Frame) (model.DetectionSet, error) {
	d.calls.Add(1)
	if d.detect == nil {
		return nil, nil
	}
	return d.detect(frame)
}

func (d *fakeDetector) Annotate(frame model.Frame, _ model.DetectionSet) ([]byte, error) {
	return frame.Data, nil
}

func (d *fakeDetector) Close() error { return nil }

type fakeHeartbeat struct {
	mu     sync.Mutex
	pushes []string
}

func (h *fakeHeartbeat) Push(status, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushes = append(h.pushes, status)
}

func (h *fakeHeartbeat) count(status string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.pushes {
		if s == status {
			n++
		}
	}
	return n
}

func frameAt(ts time.Time) model.Frame {
	return model.Frame{Timestamp: ts, Source: "fake", Data: []byte{0xff, 0xd8, 0xff}}
}

func captureErr() error {
	return &camera.CaptureError{Source: "fake", Err: errors.New("read failed")}
}

func testConfig() Config {
	return Config{
		CaptureInterval:    time.Millisecond,
		RetentionInterval:  time.Hour,
		DetectEveryN:       1,
		FailureThreshold:   3,
		CaptureRetryLimit:  30,
		DegradedMultiplier: 2,
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir(), 1000, 1<<30, nil, logger.NewDiscard())
	require.NoError(t, err)
	return st
}

func runMonitor(t *testing.T, m *Monitor) (cancel context.CancelFunc, done chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	done = make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return cancelFn, done
}

func waitStopped(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
		return nil
	}
}

func TestRun_DegradedThenRecovery(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{
		script: []scripted{
			{err: captureErr()},
			{err: captureErr()},
			{err: captureErr()},
		},
		gate: gate, // clean frames only flow once the test has seen DEGRADED
	}
	kuma := &fakeHeartbeat{}
	pol := policy.New(map[string]float64{"person": 0.5}, 0.5, time.Minute)
	m := New(testConfig(), src, &fakeDetector{}, pol, newTestStore(t), kuma, nil, nil, logger.NewDiscard())

	cancel, done := runMonitor(t, m)

	// Three consecutive failures put the loop into DEGRADED...
	require.Eventually(t, func() bool { return m.State() == Degraded }, 3*time.Second, time.Millisecond)

	// ...and the first clean cycle brings it back without terminating.
	close(gate)
	require.Eventually(t, func() bool { return m.State() == Running }, 3*time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, waitStopped(t, done))
	assert.Equal(t, Stopped, m.State())
	assert.True(t, src.closed.Load())

	assert.Equal(t, 1, kuma.count("down"))
	assert.Greater(t, kuma.count("up"), 0)
}

func TestRun_FatalAfterRetryCeiling(t *testing.T) {
	src := &fakeSource{exhausted: scripted{err: captureErr()}}
	cfg := testConfig()
	cfg.CaptureRetryLimit = 5

	pol := policy.New(nil, 0.5, time.Minute)
	m := New(cfg, src, &fakeDetector{}, pol, newTestStore(t), nil, nil, nil, logger.NewDiscard())

	_, done := runMonitor(t, m)

	err := waitStopped(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture failures")
	assert.Equal(t, Stopped, m.State())
	assert.True(t, src.closed.Load())
}

func TestRun_EndOfStreamIsFatal(t *testing.T) {
	src := &fakeSource{exhausted: scripted{err: camera.ErrEndOfStream}}
	pol := policy.New(nil, 0.5, time.Minute)
	m := New(testConfig(), src, &fakeDetector{}, pol, newTestStore(t), nil, nil, nil, logger.NewDiscard())

	_, done := runMonitor(t, m)

	err := waitStopped(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, camera.ErrEndOfStream)
}

func TestRun_TriggeredEventsRespectDebounce(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		script: []scripted{
			{frame: frameAt(base)},
			{frame: frameAt(base.Add(10 * time.Second))},
			{frame: frameAt(base.Add(65 * time.Second))},
		},
	}

	confidences := []float64{0.9, 0.95, 0.6}
	var call int32
	det := &fakeDetector{detect: func(frame model.Frame) (model.DetectionSet, error) {
		i := atomic.AddInt32(&call, 1) - 1
		if int(i) < len(confidences) {
			return model.DetectionSet{{Label: "person", Confidence: confidences[i]}}, nil
		}
		return nil, nil
	}}

	st := newTestStore(t)
	pol := policy.New(map[string]float64{"person": 0.5}, 0.5, time.Minute)
	m := New(testConfig(), src, det, pol, st, nil, nil, nil, logger.NewDiscard())

	cancel, done := runMonitor(t, m)

	// Frames at t=0 and t=65s persist; t=10s is inside the debounce window.
	require.Eventually(t, func() bool {
		artifacts, err := st.List()
		return err == nil && len(artifacts) == 2
	}, 3*time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, waitStopped(t, done))

	artifacts, err := st.List()
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Contains(t, artifacts[0].ImagePath, "12-00-00")
	assert.Contains(t, artifacts[1].ImagePath, "12-01-05")
}

func TestRun_InferenceTimeoutIsContained(t *testing.T) {
	src := &fakeSource{}
	det := &fakeDetector{detect: func(model.Frame) (model.DetectionSet, error) {
		return nil, detect.ErrInferenceTimeout
	}}

	st := newTestStore(t)
	pol := policy.New(map[string]float64{"person": 0.5}, 0.5, time.Minute)
	m := New(testConfig(), src, det, pol, st, nil, nil, nil, logger.NewDiscard())

	cancel, done := runMonitor(t, m)

	require.Eventually(t, func() bool { return det.calls.Load() >= 5 }, 3*time.Second, time.Millisecond)
	assert.Equal(t, Running, m.State())

	cancel()
	assert.NoError(t, waitStopped(t, done))

	artifacts, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestRun_DetectEveryN(t *testing.T) {
	src := &fakeSource{}
	det := &fakeDetector{}

	cfg := testConfig()
	cfg.DetectEveryN = 3

	pol := policy.New(nil, 0.5, time.Minute)
	m := New(cfg, src, det, pol, newTestStore(t), nil, nil, nil, logger.NewDiscard())

	cancel, done := runMonitor(t, m)

	require.Eventually(t, func() bool { return src.served.Load() >= 9 }, 3*time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, waitStopped(t, done))

	served := int(src.served.Load())
	calls := int(det.calls.Load())
	assert.Equal(t, served/3, calls)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "degraded", Degraded.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "stopped", Stopped.String())
}
