package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"webcammonitor/internal/camera"
	"webcammonitor/internal/detect"
	"webcammonitor/internal/logger"
	"webcammonitor/internal/metrics"
	"webcammonitor/internal/model"
	"webcammonitor/internal/policy"
	"webcammonitor/internal/store"
)

// Heartbeat receives up/down status pushes. Satisfied by notify.Kuma.
type Heartbeat interface {
	Push(status, msg string)
}

// Notifier receives triggered-event announcements. Satisfied by notify.Discord.
type Notifier interface {
	Notify(content string) bool
}

// Publisher receives triggered events with their image. Satisfied by web.Hub.
type Publisher interface {
	PublishEvent(event model.Event, image []byte)
}

// Config carries the loop's pacing and failure knobs.
type Config struct {
	CaptureInterval    time.Duration
	RetentionInterval  time.Duration
	DetectEveryN       int
	FailureThreshold   int // consecutive failures before DEGRADED
	CaptureRetryLimit  int // consecutive capture failures before fatal
	DegradedMultiplier int // capture interval multiplier while DEGRADED
}

// Monitor runs the capture, detect, classify, persist cycle.
type Monitor struct {
	cfg      Config
	source   camera.Source
	detector detect.Detector
	policy   *policy.Policy
	store    *store.Store
	kuma     Heartbeat
	discord  Notifier
	hub      Publisher
	log      *logger.Logger

	state atomic.Int32

	// Cycle-local counters; touched only from Run's goroutine.
	frameCount      int
	cycleFailures   int // capture + inference failures, drives DEGRADED
	captureFailures int // capture only, drives the heartbeat and the fatal ceiling

	persistWG sync.WaitGroup
}

// New wires a monitor. hub, kuma and discord may be nil.
func New(cfg Config, source camera.Source, detector detect.Detector, pol *policy.Policy, st *store.Store, kuma Heartbeat, discord Notifier, hub Publisher, log *logger.Logger) *Monitor {
	if cfg.DetectEveryN < 1 {
		cfg.DetectEveryN = 1
	}
	if cfg.DegradedMultiplier < 2 {
		cfg.DegradedMultiplier = 2
	}
	return &Monitor{
		cfg:      cfg,
		source:   source,
		detector: detector,
		policy:   pol,
		store:    st,
		kuma:     kuma,
		discord:  discord,
		hub:      hub,
		log:      log,
	}
}

// State returns the loop's current state; safe from any goroutine.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
	metrics.LoopState.Set(float64(s))
}

// Run drives the loop until ctx is cancelled (clean shutdown, nil) or a fatal
// condition is hit (the returned error). On shutdown any in-flight persist is
// drained before the source is released.
func (m *Monitor) Run(ctx context.Context) error {
	m.setState(Starting)

	if err := m.store.Recover(); err != nil {
		return fmt.Errorf("store recovery failed: %w", err)
	}
	if _, err := m.store.EnforceRetention(); err != nil {
		m.log.Warning("Initial retention sweep failed: %v", err)
	}

	go m.retentionLoop(ctx)

	m.setState(Running)
	m.log.Info("Monitor running: capture every %s, inference every %d frame(s)", m.cfg.CaptureInterval, m.cfg.DetectEveryN)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return m.shutdown()
		case <-timer.C:
		}

		if err := m.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return m.shutdown()
			}
			m.setState(Stopping)
			m.persistWG.Wait()
			m.source.Close()
			m.setState(Stopped)
			return err
		}

		interval := m.cfg.CaptureInterval
		if m.State() == Degraded {
			interval *= time.Duration(m.cfg.DegradedMultiplier)
		}
		timer.Reset(interval)
	}
}

func (m *Monitor) shutdown() error {
	m.setState(Stopping)
	m.log.Info("Shutting down, draining in-flight persists")
	m.persistWG.Wait()
	if err := m.source.Close(); err != nil {
		m.log.Warning("Error closing camera source: %v", err)
	}
	m.setState(Stopped)
	m.log.Info("Monitor stopped")
	return nil
}

// cycle runs one full capture/detect/classify/persist pass. Only a
// fatal condition (retry ceiling, end of stream) returns an error; everything
// else degrades the cycle's outcome and keeps the process healthy.
func (m *Monitor) cycle(ctx context.Context) error {
	metrics.CyclesTotal.Inc()

	frame, err := m.source.NextFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, camera.ErrEndOfStream) {
			return fmt.Errorf("camera ended its stream: %w", err)
		}
		return m.handleCaptureFailure(err)
	}

	m.handleCaptureSuccess()

	m.frameCount++
	var detections model.DetectionSet
	if m.frameCount%m.cfg.DetectEveryN == 0 {
		detections, err = m.detector.Detect(ctx, frame)
		switch {
		case err == nil:
			metrics.DetectionsTotal.Add(float64(len(detections)))
		case errors.Is(err, detect.ErrInferenceTimeout):
			// Bounded worst-case latency: the frame counts as empty.
			metrics.InferenceTimeouts.Inc()
			m.log.Warning("Inference timed out, treating frame as empty")
			detections = nil
		case ctx.Err() != nil:
			return nil
		default:
			m.cycleFailures++
			m.log.Error("Inference failed: %v", err)
			if m.cycleFailures >= m.cfg.FailureThreshold {
				m.enterDegraded()
			}
			return nil
		}
	}

	// Capture and inference both came through: the cycle is clean.
	m.recoverIfDegraded()

	event := m.policy.Classify(frame, detections, frame.Timestamp)
	if !event.Triggered {
		return nil
	}

	metrics.EventsTriggered.WithLabelValues(event.Class).Inc()
	m.log.Info("Event triggered: %s", event.Reason)

	image := frame.Data
	if len(detections) > 0 {
		annotated, err := m.detector.Annotate(frame, detections)
		if err != nil {
			m.log.Error("Failed to annotate frame: %v", err)
		} else {
			image = annotated
		}
	}

	// Persist off the loop goroutine so frame N+1 can be captured while frame
	// N is written. Shutdown waits for this via persistWG.
	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()
		if _, err := m.store.Persist(event, image); err != nil {
			metrics.PersistFailures.Inc()
			m.log.Error("Failed to persist event: %v", err)
			return
		}
		metrics.ArtifactsPersisted.Inc()

		if m.hub != nil {
			m.hub.PublishEvent(event, image)
		}
		if m.discord != nil {
			m.discord.Notify(fmt.Sprintf("%s: %s at %s", event.Frame.Source, event.Reason,
				event.Frame.Timestamp.Format(time.RFC3339)))
		}
	}()

	return nil
}

func (m *Monitor) handleCaptureFailure(err error) error {
	metrics.CaptureFailures.Inc()
	m.cycleFailures++
	m.captureFailures++
	m.log.Error("Capture error (%d consecutive): %v", m.captureFailures, err)

	if m.captureFailures >= m.cfg.CaptureRetryLimit {
		if m.kuma != nil {
			m.kuma.Push("down", fmt.Sprintf("giving up after %d failed captures", m.captureFailures))
		}
		return fmt.Errorf("camera unavailable after %d consecutive capture failures: %w", m.captureFailures, err)
	}

	if m.captureFailures == m.cfg.FailureThreshold && m.kuma != nil {
		m.kuma.Push("down", fmt.Sprintf("failed %d captures", m.captureFailures))
	}
	if m.cycleFailures >= m.cfg.FailureThreshold {
		m.enterDegraded()
	}
	return nil
}

func (m *Monitor) handleCaptureSuccess() {
	m.captureFailures = 0
	if m.kuma != nil {
		m.kuma.Push("up", "OK")
	}
}

func (m *Monitor) enterDegraded() {
	if m.State() == Degraded {
		return
	}
	m.setState(Degraded)
	m.log.Warning("Entering degraded mode after %d consecutive failures, backing off x%d",
		m.cycleFailures, m.cfg.DegradedMultiplier)
}

// recoverIfDegraded returns to RUNNING on the first clean cycle.
func (m *Monitor) recoverIfDegraded() {
	m.cycleFailures = 0
	if m.State() == Degraded {
		m.setState(Running)
		m.log.Info("Recovered, resuming normal capture rate")
	}
}

func (m *Monitor) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := m.store.EnforceRetention()
			if err != nil {
				m.log.Error("Retention sweep failed: %v", err)
				continue
			}
			metrics.RetentionDeleted.Add(float64(deleted))
		}
	}
}
