package policy

import (
	"fmt"
	"time"

	"webcammonitor/internal/model"
)

// Policy turns a frame's detections into a trigger decision. The trigger
// history is the only mutable state it owns, and it is updated at most once
// per classified frame.
type Policy struct {
	thresholds       map[string]float64
	defaultThreshold float64
	debounce         time.Duration
	history          *History
}

// New creates a Policy with its own empty history.
func New(thresholds map[string]float64, defaultThreshold float64, debounce time.Duration) *Policy {
	return NewWithHistory(thresholds, defaultThreshold, debounce, NewHistory(debounce))
}

// NewWithHistory creates a Policy around an existing history. Tests use this
// to inject deterministic trigger timelines.
func NewWithHistory(thresholds map[string]float64, defaultThreshold float64, debounce time.Duration, history *History) *Policy {
	return &Policy{
		thresholds:       thresholds,
		defaultThreshold: defaultThreshold,
		debounce:         debounce,
		history:          history,
	}
}

// Threshold returns the configured threshold for a class, falling back to the
// default for classes without an explicit entry.
func (p *Policy) Threshold(class string) float64 {
	if t, ok := p.thresholds[class]; ok {
		return t
	}
	return p.defaultThreshold
}

// Classify decides whether the frame's detections constitute a reportable
// event at time now. An empty detection set never triggers. A detection above
// its class threshold triggers only if the debounce window for that class has
// elapsed; the first qualifying detection in model order wins.
func (p *Policy) Classify(frame model.Frame, detections model.DetectionSet, now time.Time) model.Event {
	event := model.Event{
		Frame:      frame,
		Detections: detections,
	}

	if len(detections) == 0 {
		event.Reason = "no detections"
		return event
	}

	anyAboveThreshold := false
	for _, det := range detections {
		threshold := p.Threshold(det.Label)
		if det.Confidence <= threshold {
			continue
		}
		anyAboveThreshold = true

		last, seen := p.history.LastTrigger(det.Label)
		if seen && now.Sub(last) < p.debounce {
			continue
		}

		event.Triggered = true
		event.Class = det.Label
		event.Reason = fmt.Sprintf("%s %.2f above threshold %.2f", det.Label, det.Confidence, threshold)
		p.history.Record(det.Label, now)
		return event
	}

	if anyAboveThreshold {
		event.Reason = "within debounce window"
	} else {
		event.Reason = "no detection above threshold"
	}
	return event
}
