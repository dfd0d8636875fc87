package model

import "time"

// Frame is one captured image. The pixel data is the encoded JPEG exactly as
// the camera returned it; decoding happens inside the detector.
type Frame struct {
	Timestamp time.Time
	Source    string
	Data      []byte
}

// Detection is one object instance found in a frame.
type Detection struct {
	Label      string
	Confidence float64
	X          int
	Y          int
	Width      int
	Height     int
}

// DetectionSet holds the detections for one frame in model output order.
// An empty set is valid and means nothing was found.
type DetectionSet []Detection

// Labels returns the distinct labels in model output order.
func (s DetectionSet) Labels() []string {
	seen := make(map[string]bool, len(s))
	labels := make([]string, 0, len(s))
	for _, d := range s {
		if !seen[d.Label] {
			seen[d.Label] = true
			labels = append(labels, d.Label)
		}
	}
	return labels
}

// Event is the trigger decision for one frame. Created by the policy, consumed
// by the store; never mutated afterwards.
type Event struct {
	Frame      Frame
	Detections DetectionSet
	Triggered  bool
	// Class is the label whose detection fired the trigger; empty when not triggered.
	Class string
	// Reason describes which class and threshold fired, or why the event did not.
	Reason string
}

// Artifact is one persisted event: an image file plus a JSON sidecar.
type Artifact struct {
	ImagePath string
	MetaPath  string
	Timestamp time.Time
	Classes   []string
	Size      int64
}

// Metadata is the sidecar written next to each artifact image.
type Metadata struct {
	Timestamp  time.Time   `json:"timestamp"`
	Source     string      `json:"source"`
	Classes    []string    `json:"classes"`
	Detections []Detection `json:"detections"`
}
