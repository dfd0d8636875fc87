package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcammonitor/internal/model"
)

func frameAt(t time.Time) model.Frame {
	return model.Frame{Timestamp: t, Source: "cam1", Data: []byte{0xff, 0xd8, 0xff}}
}

func TestClassify_EmptySetNeverTriggers(t *testing.T) {
	p := New(map[string]float64{"person": 0.5}, 0.5, time.Minute)
	now := time.Now()

	event := p.Classify(frameAt(now), nil, now)
	assert.False(t, event.Triggered)
	assert.Equal(t, "no detections", event.Reason)

	event = p.Classify(frameAt(now), model.DetectionSet{}, now)
	assert.False(t, event.Triggered)
}

func TestClassify_BelowThresholdNeverTriggers(t *testing.T) {
	p := New(map[string]float64{"person": 0.5, "car": 0.8}, 0.5, time.Minute)
	now := time.Now()

	set := model.DetectionSet{
		{Label: "person", Confidence: 0.5}, // equal is not above
		{Label: "car", Confidence: 0.79},
		{Label: "dog", Confidence: 0.4}, // default threshold 0.5
	}
	event := p.Classify(frameAt(now), set, now)
	assert.False(t, event.Triggered)
	assert.Equal(t, "no detection above threshold", event.Reason)
}

func TestClassify_DebounceScenario(t *testing.T) {
	// threshold=0.5 for person, debounce=60s.
	p := New(map[string]float64{"person": 0.5}, 0.5, 60*time.Second)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	// t=0: person@0.9 triggers.
	event := p.Classify(frameAt(base), model.DetectionSet{{Label: "person", Confidence: 0.9}}, base)
	require.True(t, event.Triggered)
	assert.Equal(t, "person", event.Class)

	// t=10s: person@0.95 is classified but does not trigger.
	at10 := base.Add(10 * time.Second)
	event = p.Classify(frameAt(at10), model.DetectionSet{{Label: "person", Confidence: 0.95}}, at10)
	assert.False(t, event.Triggered)
	assert.Equal(t, "within debounce window", event.Reason)

	// t=65s: debounce elapsed, person@0.6 triggers again.
	at65 := base.Add(65 * time.Second)
	event = p.Classify(frameAt(at65), model.DetectionSet{{Label: "person", Confidence: 0.6}}, at65)
	assert.True(t, event.Triggered)
}

func TestClassify_DebounceIsPerClass(t *testing.T) {
	p := New(map[string]float64{"person": 0.5, "car": 0.5}, 0.5, time.Minute)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	event := p.Classify(frameAt(base), model.DetectionSet{{Label: "person", Confidence: 0.9}}, base)
	require.True(t, event.Triggered)

	// A different class triggers inside person's debounce window.
	at5 := base.Add(5 * time.Second)
	event = p.Classify(frameAt(at5), model.DetectionSet{{Label: "car", Confidence: 0.9}}, at5)
	assert.True(t, event.Triggered)
	assert.Equal(t, "car", event.Class)
}

func TestClassify_DebouncedClassYieldsToNextQualifying(t *testing.T) {
	p := New(map[string]float64{"person": 0.5, "car": 0.5}, 0.5, time.Minute)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	event := p.Classify(frameAt(base), model.DetectionSet{{Label: "person", Confidence: 0.9}}, base)
	require.True(t, event.Triggered)

	// person is debounced but car qualifies later in the same set.
	at5 := base.Add(5 * time.Second)
	set := model.DetectionSet{
		{Label: "person", Confidence: 0.95},
		{Label: "car", Confidence: 0.8},
	}
	event = p.Classify(frameAt(at5), set, at5)
	assert.True(t, event.Triggered)
	assert.Equal(t, "car", event.Class)
}

func TestClassify_SeededHistoryDebounces(t *testing.T) {
	history := NewHistory(time.Minute)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	history.Seed("person", base)

	p := NewWithHistory(map[string]float64{"person": 0.5}, 0.5, time.Minute, history)

	at30 := base.Add(30 * time.Second)
	event := p.Classify(frameAt(at30), model.DetectionSet{{Label: "person", Confidence: 0.9}}, at30)
	assert.False(t, event.Triggered)
}

func TestClassify_DefaultThresholdForUnlistedClass(t *testing.T) {
	p := New(map[string]float64{"person": 0.5}, 0.7, time.Minute)
	now := time.Now()

	event := p.Classify(frameAt(now), model.DetectionSet{{Label: "cat", Confidence: 0.65}}, now)
	assert.False(t, event.Triggered)

	event = p.Classify(frameAt(now), model.DetectionSet{{Label: "cat", Confidence: 0.75}}, now)
	assert.True(t, event.Triggered)
}

func TestClassify_MutatesHistoryOncePerFrame(t *testing.T) {
	history := NewHistory(time.Minute)
	p := NewWithHistory(map[string]float64{"person": 0.5}, 0.5, time.Minute, history)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	// Three qualifying person detections in one frame record one trigger.
	set := model.DetectionSet{
		{Label: "person", Confidence: 0.9},
		{Label: "person", Confidence: 0.8},
		{Label: "person", Confidence: 0.7},
	}
	event := p.Classify(frameAt(base), set, base)
	require.True(t, event.Triggered)

	assert.Len(t, history.triggers["person"], 1)
}

func TestHistory_WindowAndLimitBound(t *testing.T) {
	h := NewHistory(time.Minute)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 200; i++ {
		h.Record("person", base.Add(time.Duration(i)*time.Second))
	}

	ts := h.triggers["person"]
	assert.LessOrEqual(t, len(ts), historyLimit)

	last, ok := h.LastTrigger("person")
	require.True(t, ok)
	assert.Equal(t, base.Add(199*time.Second), last)

	// Everything kept is inside the window of the newest entry.
	cutoff := last.Add(-time.Minute)
	for _, tt := range ts[:len(ts)-1] {
		assert.False(t, tt.Before(cutoff.Add(-time.Second)))
	}
}

func TestHistory_LastTriggerEmpty(t *testing.T) {
	h := NewHistory(time.Minute)
	_, ok := h.LastTrigger("person")
	assert.False(t, ok)
}
