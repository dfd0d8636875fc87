package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"webcammonitor/internal/logger"
)

// Discord posts event notifications to a webhook, at most one per configured
// interval so a sustained presence does not flood the channel.
type Discord struct {
	webhookURL  string
	minInterval time.Duration
	client      *http.Client
	log         *logger.Logger

	mu       sync.Mutex
	lastPost time.Time
}

// NewDiscord creates a notifier for the given webhook URL (may be empty).
func NewDiscord(webhookURL string, minInterval, timeout time.Duration, log *logger.Logger) *Discord {
	return &Discord{
		webhookURL:  webhookURL,
		minInterval: minInterval,
		client:      &http.Client{Timeout: timeout},
		log:         log,
	}
}

// Notify posts content unless a post went out within the minimum interval.
// Returns whether a post was attempted. Failures are logged, never propagated.
func (d *Discord) Notify(content string) bool {
	if d.webhookURL == "" {
		return false
	}

	d.mu.Lock()
	now := time.Now()
	if !d.lastPost.IsZero() && now.Sub(d.lastPost) < d.minInterval {
		d.mu.Unlock()
		return false
	}
	d.lastPost = now
	d.mu.Unlock()

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		d.log.Error("Discord payload error: %v", err)
		return false
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		d.log.Error("Discord webhook error: %v", err)
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.log.Error("Discord webhook error: unexpected status %s", resp.Status)
	}
	return true
}
