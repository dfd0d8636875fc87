package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"webcammonitor/internal/logger"
)

// Kuma pushes up/down heartbeats to an Uptime-Kuma push monitor. With no URL
// configured every push is a no-op.
type Kuma struct {
	pushURL string
	client  *http.Client
	log     *logger.Logger
}

// NewKuma creates a pusher for the given push URL (may be empty).
func NewKuma(pushURL string, timeout time.Duration, log *logger.Logger) *Kuma {
	return &Kuma{
		pushURL: pushURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Push sends a status ping. Failures are logged, never propagated: the
// monitor must not care whether its heartbeat landed.
func (k *Kuma) Push(status, msg string) {
	if k.pushURL == "" {
		return
	}

	base := k.pushURL
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	target := fmt.Sprintf("%s?status=%s&msg=%s", base, url.QueryEscape(status), url.QueryEscape(msg))

	resp, err := k.client.Get(target)
	if err != nil {
		k.log.Error("Kuma ping error: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		k.log.Error("Kuma ping error: unexpected status %s", resp.Status)
	}
}
