package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ae-archive/vae/internal/model"
)

// NtfyProvider sends alarms via an ntfy server. Priority follows the rule
// severity and is raised one step when the measured value is ten times the
// threshold.
type NtfyProvider struct {
	url    string
	topic  string
	client *http.Client
}

// NewNtfy creates a new ntfy notification provider.
func NewNtfy(url, topic string) *NtfyProvider {
	return &NtfyProvider{
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *NtfyProvider) Name() string { return "ntfy" }

func (n *NtfyProvider) Send(ctx context.Context, notif model.Notification) error {
	endpoint := fmt.Sprintf("%s/%s", n.url, n.topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(ntfyBody(notif)))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}

	req.Header.Set("Title", ntfyTitle(notif))
	req.Header.Set("Priority", strconv.Itoa(ntfyPriority(notif)))
	req.Header.Set("Tags", strings.Join(ntfyTags(notif), ","))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func ntfyTitle(n model.Notification) string {
	if n.Title != "" {
		return n.Title
	}
	return fmt.Sprintf("%s on channel %d", n.Rule, n.Channel)
}

func ntfyBody(n model.Notification) string {
	if n.Message != "" {
		return n.Message
	}
	return fmt.Sprintf("channel %d: %.1f %s (threshold %.1f)", n.Channel, n.Value, n.Unit, n.Threshold)
}

// ntfyPriority maps severity onto ntfy's 1..5 scale.
func ntfyPriority(n model.Notification) int {
	p := 3
	switch n.Severity {
	case "critical":
		p = 5
	case "info":
		p = 2
	}
	if tenfold(n) {
		p = min(p+1, 5)
	}
	return p
}

// ntfyTags lists a severity emoji, a rule emoji, the rule, the channel and
// the hit amplitude in whole dB.
func ntfyTags(n model.Notification) []string {
	var tags []string
	switch n.Severity {
	case "critical":
		tags = append(tags, "rotating_light")
	case "warning":
		tags = append(tags, "warning")
	case "info":
		tags = append(tags, "information_source")
	}
	switch n.Rule {
	case "hit_amplitude":
		tags = append(tags, "loud_sound")
	case "hit_rate":
		tags = append(tags, "chart_with_upwards_trend")
	}
	if n.Rule != "" {
		tags = append(tags, n.Rule)
	}
	tags = append(tags, "ch"+strconv.Itoa(n.Channel))
	if db := hitDB(n); db > 0 {
		tags = append(tags, fmt.Sprintf("%.0fdB", db))
	}
	return tags
}
