// Package alerter raises alarms on live hits of a primary store.
package alerter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/ae-archive/vae/internal/features"
	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/notify"
	"github.com/ae-archive/vae/internal/pridb"
	"github.com/ae-archive/vae/internal/store"
)

// AlertConfig holds configuration for alert rules. A nil rule is disabled.
type AlertConfig struct {
	// HitAmplitude fires when a hit reaches Threshold in dB(AE).
	HitAmplitude *ThresholdAlert
	// HitRate fires when a channel records at least Threshold hits per
	// second, averaged over Duration of acquisition time.
	HitRate *ThresholdAlert
}

// ThresholdAlert triggers when a value reaches a threshold.
type ThresholdAlert struct {
	Threshold float64
	Duration  time.Duration
	Severity  string
	Cooldown  time.Duration
	// Channels restricts the rule to these channels. Empty means all.
	Channels []int
}

func (t *ThresholdAlert) applies(channel int) bool {
	return t != nil && (len(t.Channels) == 0 || slices.Contains(t.Channels, channel))
}

// DefaultAlertConfig returns sensible alert defaults.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		HitAmplitude: &ThresholdAlert{
			Threshold: 80, Severity: "warning", Cooldown: 1 * time.Minute,
		},
		HitRate: &ThresholdAlert{
			Threshold: 100, Duration: 10 * time.Second, Severity: "warning", Cooldown: 5 * time.Minute,
		},
	}
}

// Alerter tails hits and sends notifications.
type Alerter struct {
	db        *pridb.Database
	source    string
	providers []notify.Provider
	config    AlertConfig
	tail      store.TailOptions
	now       func() time.Time

	// Deduplication: maps alert key → last fired time
	lastFired map[string]time.Time

	// Hit times per channel within the rate window
	window map[int][]float64
}

// NewAlerter creates a new alerter.
func NewAlerter(db *pridb.Database, providers []notify.Provider, cfg AlertConfig) *Alerter {
	return &Alerter{
		db:        db,
		source:    filepath.Base(db.Path()),
		providers: providers,
		config:    cfg,
		tail:      store.TailOptions{Wait: true},
		now:       time.Now,
		lastFired: make(map[string]time.Time),
		window:    make(map[int][]float64),
	}
}

// Run follows new hits until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) error {
	slog.Info("alerter started", "source", a.source, "providers", len(a.providers))

	records, err := a.db.Listen(ctx, a.tail, "SetType = ?", int(model.SetTypeHit))
	if err != nil {
		return err
	}
	for rec, err := range records {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("alerter stopped")
			}
			return err
		}
		if hit, ok := rec.(model.HitRecord); ok {
			a.evaluate(ctx, a.now(), hit)
		}
	}
	slog.Info("alerter stopped", "reason", "source offline")
	return nil
}

func (a *Alerter) cleanup(now time.Time) {
	const maxAge = 6 * time.Hour
	for key, t := range a.lastFired {
		if now.Sub(t) > maxAge {
			delete(a.lastFired, key)
		}
	}
}

func (a *Alerter) evaluate(ctx context.Context, now time.Time, hit model.HitRecord) {
	a.cleanup(now)
	ch := strconv.Itoa(hit.Channel)

	if cfg := a.config.HitAmplitude; cfg.applies(hit.Channel) && hit.Amplitude > 0 {
		db := features.AmplitudeToDB(hit.Amplitude, features.DBReference)
		if db >= cfg.Threshold {
			n := a.notification("hit_amplitude", cfg, hit, now)
			n.Title = fmt.Sprintf("Hit Amplitude High: channel %d", hit.Channel)
			n.Message = fmt.Sprintf("[%s] channel %d hit at %.1f dB(AE), t=%.6fs", a.source, hit.Channel, db, hit.Time)
			n.Value = math.Round(db*10) / 10
			n.Unit = "dB(AE)"
			a.fire(ctx, now, "hit_amplitude:"+ch, cfg.Cooldown, n)
		}
	}

	if cfg := a.config.HitRate; cfg.applies(hit.Channel) && cfg.Duration > 0 {
		span := cfg.Duration.Seconds()
		times := append(a.window[hit.Channel], hit.Time)
		first := 0
		for first < len(times) && times[first] <= hit.Time-span {
			first++
		}
		times = times[first:]
		a.window[hit.Channel] = times

		rate := float64(len(times)) / span
		if rate >= cfg.Threshold {
			n := a.notification("hit_rate", cfg, hit, now)
			n.Title = fmt.Sprintf("Hit Rate High: channel %d", hit.Channel)
			n.Message = fmt.Sprintf("[%s] channel %d at %.0f hits/s over %s", a.source, hit.Channel, rate, cfg.Duration)
			n.Value = rate
			n.Unit = "hits/s"
			a.fire(ctx, now, "hit_rate:"+ch, cfg.Cooldown, n)
		}
	}
}

// notification fills the fields every rule reports about the triggering hit.
func (a *Alerter) notification(rule string, cfg *ThresholdAlert, hit model.HitRecord, now time.Time) model.Notification {
	n := model.Notification{
		Rule:      rule,
		Severity:  cfg.Severity,
		Source:    a.source,
		Channel:   hit.Channel,
		SetID:     hit.SetID,
		HitTime:   hit.Time,
		Amplitude: hit.Amplitude,
		Threshold: cfg.Threshold,
		Timestamp: now,
	}
	if hit.TRAI != nil {
		n.TRAI = *hit.TRAI
	}
	return n
}

func (a *Alerter) fire(ctx context.Context, now time.Time, key string, cooldown time.Duration, notif model.Notification) {
	if last, ok := a.lastFired[key]; ok && now.Sub(last) < cooldown {
		return // still in cooldown
	}
	a.lastFired[key] = now
	metrics.AlertsFired.WithLabelValues(notif.Rule, notif.Severity).Inc()

	// Send to all providers
	for _, p := range a.providers {
		if err := p.Send(ctx, notif); err != nil {
			slog.Error("sending notification", "provider", p.Name(), "rule", notif.Rule, "error", err)
		}
	}

	slog.Warn("alert fired",
		"rule", notif.Rule,
		"severity", notif.Severity,
		"source", notif.Source,
		"channel", notif.Channel,
		"trai", notif.TRAI,
		"title", notif.Title,
	)
}
