// Package notify delivers acoustic emission alarms to external services.
package notify

import (
	"context"
	"math"
	"time"

	"github.com/ae-archive/vae/internal/features"
	"github.com/ae-archive/vae/internal/model"
)

// Provider sends alarms through a specific channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

const unitDB = "dB(AE)"

// alarm is the JSON document posted by the webhook and MQTT providers.
type alarm struct {
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Channel   int       `json:"channel"`
	SetID     int64     `json:"set_id"`
	TRAI      int64     `json:"trai,omitempty"`
	Time      float64   `json:"time"`
	Amplitude amplitude `json:"amplitude"`
	Measured  measured  `json:"measured"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}

type amplitude struct {
	Volts float64 `json:"volts"`
	DB    float64 `json:"db_ae"`
}

type measured struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Unit      string  `json:"unit"`
	Tenfold   bool    `json:"tenfold"`
}

func newAlarm(n model.Notification) alarm {
	return alarm{
		Rule:     n.Rule,
		Severity: n.Severity,
		Source:   n.Source,
		Channel:  n.Channel,
		SetID:    n.SetID,
		TRAI:     n.TRAI,
		Time:     n.HitTime,
		Amplitude: amplitude{
			Volts: n.Amplitude,
			DB:    hitDB(n),
		},
		Measured: measured{
			Value:     n.Value,
			Threshold: n.Threshold,
			Unit:      n.Unit,
			Tenfold:   tenfold(n),
		},
		Title:   n.Title,
		Message: n.Message,
		FiredAt: n.Timestamp,
	}
}

// hitDB is the hit amplitude in dB(AE), rounded to 0.1 dB. Zero without an
// amplitude.
func hitDB(n model.Notification) float64 {
	if n.Amplitude <= 0 {
		return 0
	}
	db := features.AmplitudeToDB(n.Amplitude, features.DBReference)
	return math.Round(db*10) / 10
}

// tenfold reports whether the measured value is at least ten times the
// threshold. Amplitude rules compare in dB, where that is 20 dB.
func tenfold(n model.Notification) bool {
	if n.Unit == unitDB {
		return n.Value-n.Threshold >= 20
	}
	return n.Threshold > 0 && n.Value >= 10*n.Threshold
}
