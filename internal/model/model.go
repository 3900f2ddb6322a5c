// Package model defines the record types shared by all archive stores.
package model

import (
	"fmt"
	"time"
)

// SetType identifies the kind of a primary-data row.
type SetType int

const (
	SetTypeParametric SetType = 1
	SetTypeHit        SetType = 2
	SetTypeStatus     SetType = 3
	SetTypeLabel      SetType = 4
	SetTypeDatetime   SetType = 5
	SetTypeSection    SetType = 6
)

func (t SetType) String() string {
	switch t {
	case SetTypeParametric:
		return "parametric"
	case SetTypeHit:
		return "hit"
	case SetTypeStatus:
		return "status"
	case SetTypeLabel:
		return "label"
	case SetTypeDatetime:
		return "datetime"
	case SetTypeSection:
		return "section"
	default:
		return fmt.Sprintf("settype(%d)", int(t))
	}
}

// IsMarker reports whether rows of this type carry a marker payload.
func (t SetType) IsMarker() bool {
	return t == SetTypeLabel || t == SetTypeDatetime || t == SetTypeSection
}

// Record is implemented by every primary-data record.
type Record interface {
	Type() SetType
	RecordTime() float64
}

// HitRecord is a detected AE hit. Amplitudes are in volts, times in
// seconds, energy in eu (1e-14 V²s) and signal strength in nVs.
type HitRecord struct {
	SetID          int64    `json:"set_id"`
	Time           float64  `json:"time"`
	Channel        int      `json:"channel"`
	ParamID        int64    `json:"param_id"`
	Threshold      *float64 `json:"threshold,omitempty"`
	Amplitude      float64  `json:"amplitude"`
	RiseTime       *float64 `json:"rise_time,omitempty"`
	Duration       float64  `json:"duration"`
	Energy         float64  `json:"energy"`
	SignalStrength *float64 `json:"signal_strength,omitempty"`
	RMS            float64  `json:"rms"`
	Counts         *int64   `json:"counts,omitempty"`
	TRAI           *int64   `json:"trai,omitempty"`

	CascadeHits           *int64   `json:"cascade_hits,omitempty"`
	CascadeCounts         *int64   `json:"cascade_counts,omitempty"`
	CascadeEnergy         *float64 `json:"cascade_energy,omitempty"`
	CascadeSignalStrength *float64 `json:"cascade_signal_strength,omitempty"`
}

func (HitRecord) Type() SetType         { return SetTypeHit }
func (r HitRecord) RecordTime() float64 { return r.Time }

// MarkerRecord is a label, session timestamp or section boundary.
type MarkerRecord struct {
	SetID  int64   `json:"set_id"`
	Time   float64 `json:"time"`
	Kind   SetType `json:"set_type"`
	Number int64   `json:"number"`
	Data   string  `json:"data"`
}

func (r MarkerRecord) Type() SetType       { return r.Kind }
func (r MarkerRecord) RecordTime() float64 { return r.Time }

// StatusRecord is a periodic channel status.
type StatusRecord struct {
	SetID          int64    `json:"set_id"`
	Time           float64  `json:"time"`
	Channel        int      `json:"channel"`
	ParamID        int64    `json:"param_id"`
	Threshold      *float64 `json:"threshold,omitempty"`
	Energy         float64  `json:"energy"`
	SignalStrength *float64 `json:"signal_strength,omitempty"`
	RMS            float64  `json:"rms"`
}

func (StatusRecord) Type() SetType         { return SetTypeStatus }
func (r StatusRecord) RecordTime() float64 { return r.Time }

// NumParametricInputs is the number of analog parametric inputs.
const NumParametricInputs = 8

// ParametricRecord holds the parametric inputs (volts) and counters.
type ParametricRecord struct {
	SetID   int64                         `json:"set_id"`
	Time    float64                       `json:"time"`
	ParamID int64                         `json:"param_id"`
	PCTD    *int64                        `json:"pctd,omitempty"`
	PCTA    *int64                        `json:"pcta,omitempty"`
	PA      [NumParametricInputs]*float64 `json:"pa"`
}

func (ParametricRecord) Type() SetType         { return SetTypeParametric }
func (r ParametricRecord) RecordTime() float64 { return r.Time }

// TraRecord is one transient waveform. Data holds volts unless Raw is set,
// in which case RawData holds the ADC samples.
type TraRecord struct {
	SetID      int64     `json:"set_id"`
	Time       float64   `json:"time"`
	Channel    int       `json:"channel"`
	ParamID    int64     `json:"param_id"`
	Pretrigger int       `json:"pretrigger"`
	Threshold  float64   `json:"threshold"`
	SampleRate int       `json:"samplerate"`
	Samples    int       `json:"samples"`
	Data       []float32 `json:"data,omitempty"`
	RawData    []int16   `json:"raw_data,omitempty"`
	Raw        bool      `json:"raw"`
	// TRAI is the transient index. Zero on write assigns the next index.
	TRAI int64    `json:"trai"`
	RMS  *float64 `json:"rms,omitempty"`
}

// Len returns the number of decoded samples.
func (r TraRecord) Len() int {
	if r.Raw {
		return len(r.RawData)
	}
	return len(r.Data)
}

// FeatureRecord maps feature names to values for one transient.
type FeatureRecord struct {
	TRAI     int64              `json:"trai"`
	Features map[string]float64 `json:"features"`
}

// Notification is an alarm raised by a rule on one hit.
type Notification struct {
	Rule     string `json:"rule"`     // "hit_amplitude", "hit_rate"
	Severity string `json:"severity"` // "info", "warning", "critical"
	Title    string `json:"title"`
	Message  string `json:"message"`
	Source   string `json:"source"`

	Channel int     `json:"channel"`
	SetID   int64   `json:"set_id"`
	TRAI    int64   `json:"trai,omitempty"`
	HitTime float64 `json:"hit_time"`
	// Amplitude of the triggering hit in volts.
	Amplitude float64 `json:"amplitude"`

	// Value is what the rule measured, in Unit, against Threshold.
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Unit      string  `json:"unit"`

	Timestamp time.Time `json:"timestamp"`
}
