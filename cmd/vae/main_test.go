package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ae-archive/vae/internal/config"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		PriDB:       filepath.Join(dir, "test.pridb"),
		TraDB:       filepath.Join(dir, "test.tradb"),
		Mode:        "rwc",
		Compression: "none",
		FLACEnabled: true,
		TimeBase:    store.DefaultTimeBase,
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

func TestKindOf(t *testing.T) {
	k, err := kindOf("/data/plate.TRADB")
	require.NoError(t, err)
	assert.Equal(t, store.TraDB, k)

	_, err = kindOf("/data/plate.db")
	var extErr *store.FileExtensionError
	assert.ErrorAs(t, err, &extErr)
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	stores, closeStores, err := openStores(ctx, cfg, nil)
	require.NoError(t, err)
	defer closeStores()

	require.NotNil(t, stores.Pri)
	require.NotNil(t, stores.Tra)
	assert.Nil(t, stores.Trf)
	assert.Len(t, databases(stores), 2)
	assert.False(t, stores.Pri.ReadOnly())
}

func TestOpenStores_ModeOverride(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Mode = "ro"
	require.NoError(t, store.Create(ctx, cfg.PriDB, store.PriDB, 0))
	cfg.TraDB = ""
	cfg.TrfDB = filepath.Join(t.TempDir(), "new.trfdb")

	stores, closeStores, err := openStores(ctx, cfg, storeModes{store.TrfDB.Name: store.ModeReadWriteCreate})
	require.NoError(t, err)
	defer closeStores()

	assert.True(t, stores.Pri.ReadOnly())
	assert.False(t, stores.Trf.ReadOnly())
}

func TestOpenStores_MissingReadOnlyFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "ro"
	_, closeStores, err := openStores(context.Background(), cfg, nil)
	defer closeStores()
	assert.Error(t, err)
}

func TestPrintInfo(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	stores, closeStores, err := openStores(ctx, cfg, nil)
	require.NoError(t, err)
	defer closeStores()

	require.NoError(t, stores.Pri.InsertParameter(ctx, map[string]any{"ID": int64(1), "ADC_µV": 1.0, "ADC_TE": 1.0, "ADC_SS": 1.0}))
	_, err = stores.Pri.WriteHit(ctx, model.HitRecord{Time: 1, Channel: 3, ParamID: 1, Amplitude: 0.01, Duration: 0.001})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printInfo(ctx, &buf, stores.Pri.Database))
	out := buf.String()
	assert.Contains(t, out, "pridb")
	assert.Contains(t, out, cfg.PriDB)
	assert.Contains(t, out, "ae_data")
	assert.Regexp(t, `channels +\[3\]`, out)
	assert.Contains(t, out, "size")
}

func TestAlertConfig(t *testing.T) {
	cfg := alertConfig(config.AlertsConfig{
		HitAmplitude: &config.AlertHitAmplitude{Threshold: 95, Channels: []int{1}},
		HitRate: &config.AlertHitRate{
			Threshold: 20, Duration: config.Duration{Duration: 2 * time.Second},
			Cooldown: config.Duration{Duration: time.Hour}, Severity: "critical",
		},
	})
	require.NotNil(t, cfg.HitAmplitude)
	assert.Equal(t, 95.0, cfg.HitAmplitude.Threshold)
	assert.Equal(t, []int{1}, cfg.HitAmplitude.Channels)
	assert.Equal(t, time.Minute, cfg.HitAmplitude.Cooldown, "default cooldown kept")
	assert.Equal(t, "warning", cfg.HitAmplitude.Severity)

	require.NotNil(t, cfg.HitRate)
	assert.Equal(t, 20.0, cfg.HitRate.Threshold)
	assert.Equal(t, 2*time.Second, cfg.HitRate.Duration)
	assert.Equal(t, time.Hour, cfg.HitRate.Cooldown)
	assert.Equal(t, "critical", cfg.HitRate.Severity)
}

func TestBuildProviders(t *testing.T) {
	providers, closeProviders, err := buildProviders([]config.NotificationConfig{
		{Type: "ntfy", URL: "http://ntfy:8080", Topic: "ae"},
		{Type: "webhook", URL: "http://hooks/vae"},
	})
	require.NoError(t, err)
	defer closeProviders()

	require.Len(t, providers, 2)
	assert.Equal(t, "ntfy", providers[0].Name())
	assert.Equal(t, "webhook", providers[1].Name())
}

func TestRunCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.trfdb")
	require.NoError(t, runCreate(context.Background(), []string{path}))
	assert.FileExists(t, path)

	err := runCreate(context.Background(), []string{path})
	assert.ErrorContains(t, err, "already exists")

	err = runCreate(context.Background(), []string{"-kind", "pridb", filepath.Join(t.TempDir(), "x.tradb")})
	var extErr *store.FileExtensionError
	assert.ErrorAs(t, err, &extErr)
}
