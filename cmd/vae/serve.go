package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ae-archive/vae/internal/alerter"
	"github.com/ae-archive/vae/internal/api"
	"github.com/ae-archive/vae/internal/collector"
	"github.com/ae-archive/vae/internal/config"
	"github.com/ae-archive/vae/internal/notify"
	"github.com/ae-archive/vae/internal/store"
	"github.com/ae-archive/vae/internal/timepicker"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to vae.yml config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ver, sha, built, dirty := buildInfo()
	slog.Info("starting vae",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
		"listen", cfg.Listen,
	)

	// Live extraction needs to write features even when the rest is read-only.
	modes := storeModes{}
	if cfg.Features.Enabled {
		modes[store.TrfDB.Name] = store.ModeReadWriteCreate
	}
	stores, closeStores, err := openStores(ctx, cfg, modes)
	defer closeStores()
	if err != nil {
		return err
	}
	dbs := databases(stores)
	if len(dbs) == 0 {
		return errNoStores
	}

	tail := store.TailOptions{
		BufferSize:   cfg.ListenBufferSize,
		PollInterval: cfg.ListenPollInterval.Duration,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Build notification providers
	providers, closeProviders, err := buildProviders(cfg.Notifications)
	defer closeProviders()
	if err != nil {
		return err
	}

	// Start alerter
	if stores.Pri != nil {
		a := alerter.NewAlerter(stores.Pri, providers, alertConfig(cfg.Alerts))
		g.Go(func() error { return a.Run(ctx) })
	}

	// Start feature extraction
	if cfg.Features.Enabled {
		if stores.Tra == nil || stores.Trf == nil {
			return errors.New("features.enabled requires tradb and trfdb")
		}
		opts := extractOptions(cfg)
		opts.Tail = tail
		opts.Tail.Existing = true
		opts.Tail.Wait = true
		e, err := collector.NewExtraction(stores.Tra, stores.Trf, opts)
		if err != nil {
			return err
		}
		g.Go(func() error {
			_, err := e.Run(ctx)
			return err
		})
	}

	// Start store statistics
	if cfg.Metrics.Enabled {
		stats := collector.NewStats(cfg.Metrics.StatsInterval.Duration, dbs...)
		g.Go(func() error { return collector.Run(ctx, stats) })
	}

	// Start checkpointer
	cp := store.NewCheckpointer(cfg.CheckpointInterval.Duration, dbs...)
	g.Go(func() error { return cp.Run(ctx) })

	// Start HTTP server
	server := api.NewServer(cfg.Listen, stores, tail)
	g.Go(func() error { return server.Run(ctx) })

	slog.Info("all components started",
		"stores", len(dbs),
		"features", cfg.Features.Enabled,
		"notifications", len(providers),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "error", err)
		return err
	}

	slog.Info("vae stopped gracefully")
	return nil
}

// buildProviders creates the configured notification providers. The close
// function disconnects MQTT clients.
func buildProviders(targets []config.NotificationConfig) ([]notify.Provider, func(), error) {
	var providers []notify.Provider
	var mqttClients []*notify.MQTTProvider
	closeAll := func() {
		for _, m := range mqttClients {
			m.Close()
		}
	}

	for _, ncfg := range targets {
		switch ncfg.Type {
		case "ntfy":
			providers = append(providers, notify.NewNtfy(ncfg.URL, ncfg.Topic))
		case "webhook":
			method := ncfg.Method
			if method == "" {
				method = "POST"
			}
			providers = append(providers, notify.NewWebhook(ncfg.URL, method, ncfg.Headers))
		case "mqtt":
			clientID := ncfg.ClientID
			if clientID == "" {
				clientID = "vae"
			}
			m, err := notify.NewMQTT(notify.MQTTConfig{
				Broker:   ncfg.URL,
				ClientID: clientID,
				Username: ncfg.Username,
				Password: ncfg.Password,
				Topic:    ncfg.Topic,
				QoS:      ncfg.QoS,
				Retained: ncfg.Retained,
			})
			if err != nil {
				return nil, closeAll, err
			}
			mqttClients = append(mqttClients, m)
			providers = append(providers, m)
		}
	}
	return providers, closeAll, nil
}

// alertConfig overlays configured rules on the alerter defaults.
func alertConfig(c config.AlertsConfig) alerter.AlertConfig {
	alertCfg := alerter.DefaultAlertConfig()
	if a := c.HitAmplitude; a != nil {
		alertCfg.HitAmplitude.Threshold = a.Threshold
		alertCfg.HitAmplitude.Channels = a.Channels
		if a.Cooldown.Duration > 0 {
			alertCfg.HitAmplitude.Cooldown = a.Cooldown.Duration
		}
		if a.Severity != "" {
			alertCfg.HitAmplitude.Severity = a.Severity
		}
	}
	if a := c.HitRate; a != nil {
		alertCfg.HitRate.Threshold = a.Threshold
		alertCfg.HitRate.Duration = a.Duration.Duration
		alertCfg.HitRate.Channels = a.Channels
		if a.Cooldown.Duration > 0 {
			alertCfg.HitRate.Cooldown = a.Cooldown.Duration
		}
		if a.Severity != "" {
			alertCfg.HitRate.Severity = a.Severity
		}
	}
	return alertCfg
}

func extractOptions(cfg *config.Config) collector.ExtractOptions {
	return collector.ExtractOptions{
		Workers:   cfg.WorkerPoolSize,
		Threshold: cfg.Features.Threshold,
		Picker:    timepicker.Picker(cfg.Features.Picker),
		Features:  cfg.Features.Names,
		Channels:  cfg.Features.Channels,
	}
}
