package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ae-archive/vae/internal/api"
	"github.com/ae-archive/vae/internal/codec"
	"github.com/ae-archive/vae/internal/config"
	"github.com/ae-archive/vae/internal/pridb"
	"github.com/ae-archive/vae/internal/store"
	"github.com/ae-archive/vae/internal/tradb"
	"github.com/ae-archive/vae/internal/trfdb"
)

// storeModes overrides the configured open mode per store kind.
type storeModes map[string]store.Mode

// openStores opens every store with a configured path. The returned close
// function closes all of them.
func openStores(ctx context.Context, cfg *config.Config, modes storeModes) (api.Stores, func(), error) {
	var stores api.Stores
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	mode := func(name string) (store.Mode, error) {
		if m, ok := modes[name]; ok {
			return m, nil
		}
		return store.ParseMode(cfg.Mode)
	}
	options := func(name string) (store.Options, error) {
		m, err := mode(name)
		return store.Options{Mode: m, TimeBase: cfg.TimeBase}, err
	}

	if cfg.PriDB != "" {
		opts, err := options(store.PriDB.Name)
		if err != nil {
			return stores, closeAll, err
		}
		if stores.Pri, err = pridb.Open(ctx, cfg.PriDB, opts); err != nil {
			return stores, closeAll, err
		}
		closers = append(closers, stores.Pri.Close)
	}

	if cfg.TraDB != "" {
		opts, err := options(store.TraDB.Name)
		if err != nil {
			return stores, closeAll, err
		}
		format, err := codec.ParseFormat(cfg.Compression)
		if err != nil {
			return stores, closeAll, err
		}
		stores.Tra, err = tradb.Open(ctx, cfg.TraDB, tradb.Options{
			Store:  opts,
			Format: format,
			Codec:  codec.New(codec.Options{FLAC: cfg.FLACEnabled}),
		})
		if err != nil {
			return stores, closeAll, err
		}
		closers = append(closers, stores.Tra.Close)
	}

	if cfg.TrfDB != "" {
		opts, err := options(store.TrfDB.Name)
		if err != nil {
			return stores, closeAll, err
		}
		if stores.Trf, err = trfdb.Open(ctx, cfg.TrfDB, opts); err != nil {
			return stores, closeAll, err
		}
		closers = append(closers, stores.Trf.Close)
	}

	return stores, closeAll, nil
}

func databases(s api.Stores) []*store.Database {
	var dbs []*store.Database
	if s.Pri != nil {
		dbs = append(dbs, s.Pri.Database)
	}
	if s.Tra != nil {
		dbs = append(dbs, s.Tra.Database)
	}
	if s.Trf != nil {
		dbs = append(dbs, s.Trf.Database)
	}
	return dbs
}

var errNoStores = errors.New("no store configured (set pridb, tradb or trfdb)")

func requirePath(flagName, path string) error {
	if path == "" {
		return fmt.Errorf("%s is required", flagName)
	}
	return nil
}
