package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/ae-archive/vae/internal/collector"
	"github.com/ae-archive/vae/internal/export"
	"github.com/ae-archive/vae/internal/store"
	"github.com/ae-archive/vae/internal/timepicker"
)

func runInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to vae.yml config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// Positional paths replace the configured store of their kind.
	for _, path := range fs.Args() {
		kind, err := kindOf(path)
		if err != nil {
			return err
		}
		switch kind {
		case store.PriDB:
			cfg.PriDB = path
		case store.TraDB:
			cfg.TraDB = path
		case store.TrfDB:
			cfg.TrfDB = path
		}
	}

	stores, closeStores, err := openStores(ctx, cfg, storeModes{
		store.PriDB.Name: store.ModeReadOnly,
		store.TraDB.Name: store.ModeReadOnly,
		store.TrfDB.Name: store.ModeReadOnly,
	})
	defer closeStores()
	if err != nil {
		return err
	}
	dbs := databases(stores)
	if len(dbs) == 0 {
		return errNoStores
	}
	for _, d := range dbs {
		if err := printInfo(ctx, os.Stdout, d); err != nil {
			return err
		}
	}
	return nil
}

func kindOf(path string) (store.Kind, error) {
	for _, k := range []store.Kind{store.PriDB, store.TraDB, store.TrfDB} {
		if strings.HasSuffix(strings.ToLower(path), k.Extension) {
			return k, nil
		}
	}
	return store.Kind{}, &store.FileExtensionError{Path: path, Want: ".pridb, .tradb or .trfdb"}
}

func printInfo(ctx context.Context, out io.Writer, d *store.Database) error {
	info, err := d.GlobalInfo(ctx)
	if err != nil {
		return err
	}
	tables, err := d.Tables(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", d.Kind().Name, d.Path())
	if st, err := os.Stat(d.Path()); err == nil {
		fmt.Fprintf(w, "  size\t%s\n", formatBytes(st.Size()))
	}
	fmt.Fprintf(w, "  time base\t%d\n", d.TimeBase())
	for _, key := range slices.Sorted(maps.Keys(info)) {
		fmt.Fprintf(w, "  %s\t%v\n", key, info[key])
	}
	fmt.Fprintf(w, "  tables\t\n")
	for _, t := range tables {
		n, err := d.Rows(ctx, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "    %s\t%d rows\n", t, n)
	}
	if d.Kind() != store.TrfDB {
		chans, err := d.Channels(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  channels\t%v\n", chans)
	}
	fmt.Fprintln(w)
	return w.Flush()
}

// formatBytes formats bytes into human-readable form.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(b)/float64(div), units[exp])
}

func runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	kindName := fs.String("kind", "", "store kind: pridb, tradb or trfdb (default: from extension)")
	timeBase := fs.Int64("time-base", store.DefaultTimeBase, "time ticks per second")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: vae create [-kind pridb|tradb|trfdb] PATH")
	}
	path := fs.Arg(0)

	var kind store.Kind
	var err error
	if *kindName != "" {
		kind, err = store.KindByName(*kindName)
	} else {
		kind, err = kindOf(path)
	}
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := store.Create(ctx, path, kind, *timeBase); err != nil {
		return err
	}
	fmt.Printf("created %s %s\n", kind.Name, path)
	return nil
}

func runExtract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to vae.yml config file")
	traPath := fs.String("tradb", "", "source tradb (default: from config)")
	trfPath := fs.String("trfdb", "", "target trfdb, created if missing (default: from config)")
	follow := fs.Bool("follow", false, "keep waiting for new transients")
	picker := fs.String("picker", "", "arrival-time picker (default: from config)")
	names := fs.String("features", "", "comma-separated features (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.PriDB = ""
	if *traPath != "" {
		cfg.TraDB = *traPath
	}
	if *trfPath != "" {
		cfg.TrfDB = *trfPath
	}
	if err := requirePath("-tradb", cfg.TraDB); err != nil {
		return err
	}
	if err := requirePath("-trfdb", cfg.TrfDB); err != nil {
		return err
	}

	stores, closeStores, err := openStores(ctx, cfg, storeModes{
		store.TraDB.Name: store.ModeReadOnly,
		store.TrfDB.Name: store.ModeReadWriteCreate,
	})
	defer closeStores()
	if err != nil {
		return err
	}

	opts := extractOptions(cfg)
	if *picker != "" {
		opts.Picker = timepicker.Picker(*picker)
	}
	if *names != "" {
		opts.Features = strings.Split(*names, ",")
	}
	opts.Tail = store.TailOptions{
		Existing:     true,
		Wait:         *follow,
		BufferSize:   cfg.ListenBufferSize,
		PollInterval: cfg.ListenPollInterval.Duration,
	}

	e, err := collector.NewExtraction(stores.Tra, stores.Trf, opts)
	if err != nil {
		return err
	}
	n, err := e.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("wrote features of %d transients to %s\n", n, cfg.TrfDB)
	return nil
}

// optionalFloat is a flag that records whether it was set.
type optionalFloat struct{ v *float64 }

func (f *optionalFloat) String() string {
	if f.v == nil {
		return ""
	}
	return fmt.Sprint(*f.v)
}

func (f *optionalFloat) Set(s string) error {
	var v float64
	if _, err := fmt.Sscan(s, &v); err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	f.v = &v
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to vae.yml config file")
	traPath := fs.String("tradb", "", "source tradb (default: from config)")
	channel := fs.Int("channel", 1, "channel number")
	block := fs.Float64("block", export.DefaultBlock, "seconds read per step")
	out := fs.String("out", "", "output WAV file")
	var start, stop optionalFloat
	fs.Var(&start, "start", "start time in seconds (default: first transient)")
	fs.Var(&stop, "stop", "stop time in seconds (default: last transient)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requirePath("-out", *out); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.PriDB, cfg.TrfDB = "", ""
	if *traPath != "" {
		cfg.TraDB = *traPath
	}
	if err := requirePath("-tradb", cfg.TraDB); err != nil {
		return err
	}

	stores, closeStores, err := openStores(ctx, cfg, storeModes{store.TraDB.Name: store.ModeReadOnly})
	defer closeStores()
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	res, err := export.WAV(ctx, stores.Tra, f, export.Options{
		Channel:   *channel,
		TimeStart: start.v,
		TimeStop:  stop.v,
		Block:     *block,
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", *out, cerr)
	}
	if err != nil {
		_ = os.Remove(*out)
		return err
	}
	fmt.Printf("wrote %d samples at %d Hz in %d blocks to %s\n", res.Samples, res.SampleRate, res.Blocks, *out)
	return nil
}
