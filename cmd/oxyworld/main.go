package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine"
	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"github.com/Carmen-Shannon/oxy-world/engine/persist"
	"github.com/Carmen-Shannon/oxy-world/engine/renderer"
	"github.com/Carmen-Shannon/oxy-world/engine/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "inspect":
		err = inspectCmd(os.Args[2:])
	case "renumber":
		err = renumberCmd(os.Args[2:])
	case "convert":
		err = convertCmd(os.Args[2:])
	case "run":
		err = runCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: oxyworld <inspect|renumber|convert|run> [flags]")
}

// loadConfig reads the TOML file when one is given and falls back to defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func inspectCmd(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	kind := fs.String("kind", "snapshot", "store kind: snapshot or sqlite")
	path := fs.String("in", "", "saved map path")
	_ = fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("missing -in")
	}

	store, err := persist.Open(*kind, *path)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Load(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("name:      %s\n", snap.Header.Name)
	fmt.Printf("version:   %d\n", snap.Header.Version)
	fmt.Printf("saved:     %s\n", snap.Header.SavedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("instances: %d\n", len(snap.Instances))

	byModel := make(map[string]int)
	byKind := make(map[string]int)
	seen := make(map[uint32]int)
	for _, r := range snap.Instances {
		byModel[r.Model]++
		byKind[r.Kind]++
		seen[r.UID]++
	}
	for _, k := range sortedKeys(byKind) {
		fmt.Printf("  %-10s %d\n", k, byKind[k])
	}
	fmt.Println("models:")
	for _, m := range sortedKeys(byModel) {
		fmt.Printf("  %-20s %d\n", m, byModel[m])
	}

	dups := 0
	for _, n := range seen {
		if n > 1 {
			dups += n - 1
		}
	}
	fmt.Printf("duplicate uids: %d\n", dups)
	return nil
}

// renumberCmd loads a map, giving every colliding UID a fresh one, and saves the repaired map.
func renumberCmd(args []string) error {
	fs := flag.NewFlagSet("renumber", flag.ExitOnError)
	cfgPath := fs.String("config", "", "TOML config path (optional)")
	in := fs.String("in", "", "input map path")
	inKind := fs.String("in-kind", "snapshot", "input store kind")
	out := fs.String("out", "", "output map path (defaults to -in)")
	outKind := fs.String("out-kind", "", "output store kind (defaults to -in-kind)")
	_ = fs.Parse(args)
	if *in == "" {
		return fmt.Errorf("missing -in")
	}
	*out = common.Coalesce(*out, *in)
	*outKind = common.Coalesce(*outKind, *inKind)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	src, err := persist.Open(*inKind, *in)
	if err != nil {
		return err
	}
	defer src.Close()

	snap, err := src.Load(context.Background())
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg.Store.Manifest, snap)
	if err != nil {
		return err
	}

	w := world.NewWorld(
		world.WithWorldConfig(cfg.World),
		world.WithLoaderConfig(cfg.Loader),
		world.WithLogger(log),
	)
	defer w.Close()

	report, err := w.Load(context.Background(), src, catalog)
	if err != nil {
		return err
	}
	renumbered := w.RenumberDuplicates()
	for _, d := range renumbered {
		fmt.Printf("uid %d -> %d\n", d.Requested, d.Assigned)
	}
	if len(report.UnknownModels) > 0 {
		fmt.Printf("skipped %d records with unknown models: %v\n", report.Skipped, report.UnknownModels)
	}

	dst := src
	if *out != *in || *outKind != *inKind {
		if dst, err = persist.Open(*outKind, *out); err != nil {
			return err
		}
		defer dst.Close()
	}
	if err := w.Save(context.Background(), dst); err != nil {
		return err
	}
	fmt.Printf("renumbered %d of %d instances\n", len(renumbered), report.Added)
	return nil
}

func convertCmd(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	in := fs.String("in", "", "input map path")
	inKind := fs.String("in-kind", "snapshot", "input store kind")
	out := fs.String("out", "", "output map path")
	outKind := fs.String("out-kind", "sqlite", "output store kind")
	_ = fs.Parse(args)
	if *in == "" || *out == "" {
		return fmt.Errorf("missing -in or -out")
	}

	src, err := persist.Open(*inKind, *in)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := persist.Open(*outKind, *out)
	if err != nil {
		return err
	}
	defer dst.Close()

	ctx := context.Background()
	snap, err := src.Load(ctx)
	if err != nil {
		return err
	}
	if err := dst.Save(ctx, snap); err != nil {
		return err
	}
	fmt.Printf("converted %d instances %s -> %s\n", len(snap.Instances), *inKind, *outKind)
	return nil
}

// runCmd loads the configured map and drives it headless until SIGINT or SIGTERM.
func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "TOML config path (optional)")
	save := fs.Bool("save", false, "save the map back to the store on shutdown")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	w := world.NewWorld(
		world.WithWorldConfig(cfg.World),
		world.WithLoaderConfig(cfg.Loader),
		world.WithLogger(log),
	)
	defer w.Close()

	store, err := persist.Open(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, statErr := os.Stat(cfg.Store.Path); statErr == nil {
		snap, err := store.Load(context.Background())
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cfg.Store.Manifest, snap)
		if err != nil {
			return err
		}
		if _, err := w.Load(context.Background(), store, catalog); err != nil {
			return err
		}
	} else {
		log.Info("no saved map, starting empty", zap.String("path", cfg.Store.Path))
	}

	backend, err := renderer.ParseBackendType(cfg.Renderer.Backend)
	if err != nil {
		return err
	}
	r, err := renderer.NewRenderer(backend,
		renderer.WithLogger(log),
		renderer.WithForceSoftwareRenderer(cfg.Renderer.ForceSoftware),
	)
	if err != nil {
		return err
	}
	defer r.Release()

	e := engine.NewEngine(w, r,
		engine.WithLogger(log),
		engine.WithTickInterval(cfg.Renderer.TickRate),
		engine.WithRenderFrameLimit(float64(cfg.Renderer.FrameLimit)),
		engine.WithProfiling(cfg.Profiler.Enabled),
		engine.WithProfilerInterval(cfg.Profiler.Interval),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdownCh
		log.Info("shutdown signal", zap.String("signal", sig.String()))
		e.Quit()
	}()

	e.Run()

	if *save {
		return w.Save(context.Background(), store)
	}
	return nil
}

func sortedKeys[K string | uint32, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
