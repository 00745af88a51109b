// Package main is the facetdb command line tool.
//
// facetdb keeps tabular projects in a data directory. Rows are explored
// through facets and transformed through operations; every applied
// operation is recorded in the project history and can be undone.
// Configuration is read from facetdb.yaml in the data directory and
// overridden by CLI flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/maruel/facetdb/internal/config"
	"github.com/maruel/facetdb/internal/project"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "facetdb: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: facetdb [flags] <command> [args]

commands:
  create <name> [file]        create a project from JSON lines (first line: column names)
  list                        list projects
  facets <project> [file]     compute the facets of an engine configuration
  apply <project> [file]      apply an operation and wait for it to finish
  undo <project>              undo the last entry
  redo <project>              redo the next entry
  history <project>           list history entries
  export <project>            print the current rows as a snapshot
  delete <project>            delete a project
  schema facets|operations    print a JSON schema

A missing file or "-" reads stdin.

flags:
`)
	flag.PrintDefaults()
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	fsync := flag.Bool("fsync", false, "Sync the history log after every write")
	maxBins := flag.Int("max-bins", 100, "Maximum number of bins of a range facet")
	batchDelay := flag.Duration("batch-delay", 50*time.Millisecond, "Minimum interval between recon batches")
	concurrency := flag.Int("concurrency", 1, "Recon batches in flight")
	reconRate := flag.Float64("recon-rate", 0, "Recon service calls per second, 0 for unlimited")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*dataDir)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["fsync"] {
		cfg.History.Fsync = *fsync
	}
	if set["max-bins"] {
		cfg.Binning.MaxBins = *maxBins
	}
	if set["batch-delay"] {
		cfg.Process.BatchDelay = *batchDelay
	}
	if set["concurrency"] {
		cfg.Process.Concurrency = *concurrency
	}
	if set["recon-rate"] {
		cfg.Recon.Rate = *reconRate
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ll.Set(lvl)
	if !set["log-level"] {
		if err := watchConfig(ctx, *dataDir, ll); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
	}

	ws, err := project.NewWorkspace(cfg.ProjectsDir(*dataDir), project.Options{Fsync: cfg.History.Fsync, Env: cfg.Env()})
	if err != nil {
		return err
	}
	err = runCommand(ctx, ws, flag.Args(), os.Stdin, os.Stdout)
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(err, ws.CloseAll(closeCtx))
}

// watchConfig re-applies log_level when the configuration file is written.
func watchConfig(ctx context.Context, dataDir string, ll *slog.LevelVar) error {
	path := filepath.Join(dataDir, config.FileName)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so editors replacing the file are seen too.
	if err := w.Add(dataDir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := config.Load(dataDir)
				if err != nil {
					slog.WarnContext(ctx, "Ignoring invalid configuration", "err", err)
					continue
				}
				if lvl, err := config.ParseLevel(cfg.LogLevel); err == nil && lvl != ll.Level() {
					ll.Set(lvl)
					slog.InfoContext(ctx, "Log level changed", "level", lvl)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching configuration", "err", err)
			}
		}
	}()
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("facetdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
