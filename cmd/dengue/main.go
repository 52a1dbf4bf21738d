package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/dengue.report/internal/config"
	"github.com/banshee-data/dengue.report/internal/db"
	"github.com/banshee-data/dengue.report/internal/sinan"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("dengue: %v", err)
	}
}

const usage = `dengue - year-end dengue estimates from SINAN notification exports

Usage: dengue [global flags] <command> [flags] [datasets...]

Commands:
  summary    Print per-year and accumulated tables and historical statistics
  estimate   Estimate a year-end total from a partial-year count
  report     Write tables, PNG charts and an HTML dashboard
  store      Load datasets into the SQLite cache
  serve      Serve the HTTP API and charts
  migrate    Manage the cache database schema
  version    Print version information

Global flags:
`

// app carries the resolved global settings into each command.
type app struct {
	cfg      *config.Config
	fromDB   bool
	dbSet    bool
	datasets []string

	in  io.Reader
	out io.Writer
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("dengue", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "Path to a .json or .yaml config file")
	dbPath := fs.String("db", "", "Path to the SQLite cache (default dengue.db)")
	partialYear := fs.Int("partial-year", 0, "Year to treat as incomplete (default: latest dataset year)")
	seed := fs.Int64("seed", 0, "Seed for bootstrap resampling (default: clock)")
	fromDB := fs.Bool("from-db", false, "Read yearly grids from the cache instead of dataset files")
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	a := &app{cfg: cfg, fromDB: *fromDB, in: in, out: out}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.SetDBPath(*dbPath)
			a.dbSet = true
		case "partial-year":
			cfg.SetPartialYear(*partialYear)
		case "seed":
			cfg.SetSeed(*seed)
		}
	})
	if cfg.DBPath != nil {
		a.dbSet = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "summary":
		return a.summary(rest)
	case "estimate":
		return a.estimate(rest)
	case "report":
		return a.report(rest)
	case "store":
		return a.store(rest)
	case "serve":
		return a.serve(ctx, rest)
	case "migrate":
		return db.RunMigrateCommand(rest, cfg.GetDBPath(), in, out)
	case "version":
		return a.printVersion()
	case "help":
		fs.Usage()
		return nil
	}
	fs.Usage()
	return fmt.Errorf("unknown command: %s", command)
}

// paths returns the datasets named on the command line, falling back to
// the configured ones.
func (a *app) paths() []string {
	if len(a.datasets) > 0 {
		return a.datasets
	}
	return a.cfg.Datasets
}

func (a *app) loader() (*sinan.Loader, error) {
	comma, err := sinan.ParseDelimiter(a.cfg.GetDelimiter())
	if err != nil {
		return nil, err
	}
	return sinan.NewLoader(sinan.Options{Comma: comma}), nil
}

// loadSummary accumulates every year from the dataset files, or from the
// cache when -from-db is set.
func (a *app) loadSummary() (*surveillance.Summary, error) {
	if a.fromDB {
		store, err := db.NewDB(a.cfg.GetDBPath())
		if err != nil {
			return nil, err
		}
		defer store.Close()
		years, err := store.LoadYears(a.cfg.GetPartialYear())
		if err != nil {
			return nil, err
		}
		if len(years) == 0 {
			return nil, fmt.Errorf("no years cached in %s; run 'dengue store' first", a.cfg.GetDBPath())
		}
		return surveillance.Accumulate(years...)
	}

	paths := a.paths()
	if len(paths) == 0 {
		return nil, errors.New("no datasets given")
	}
	l, err := a.loader()
	if err != nil {
		return nil, err
	}
	acc, err := l.LoadAll(paths, a.cfg.GetPartialYear())
	if err != nil {
		return nil, err
	}
	return acc.Summary(), nil
}

// newRand returns the configured bootstrap source, or nil for a
// clock-seeded one.
func (a *app) newRand() *rand.Rand {
	if seed, ok := a.cfg.GetSeed(); ok {
		return rand.New(rand.NewSource(seed))
	}
	return nil
}
