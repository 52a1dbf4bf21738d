package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/banshee-data/dengue.report/internal/api"
	"github.com/banshee-data/dengue.report/internal/db"
	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/report"
	"github.com/banshee-data/dengue.report/internal/surveillance"
	"github.com/banshee-data/dengue.report/internal/version"
)

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

// parse parses command flags; the remaining arguments are dataset paths.
func (a *app) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.datasets = fs.Args()
	return nil
}

func (a *app) summary(args []string) error {
	if err := a.parse(a.flagSet("summary"), args); err != nil {
		return err
	}
	sum, err := a.loadSummary()
	if err != nil {
		return err
	}
	return report.WriteSummary(a.out, sum)
}

// queryFlags holds the estimate selectors shared by estimate and report.
// Unset selectors are zero, empty or negative.
type queryFlags struct {
	quarter  *int
	metric   *string
	observed *int
	method   *string
}

func addQueryFlags(fs *flag.FlagSet) queryFlags {
	return queryFlags{
		quarter:  fs.Int("quarter", 0, "Quarter of the observed count: 1 (March), 2 (June) or 3 (September)"),
		metric:   fs.String("metric", "", "Metric: 1 notified, 2 confirmed, 3 negative, 4 deaths (or its name)"),
		observed: fs.Int("observed", -1, "Cumulative count observed through the quarter's last month"),
		method:   fs.String("method", "bootstrap", "Estimation method: bootstrap or normal"),
	}
}

func (f queryFlags) complete() bool {
	return *f.quarter != 0 && *f.metric != "" && *f.observed >= 0
}

func (f queryFlags) query() (estimate.Query, error) {
	var q estimate.Query
	var err error
	if q.Quarter, err = surveillance.QuarterFromSelector(*f.quarter); err != nil {
		return q, err
	}
	if q.Metric, err = surveillance.ParseMetric(*f.metric); err != nil {
		return q, err
	}
	if q.Method, err = estimate.ParseMethod(*f.method); err != nil {
		return q, err
	}
	q.Observed = *f.observed
	return q, q.Validate()
}

func (a *app) estimator(sum *surveillance.Summary) *estimate.Estimator {
	return &estimate.Estimator{
		Summary: sum,
		Bootstrap: estimate.Bootstrap{
			Resamples:  a.cfg.GetBootstrapResamples(),
			Confidence: a.cfg.GetConfidence(),
			Rand:       a.newRand(),
		},
	}
}

func (a *app) estimate(args []string) error {
	fs := a.flagSet("estimate")
	qf := addQueryFlags(fs)
	allLevels := fs.Bool("all-levels", false, "Print normal intervals for every quarter at 99/95/90/80%")
	record := fs.Bool("record", false, "Record the estimate in the cache database")
	if err := a.parse(fs, args); err != nil {
		return err
	}

	sum, err := a.loadSummary()
	if err != nil {
		return err
	}

	p := newPrompter(a.in, a.out)
	if *allLevels {
		if *qf.metric == "" {
			m, err := p.metric()
			if err != nil {
				return err
			}
			*qf.metric = m.String()
		}
		if *qf.observed < 0 {
			if *qf.observed, err = p.observed(); err != nil {
				return err
			}
		}
		*qf.quarter = int(surveillance.Q1)
		*qf.method = estimate.MethodNormal.String()
		q, err := qf.query()
		if err != nil {
			return err
		}
		rows := estimate.NormalLevels(sum.Historical, q.Metric, q.Observed)
		return estimate.FormatLevels(a.out, q.Metric, q.Observed, rows)
	}

	if !qf.complete() {
		if err := p.fill(qf); err != nil {
			return err
		}
	}
	q, err := qf.query()
	if err != nil {
		return err
	}
	res, err := a.estimator(sum).Estimate(q)
	if err != nil {
		return err
	}
	if err := res.Format(a.out); err != nil {
		return err
	}

	if *record {
		store, err := db.NewDB(a.cfg.GetDBPath())
		if err != nil {
			return err
		}
		defer store.Close()
		id, err := store.RecordEstimate(res)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Recorded run %s\n", id)
	}
	return nil
}

func (a *app) report(args []string) error {
	fs := a.flagSet("report")
	out := fs.String("out", a.cfg.GetOutputDir(), "Output directory")
	qf := addQueryFlags(fs)
	if err := a.parse(fs, args); err != nil {
		return err
	}
	sum, err := a.loadSummary()
	if err != nil {
		return err
	}

	// With a full query the report also carries both methods' estimates.
	var results []*estimate.Result
	if qf.complete() {
		base, err := qf.query()
		if err != nil {
			return err
		}
		e := a.estimator(sum)
		for _, m := range []estimate.Method{estimate.MethodBootstrap, estimate.MethodNormal} {
			q := base
			q.Method = m
			res, err := e.Estimate(q)
			if surveillance.IsInsufficientData(err) {
				log.Printf("skipping %s estimate: %v", m, err)
				continue
			}
			if err != nil {
				return err
			}
			results = append(results, res)
		}
	}

	written, err := report.NewWriter(*out).WriteAll(sum, results)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintln(a.out, p)
	}
	return nil
}

// store loads each dataset file and caches its grid. The partial year
// defaults to the latest year among the datasets and the years already
// cached, as when the cache is read back.
func (a *app) store(args []string) error {
	if err := a.parse(a.flagSet("store"), args); err != nil {
		return err
	}
	paths := a.paths()
	if len(paths) == 0 {
		return errors.New("no datasets given")
	}
	l, err := a.loader()
	if err != nil {
		return err
	}
	// Duplicate years fail here, before anything is written.
	partialYear := a.cfg.GetPartialYear()
	years, err := l.LoadYears(paths, partialYear)
	if err != nil {
		return err
	}

	store, err := db.NewDB(a.cfg.GetDBPath())
	if err != nil {
		return err
	}
	defer store.Close()
	if partialYear == 0 {
		cached, err := store.Years()
		if err != nil {
			return err
		}
		latest := surveillance.LatestYear(years)
		for _, s := range cached {
			latest = max(latest, s.Year)
		}
		years = surveillance.DesignatePartial(years, latest)
	}
	for i, y := range years {
		if err := store.SaveYear(y, filepath.Base(paths[i])); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, "Stored %d year(s) in %s\n", len(years), a.cfg.GetDBPath())
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := a.flagSet("serve")
	listen := fs.String("listen", a.cfg.GetListen(), "Listen address")
	reports := fs.String("reports", "", "Serve files from this report directory under /reports/")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if *listen == "" {
		return errors.New("listen address is required")
	}
	sum, err := a.loadSummary()
	if err != nil {
		return err
	}

	seed, ok := a.cfg.GetSeed()
	opts := api.Options{
		Resamples:  a.cfg.GetBootstrapResamples(),
		Confidence: a.cfg.GetConfidence(),
		ReportDir:  *reports,
	}
	if ok {
		opts.Seed = &seed
	}

	var store *db.DB
	if a.dbSet || a.fromDB {
		if store, err = db.NewDB(a.cfg.GetDBPath()); err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}

	mux := api.NewServer(sum, opts).ServeMux()
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	log.Printf("serving %d year(s) on %s", len(sum.Years), *listen)

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

func (a *app) printVersion() error {
	_, err := fmt.Fprintln(a.out, version.String())
	return err
}
