// Package api serves accumulated surveillance data and year-end estimates
// over HTTP.
package api

import (
	"bytes"
	"errors"
	"math/rand"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/dengue.report/internal/db"
	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/fsutil"
	"github.com/banshee-data/dengue.report/internal/httputil"
	"github.com/banshee-data/dengue.report/internal/report"
	"github.com/banshee-data/dengue.report/internal/security"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// Options configure a Server. Zero values select the estimator defaults.
type Options struct {
	Resamples  int
	Confidence float64
	// Seed makes bootstrap answers reproducible. Nil seeds from the clock.
	Seed *int64

	// ReportDir is served under /reports/. Empty disables the route.
	ReportDir string
	FS        fsutil.FileSystem

	// Store records every successful estimate when set.
	Store *db.DB
}

type Server struct {
	summary *surveillance.Summary
	opts    Options
	seed    int64
	calls   atomic.Int64
}

func NewServer(sum *surveillance.Summary, opts Options) *Server {
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	s := &Server{summary: sum, opts: opts, seed: time.Now().UnixNano()}
	if opts.Seed != nil {
		s.seed = *opts.Seed
	}
	return s
}

// newRand returns a generator for one request. *rand.Rand is not safe for
// concurrent use, so each request draws its own from a shared counter.
func (s *Server) newRand() *rand.Rand {
	return rand.New(rand.NewSource(s.seed + s.calls.Add(1) - 1))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/years", s.listYears)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/estimate", s.handleEstimate)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/charts", s.charts)
	if s.opts.ReportDir != "" {
		mux.HandleFunc("/reports/", s.reportFile)
	}
	return mux
}

// writeError maps domain errors onto status codes: bad selectors are the
// caller's fault, undefined estimates are unanswerable with this data.
func writeError(w http.ResponseWriter, err error) {
	var se *surveillance.InvalidSelectorError
	switch {
	case errors.As(err, &se):
		httputil.BadRequest(w, err.Error())
	case surveillance.IsInsufficientData(err):
		httputil.UnprocessableEntity(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) charts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteDashboard(&buf, s.summary, nil); err != nil {
		httputil.InternalServerError(w, "failed to render charts")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) reportFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/reports/")
	path, err := security.ResolveReportPath(s.opts.ReportDir, name)
	if err != nil {
		httputil.BadRequest(w, "invalid report name")
		return
	}
	data, err := s.opts.FS.ReadFile(path)
	if err != nil {
		httputil.NotFound(w, "report not found: "+name)
		return
	}
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ct)
	w.Write(data)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.Store == nil {
		httputil.NotFound(w, "no cache database is open")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 50)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := s.opts.Store.EstimateRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to read estimate runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []db.EstimateRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) bootstrap(resamples int) estimate.Bootstrap {
	return estimate.Bootstrap{
		Resamples:  resamples,
		Confidence: s.opts.Confidence,
		Rand:       s.newRand(),
	}
}
