package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/httputil"
	"github.com/banshee-data/dengue.report/internal/monitoring"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// countsJSON keys a Counts by metric name.
func countsJSON(c surveillance.Counts) map[string]int {
	out := make(map[string]int, surveillance.NumMetrics)
	for _, m := range surveillance.Metrics() {
		out[m.String()] = c[m]
	}
	return out
}

type yearJSON struct {
	Year    int            `json:"year"`
	Partial bool           `json:"partial"`
	Records int            `json:"records"`
	Skipped int            `json:"skipped"`
	Totals  map[string]int `json:"totals"`
}

func (s *Server) years() []yearJSON {
	out := make([]yearJSON, 0, len(s.summary.Years))
	for _, y := range s.summary.Years {
		out = append(out, yearJSON{
			Year:    y.Year,
			Partial: y.Partial,
			Records: y.Records,
			Skipped: y.Skipped,
			Totals:  countsJSON(y.Totals),
		})
	}
	return out
}

func (s *Server) listYears(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.years())
}

type statJSON struct {
	Mean   *float64 `json:"mean,omitempty"`
	StdDev *float64 `json:"stdev,omitempty"`
	Error  string   `json:"error,omitempty"`
}

type summaryJSON struct {
	Years      []yearJSON                     `json:"years"`
	Totals     map[string]int                 `json:"totals"`
	Monthly    []map[string]int               `json:"monthly"`
	Bands      map[string]map[string]int      `json:"bands"`
	Historical map[string]map[string]statJSON `json:"historical"`
	Grid       map[string][]map[string]int    `json:"grid"`
}

func historicalJSON(hist *surveillance.ProportionSet) map[string]map[string]statJSON {
	out := make(map[string]map[string]statJSON, surveillance.NumQuarters)
	for _, q := range surveillance.Quarters() {
		row := make(map[string]statJSON, surveillance.NumMetrics)
		for _, m := range surveillance.Metrics() {
			var st statJSON
			mean, err := hist.Mean(q, m)
			if err != nil {
				st.Error = err.Error()
				row[m.String()] = st
				continue
			}
			st.Mean = &mean
			if sd, err := hist.StdDev(q, m); err != nil {
				st.Error = err.Error()
			} else {
				st.StdDev = &sd
			}
			row[m.String()] = st
		}
		out[q.String()] = row
	}
	return out
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sum := s.summary
	resp := summaryJSON{
		Years:      s.years(),
		Totals:     countsJSON(sum.Totals),
		Monthly:    make([]map[string]int, 12),
		Bands:      make(map[string]map[string]int, surveillance.NumBands),
		Historical: historicalJSON(sum.Historical),
		Grid:       make(map[string][]map[string]int, surveillance.NumBands),
	}
	for i, c := range sum.Monthly {
		resp.Monthly[i] = countsJSON(c)
	}
	for b, c := range sum.Grid.BandTotals() {
		band := surveillance.AgeBand(b)
		resp.Bands[band.String()] = countsJSON(c)
		cells := make([]map[string]int, 12)
		for month := 1; month <= 12; month++ {
			cells[month-1] = countsJSON(sum.Grid.Cell(month, band))
		}
		resp.Grid[band.String()] = cells
	}
	httputil.WriteJSONOK(w, resp)
}

type estimateJSON struct {
	Quarter    string  `json:"quarter"`
	Through    string  `json:"through"`
	Metric     string  `json:"metric"`
	Method     string  `json:"method"`
	Observed   int     `json:"observed"`
	Years      int     `json:"years"`
	Confidence float64 `json:"confidence"`
	Mean       float64 `json:"mean_proportion"`
	Low        float64 `json:"low_proportion"`
	High       float64 `json:"high_proportion"`
	Estimate   int     `json:"estimate"`
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	Text       string  `json:"text"`
	RunID      string  `json:"run_id,omitempty"`
}

type levelJSON struct {
	Quarter    string `json:"quarter"`
	Through    string `json:"through"`
	Confidence int    `json:"confidence"`
	Min        *int   `json:"min,omitempty"`
	Max        *int   `json:"max,omitempty"`
	Error      string `json:"error,omitempty"`
}

// parseQuery reads quarter, metric, observed and method from the URL. With
// allQuarters set the quarter is not read, since every quarter is reported.
func parseQuery(r *http.Request, allQuarters bool) (estimate.Query, error) {
	q := estimate.Query{Quarter: surveillance.Q1}
	var err error
	v := r.URL.Query()
	if !allQuarters {
		if q.Quarter, err = surveillance.ParseQuarter(v.Get("quarter")); err != nil {
			return q, err
		}
	}
	if q.Metric, err = surveillance.ParseMetric(v.Get("metric")); err != nil {
		return q, err
	}
	if q.Method, err = estimate.ParseMethod(v.Get("method")); err != nil {
		return q, err
	}
	if q.Observed, err = httputil.RequireQueryInt(r, "observed"); err != nil {
		return q, &surveillance.InvalidSelectorError{Kind: "observed count", Value: v.Get("observed")}
	}
	return q, q.Validate()
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	allLevels := strings.EqualFold(r.URL.Query().Get("levels"), "all")
	q, err := parseQuery(r, allLevels)
	if err != nil {
		writeError(w, err)
		return
	}

	if allLevels {
		if q.Method != estimate.MethodNormal {
			httputil.BadRequest(w, "levels=all requires method=normal")
			return
		}
		s.estimateLevels(w, q)
		return
	}

	resamples, err := httputil.QueryInt(r, "resamples", s.opts.Resamples)
	if err != nil || resamples < 0 || resamples > estimate.MaxResamples {
		httputil.BadRequest(w, fmt.Sprintf("invalid resamples: must be a positive integer up to %d", estimate.MaxResamples))
		return
	}

	e := &estimate.Estimator{Summary: s.summary, Bootstrap: s.bootstrap(resamples)}
	res, err := e.Estimate(q)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := estimateJSON{
		Quarter:    q.Quarter.String(),
		Through:    q.Quarter.MonthName(),
		Metric:     q.Metric.String(),
		Method:     q.Method.String(),
		Observed:   q.Observed,
		Years:      res.Years,
		Confidence: res.Confidence,
		Mean:       res.Mean,
		Low:        res.Low,
		High:       res.High,
		Estimate:   int(res.Point),
		Min:        int(res.Min),
		Max:        int(res.Max),
		Text:       res.String(),
	}
	if s.opts.Store != nil {
		id, err := s.opts.Store.RecordEstimate(res)
		if err != nil {
			monitoring.Logf("failed to record estimate: %v", err)
		} else {
			resp.RunID = id
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) estimateLevels(w http.ResponseWriter, q estimate.Query) {
	rows := estimate.NormalLevels(s.summary.Historical, q.Metric, q.Observed)
	out := make([]levelJSON, 0, len(rows))
	for _, row := range rows {
		l := levelJSON{
			Quarter:    row.Quarter.String(),
			Through:    row.Quarter.MonthName(),
			Confidence: row.Level.Percent,
		}
		if row.Err != nil {
			l.Error = row.Err.Error()
		} else {
			lo, hi := int(row.Result.Min), int(row.Result.Max)
			l.Min, l.Max = &lo, &hi
		}
		out = append(out, l)
	}
	httputil.WriteJSONOK(w, out)
}
