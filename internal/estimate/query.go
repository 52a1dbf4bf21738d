package estimate

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// Method selects the estimator.
type Method int

const (
	MethodBootstrap Method = iota
	MethodNormal
)

func (m Method) String() string {
	switch m {
	case MethodBootstrap:
		return "bootstrap"
	case MethodNormal:
		return "normal"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod accepts "bootstrap" or "normal". An empty string selects
// bootstrap.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bootstrap":
		return MethodBootstrap, nil
	case "normal":
		return MethodNormal, nil
	}
	return 0, &surveillance.InvalidSelectorError{Kind: "method", Value: s}
}

// Query is one validated estimation request: the cumulative count observed
// for a metric through a quarter's cutoff month.
type Query struct {
	Quarter  surveillance.Quarter
	Metric   surveillance.Metric
	Observed int
	Method   Method
}

// Validate rejects out-of-range selectors.
func (q Query) Validate() error {
	if !q.Quarter.Valid() {
		return &surveillance.InvalidSelectorError{Kind: "quarter", Value: strconv.Itoa(int(q.Quarter))}
	}
	if !q.Metric.Valid() {
		return &surveillance.InvalidSelectorError{Kind: "metric", Value: strconv.Itoa(int(q.Metric) + 1)}
	}
	if q.Method != MethodBootstrap && q.Method != MethodNormal {
		return &surveillance.InvalidSelectorError{Kind: "method", Value: q.Method.String()}
	}
	if q.Observed < 0 {
		return &surveillance.InvalidSelectorError{Kind: "observed count", Value: strconv.Itoa(q.Observed)}
	}
	return nil
}

// Result is the estimator-independent answer to a Query.
type Result struct {
	Query Query

	// Confidence is the interval width in percent.
	Confidence float64
	// Years is how many yearly proportions fed the estimate.
	Years int

	// Mean is the mean proportion; Low and High bound it.
	Mean, Low, High float64

	Point    float64
	Min, Max float64
}

// Estimator answers queries against an accumulated summary.
type Estimator struct {
	Summary   *surveillance.Summary
	Bootstrap Bootstrap
	// Z is the normal-method z value. Zero means DefaultZ.
	Z float64
}

// Estimate dispatches q to the bootstrap estimator, which resamples every
// year including the zeroed partial year, or to the normal estimator, which
// uses complete years only.
func (e *Estimator) Estimate(q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if e.Summary == nil {
		return nil, fmt.Errorf("estimate: %w", surveillance.ErrEmptyProportions)
	}

	switch q.Method {
	case MethodNormal:
		z := e.Z
		if z == 0 {
			z = DefaultZ
		}
		res, err := NormalFromHistory(e.Summary.Historical, q.Quarter, q.Metric, q.Observed, z)
		if err != nil {
			return nil, err
		}
		conf := 0.0
		if l, ok := LevelForZ(z); ok {
			conf = float64(l.Percent)
		}
		return &Result{
			Query:      q,
			Confidence: conf,
			Years:      len(e.Summary.Historical.Years()),
			Mean:       res.Mean,
			Low:        res.LimitLow,
			High:       res.LimitHigh,
			Point:      res.Point,
			Min:        res.Min,
			Max:        res.Max,
		}, nil

	default:
		props, err := e.Summary.Resampling.Values(q.Quarter, q.Metric)
		if err != nil {
			return nil, err
		}
		res, err := e.Bootstrap.Estimate(props, q.Observed)
		if err != nil {
			return nil, scope(err, q.Quarter, q.Metric)
		}
		return &Result{
			Query:      q,
			Confidence: res.Confidence,
			Years:      len(props),
			Mean:       res.Mean,
			Low:        res.Low,
			High:       res.High,
			Point:      res.Point,
			Min:        res.Min,
			Max:        res.Max,
		}, nil
	}
}

// scope attaches the quarter and metric to an unscoped division error.
func scope(err error, q surveillance.Quarter, m surveillance.Metric) error {
	var dz *surveillance.DivisionByZeroError
	if errors.As(err, &dz) && !dz.Quarter.Valid() {
		dz.Quarter = q
		dz.Metric = m
	}
	return err
}

var metricPhrases = map[surveillance.Metric]string{
	surveillance.MetricNotified:  "notified dengue cases",
	surveillance.MetricConfirmed: "confirmed dengue cases",
	surveillance.MetricNegative:  "negative dengue cases",
	surveillance.MetricDeaths:    "dengue deaths",
}

// Format writes the estimate as text. Totals are truncated to integers.
func (r *Result) Format(w io.Writer) error {
	method := "bootstrap resampling"
	if r.Query.Method == MethodNormal {
		method = "the normal approximation"
	}
	_, err := fmt.Fprintf(w,
		">>> Estimate of %s, with the proportion obtained by %s over %d years and %d %s observed through %s:\n"+
			"Estimated total: %d\n"+
			"%s interval for the estimated total: (%d, %d)\n",
		metricPhrases[r.Query.Metric], method, r.Years, r.Query.Observed,
		metricPhrases[r.Query.Metric], r.Query.Quarter.MonthName(),
		int(r.Point), confidenceLabel(r.Confidence), int(r.Min), int(r.Max))
	return err
}

func (r *Result) String() string {
	var sb strings.Builder
	_ = r.Format(&sb)
	return sb.String()
}

func confidenceLabel(c float64) string {
	if c == 0 {
		return "Confidence"
	}
	return strconv.FormatFloat(c, 'f', -1, 64) + "%"
}

// FormatLevels writes the multi-level normal report as one line per row.
func FormatLevels(w io.Writer, m surveillance.Metric, observed int, rows []LevelRow) error {
	if _, err := fmt.Fprintf(w, "Normal-approximation intervals for %d %s:\n", observed, metricPhrases[m]); err != nil {
		return err
	}
	for _, row := range rows {
		var err error
		if row.Err != nil {
			_, err = fmt.Fprintf(w, "  through %-9s %d%%: %v\n", row.Quarter.MonthName(), row.Level.Percent, row.Err)
		} else {
			_, err = fmt.Fprintf(w, "  through %-9s %d%%: (%d, %d)\n", row.Quarter.MonthName(), row.Level.Percent,
				int(row.Result.Min), int(row.Result.Max))
		}
		if err != nil {
			return err
		}
	}
	return nil
}
