package estimate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// yearWithQ1 builds a year whose every metric has q1 events in January and
// rest events in December.
func yearWithQ1(year, q1, rest, partialYear int) *surveillance.YearAggregate {
	var g surveillance.Grid
	for _, m := range surveillance.Metrics() {
		g[0][surveillance.Band20To29][m] = q1
		g[11][surveillance.Band30To39][m] = rest
	}
	return surveillance.FromGrid(year, g, partialYear)
}

// threeYearSummary has complete-year Q1 proportions 0.2, 0.25 and 0.3,
// optionally followed by a partial 2021.
func threeYearSummary(t *testing.T, withPartial bool) *surveillance.Summary {
	t.Helper()
	years := []*surveillance.YearAggregate{
		yearWithQ1(2018, 20, 80, 2021),
		yearWithQ1(2019, 25, 75, 2021),
		yearWithQ1(2020, 30, 70, 2021),
	}
	if withPartial {
		years = append(years, yearWithQ1(2021, 40, 0, 2021))
	}
	sum, err := surveillance.Accumulate(years...)
	require.NoError(t, err)
	return sum
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{"": MethodBootstrap, "Bootstrap": MethodBootstrap, "normal": MethodNormal} {
		m, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, m)
	}
	_, err := ParseMethod("poisson")
	var se *surveillance.InvalidSelectorError
	assert.True(t, errors.As(err, &se))
}

func TestQueryValidate(t *testing.T) {
	valid := Query{Quarter: surveillance.Q2, Metric: surveillance.MetricDeaths, Observed: 3}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		mut  func(*Query)
		kind string
	}{
		{"quarter zero", func(q *Query) { q.Quarter = 0 }, "quarter"},
		{"quarter four", func(q *Query) { q.Quarter = 4 }, "quarter"},
		{"metric", func(q *Query) { q.Metric = 4 }, "metric"},
		{"method", func(q *Query) { q.Method = 9 }, "method"},
		{"observed", func(q *Query) { q.Observed = -1 }, "observed count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mut(&q)
			err := q.Validate()
			var se *surveillance.InvalidSelectorError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.kind, se.Kind)

			_, err = (&Estimator{Summary: threeYearSummary(t, false)}).Estimate(q)
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestEstimatorNormalUsesCompleteYearsOnly(t *testing.T) {
	e := &Estimator{Summary: threeYearSummary(t, true)}
	res, err := e.Estimate(Query{
		Quarter:  surveillance.Q1,
		Metric:   surveillance.MetricNotified,
		Observed: 100,
		Method:   MethodNormal,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Years)
	assert.Equal(t, 95.0, res.Confidence)
	assert.InDelta(t, 0.25, res.Mean, 1e-12)
	assert.InDelta(t, 400, res.Point, 1e-9)
	// stdev 0.05, half-width 1.96*0.05/3
	assert.InDelta(t, 100/(0.25+1.96*0.05/3), res.Min, 1e-9)
	assert.InDelta(t, 100/(0.25-1.96*0.05/3), res.Max, 1e-9)
}

func TestEstimatorBootstrapIncludesPartialYear(t *testing.T) {
	e := &Estimator{
		Summary:   threeYearSummary(t, true),
		Bootstrap: Bootstrap{Rand: seeded(11)},
	}
	res, err := e.Estimate(Query{
		Quarter:  surveillance.Q1,
		Metric:   surveillance.MetricNotified,
		Observed: 100,
		Method:   MethodBootstrap,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Years)
	// The partial year enters as a zero proportion: mean (0.2+0.25+0.3+0)/4.
	assert.InDelta(t, 0.1875, res.Mean, 1e-12)
	assert.InDelta(t, 100/0.1875, res.Point, 1e-9)
	assert.LessOrEqual(t, res.Min, res.Point)
	assert.GreaterOrEqual(t, res.Max, res.Point)
}

func TestEstimatorMethodsAgreeWithoutPartialYear(t *testing.T) {
	e := &Estimator{Summary: threeYearSummary(t, false), Bootstrap: Bootstrap{Rand: seeded(5)}}
	q := Query{Quarter: surveillance.Q3, Metric: surveillance.MetricConfirmed, Observed: 60}

	boot, err := e.Estimate(q)
	require.NoError(t, err)
	q.Method = MethodNormal
	norm, err := e.Estimate(q)
	require.NoError(t, err)

	assert.InDelta(t, norm.Point, boot.Point, 1e-9)
}

func TestEstimatorInsufficientData(t *testing.T) {
	sum, err := surveillance.Accumulate(
		yearWithQ1(2019, 20, 80, 2020),
		yearWithQ1(2020, 5, 0, 2020),
	)
	require.NoError(t, err)
	e := &Estimator{Summary: sum, Bootstrap: Bootstrap{Rand: seeded(2)}}

	_, err = e.Estimate(Query{Quarter: surveillance.Q1, Metric: surveillance.MetricNotified, Observed: 5, Method: MethodNormal})
	var ih *surveillance.InsufficientHistoryError
	require.True(t, errors.As(err, &ih), "got %v", err)

	// Resampling [0.2, 0] hits an all-zero resample often enough to pin the
	// lower percentile at zero.
	_, err = e.Estimate(Query{Quarter: surveillance.Q2, Metric: surveillance.MetricDeaths, Observed: 5})
	var dz *surveillance.DivisionByZeroError
	require.True(t, errors.As(err, &dz), "got %v", err)
	assert.Equal(t, surveillance.Q2, dz.Quarter)
	assert.Equal(t, surveillance.MetricDeaths, dz.Metric)
	assert.Contains(t, err.Error(), "for metric deaths in quarter Q2")
	assert.True(t, surveillance.IsInsufficientData(err))
}

func TestEstimatorWithoutSummary(t *testing.T) {
	_, err := (&Estimator{}).Estimate(Query{Quarter: surveillance.Q1})
	assert.ErrorIs(t, err, surveillance.ErrEmptyProportions)
}

func TestResultFormat(t *testing.T) {
	r := &Result{
		Query:      Query{Quarter: surveillance.Q1, Metric: surveillance.MetricNotified, Observed: 100},
		Confidence: 95,
		Years:      9,
		Point:      400.9,
		Min:        370.9,
		Max:        434.02,
	}
	out := r.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "notified dengue cases")
	assert.Contains(t, lines[0], "through March")
	assert.Contains(t, lines[0], "bootstrap resampling")
	assert.Equal(t, "Estimated total: 400", lines[1])
	assert.Equal(t, "95% interval for the estimated total: (370, 434)", lines[2])
}
