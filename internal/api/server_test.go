package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dengue.report/internal/db"
	"github.com/banshee-data/dengue.report/internal/monitoring"
	"github.com/banshee-data/dengue.report/internal/surveillance"
	"github.com/banshee-data/dengue.report/internal/testutil"
)

// year puts q1 of every metric in January and rest in December. Deaths are
// left at zero when noDeaths is set.
func year(y, q1, rest, partialYear int, noDeaths bool) *surveillance.YearAggregate {
	var g surveillance.Grid
	for _, m := range surveillance.Metrics() {
		if m == surveillance.MetricDeaths && noDeaths {
			continue
		}
		g[0][surveillance.Band20To29][m] = q1
		g[11][surveillance.Band60To69][m] = rest
	}
	return surveillance.FromGrid(y, g, partialYear)
}

func testSummary(t *testing.T) *surveillance.Summary {
	t.Helper()
	sum, err := surveillance.Accumulate(
		year(2018, 20, 80, 2021, true),
		year(2019, 25, 75, 2021, false),
		year(2020, 30, 70, 2021, false),
		year(2021, 40, 0, 2021, false),
	)
	require.NoError(t, err)
	return sum
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	var logs []string
	t.Cleanup(monitoring.Capture(&logs))
	seed := int64(7)
	if opts.Seed == nil {
		opts.Seed = &seed
	}
	return NewServer(testSummary(t), opts).ServeMux()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), rec.Body.String())
}

func TestListYears(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := testutil.Get(h, "/api/years")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var years []yearJSON
	decode(t, rec, &years)
	require.Len(t, years, 4)
	assert.Equal(t, 2018, years[0].Year)
	assert.Equal(t, 100, years[0].Totals["notified"])
	assert.Equal(t, 0, years[0].Totals["deaths"])
	assert.True(t, years[3].Partial)
}

func TestShowSummary(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := testutil.Get(h, "/api/summary")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var sum summaryJSON
	decode(t, rec, &sum)
	assert.Equal(t, 340, sum.Totals["notified"])
	require.Len(t, sum.Monthly, 12)
	assert.Equal(t, 115, sum.Monthly[0]["confirmed"])
	assert.Equal(t, 115, sum.Bands["20-29"]["notified"])
	assert.Equal(t, 115, sum.Grid["20-29"][0]["notified"])

	q1 := sum.Historical["Q1"]["notified"]
	require.NotNil(t, q1.Mean)
	assert.InDelta(t, 0.25, *q1.Mean, 1e-12)
	require.NotNil(t, q1.StdDev)
	assert.InDelta(t, 0.05, *q1.StdDev, 1e-12)
	assert.Contains(t, sum.Historical["Q1"]["deaths"].Error, "zero yearly total")
}

func TestEstimateNormal(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := testutil.Get(h, "/api/estimate?quarter=1&metric=1&observed=100&method=normal")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var est estimateJSON
	decode(t, rec, &est)
	assert.Equal(t, "Q1", est.Quarter)
	assert.Equal(t, "March", est.Through)
	assert.Equal(t, "notified", est.Metric)
	assert.Equal(t, "normal", est.Method)
	assert.Equal(t, 3, est.Years)
	assert.Equal(t, 400, est.Estimate)
	assert.Less(t, est.Min, est.Estimate)
	assert.Greater(t, est.Max, est.Estimate)
	assert.Contains(t, est.Text, "Estimated total: 400")
	assert.Empty(t, est.RunID)
}

func TestEstimateBootstrap(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := testutil.Get(h, "/api/estimate?quarter=q1&metric=confirmed&observed=100&resamples=200")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var est estimateJSON
	decode(t, rec, &est)
	assert.Equal(t, "bootstrap", est.Method)
	// The zeroed partial year is resampled too.
	assert.Equal(t, 4, est.Years)
	assert.InDelta(t, 0.1875, est.Mean, 1e-12)
	assert.Equal(t, 533, est.Estimate)
	assert.LessOrEqual(t, est.Min, est.Estimate)
}

func TestEstimateLevels(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := testutil.Get(h, "/api/estimate?quarter=1&metric=2&observed=50&method=normal&levels=all")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var rows []levelJSON
	decode(t, rec, &rows)
	require.Len(t, rows, 12)
	assert.Equal(t, 99, rows[0].Confidence)
	assert.Equal(t, "September", rows[11].Through)
	for _, row := range rows {
		assert.Empty(t, row.Error)
		require.NotNil(t, row.Min)
		require.NotNil(t, row.Max)
	}
}

func TestEstimateLevelsIgnoresQuarter(t *testing.T) {
	h := newTestServer(t, Options{})
	want := testutil.Get(h, "/api/estimate?quarter=1&metric=2&observed=50&method=normal&levels=all")
	testutil.AssertStatusCode(t, want.Code, http.StatusOK)

	for _, target := range []string{
		"/api/estimate?metric=2&observed=50&method=normal&levels=all",
		"/api/estimate?quarter=3&metric=2&observed=50&method=normal&levels=ALL",
	} {
		rec := testutil.Get(h, target)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var rows []levelJSON
		decode(t, rec, &rows)
		assert.Len(t, rows, 12, target)
		assert.JSONEq(t, want.Body.String(), rec.Body.String(), target)
	}
}

func TestEstimateErrors(t *testing.T) {
	h := newTestServer(t, Options{})

	tests := []struct {
		name   string
		target string
		status int
		msg    string
	}{
		{"missing quarter", "/api/estimate?metric=1&observed=1", http.StatusBadRequest, "quarter"},
		{"quarter out of range", "/api/estimate?quarter=4&metric=1&observed=1", http.StatusBadRequest, "quarter"},
		{"bad metric", "/api/estimate?quarter=1&metric=9&observed=1", http.StatusBadRequest, "metric"},
		{"bad method", "/api/estimate?quarter=1&metric=1&observed=1&method=poisson", http.StatusBadRequest, "method"},
		{"missing observed", "/api/estimate?quarter=1&metric=1", http.StatusBadRequest, "observed"},
		{"negative observed", "/api/estimate?quarter=1&metric=1&observed=-3", http.StatusBadRequest, "observed"},
		{"bad resamples", "/api/estimate?quarter=1&metric=1&observed=1&resamples=-5", http.StatusBadRequest, "resamples"},
		{"too many resamples", "/api/estimate?quarter=1&metric=1&observed=1&resamples=2000000000", http.StatusBadRequest, "resamples"},
		{"levels need normal", "/api/estimate?quarter=1&metric=1&observed=1&levels=all", http.StatusBadRequest, "method=normal"},
		{"zero deaths normal", "/api/estimate?quarter=2&metric=4&observed=3&method=normal", http.StatusUnprocessableEntity, "zero yearly total"},
		{"zero deaths bootstrap", "/api/estimate?quarter=2&metric=deaths&observed=3", http.StatusUnprocessableEntity, "zero yearly total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.Get(h, tt.target)
			testutil.AssertStatusCode(t, rec.Code, tt.status)
			var resp map[string]string
			decode(t, rec, &resp)
			assert.Contains(t, resp["error"], tt.msg)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, Options{})
	for _, path := range []string{"/api/years", "/api/summary", "/api/estimate", "/charts"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestCharts(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := testutil.Get(h, "/charts")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Dengue surveillance")
}

func TestReportFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.txt"), []byte("ACCUMULATED SUMMARY\n"), 0o644))

	h := newTestServer(t, Options{ReportDir: dir})

	rec := testutil.Get(h, "/reports/summary.txt")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "ACCUMULATED SUMMARY\n", rec.Body.String())

	testutil.AssertStatusCode(t, testutil.Get(h, "/reports/missing.png").Code, http.StatusNotFound)
	testutil.AssertStatusCode(t, testutil.Get(h, "/reports/.hidden").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, testutil.Get(h, "/reports/").Code, http.StatusBadRequest)

	// Without a report directory the route is not mounted.
	testutil.AssertStatusCode(t, testutil.Get(newTestServer(t, Options{}), "/reports/summary.txt").Code, http.StatusNotFound)
}

func TestEstimateRunsAreRecorded(t *testing.T) {
	var logs []string
	t.Cleanup(monitoring.Capture(&logs))
	store, err := db.NewDB(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := newTestServer(t, Options{Store: store})
	rec := testutil.Get(h, "/api/estimate?quarter=3&metric=1&observed=90&method=normal")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var est estimateJSON
	decode(t, rec, &est)
	require.NotEmpty(t, est.RunID)

	rec = testutil.Get(h, "/api/runs?limit=5")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var runs []db.EstimateRun
	decode(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, est.RunID, runs[0].RunID)
	assert.Equal(t, 3, runs[0].Quarter)

	testutil.AssertStatusCode(t, testutil.Get(h, "/api/runs?limit=x").Code, http.StatusBadRequest)
	testutil.AssertStatusCode(t, testutil.Get(newTestServer(t, Options{}), "/api/runs").Code, http.StatusNotFound)
}

func TestLoggingMiddleware(t *testing.T) {
	var logs []string
	restore := monitoring.Capture(&logs)
	defer restore()

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	rec := testutil.Get(h, "/api/years?x=1")
	testutil.AssertStatusCode(t, rec.Code, http.StatusTeapot)

	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], colorStatus(http.StatusTeapot))
	assert.Contains(t, logs[0], "GET /api/years?x=1")
	assert.Contains(t, logs[0], " 15B in ")
}

func TestLoggingMiddlewareImplicitStatus(t *testing.T) {
	var logs []string
	restore := monitoring.Capture(&logs)
	defer restore()

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := testutil.Get(h, "/api/summary")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], colorStatus(http.StatusOK))
	assert.Contains(t, logs[0], " 0B in ")
}

func TestColorStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "100"},
		{200, "\033[1;32m200\033[0m"},
		{304, "\033[33m304\033[0m"},
		{422, "\033[1;31m422\033[0m"},
		{500, "\033[1;35m500\033[0m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, colorStatus(tt.code), tt.code)
	}
}
