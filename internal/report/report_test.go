package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/fsutil"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// gridYear puts n of every metric in each month of one band.
func gridYear(year, n, partialYear int) *surveillance.YearAggregate {
	var g surveillance.Grid
	for month := 0; month < 12; month++ {
		for _, m := range surveillance.Metrics() {
			g[month][surveillance.Band20To29][m] = n
		}
	}
	return surveillance.FromGrid(year, g, partialYear)
}

func testSummary(t *testing.T) *surveillance.Summary {
	t.Helper()
	sum, err := surveillance.Accumulate(gridYear(2018, 2, 2020), gridYear(2019, 3, 2020), gridYear(2020, 1, 2020))
	require.NoError(t, err)
	return sum
}

func TestWriteBandTableTotals(t *testing.T) {
	sum := testSummary(t)
	var buf bytes.Buffer
	require.NoError(t, WriteBandTable(&buf, &sum.Grid, surveillance.MetricConfirmed))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1+surveillance.NumBands+1)
	assert.Contains(t, lines[0], "Subtotal")

	last := strings.Fields(lines[len(lines)-1])
	assert.Equal(t, "Subtotal", last[0])
	// 6 per month, 72 overall
	assert.Equal(t, "6", last[1])
	assert.Equal(t, "72", last[len(last)-1])
}

func TestWriteMonthlyTable(t *testing.T) {
	y := gridYear(2019, 4, 0)
	var buf bytes.Buffer
	require.NoError(t, WriteMonthlyTable(&buf, y.Monthly, surveillance.MetricDeaths))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[0]), "Total"))
	row := strings.Fields(lines[1])
	assert.Equal(t, "deaths", row[0])
	assert.Equal(t, "48", row[len(row)-1])
}

func TestWriteSummary(t *testing.T) {
	sum := testSummary(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sum))
	out := buf.String()

	assert.Contains(t, out, "YEAR: 2018")
	assert.Contains(t, out, "YEAR: 2020 (partial)")
	assert.Contains(t, out, "ACCUMULATED SUMMARY")
	assert.Contains(t, out, "TOTALS OF ALL YEARS")
	assert.Contains(t, out, "Overall notified:")
	assert.Contains(t, out, "Historical proportions over 2 complete years")
	// The partial year's proportions are reported as zero.
	assert.Contains(t, out, "0.0000")
}

func TestCharts(t *testing.T) {
	sum := testSummary(t)

	p, err := ConfirmedByBandPlot("all", &sum.Grid)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, p))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	p, err = MonthlyBarPlot("notified", sum.Monthly, surveillance.MetricNotified)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, WritePNG(&buf, p))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestGenerateColors(t *testing.T) {
	colors := generateColors(surveillance.NumBands)
	require.Len(t, colors, surveillance.NumBands)
	seen := map[[4]uint32]bool{}
	for _, c := range colors {
		r, g, b, a := c.RGBA()
		seen[[4]uint32{r, g, b, a}] = true
	}
	assert.Len(t, seen, surveillance.NumBands)
}

func TestWriteDashboard(t *testing.T) {
	sum := testSummary(t)
	results := []*estimate.Result{{
		Query:      estimate.Query{Quarter: surveillance.Q1, Metric: surveillance.MetricNotified, Observed: 10},
		Confidence: 95, Years: 3, Point: 40, Min: 35, Max: 47,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteDashboard(&buf, sum, results))
	html := buf.String()
	assert.Contains(t, html, "Dengue surveillance")
	assert.Contains(t, html, "Year-end estimates")
	assert.Contains(t, html, "Cumulative share of yearly notified")
}

func TestWriterWriteAll(t *testing.T) {
	sum := testSummary(t)
	mem := fsutil.NewMemoryFileSystem()
	w := &Writer{FS: mem, Dir: "out"}

	paths, err := w.WriteAll(sum, nil)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		SummaryFile,
		"confirmed_all.png",
		"notified_all.png",
		"confirmed_2018.png",
		"confirmed_2019.png",
		"confirmed_2020.png",
		DashboardFile,
	}, names)

	txt, err := mem.ReadFile(filepath.Join("out", SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(txt), "ACCUMULATED SUMMARY")

	png, err := mem.ReadFile(filepath.Join("out", "confirmed_2019.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestWriterWritesEstimates(t *testing.T) {
	sum := testSummary(t)
	e := &estimate.Estimator{Summary: sum}
	res, err := e.Estimate(estimate.Query{Quarter: surveillance.Q2, Metric: surveillance.MetricNotified, Observed: 12, Method: estimate.MethodNormal})
	require.NoError(t, err)

	mem := fsutil.NewMemoryFileSystem()
	paths, err := (&Writer{FS: mem, Dir: "out"}).WriteAll(sum, []*estimate.Result{res})
	require.NoError(t, err)
	assert.Equal(t, EstimatesFile, filepath.Base(paths[1]))

	txt, err := mem.ReadFile(filepath.Join("out", EstimatesFile))
	require.NoError(t, err)
	assert.Contains(t, string(txt), "Estimated total: 24")
}
