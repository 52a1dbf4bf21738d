package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// missing is how echarts marks an absent data point.
const missing = "-"

func initOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "520px"})
}

func monthLabels() []string { return MonthAbbrev[:] }

// confirmedByBandChart mirrors ConfirmedByBandPlot for the browser.
func confirmedByBandChart(title string, grid *surveillance.Grid) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "confirmed cases per age band"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "confirmed"}),
	)
	line.SetXAxis(monthLabels())
	for _, b := range surveillance.Bands() {
		data := make([]opts.LineData, 12)
		for m := 1; m <= 12; m++ {
			data[m-1] = opts.LineData{Value: grid.Cell(m, b)[surveillance.MetricConfirmed]}
		}
		line.AddSeries(b.String(), data)
	}
	return line
}

// monthlyByYearChart shows one metric per month with one bar series per
// year.
func monthlyByYearChart(sum *surveillance.Summary, m surveillance.Metric) *charts.Bar {
	bar := charts.NewBar()
	title := fmt.Sprintf("%s per month", m)
	bar.SetGlobalOptions(
		initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d datasets", len(sum.Years))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	bar.SetXAxis(monthLabels())
	for _, y := range sum.Years {
		data := make([]opts.BarData, 12)
		for i, c := range y.Monthly {
			data[i] = opts.BarData{Value: c[m]}
		}
		name := strconv.Itoa(y.Year)
		if y.Partial {
			name += " (partial)"
		}
		bar.AddSeries(name, data)
	}
	return bar
}

// proportionsChart plots each year's Q1-Q3 proportion for one metric.
func proportionsChart(sum *surveillance.Summary, m surveillance.Metric) *charts.Line {
	line := charts.NewLine()
	title := fmt.Sprintf("Cumulative share of yearly %s", m)
	line.SetGlobalOptions(
		initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "partial year shown as zero"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	years := make([]string, len(sum.Years))
	for i, y := range sum.Years {
		years[i] = strconv.Itoa(y.Year)
	}
	line.SetXAxis(years)
	for _, q := range surveillance.Quarters() {
		data := make([]opts.LineData, len(sum.Years))
		for i, y := range sum.Years {
			p, err := y.Proportion(q, m)
			if err != nil {
				data[i] = opts.LineData{Value: missing}
				continue
			}
			data[i] = opts.LineData{Value: p}
		}
		line.AddSeries(fmt.Sprintf("%s (to %s)", q, q.MonthName()), data)
	}
	return line
}

// estimatesChart shows the interval and point of each estimate.
func estimatesChart(results []*estimate.Result) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts("Year-end estimates"),
		charts.WithTitleOpts(opts.Title{Title: "Year-end estimates"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	labels := make([]string, len(results))
	lo := make([]opts.BarData, len(results))
	pt := make([]opts.BarData, len(results))
	hi := make([]opts.BarData, len(results))
	for i, r := range results {
		labels[i] = fmt.Sprintf("%s %s (%s)", r.Query.Quarter, r.Query.Metric, r.Query.Method)
		lo[i] = opts.BarData{Value: int(r.Min)}
		pt[i] = opts.BarData{Value: int(r.Point)}
		hi[i] = opts.BarData{Value: int(r.Max)}
	}
	bar.SetXAxis(labels).
		AddSeries("lower", lo).
		AddSeries("estimate", pt, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("upper", hi)
	return bar
}

// Dashboard assembles the HTML dashboard page. results may be empty.
func Dashboard(sum *surveillance.Summary, results []*estimate.Result) *components.Page {
	page := components.NewPage()
	page.PageTitle = "Dengue surveillance"
	page.AddCharts(
		confirmedByBandChart("All years", &sum.Grid),
		monthlyByYearChart(sum, surveillance.MetricNotified),
		monthlyByYearChart(sum, surveillance.MetricDeaths),
		proportionsChart(sum, surveillance.MetricNotified),
		proportionsChart(sum, surveillance.MetricConfirmed),
	)
	for _, y := range sum.Years {
		page.AddCharts(confirmedByBandChart(strconv.Itoa(y.Year), &y.Grid))
	}
	if len(results) > 0 {
		page.AddCharts(estimatesChart(results))
	}
	return page
}

// WriteDashboard renders the dashboard as HTML.
func WriteDashboard(w io.Writer, sum *surveillance.Summary, results []*estimate.Result) error {
	return Dashboard(sum, results).Render(w)
}
