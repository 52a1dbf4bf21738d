// Package report renders surveillance summaries as text tables, PNG charts
// and an HTML dashboard.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// MonthAbbrev labels table columns and chart ticks.
var MonthAbbrev = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

const rule = 100

func newTab(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func heading(w io.Writer, ch, title string) {
	line := strings.Repeat(ch, rule)
	fmt.Fprintf(w, "%s\n%s\n%s\n", line, title, line)
}

// WriteMonthlyTable writes one metric per month with a Total column.
func WriteMonthlyTable(w io.Writer, monthly [12]surveillance.Counts, m surveillance.Metric) error {
	tw := newTab(w)
	fmt.Fprint(tw, "\t")
	for _, name := range MonthAbbrev {
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprint(tw, "Total\t\n")

	fmt.Fprintf(tw, "%s\t", m)
	total := 0
	for _, c := range monthly {
		fmt.Fprintf(tw, "%d\t", c[m])
		total += c[m]
	}
	fmt.Fprintf(tw, "%d\t\n", total)
	return tw.Flush()
}

// WriteBandTable writes one metric by age band (rows) and month (columns),
// with a Subtotal column per band and a Subtotal row per month.
func WriteBandTable(w io.Writer, grid *surveillance.Grid, m surveillance.Metric) error {
	tw := newTab(w)
	fmt.Fprint(tw, "age band\t")
	for _, name := range MonthAbbrev {
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprint(tw, "Subtotal\t\n")

	var colTotals [12]int
	grand := 0
	for _, b := range surveillance.Bands() {
		fmt.Fprintf(tw, "%s\t", b)
		row := 0
		for month := 1; month <= 12; month++ {
			v := grid.Cell(month, b)[m]
			fmt.Fprintf(tw, "%d\t", v)
			row += v
			colTotals[month-1] += v
		}
		grand += row
		fmt.Fprintf(tw, "%d\t\n", row)
	}

	fmt.Fprint(tw, "Subtotal\t")
	for _, v := range colTotals {
		fmt.Fprintf(tw, "%d\t", v)
	}
	fmt.Fprintf(tw, "%d\t\n", grand)
	return tw.Flush()
}

// WriteTotals writes one line per metric.
func WriteTotals(w io.Writer, label string, totals surveillance.Counts) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, m := range surveillance.Metrics() {
		fmt.Fprintf(tw, "%s %s:\t%d\n", label, m, totals[m])
	}
	return tw.Flush()
}

// WriteGridTables writes the descriptive tables for one grid: notified per
// month, confirmed by band and month, and deaths per month.
func WriteGridTables(w io.Writer, grid *surveillance.Grid) error {
	monthly := grid.Monthly()
	fmt.Fprintln(w, "Notifications per month")
	if err := WriteMonthlyTable(w, monthly, surveillance.MetricNotified); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nConfirmed cases per age band and month")
	if err := WriteBandTable(w, grid, surveillance.MetricConfirmed); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nDeaths per month")
	return WriteMonthlyTable(w, monthly, surveillance.MetricDeaths)
}

// WriteYear writes the tables, totals and quarter proportions of one year.
func WriteYear(w io.Writer, y *surveillance.YearAggregate) error {
	title := fmt.Sprintf("YEAR: %d", y.Year)
	if y.Partial {
		title += " (partial)"
	}
	heading(w, "-", title)
	if err := WriteGridTables(w, &y.Grid); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := WriteTotals(w, "Total", y.Totals); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return WriteProportions(w, y)
}

// WriteProportions writes the Q1-Q3 cumulative proportions of one year. An
// undefined proportion is written as n/a.
func WriteProportions(w io.Writer, y *surveillance.YearAggregate) error {
	tw := newTab(w)
	fmt.Fprint(tw, "proportion\t")
	for _, m := range surveillance.Metrics() {
		fmt.Fprintf(tw, "%s\t", m)
	}
	fmt.Fprintln(tw)
	for _, q := range surveillance.Quarters() {
		fmt.Fprintf(tw, "%s (to %s)\t", q, q.MonthName())
		for _, m := range surveillance.Metrics() {
			p, err := y.Proportion(q, m)
			if err != nil {
				fmt.Fprint(tw, "n/a\t")
				continue
			}
			fmt.Fprintf(tw, "%.4f\t", p)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// WriteHistoricalStats writes the mean and sample standard deviation of
// the complete-year proportions per quarter and metric.
func WriteHistoricalStats(w io.Writer, hist *surveillance.ProportionSet) error {
	fmt.Fprintf(w, "Historical proportions over %d complete years\n", len(hist.Years()))
	tw := newTab(w)
	fmt.Fprint(tw, "\t")
	for _, m := range surveillance.Metrics() {
		fmt.Fprintf(tw, "%s mean\t%s sd\t", m, m)
	}
	fmt.Fprintln(tw)
	for _, q := range surveillance.Quarters() {
		fmt.Fprintf(tw, "%s\t", q)
		for _, m := range surveillance.Metrics() {
			fmt.Fprintf(tw, "%s\t%s\t", statCell(hist.Mean(q, m)), statCell(hist.StdDev(q, m)))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func statCell(v float64, err error) string {
	if err != nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

// WriteSummary writes every year's tables followed by the accumulated
// tables, global totals and historical statistics.
func WriteSummary(w io.Writer, sum *surveillance.Summary) error {
	for _, y := range sum.Years {
		if err := WriteYear(w, y); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	heading(w, "=", "ACCUMULATED SUMMARY")
	if err := WriteGridTables(w, &sum.Grid); err != nil {
		return err
	}
	fmt.Fprintln(w)
	heading(w, "=", "TOTALS OF ALL YEARS")
	if err := WriteTotals(w, "Overall", sum.Totals); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return WriteHistoricalStats(w, sum.Historical)
}
