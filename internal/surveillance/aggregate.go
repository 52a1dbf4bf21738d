package surveillance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Metric selects one of the four tallies kept per grid cell.
type Metric int

const (
	MetricNotified Metric = iota
	MetricConfirmed
	MetricNegative
	MetricDeaths

	NumMetrics = 4
)

var metricNames = [NumMetrics]string{"notified", "confirmed", "negative", "deaths"}

func (m Metric) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Metric(%d)", int(m))
	}
	return metricNames[m]
}

// Valid reports whether m is one of the four metrics.
func (m Metric) Valid() bool { return m >= 0 && int(m) < NumMetrics }

// Metrics returns the four metrics in selector order.
func Metrics() []Metric {
	return []Metric{MetricNotified, MetricConfirmed, MetricNegative, MetricDeaths}
}

// MetricFromSelector maps the 1-based menu selector (1=notified .. 4=deaths)
// to a Metric.
func MetricFromSelector(n int) (Metric, error) {
	if n < 1 || n > NumMetrics {
		return 0, &InvalidSelectorError{Kind: "metric", Value: strconv.Itoa(n)}
	}
	return Metric(n - 1), nil
}

// ParseMetric accepts a 1-based selector or a metric name.
func ParseMetric(s string) (Metric, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		return MetricFromSelector(n)
	}
	for i, name := range metricNames {
		if s == name {
			return Metric(i), nil
		}
	}
	return 0, &InvalidSelectorError{Kind: "metric", Value: s}
}

// Quarter is a cumulative cutoff: Q1 covers months 1-3, Q2 months 1-6 and
// Q3 months 1-9.
type Quarter int

const (
	Q1 Quarter = iota + 1
	Q2
	Q3

	NumQuarters = 3
)

func (q Quarter) String() string {
	if !q.Valid() {
		return fmt.Sprintf("Quarter(%d)", int(q))
	}
	return "Q" + strconv.Itoa(int(q))
}

// Valid reports whether q is Q1, Q2 or Q3.
func (q Quarter) Valid() bool { return q >= Q1 && q <= Q3 }

// CutoffMonth is the last month (1-based) included in the quarter.
func (q Quarter) CutoffMonth() int { return 3 * int(q) }

// MonthName is the English name of the cutoff month.
func (q Quarter) MonthName() string {
	switch q {
	case Q1:
		return "March"
	case Q2:
		return "June"
	case Q3:
		return "September"
	}
	return q.String()
}

func (q Quarter) index() int { return int(q) - 1 }

// Quarters returns Q1, Q2, Q3.
func Quarters() []Quarter { return []Quarter{Q1, Q2, Q3} }

// QuarterFromSelector validates a 1-based quarter selector.
func QuarterFromSelector(n int) (Quarter, error) {
	q := Quarter(n)
	if !q.Valid() {
		return 0, &InvalidSelectorError{Kind: "quarter", Value: strconv.Itoa(n)}
	}
	return q, nil
}

// ParseQuarter accepts "1".."3", "q1".."q3", or a cutoff month name.
func ParseQuarter(s string) (Quarter, error) {
	v := strings.TrimSpace(strings.ToLower(s))
	v = strings.TrimPrefix(v, "q")
	if n, err := strconv.Atoi(v); err == nil {
		return QuarterFromSelector(n)
	}
	for _, q := range Quarters() {
		if v == strings.ToLower(q.MonthName()) {
			return q, nil
		}
	}
	return 0, &InvalidSelectorError{Kind: "quarter", Value: s}
}

// Counts holds one tally per metric.
type Counts [NumMetrics]int

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

// Grid is indexed by month (0 = January) and age band.
type Grid [12][NumBands]Counts

// Add returns the element-wise sum of g and o.
func (g Grid) Add(o Grid) Grid {
	for m := range g {
		for b := range g[m] {
			g[m][b] = g[m][b].Add(o[m][b])
		}
	}
	return g
}

// Cell returns the counts for a 1-based month and a band.
func (g *Grid) Cell(month int, band AgeBand) Counts {
	return g[month-1][band]
}

// Monthly sums each month across all bands, including BandUnknown.
func (g *Grid) Monthly() [12]Counts {
	var out [12]Counts
	for m := range g {
		for b := range g[m] {
			out[m] = out[m].Add(g[m][b])
		}
	}
	return out
}

// BandTotals sums each band across all months.
func (g *Grid) BandTotals() [NumBands]Counts {
	var out [NumBands]Counts
	for m := range g {
		for b := range g[m] {
			out[b] = out[b].Add(g[m][b])
		}
	}
	return out
}

// YearAggregate is the month × age-band tabulation of one year's dataset.
type YearAggregate struct {
	Year int
	// Partial marks the current, incomplete year. Its proportions are
	// reported as zero and never feed historical statistics.
	Partial bool

	Grid    Grid
	Monthly [12]Counts
	Totals  Counts

	// Records is the number of input rows; Skipped is how many of them had
	// no valid notification date.
	Records int
	Skipped int

	cumulative [NumQuarters]Counts
}

// ModeYear returns the most common notification year among records with a
// valid notification date. Ties go to the lowest year.
func ModeYear(records []Record) (int, error) {
	tally := make(map[int]int)
	for _, r := range records {
		if r.NotificationDate.IsValid() {
			tally[r.NotificationDate.Year]++
		}
	}
	if len(tally) == 0 {
		return 0, ErrNoNotifications
	}
	years := make([]int, 0, len(tally))
	for y := range tally {
		years = append(years, y)
	}
	sort.Ints(years)
	best := years[0]
	for _, y := range years[1:] {
		if tally[y] > tally[best] {
			best = y
		}
	}
	return best, nil
}

// Aggregate tabulates one year's records. The dataset year is the mode of
// the notification years; partialYear designates the current year.
//
// Records without a valid notification date are skipped entirely. Deaths are
// counted in the month of death, in the record's age band.
func Aggregate(records []Record, partialYear int) (*YearAggregate, error) {
	year, err := ModeYear(records)
	if err != nil {
		return nil, err
	}

	var grid Grid
	skipped := 0
	for _, r := range records {
		if !r.NotificationDate.IsValid() {
			skipped++
			continue
		}
		c := Classify(r)
		cell := &grid[r.NotificationDate.Month-1][c.Band]
		cell[MetricNotified]++
		switch c.Status {
		case StatusConfirmed:
			cell[MetricConfirmed]++
		case StatusNegative:
			cell[MetricNegative]++
		}
		if r.DeathDate.IsValid() {
			grid[r.DeathDate.Month-1][c.Band][MetricDeaths]++
		}
	}

	agg := FromGrid(year, grid, partialYear)
	agg.Records = len(records)
	agg.Skipped = skipped
	return agg, nil
}

// FromGrid derives monthly totals, yearly totals and quarter cumulatives
// from an already tabulated grid.
func FromGrid(year int, grid Grid, partialYear int) *YearAggregate {
	agg := &YearAggregate{
		Year:    year,
		Partial: year == partialYear,
		Grid:    grid,
	}
	agg.Monthly = agg.Grid.Monthly()
	for m, c := range agg.Monthly {
		agg.Totals = agg.Totals.Add(c)
		for _, q := range Quarters() {
			if m < q.CutoffMonth() {
				agg.cumulative[q.index()] = agg.cumulative[q.index()].Add(c)
			}
		}
	}
	return agg
}

// WithPartialYear returns a copy of a rebuilt against partialYear. The
// receiver is left unchanged.
func (a *YearAggregate) WithPartialYear(partialYear int) *YearAggregate {
	out := FromGrid(a.Year, a.Grid, partialYear)
	out.Records = a.Records
	out.Skipped = a.Skipped
	return out
}

// LatestYear returns the highest year among years, or 0 when there are none.
func LatestYear(years []*YearAggregate) int {
	latest := 0
	for _, y := range years {
		latest = max(latest, y.Year)
	}
	return latest
}

// DesignatePartial returns years rebuilt so that only partialYear is
// flagged partial. A partialYear of zero designates the latest year.
func DesignatePartial(years []*YearAggregate, partialYear int) []*YearAggregate {
	if partialYear == 0 {
		partialYear = LatestYear(years)
	}
	out := make([]*YearAggregate, len(years))
	for i, y := range years {
		out[i] = y.WithPartialYear(partialYear)
	}
	return out
}

// Cumulative returns the counts from January through the quarter's cutoff.
func (a *YearAggregate) Cumulative(q Quarter) Counts {
	return a.cumulative[q.index()]
}

// Proportion is the quarter's cumulative count over the yearly total for a
// metric. The partial year always reports zero. A zero yearly total yields a
// *DivisionByZeroError.
func (a *YearAggregate) Proportion(q Quarter, m Metric) (float64, error) {
	if !q.Valid() {
		return 0, &InvalidSelectorError{Kind: "quarter", Value: strconv.Itoa(int(q))}
	}
	if !m.Valid() {
		return 0, &InvalidSelectorError{Kind: "metric", Value: strconv.Itoa(int(m) + 1)}
	}
	if a.Partial {
		return 0, nil
	}
	total := a.Totals[m]
	if total == 0 {
		return 0, &DivisionByZeroError{Quantity: "yearly total", Metric: m, Quarter: q, Year: a.Year}
	}
	return float64(a.cumulative[q.index()][m]) / float64(total), nil
}

// Proportions returns the quarter's proportion for every metric, stopping at
// the first undefined one.
func (a *YearAggregate) Proportions(q Quarter) ([NumMetrics]float64, error) {
	var out [NumMetrics]float64
	for _, m := range Metrics() {
		p, err := a.Proportion(q, m)
		if err != nil {
			return out, err
		}
		out[m] = p
	}
	return out, nil
}
