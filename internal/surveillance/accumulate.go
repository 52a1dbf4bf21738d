package surveillance

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ProportionSet holds, for every quarter × metric, the per-year proportions
// observed across a set of years, in ascending year order.
type ProportionSet struct {
	years  []int
	values [NumQuarters][NumMetrics][]float64
	// first undefined proportion per cell, if any
	errs [NumQuarters][NumMetrics]error
}

func newProportionSet(years []*YearAggregate) *ProportionSet {
	s := &ProportionSet{}
	for _, y := range years {
		s.years = append(s.years, y.Year)
		for _, q := range Quarters() {
			for _, m := range Metrics() {
				p, err := y.Proportion(q, m)
				if err != nil {
					if s.errs[q.index()][m] == nil {
						s.errs[q.index()][m] = err
					}
					continue
				}
				s.values[q.index()][m] = append(s.values[q.index()][m], p)
			}
		}
	}
	return s
}

// Years lists the years that contributed to the set.
func (s *ProportionSet) Years() []int {
	return append([]int(nil), s.years...)
}

// Values returns a copy of the proportions for one quarter and metric. It
// fails if any contributing year had a zero total for the metric, or if
// there are no years at all.
func (s *ProportionSet) Values(q Quarter, m Metric) ([]float64, error) {
	if !q.Valid() {
		return nil, &InvalidSelectorError{Kind: "quarter", Value: q.String()}
	}
	if !m.Valid() {
		return nil, &InvalidSelectorError{Kind: "metric", Value: m.String()}
	}
	if err := s.errs[q.index()][m]; err != nil {
		return nil, err
	}
	v := s.values[q.index()][m]
	if len(v) == 0 {
		return nil, fmt.Errorf("metric %s in quarter %s: %w", m, q, ErrEmptyProportions)
	}
	return append([]float64(nil), v...), nil
}

// Mean is the sample mean of the proportions for one quarter and metric.
func (s *ProportionSet) Mean(q Quarter, m Metric) (float64, error) {
	v, err := s.Values(q, m)
	if err != nil {
		return 0, err
	}
	return stat.Mean(v, nil), nil
}

// StdDev is the unbiased sample standard deviation of the proportions for
// one quarter and metric. It needs at least two years.
func (s *ProportionSet) StdDev(q Quarter, m Metric) (float64, error) {
	v, err := s.Values(q, m)
	if err != nil {
		return 0, err
	}
	if len(v) < 2 {
		return 0, &InsufficientHistoryError{Metric: m, Quarter: q, Have: len(v), Need: 2}
	}
	return stat.StdDev(v, nil), nil
}

// Summary is the cross-year fold of a set of year aggregates.
type Summary struct {
	// Years in ascending order.
	Years []*YearAggregate

	Grid    Grid
	Monthly [12]Counts
	Totals  Counts

	// Resampling holds every year's proportions, the partial year's zeros
	// included, for the bootstrap estimator.
	Resampling *ProportionSet
	// Historical holds complete years only, for the normal estimator.
	Historical *ProportionSet
}

// PartialYear returns the year flagged as partial, if any.
func (s *Summary) PartialYear() (int, bool) {
	for _, y := range s.Years {
		if y.Partial {
			return y.Year, true
		}
	}
	return 0, false
}

// Year looks up one year's aggregate.
func (s *Summary) Year(year int) (*YearAggregate, bool) {
	i := sort.Search(len(s.Years), func(i int) bool { return s.Years[i].Year >= year })
	if i < len(s.Years) && s.Years[i].Year == year {
		return s.Years[i], true
	}
	return nil, false
}

// Accumulator collects year aggregates keyed by year. It only stores the
// aggregates; Summary folds them.
type Accumulator struct {
	years map[int]*YearAggregate
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{years: make(map[int]*YearAggregate)}
}

// Add registers a year aggregate. A second aggregate for the same year is
// rejected with ErrDuplicateYear.
func (a *Accumulator) Add(y *YearAggregate) error {
	if y == nil {
		return fmt.Errorf("nil year aggregate")
	}
	if _, ok := a.years[y.Year]; ok {
		return fmt.Errorf("year %d: %w", y.Year, ErrDuplicateYear)
	}
	a.years[y.Year] = y
	return nil
}

// Len returns the number of years added.
func (a *Accumulator) Len() int { return len(a.years) }

// Summary folds the collected years in ascending year order.
func (a *Accumulator) Summary() *Summary {
	years := make([]*YearAggregate, 0, len(a.years))
	for _, y := range a.years {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return fold(years)
}

// Accumulate is a convenience wrapper around Accumulator.
func Accumulate(years ...*YearAggregate) (*Summary, error) {
	acc := NewAccumulator()
	for _, y := range years {
		if err := acc.Add(y); err != nil {
			return nil, err
		}
	}
	return acc.Summary(), nil
}

func fold(years []*YearAggregate) *Summary {
	s := &Summary{Years: years}
	complete := make([]*YearAggregate, 0, len(years))
	for _, y := range years {
		s.Grid = s.Grid.Add(y.Grid)
		s.Totals = s.Totals.Add(y.Totals)
		if !y.Partial {
			complete = append(complete, y)
		}
	}
	s.Monthly = s.Grid.Monthly()
	s.Resampling = newProportionSet(years)
	s.Historical = newProportionSet(complete)
	return s
}
