package surveillance

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticYear builds a deterministic dataset: month m carries m
// notifications per known band, alternating confirmed/negative/unknown
// status, with one death per month for bands 20-29 notified in that month.
func syntheticYear(year int) []Record {
	var recs []Record
	for m := 1; m <= 12; m++ {
		for b := 0; b < NumKnownBands; b++ {
			age := []int{2, 7, 12, 17, 25, 35, 45, 55, 65, 75, 85}[b]
			for i := 0; i < m; i++ {
				r := Record{
					BirthDate:        date(year-age-1, 12, 31),
					NotificationDate: date(year, m, 15),
				}
				switch i % 3 {
				case 0:
					r.FinalClassification = code(ClassDengue)
				case 1:
					r.FinalClassification = code(5)
				}
				if AgeBand(b) == Band20To29 && i == 0 {
					r.DeathDate = date(year, m, 20)
				}
				recs = append(recs, r)
			}
		}
	}
	return recs
}

func TestModeYear(t *testing.T) {
	t.Run("most common year wins", func(t *testing.T) {
		y, err := ModeYear([]Record{
			{NotificationDate: date(2019, 12, 30)},
			{NotificationDate: date(2020, 1, 2)},
			{NotificationDate: date(2020, 1, 3)},
			{},
		})
		require.NoError(t, err)
		assert.Equal(t, 2020, y)
	})

	t.Run("ties go to the lowest year", func(t *testing.T) {
		y, err := ModeYear([]Record{
			{NotificationDate: date(2021, 1, 2)},
			{NotificationDate: date(2020, 12, 30)},
			{NotificationDate: date(2021, 1, 5)},
			{NotificationDate: date(2020, 12, 31)},
		})
		require.NoError(t, err)
		assert.Equal(t, 2020, y)
	})

	t.Run("no valid dates", func(t *testing.T) {
		_, err := ModeYear([]Record{{}, {BirthDate: date(2000, 1, 1)}})
		assert.ErrorIs(t, err, ErrNoNotifications)
	})
}

func TestAggregateDeathsCountInDeathMonth(t *testing.T) {
	recs := []Record{{
		BirthDate:        date(1990, 1, 1),
		NotificationDate: date(2019, 1, 10),
		DeathDate:        date(2019, 3, 2),
		PCR:              code(1),
	}}
	agg, err := Aggregate(recs, 2025)
	require.NoError(t, err)

	jan := agg.Grid.Cell(1, Band20To29)
	mar := agg.Grid.Cell(3, Band20To29)
	assert.Equal(t, Counts{1, 1, 0, 0}, jan)
	assert.Equal(t, Counts{0, 0, 0, 1}, mar)
	assert.Equal(t, Counts{1, 1, 0, 1}, agg.Totals)
}

func TestAggregateUnknownStatusOnlyCountsNotified(t *testing.T) {
	agg, err := Aggregate([]Record{{NotificationDate: date(2019, 4, 1)}}, 2025)
	require.NoError(t, err)

	cell := agg.Grid.Cell(4, BandUnknown)
	assert.Equal(t, 1, cell[MetricNotified])
	assert.Zero(t, cell[MetricConfirmed])
	assert.Zero(t, cell[MetricNegative])
}

func TestAggregateSkipsInvalidNotificationDate(t *testing.T) {
	recs := []Record{
		{NotificationDate: date(2019, 2, 1), FinalClassification: code(10)},
		{DeathDate: date(2019, 2, 3), FinalClassification: code(10)},
	}
	agg, err := Aggregate(recs, 2025)
	require.NoError(t, err)
	assert.Equal(t, Counts{1, 1, 0, 0}, agg.Totals)
	assert.Equal(t, 2, agg.Records)
	assert.Equal(t, 1, agg.Skipped)
}

func TestAggregateMonthlyRollup(t *testing.T) {
	recs := syntheticYear(2019)
	agg, err := Aggregate(recs, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2019, agg.Year)

	// Accumulate monthly totals straight from the records.
	var want [12]Counts
	for _, r := range recs {
		m := r.NotificationDate.Month - 1
		want[m][MetricNotified]++
		switch Status(r) {
		case StatusConfirmed:
			want[m][MetricConfirmed]++
		case StatusNegative:
			want[m][MetricNegative]++
		}
		if r.DeathDate.IsValid() {
			want[r.DeathDate.Month-1][MetricDeaths]++
		}
	}
	if diff := cmp.Diff(want, agg.Monthly); diff != "" {
		t.Errorf("monthly totals mismatch (-want +got):\n%s", diff)
	}

	for m := 1; m <= 12; m++ {
		var sum Counts
		for _, b := range Bands() {
			sum = sum.Add(agg.Grid.Cell(m, b))
		}
		assert.Equal(t, agg.Monthly[m-1], sum, "month %d", m)
	}
}

func TestQuarterProportionsAreCumulative(t *testing.T) {
	agg, err := Aggregate(syntheticYear(2018), 2025)
	require.NoError(t, err)

	for _, m := range Metrics() {
		p1, err := agg.Proportion(Q1, m)
		require.NoError(t, err)
		p2, err := agg.Proportion(Q2, m)
		require.NoError(t, err)
		p3, err := agg.Proportion(Q3, m)
		require.NoError(t, err)

		assert.LessOrEqual(t, p1, p2, m.String())
		assert.LessOrEqual(t, p2, p3, m.String())
		assert.LessOrEqual(t, p3, 1.0, m.String())
		assert.Greater(t, p1, 0.0, m.String())
	}

	// Notified: 11 bands * (1+2+3) over 11 * 78.
	p, err := agg.Proportion(Q1, MetricNotified)
	require.NoError(t, err)
	assert.InDelta(t, 6.0/78.0, p, 1e-12)
}

func TestProportionZeroTotal(t *testing.T) {
	agg, err := Aggregate([]Record{{NotificationDate: date(2019, 1, 5), Serology: code(1)}}, 2025)
	require.NoError(t, err)

	_, err = agg.Proportion(Q2, MetricDeaths)
	var dz *DivisionByZeroError
	require.True(t, errors.As(err, &dz), "got %v", err)
	assert.Equal(t, MetricDeaths, dz.Metric)
	assert.Equal(t, Q2, dz.Quarter)
	assert.Equal(t, 2019, dz.Year)
	assert.Contains(t, err.Error(), "zero yearly total for metric deaths in quarter Q2")

	p, err := agg.Proportion(Q2, MetricNotified)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	_, err = agg.Proportions(Q1)
	assert.True(t, errors.As(err, &dz))
}

func TestPartialYearProportionsAreZero(t *testing.T) {
	agg, err := Aggregate(syntheticYear(2025), 2025)
	require.NoError(t, err)
	assert.True(t, agg.Partial)

	for _, q := range Quarters() {
		v, err := agg.Proportions(q)
		require.NoError(t, err)
		assert.Equal(t, [NumMetrics]float64{}, v)
	}
	// Counts are still tabulated.
	assert.NotZero(t, agg.Totals[MetricNotified])
}

func TestPartialYearWithZeroTotalsIsNotAnError(t *testing.T) {
	agg := FromGrid(2025, Grid{}, 2025)
	_, err := agg.Proportions(Q3)
	assert.NoError(t, err)
}

func TestFromGridMatchesAggregate(t *testing.T) {
	agg, err := Aggregate(syntheticYear(2017), 2025)
	require.NoError(t, err)

	rebuilt := FromGrid(agg.Year, agg.Grid, 2025)
	assert.Equal(t, agg.Monthly, rebuilt.Monthly)
	assert.Equal(t, agg.Totals, rebuilt.Totals)
	for _, q := range Quarters() {
		assert.Equal(t, agg.Cumulative(q), rebuilt.Cumulative(q))
	}
}

func TestDesignatePartial(t *testing.T) {
	var years []*YearAggregate
	for _, y := range []int{2018, 2020, 2019} {
		agg, err := Aggregate(syntheticYear(y), 2018)
		require.NoError(t, err)
		years = append(years, agg)
	}
	require.True(t, years[0].Partial)

	tests := []struct {
		name        string
		partialYear int
		want        []bool
	}{
		{"latest", 0, []bool{false, true, false}},
		{"explicit", 2019, []bool{false, false, true}},
		{"outside range", 2030, []bool{false, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DesignatePartial(years, tt.partialYear)
			require.Len(t, got, len(years))
			for i, y := range got {
				assert.Equal(t, years[i].Year, y.Year)
				assert.Equal(t, tt.want[i], y.Partial, y.Year)
				assert.Equal(t, years[i].Records, y.Records)
				assert.Equal(t, years[i].Totals, y.Totals)
			}
		})
	}
	// The inputs are not modified.
	assert.True(t, years[0].Partial)
	assert.False(t, years[1].Partial)
}

func TestLatestYear(t *testing.T) {
	assert.Zero(t, LatestYear(nil))
	years := []*YearAggregate{FromGrid(2019, Grid{}, 0), FromGrid(2021, Grid{}, 0), FromGrid(2020, Grid{}, 0)}
	assert.Equal(t, 2021, LatestYear(years))
}

func TestParseSelectors(t *testing.T) {
	for in, want := range map[string]Quarter{"1": Q1, "q2": Q2, "Q3": Q3, "june": Q2} {
		q, err := ParseQuarter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, q, in)
	}
	for in, want := range map[string]Metric{"1": MetricNotified, "4": MetricDeaths, "confirmed": MetricConfirmed} {
		m, err := ParseMetric(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, m, in)
	}

	var se *InvalidSelectorError
	for _, bad := range []string{"0", "4", "q9", "december", ""} {
		_, err := ParseQuarter(bad)
		assert.True(t, errors.As(err, &se), "quarter %q", bad)
	}
	for _, bad := range []string{"0", "5", "cases"} {
		_, err := ParseMetric(bad)
		assert.True(t, errors.As(err, &se), "metric %q", bad)
	}
	_, err := QuarterFromSelector(4)
	assert.True(t, errors.As(err, &se))
	_, err = MetricFromSelector(0)
	assert.True(t, errors.As(err, &se))
}

func TestCellUsesOneBasedMonth(t *testing.T) {
	var g Grid
	g[11][Band80Plus][MetricDeaths] = 3
	assert.Equal(t, 3, g.Cell(12, Band80Plus)[MetricDeaths])
}
