package estimate

import (
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// ConfidenceLevel pairs a reporting level with its two-sided z value.
type ConfidenceLevel struct {
	Percent int
	Z       float64
}

// ConfidenceLevels are the rows of the multi-level normal report, widest
// first.
var ConfidenceLevels = []ConfidenceLevel{
	{Percent: 99, Z: 2.576},
	{Percent: 95, Z: 1.960},
	{Percent: 90, Z: 1.645},
	{Percent: 80, Z: 1.282},
}

// DefaultZ is the z value of the primary 95% estimate.
const DefaultZ = 1.960

// LevelForZ returns the confidence level whose z matches, if any.
func LevelForZ(z float64) (ConfidenceLevel, bool) {
	for _, l := range ConfidenceLevels {
		if l.Z == z {
			return l, true
		}
	}
	return ConfidenceLevel{}, false
}

// NormalResult is the outcome of a normal-approximation estimate.
type NormalResult struct {
	Mean   float64
	StdDev float64
	Z      float64

	// LimitLow and LimitHigh bound the proportion: mean ∓ z·sd/3.
	LimitLow, LimitHigh float64

	Point    float64
	Min, Max float64
}

// Normal estimates the year-end total from the historical mean proportion
// and its sample standard deviation. The standard-deviation term is divided
// by three before it widens the proportion interval.
func Normal(mean, stdDev float64, observed int, z float64) (NormalResult, error) {
	half := z * stdDev / 3
	res := NormalResult{
		Mean:      mean,
		StdDev:    stdDev,
		Z:         z,
		LimitLow:  mean - half,
		LimitHigh: mean + half,
	}
	switch {
	case mean == 0:
		return res, &surveillance.DivisionByZeroError{Quantity: "historical mean"}
	case res.LimitHigh == 0:
		return res, &surveillance.DivisionByZeroError{Quantity: "upper proportion limit"}
	case res.LimitLow == 0:
		return res, &surveillance.DivisionByZeroError{Quantity: "lower proportion limit"}
	}
	obs := float64(observed)
	res.Point = obs / mean
	res.Min = obs / res.LimitHigh
	res.Max = obs / res.LimitLow
	return res, nil
}

// NormalFromHistory runs Normal with the mean and standard deviation of the
// historical proportions for q and m.
func NormalFromHistory(hist *surveillance.ProportionSet, q surveillance.Quarter, m surveillance.Metric, observed int, z float64) (NormalResult, error) {
	mean, err := hist.Mean(q, m)
	if err != nil {
		return NormalResult{}, err
	}
	sd, err := hist.StdDev(q, m)
	if err != nil {
		return NormalResult{}, err
	}
	res, err := Normal(mean, sd, observed, z)
	return res, scope(err, q, m)
}

// LevelRow is one quarter × confidence-level row of the multi-level report.
type LevelRow struct {
	Quarter surveillance.Quarter
	Level   ConfidenceLevel
	Result  NormalResult
	Err     error
}

// NormalLevels evaluates every quarter at every confidence level for one
// metric. A failing row keeps its error and does not stop the others.
func NormalLevels(hist *surveillance.ProportionSet, m surveillance.Metric, observed int) []LevelRow {
	rows := make([]LevelRow, 0, len(surveillance.Quarters())*len(ConfidenceLevels))
	for _, q := range surveillance.Quarters() {
		for _, l := range ConfidenceLevels {
			res, err := NormalFromHistory(hist, q, m, observed, l.Z)
			rows = append(rows, LevelRow{Quarter: q, Level: l, Result: res, Err: err})
		}
	}
	return rows
}
