// Package estimate projects year-end totals from a partial-year count and
// the proportions observed in earlier years.
package estimate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/dengue.report/internal/surveillance"
)

const (
	DefaultResamples  = 10000
	DefaultConfidence = 95.0

	// MaxResamples bounds the per-estimate allocation of resample means.
	MaxResamples = 1_000_000
)

// Bootstrap estimates a total from resampled proportion means.
type Bootstrap struct {
	// Resamples is the number of resamples drawn. Zero means DefaultResamples.
	Resamples int
	// Confidence is the interval width in percent. Zero means
	// DefaultConfidence.
	Confidence float64
	// Rand is the sampling source. A nil Rand is seeded from the clock.
	Rand *rand.Rand
}

// BootstrapResult is the outcome of a bootstrap estimate.
type BootstrapResult struct {
	// Mean is the mean of the input proportions.
	Mean float64
	// Low and High are the percentile bounds of the resample means.
	Low, High float64
	// Point is observed/Mean.
	Point float64
	// Min and Max bound the total: observed/High and observed/Low.
	Min, Max float64

	Confidence float64
	Resamples  int
}

func (b Bootstrap) resamples() int {
	if b.Resamples == 0 {
		return DefaultResamples
	}
	return b.Resamples
}

func (b Bootstrap) confidence() float64 {
	if b.Confidence == 0 {
		return DefaultConfidence
	}
	return b.Confidence
}

// Validate checks the resample count and confidence level.
func (b Bootstrap) Validate() error {
	if n := b.resamples(); n < 1 || n > MaxResamples {
		return fmt.Errorf("bootstrap resamples must be from 1 to %d, got %d", MaxResamples, n)
	}
	if c := b.confidence(); c <= 0 || c >= 100 {
		return fmt.Errorf("bootstrap confidence must be between 0 and 100, got %v", c)
	}
	return nil
}

// Estimate draws Resamples samples of len(proportions) with replacement,
// takes the symmetric percentile interval of their means and inverts it
// into an interval for the year-end total.
func (b Bootstrap) Estimate(proportions []float64, observed int) (BootstrapResult, error) {
	if err := b.Validate(); err != nil {
		return BootstrapResult{}, err
	}
	if len(proportions) == 0 {
		return BootstrapResult{}, fmt.Errorf("bootstrap: %w", surveillance.ErrEmptyProportions)
	}
	rng := b.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	n := b.resamples()
	conf := b.confidence()
	means := make([]float64, n)
	sample := make([]float64, len(proportions))
	for i := range means {
		for j := range sample {
			sample[j] = proportions[rng.Intn(len(proportions))]
		}
		means[i] = stat.Mean(sample, nil)
	}
	sort.Float64s(means)

	alpha := (100 - conf) / 2
	res := BootstrapResult{
		Mean:       stat.Mean(proportions, nil),
		Low:        percentile(means, alpha),
		High:       percentile(means, 100-alpha),
		Confidence: conf,
		Resamples:  n,
	}

	switch {
	case res.Mean == 0:
		return res, &surveillance.DivisionByZeroError{Quantity: "historical mean"}
	case res.High == 0:
		return res, &surveillance.DivisionByZeroError{Quantity: "upper proportion bound"}
	case res.Low == 0:
		return res, &surveillance.DivisionByZeroError{Quantity: "lower proportion bound"}
	}
	obs := float64(observed)
	res.Point = obs / res.Mean
	res.Min = obs / res.High
	res.Max = obs / res.Low
	return res, nil
}

// percentile returns the p-th percentile (0-100) of sorted data, linearly
// interpolating between the two closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
