package surveillance

import (
	"errors"
	"fmt"
)

var (
	// ErrNoNotifications is returned when a dataset has no record with a
	// valid notification date, so its year cannot be determined.
	ErrNoNotifications = errors.New("dataset has no valid notification dates")

	// ErrDuplicateYear is returned when two datasets resolve to the same year.
	ErrDuplicateYear = errors.New("duplicate dataset year")

	// ErrEmptyProportions is returned when an estimator receives no
	// historical proportions to work from.
	ErrEmptyProportions = errors.New("no historical proportions")
)

// DivisionByZeroError reports a zero denominator while computing a
// proportion or an estimate. Year is zero when the failure is not tied to a
// single dataset; Quarter is zero when the estimator was called without a
// quarter/metric context.
type DivisionByZeroError struct {
	// Quantity names the zero value, e.g. "yearly total", "historical mean",
	// "lower proportion bound".
	Quantity string
	Metric   Metric
	Quarter  Quarter
	Year     int
}

func (e *DivisionByZeroError) Error() string {
	msg := "zero " + e.Quantity
	if e.Quarter.Valid() {
		msg += fmt.Sprintf(" for metric %s in quarter %s", e.Metric, e.Quarter)
	}
	if e.Year != 0 {
		msg += fmt.Sprintf(" (year %d)", e.Year)
	}
	return msg
}

// InsufficientHistoryError reports that a sample standard deviation was
// requested from fewer complete years than it needs.
type InsufficientHistoryError struct {
	Metric  Metric
	Quarter Quarter
	Have    int
	Need    int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for metric %s in quarter %s: have %d complete years, need %d",
		e.Metric, e.Quarter, e.Have, e.Need)
}

// InvalidSelectorError reports a quarter, metric or method selector outside
// its enumerated domain.
type InvalidSelectorError struct {
	Kind  string
	Value string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("invalid %s selector %q", e.Kind, e.Value)
}

// IsInsufficientData reports whether err means the estimate cannot be
// produced from the available data, as opposed to a bad request or an I/O
// failure.
func IsInsufficientData(err error) bool {
	var dz *DivisionByZeroError
	var ih *InsufficientHistoryError
	return errors.As(err, &dz) || errors.As(err, &ih) || errors.Is(err, ErrEmptyProportions)
}
