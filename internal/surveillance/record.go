// Package surveillance classifies dengue notification records and folds
// them into month × age-band count grids, per year and across years.
package surveillance

import (
	"database/sql"
	"fmt"

	"cloud.google.com/go/civil"
)

// Record is one notification row as supplied by an input adapter. Dates
// that were missing or unparseable are the zero civil.Date; lab and
// classification codes that were missing or non-numeric are invalid
// sql.NullFloat64 values.
type Record struct {
	BirthDate        civil.Date
	NotificationDate civil.Date
	DeathDate        civil.Date

	Serology            sql.NullFloat64
	NS1                 sql.NullFloat64
	PCR                 sql.NullFloat64
	FinalClassification sql.NullFloat64
}

// AgeBand is a fixed age bucket. The zero value is the youngest band.
type AgeBand int

const (
	BandUpTo4 AgeBand = iota
	Band5To9
	Band10To14
	Band15To19
	Band20To29
	Band30To39
	Band40To49
	Band50To59
	Band60To69
	Band70To79
	Band80Plus
	// BandUnknown holds records whose age cannot be computed.
	BandUnknown

	// NumKnownBands is the number of bands with an age range.
	NumKnownBands = int(BandUnknown)
	// NumBands includes BandUnknown.
	NumBands      = NumKnownBands + 1
)

// upper bounds (inclusive) of the known bands, in order
var bandUpper = [NumKnownBands - 1]int{4, 9, 14, 19, 29, 39, 49, 59, 69, 79}

var bandLabels = [NumBands]string{
	"0-4", "5-9", "10-14", "15-19", "20-29", "30-39",
	"40-49", "50-59", "60-69", "70-79", "80+", "unknown",
}

func (b AgeBand) String() string {
	if b < 0 || int(b) >= NumBands {
		return fmt.Sprintf("AgeBand(%d)", int(b))
	}
	return bandLabels[b]
}

// Bands returns every band in order, BandUnknown last.
func Bands() []AgeBand {
	out := make([]AgeBand, NumBands)
	for i := range out {
		out[i] = AgeBand(i)
	}
	return out
}

// BandForAge buckets an integer age. Ages below zero (birth date after the
// notification date) fall into the youngest band, as the thresholds are
// upper bounds only.
func BandForAge(age int) AgeBand {
	for i, upper := range bandUpper {
		if age <= upper {
			return AgeBand(i)
		}
	}
	return Band80Plus
}

// ConfirmationStatus is the lab/clinical outcome of a notification.
type ConfirmationStatus int

const (
	StatusNegative ConfirmationStatus = iota
	StatusConfirmed
	StatusUnknown
)

func (s ConfirmationStatus) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusNegative:
		return "negative"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("ConfirmationStatus(%d)", int(s))
	}
}

// Final classification codes that count as a confirmed case.
const (
	ClassDengue        = 10
	ClassDengueWarning = 11
	ClassSevereDengue  = 12
	positiveLabResult  = 1
)

// Classification is the derived view of a single record.
type Classification struct {
	Age    int
	HasAge bool
	Band   AgeBand
	Status ConfirmationStatus
}

// Age returns the completed years between birth and notification, or false
// when either date is missing.
func Age(birth, notified civil.Date) (int, bool) {
	if !birth.IsValid() || !notified.IsValid() {
		return 0, false
	}
	age := notified.Year - birth.Year
	if notified.Month < birth.Month || (notified.Month == birth.Month && notified.Day < birth.Day) {
		age--
	}
	return age, true
}

// Status applies the confirmation priority: final classification 10/11/12,
// then serology, NS1 and PCR equal to 1. A record with all four fields null
// is unknown; anything else is negative.
func Status(r Record) ConfirmationStatus {
	if fc := r.FinalClassification; fc.Valid {
		switch fc.Float64 {
		case ClassDengue, ClassDengueWarning, ClassSevereDengue:
			return StatusConfirmed
		}
	}
	for _, lab := range []sql.NullFloat64{r.Serology, r.NS1, r.PCR} {
		if lab.Valid && lab.Float64 == positiveLabResult {
			return StatusConfirmed
		}
	}
	if !r.FinalClassification.Valid && !r.Serology.Valid && !r.NS1.Valid && !r.PCR.Valid {
		return StatusUnknown
	}
	return StatusNegative
}

// Classify derives age, band and confirmation status for a record.
func Classify(r Record) Classification {
	c := Classification{Band: BandUnknown, Status: Status(r)}
	if age, ok := Age(r.BirthDate, r.NotificationDate); ok {
		c.Age = age
		c.HasAge = true
		c.Band = BandForAge(age)
	}
	return c
}
