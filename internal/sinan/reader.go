// Package sinan reads yearly dengue notification exports in the SINAN
// column layout into surveillance records.
package sinan

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// Column names used by the export.
const (
	ColBirthDate        = "DT_NASC"
	ColNotificationDate = "DT_NOTIFIC"
	ColDeathDate        = "DT_OBITO"
	ColSerology         = "RESUL_SORO"
	ColNS1              = "RESUL_NS1"
	ColPCR              = "RESUL_PCR_"
	ColClassification   = "CLASSI_FIN"
)

const (
	colBirth = iota
	colNotified
	colDeath
	colSerology
	colNS1
	colPCR
	colClassification
	numCols
)

var columns = [numCols]string{
	ColBirthDate, ColNotificationDate, ColDeathDate,
	ColSerology, ColNS1, ColPCR, ColClassification,
}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// Options controls how the delimited text is parsed.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// ParseDelimiter converts a one-character configuration value into a rune.
// "\t" and "tab" select a tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// Reader decodes records one row at a time.
type Reader struct {
	cr  *csv.Reader
	idx [numCols]int
}

// NewReader reads the header row and locates the required columns. Column
// order and any extra columns are irrelevant.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: %w", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	pos := make(map[string]int, len(head))
	for i, h := range head {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	rd := &Reader{cr: cr}
	var missing []string
	for c, name := range columns {
		p, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		rd.idx[c] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return rd, nil
}

// Read returns the next record, or io.EOF at the end of input. Unparseable
// dates and codes become null rather than errors.
func (r *Reader) Read() (surveillance.Record, error) {
	row, err := r.cr.Read()
	if err != nil {
		if err != io.EOF {
			line, _ := r.cr.FieldPos(0)
			err = fmt.Errorf("line %d: %w", line, err)
		}
		return surveillance.Record{}, err
	}
	field := func(c int) string {
		if p := r.idx[c]; p < len(row) {
			return row[p]
		}
		return ""
	}
	return surveillance.Record{
		BirthDate:           ParseDate(field(colBirth)),
		NotificationDate:    ParseDate(field(colNotified)),
		DeathDate:           ParseDate(field(colDeath)),
		Serology:            ParseCode(field(colSerology)),
		NS1:                 ParseCode(field(colNS1)),
		PCR:                 ParseCode(field(colPCR)),
		FinalClassification: ParseCode(field(colClassification)),
	}, nil
}

// ReadAll decodes every remaining record.
func (r *Reader) ReadAll() ([]surveillance.Record, error) {
	var out []surveillance.Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// ParseDate parses a YYYY-MM-DD date. Anything else, including impossible
// calendar dates, yields the zero (invalid) date.
func ParseDate(s string) civil.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}
	}
	d, err := civil.ParseDate(s)
	if err != nil || !d.IsValid() {
		return civil.Date{}
	}
	return d
}

// ParseCode parses a numeric lab or classification code. Blank or
// non-numeric text yields null.
func ParseCode(s string) sql.NullFloat64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Decode reads a whole dataset. Input starting with the gzip magic bytes is
// decompressed transparently.
func Decode(r io.Reader, opts Options) (recs []surveillance.Record, err error) {
	rc, err := maybeGzip(r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			recs, err = nil, fmt.Errorf("close gzip stream: %w", cerr)
		}
	}()
	rd, err := NewReader(rc, opts)
	if err != nil {
		return nil, err
	}
	return rd.ReadAll()
}
