// Package testutil holds fixtures shared by tests: synthetic notification
// exports and a few HTTP helpers.
package testutil

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// Header is the column order written by WriteCSV. It includes two columns
// the reader ignores.
var Header = []string{
	"NU_NOTIFIC", "DT_NOTIFIC", "DT_NASC", "CS_SEXO", "DT_OBITO",
	"RESUL_SORO", "RESUL_NS1", "RESUL_PCR_", "CLASSI_FIN",
}

// Row is one notification as raw export text. Empty fields are written as
// empty strings.
type Row struct {
	Notified string
	Birth    string
	Death    string
	Serology string
	NS1      string
	PCR      string
	Class    string
}

// bandAges has one representative age per known age band.
var bandAges = []int{2, 7, 12, 17, 25, 35, 45, 55, 65, 75, 85}

// SyntheticYear builds a deterministic export for year. Month m has m
// notifications per known age band plus one with no birth date. Status
// cycles confirmed (class 10), discarded (class 5), unknown. The first
// notification of each month in the 20-29 band dies on the 20th.
//
// Per year that is 858 notifications in known bands and 12 in the unknown
// band; 12 deaths.
func SyntheticYear(year int) []Row {
	var rows []Row
	for m := 1; m <= 12; m++ {
		notified := fmt.Sprintf("%04d-%02d-15", year, m)
		for b, age := range bandAges {
			for i := 0; i < m; i++ {
				r := Row{
					Notified: notified,
					Birth:    fmt.Sprintf("%04d-12-31", year-age-1),
				}
				switch i % 3 {
				case 0:
					r.Class = "10"
				case 1:
					r.Class = "5"
				}
				if b == 4 && i == 0 {
					r.Death = fmt.Sprintf("%04d-%02d-20", year, m)
				}
				rows = append(rows, r)
			}
		}
		rows = append(rows, Row{Notified: notified, Serology: "1"})
	}
	return rows
}

// EncodeCSV renders rows under Header with the given delimiter.
func EncodeCSV(t testing.TB, comma rune, rows []Row) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.Write(Header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i, r := range rows {
		rec := []string{
			fmt.Sprint(i + 1), r.Notified, r.Birth, "F", r.Death,
			r.Serology, r.NS1, r.PCR, r.Class,
		}
		if err := w.Write(rec); err != nil {
			t.Fatalf("write row %d: %v", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush csv: %v", err)
	}
	return buf.Bytes()
}

// WriteCSV writes rows as a comma-separated export under dir and returns
// the file path. A name ending in .gz is gzip-compressed.
func WriteCSV(t testing.TB, dir, name string, rows []Row) string {
	t.Helper()
	data := EncodeCSV(t, ',', rows)
	if filepath.Ext(name) == ".gz" {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(data); err != nil {
			t.Fatalf("gzip %s: %v", name, err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip %s: %v", name, err)
		}
		data = zbuf.Bytes()
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteYears writes one synthetic export per year into a temp dir.
func WriteYears(t testing.TB, years ...int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(years))
	for _, y := range years {
		paths = append(paths, WriteCSV(t, dir, fmt.Sprintf("DENGBR%02d.csv", y%100), SyntheticYear(y)))
	}
	return paths
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Get serves a GET request against h and returns the recorder.
func Get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}
