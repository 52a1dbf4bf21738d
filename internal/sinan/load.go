package sinan

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/dengue.report/internal/fsutil"
	"github.com/banshee-data/dengue.report/internal/monitoring"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

var gzipMagic = []byte{0x1f, 0x8b}

// maybeGzip returns r, decompressed when it starts with the gzip magic
// bytes. The caller closes the result.
func maybeGzip(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if !bytes.Equal(head, gzipMagic) {
		return io.NopCloser(br), nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return zr, nil
}

// Loader reads dataset files and tabulates them.
type Loader struct {
	FS      fsutil.FileSystem
	Options Options
}

// NewLoader returns a Loader reading from the OS filesystem.
func NewLoader(opts Options) *Loader {
	return &Loader{FS: fsutil.OSFileSystem{}, Options: opts}
}

// ReadFile decodes one dataset file.
func (l *Loader) ReadFile(path string) ([]surveillance.Record, error) {
	f, err := l.FS.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recs, err := Decode(f, l.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// LoadYear reads and aggregates one dataset file. The records are dropped
// once the grid is built.
func (l *Loader) LoadYear(path string, partialYear int) (*surveillance.YearAggregate, error) {
	start := time.Now()
	recs, err := l.ReadFile(path)
	if err != nil {
		return nil, err
	}
	agg, err := surveillance.Aggregate(recs, partialYear)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	partial := ""
	if agg.Partial {
		partial = " (partial)"
	}
	monitoring.Logf("loaded %s: year %d%s, %d records, %d skipped, %v",
		path, agg.Year, partial, agg.Records, agg.Skipped, time.Since(start).Round(time.Millisecond))
	return agg, nil
}

// LoadYears loads every path in order and designates the partial year
// before returning. A partialYear of zero designates the latest dataset year.
// Two files resolving to the same year fail with
// surveillance.ErrDuplicateYear.
func (l *Loader) LoadYears(paths []string, partialYear int) ([]*surveillance.YearAggregate, error) {
	years := make([]*surveillance.YearAggregate, 0, len(paths))
	seen := make(map[int]string, len(paths))
	for _, p := range paths {
		agg, err := l.LoadYear(p, partialYear)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[agg.Year]; ok {
			return nil, fmt.Errorf("%s: year %d already loaded from %s: %w", p, agg.Year, prev, surveillance.ErrDuplicateYear)
		}
		seen[agg.Year] = p
		years = append(years, agg)
	}
	if partialYear == 0 {
		years = surveillance.DesignatePartial(years, 0)
	}
	return years, nil
}

// LoadAll loads every path into one accumulator, as LoadYears does.
func (l *Loader) LoadAll(paths []string, partialYear int) (*surveillance.Accumulator, error) {
	years, err := l.LoadYears(paths, partialYear)
	if err != nil {
		return nil, err
	}
	acc := surveillance.NewAccumulator()
	for i, y := range years {
		if err := acc.Add(y); err != nil {
			return nil, fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	return acc, nil
}
