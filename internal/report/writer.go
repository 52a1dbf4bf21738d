package report

import (
	"bytes"
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"

	"github.com/banshee-data/dengue.report/internal/estimate"
	"github.com/banshee-data/dengue.report/internal/fsutil"
	"github.com/banshee-data/dengue.report/internal/monitoring"
	"github.com/banshee-data/dengue.report/internal/surveillance"
)

// File names written by Writer.
const (
	SummaryFile   = "summary.txt"
	EstimatesFile = "estimates.txt"
	DashboardFile = "dashboard.html"
)

// Writer renders a summary into a directory.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewWriter returns a Writer on the OS filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir}
}

func (w *Writer) put(name string, data []byte) (string, error) {
	path := filepath.Join(w.Dir, name)
	if err := w.FS.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

func (w *Writer) putPlot(name string, build func() (*plot.Plot, error)) (string, error) {
	p, err := build()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := WritePNG(&buf, p); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return w.put(name, buf.Bytes())
}

// WriteAll writes the text summary, PNG charts for the accumulated grid and
// each year, the estimates (if any) and the HTML dashboard. It returns the
// written paths in order.
func (w *Writer) WriteAll(sum *surveillance.Summary, results []*estimate.Result) ([]string, error) {
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	add := func(path string, err error) error {
		if err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	var txt bytes.Buffer
	if err := WriteSummary(&txt, sum); err != nil {
		return written, err
	}
	if err := add(w.put(SummaryFile, txt.Bytes())); err != nil {
		return written, err
	}

	if len(results) > 0 {
		var est bytes.Buffer
		for _, r := range results {
			if err := r.Format(&est); err != nil {
				return written, err
			}
			est.WriteByte('\n')
		}
		if err := add(w.put(EstimatesFile, est.Bytes())); err != nil {
			return written, err
		}
	}

	plots := []struct {
		name  string
		build func() (*plot.Plot, error)
	}{
		{"confirmed_all.png", func() (*plot.Plot, error) {
			return ConfirmedByBandPlot("Confirmed cases, all years", &sum.Grid)
		}},
		{"notified_all.png", func() (*plot.Plot, error) {
			return MonthlyBarPlot("Notifications per month, all years", sum.Monthly, surveillance.MetricNotified)
		}},
	}
	for _, y := range sum.Years {
		plots = append(plots, struct {
			name  string
			build func() (*plot.Plot, error)
		}{fmt.Sprintf("confirmed_%d.png", y.Year), func() (*plot.Plot, error) {
			return ConfirmedByBandPlot(fmt.Sprintf("Confirmed cases, %d", y.Year), &y.Grid)
		}})
	}
	for _, pl := range plots {
		if err := add(w.putPlot(pl.name, pl.build)); err != nil {
			return written, err
		}
	}

	var html bytes.Buffer
	if err := WriteDashboard(&html, sum, results); err != nil {
		return written, fmt.Errorf("render dashboard: %w", err)
	}
	if err := add(w.put(DashboardFile, html.Bytes())); err != nil {
		return written, err
	}

	monitoring.Logf("wrote %d report files to %s", len(written), w.Dir)
	return written, nil
}
