package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// CombinedReportName is the file holding every row of a run.
const CombinedReportName = "DisparateImpact.csv"

// WriteCSV writes the header then one line per row. Fields are quoted only when
// encoding/csv requires it (commas, quotes, line breaks, leading space), so
// ordinary reports are plain comma-joined text.
func WriteCSV(w io.Writer, rows []models.EvaluationRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(models.EvaluationRowHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := writer.Write(row.Fields()); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// WriteFile writes a report to path, creating parent directories.
func WriteFile(path string, rows []models.EvaluationRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReportFileName names the per-classifier report, e.g. "ANNDisparateImpact.csv".
func ReportFileName(classifier string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, classifier)
	return name + CombinedReportName
}

// WriteReports writes one report per classifier (in first-seen order) plus the
// combined report into dir, returning the paths written.
func WriteReports(dir string, rows []models.EvaluationRow) ([]string, error) {
	var order []string
	byClassifier := make(map[string][]models.EvaluationRow)
	for _, r := range rows {
		if _, ok := byClassifier[r.Classifier]; !ok {
			order = append(order, r.Classifier)
		}
		byClassifier[r.Classifier] = append(byClassifier[r.Classifier], r)
	}

	paths := make([]string, 0, len(order)+1)
	for _, classifier := range order {
		path := filepath.Join(dir, ReportFileName(classifier))
		if err := WriteFile(path, byClassifier[classifier]); err != nil {
			return paths, fmt.Errorf("report for %s: %w", classifier, err)
		}
		paths = append(paths, path)
	}

	combined := filepath.Join(dir, CombinedReportName)
	if err := WriteFile(combined, rows); err != nil {
		return paths, fmt.Errorf("combined report: %w", err)
	}
	return append(paths, combined), nil
}
