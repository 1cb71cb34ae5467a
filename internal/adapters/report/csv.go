// Package report writes evaluation metrics as CSV tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// ScopeAll names the row that covers every object of an evaluation.
const ScopeAll = "all"

// Header is the column order of a metrics table.
var Header = []string{"scope", "TP", "FP", "FN", "p", "r", "f1", "TP+FN", "TP+FP", "num_gt", "num_det"}

func row(scope string, m domain.MetricsRecord, nGT, nDET int) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return []string{
		scope,
		f(m.TP), f(m.FP), f(m.FN),
		f(m.Precision), f(m.Recall), f(m.F1),
		f(m.TPPlusFN), f(m.TPPlusFP),
		strconv.Itoa(nGT), strconv.Itoa(nDET),
	}
}

// WriteMetrics writes the header, the "all" row and one row per sector.
func WriteMetrics(w io.Writer, eval *domain.Evaluation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if err := cw.Write(row(ScopeAll, eval.Metrics, eval.NumGT, eval.NumDET)); err != nil {
		return err
	}
	for _, s := range eval.Sectors {
		if err := cw.Write(row(s.Sector, s.Metrics, s.NumGT, s.NumDET)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMetricsFile writes the metrics table of eval to path.
func WriteMetricsFile(path string, eval *domain.Evaluation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteMetrics(f, eval); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
