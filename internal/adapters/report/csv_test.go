package report_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/detscore/internal/adapters/report"
	"github.com/samirrijal/detscore/internal/core/domain"
)

func evaluation() *domain.Evaluation {
	return &domain.Evaluation{
		Metrics: domain.MetricsRecord{TP: 1.5, FP: 0.5, FN: 1, Precision: 0.75, Recall: 0.6, F1: 2.0 / 3, TPPlusFN: 2.5, TPPlusFP: 2},
		NumGT:   3,
		NumDET:  2,
		Sectors: []domain.SectorMetrics{
			{Sector: "north", NumGT: 1, NumDET: 0, Metrics: domain.MetricsRecord{FN: 1, TPPlusFN: 1}},
		},
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteMetrics(&buf, evaluation()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, report.Header, rows[0])
	assert.Equal(t, []string{"all", "1.5", "0.5", "1", "0.75", "0.6", "0.6666666666666666", "2.5", "2", "3", "2"}, rows[1])
	assert.Equal(t, "north", rows[2][0])
	assert.Equal(t, "0", rows[2][1])
	assert.Equal(t, "1", rows[2][3])
}

func TestWriteMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, report.WriteMetricsFile(path, &domain.Evaluation{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "scope,TP,FP,FN,p,r,f1,TP+FN,TP+FP,num_gt,num_det\nall,0,0,0,0,0,0,0,0,0,0\n", string(data))
}

func TestWriteMetricsFile_BadPath(t *testing.T) {
	err := report.WriteMetricsFile(filepath.Join(t.TempDir(), "missing", "metrics.csv"), &domain.Evaluation{})
	assert.Error(t, err)
}
