package natsadapter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/detscore/internal/core/domain"
)

func TestCompletedCodec(t *testing.T) {
	ev := &domain.EvaluationCompleted{
		EvaluationID: "0b7a4f1e-52f3-4c6a-9d1b-7e8f9a0b1c2d",
		Strategy:     domain.StrategyGrouped,
		Metrics: domain.MetricsRecord{
			TP: 1.5, FP: 0.5, FN: 1, Precision: 0.75, Recall: 0.6, F1: 2.0 / 3.0,
			TPPlusFN: 2.5, TPPlusFP: 2, TPExact: "3/2", FPExact: "1/2", FNExact: "1",
		},
		CompletedAt: time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC),
	}

	data, err := EncodeCompleted(ev)
	require.NoError(t, err)

	got, err := DecodeCompleted(data)
	require.NoError(t, err)
	assert.Equal(t, ev.EvaluationID, got.EvaluationID)
	assert.Equal(t, ev.Strategy, got.Strategy)
	assert.Equal(t, ev.Metrics, got.Metrics)
	assert.True(t, ev.CompletedAt.Equal(got.CompletedAt))

	js, err := ToJSON(data)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(js, &m))
	assert.Equal(t, "grouped", m["strategy"])
}

func TestDecodeCompleted_Rejects(t *testing.T) {
	_, err := DecodeCompleted([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)

	data, err := EncodeCompleted(&domain.EvaluationCompleted{Strategy: domain.StrategyNearest})
	require.NoError(t, err)
	_, err = DecodeCompleted(data)
	assert.Error(t, err)
}

func TestCompletedSubject(t *testing.T) {
	assert.Equal(t, "evaluation.completed.nearest", CompletedSubject(domain.StrategyNearest))
}
