package natsadapter

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// Subjects and stream carrying evaluation events.
const (
	StreamEvaluations     = "EVALUATIONS"
	SubjectCompleted      = "evaluation.completed"
	SubjectCompletedAll   = SubjectCompleted + ".>"
	durableCompletedGroup = "evaluation-completed-processor"
)

// CompletedSubject is the subject an event is published on.
func CompletedSubject(strategy domain.Strategy) string {
	return SubjectCompleted + "." + string(strategy)
}

func completedStruct(ev *domain.EvaluationCompleted) (*structpb.Struct, error) {
	m := ev.Metrics
	return structpb.NewStruct(map[string]any{
		"evaluation_id": ev.EvaluationID,
		"strategy":      string(ev.Strategy),
		"completed_at":  ev.CompletedAt.UTC().Format(time.RFC3339Nano),
		"metrics": map[string]any{
			"TP":       m.TP,
			"FP":       m.FP,
			"FN":       m.FN,
			"p":        m.Precision,
			"r":        m.Recall,
			"f1":       m.F1,
			"TP+FN":    m.TPPlusFN,
			"TP+FP":    m.TPPlusFP,
			"TP_exact": m.TPExact,
			"FP_exact": m.FPExact,
			"FN_exact": m.FNExact,
		},
	})
}

// EncodeCompleted serialises an event as a protobuf Struct.
func EncodeCompleted(ev *domain.EvaluationCompleted) ([]byte, error) {
	st, err := completedStruct(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeCompleted parses a payload written by EncodeCompleted.
func DecodeCompleted(data []byte) (*domain.EvaluationCompleted, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	f := st.GetFields()

	ev := &domain.EvaluationCompleted{
		EvaluationID: f["evaluation_id"].GetStringValue(),
		Strategy:     domain.Strategy(f["strategy"].GetStringValue()),
	}
	if ev.EvaluationID == "" {
		return nil, fmt.Errorf("decode event: missing evaluation_id")
	}
	if ts := f["completed_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("decode event: completed_at: %w", err)
		}
		ev.CompletedAt = t
	}

	mf := f["metrics"].GetStructValue().GetFields()
	ev.Metrics = domain.MetricsRecord{
		TP:        mf["TP"].GetNumberValue(),
		FP:        mf["FP"].GetNumberValue(),
		FN:        mf["FN"].GetNumberValue(),
		Precision: mf["p"].GetNumberValue(),
		Recall:    mf["r"].GetNumberValue(),
		F1:        mf["f1"].GetNumberValue(),
		TPPlusFN:  mf["TP+FN"].GetNumberValue(),
		TPPlusFP:  mf["TP+FP"].GetNumberValue(),
		TPExact:   mf["TP_exact"].GetStringValue(),
		FPExact:   mf["FP_exact"].GetStringValue(),
		FNExact:   mf["FN_exact"].GetStringValue(),
	}
	return ev, nil
}

// ToJSON re-encodes a protobuf payload as JSON for browser clients.
func ToJSON(data []byte) ([]byte, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return protojson.Marshal(&st)
}
