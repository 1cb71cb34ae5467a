package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	geojsonadapter "github.com/samirrijal/detscore/internal/adapters/geojson"
	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/ports"
	"github.com/samirrijal/detscore/internal/core/usecases"
)

// ErrTypeInput marks activity failures caused by bad input files. Retrying
// them cannot succeed.
const ErrTypeInput = "InputError"

// EvaluationActivities holds the activity implementations for the evaluation workflow.
type EvaluationActivities struct {
	Evaluations *usecases.EvaluationService
	Events      ports.EventPublisher
}

// RunEvaluation loads the input files, scores them and writes the optional
// tagged outputs.
func (a *EvaluationActivities) RunEvaluation(ctx context.Context, input EvaluationInput) (*EvaluationSummary, error) {
	req := &domain.EvaluationRequest{
		ToleranceM: input.ToleranceM,
		Strategy:   input.Strategy,
		SectorBufM: input.SectorBufferM,
	}
	if input.SectorsFile != "" {
		sectors, err := geojsonadapter.ReadSectorsFile(input.SectorsFile, input.SectorNameProperty)
		if err != nil {
			return nil, nonRetryable("read sectors", err)
		}
		req.Sectors = sectors
	}

	activity.RecordHeartbeat(ctx, "loading")
	src := geojsonadapter.FileSource{GT: input.GTFiles, DET: input.DETFiles}
	eval, err := a.Evaluations.RunFrom(ctx, src, req)
	if err != nil {
		if domain.IsInputError(err) || errors.Is(err, domain.ErrMissingGeometry) {
			return nil, nonRetryable("evaluate", err)
		}
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	activity.RecordHeartbeat(ctx, "writing")

	if input.TaggedGTFile != "" && eval.Result != nil {
		if err := geojsonadapter.WriteTaggedFile(input.TaggedGTFile, eval.Result.GT); err != nil {
			return nil, fmt.Errorf("write tagged gt: %w", err)
		}
	}
	if input.TaggedDETFile != "" && eval.Result != nil {
		if err := geojsonadapter.WriteTaggedFile(input.TaggedDETFile, eval.Result.DET); err != nil {
			return nil, fmt.Errorf("write tagged det: %w", err)
		}
	}

	return &EvaluationSummary{
		EvaluationID: eval.ID,
		Strategy:     eval.Strategy,
		Metrics:      eval.Metrics,
		Balanced:     eval.Balanced,
		CompletedAt:  eval.CreatedAt,
	}, nil
}

// PublishEvaluation announces a stored evaluation.
func (a *EvaluationActivities) PublishEvaluation(ctx context.Context, summary EvaluationSummary) error {
	if a.Events == nil {
		slog.Info("no event publisher, skipping", "evaluation_id", summary.EvaluationID)
		return nil
	}
	return a.Events.PublishEvaluationCompleted(ctx, &domain.EvaluationCompleted{
		EvaluationID: summary.EvaluationID,
		Strategy:     summary.Strategy,
		Metrics:      summary.Metrics,
		CompletedAt:  summary.CompletedAt,
	})
}

func nonRetryable(step string, err error) error {
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf("%s: %v", step, err), ErrTypeInput, err)
}
