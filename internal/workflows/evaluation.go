package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// EvaluationInput names the files of one scoring run. Paths must be readable
// by the worker.
type EvaluationInput struct {
	GTFiles            []string
	DETFiles           []string
	SectorsFile        string
	SectorNameProperty string
	ToleranceM         *float64
	Strategy           domain.Strategy
	SectorBufferM      *float64

	// Optional outputs, written by the worker.
	TaggedGTFile  string
	TaggedDETFile string
}

// EvaluationSummary is what the workflow reports back.
type EvaluationSummary struct {
	EvaluationID string
	Strategy     domain.Strategy
	Metrics      domain.MetricsRecord
	Balanced     bool
	CompletedAt  time.Time
	Published    bool
}

// EvaluationWorkflow runs an evaluation and announces it. RunEvaluation is
// safe to retry: the service reuses a stored evaluation of the same input,
// so attempts never store duplicates. Publication is
// best effort: the evaluation is already stored when it runs, so a failed
// publish is logged and reported through Published.
func EvaluationWorkflow(ctx workflow.Context, input EvaluationInput) (*EvaluationSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting evaluation workflow", "gtFiles", len(input.GTFiles), "detFiles", len(input.DETFiles))

	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeInput},
		},
	})

	var summary EvaluationSummary
	if err := workflow.ExecuteActivity(runCtx, "RunEvaluation", input).Get(ctx, &summary); err != nil {
		return nil, err
	}

	pubCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 5,
		},
	})
	if err := workflow.ExecuteActivity(pubCtx, "PublishEvaluation", summary).Get(ctx, nil); err != nil {
		logger.Warn("publish failed, evaluation stays stored", "evaluationID", summary.EvaluationID, "error", err)
		return &summary, nil
	}
	summary.Published = true

	logger.Info("Evaluation completed", "evaluationID", summary.EvaluationID, "f1", summary.Metrics.F1)
	return &summary, nil
}
