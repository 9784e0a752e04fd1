package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/moven0831/proofqueue/internal/domain"
)

// WorkflowStep is one named submission in a sequential workflow.
type WorkflowStep struct {
	Name   string
	Kind   domain.Kind
	Params domain.Params
}

// StepResult pairs a step with its terminal outcome.
type StepResult struct {
	Name   string        `json:"name"`
	TaskID string        `json:"taskId"`
	Result domain.Result `json:"result"`
}

// WorkflowFailedError names the step whose task failed and aborted the run.
type WorkflowFailedError struct {
	Step   string
	TaskID string
	Cause  string
}

func (e *WorkflowFailedError) Error() string {
	return fmt.Sprintf("workflow step %q failed (task %s): %s", e.Step, e.TaskID, e.Cause)
}

// RunWorkflow executes the steps strictly in order: step N+1 is submitted
// only after step N's terminal event. On the first failed task the remaining
// steps are skipped and a WorkflowFailedError is returned alongside the
// results collected so far.
func (c *Client) RunWorkflow(ctx context.Context, steps []WorkflowStep) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		taskID, err := c.SubmitTask(ctx, step.Kind, step.Params)
		if err != nil {
			return results, fmt.Errorf("workflow step %q: %w", step.Name, err)
		}
		result, err := c.AwaitTask(ctx, taskID)
		if err != nil {
			return results, fmt.Errorf("workflow step %q: %w", step.Name, err)
		}
		results = append(results, StepResult{Name: step.Name, TaskID: taskID, Result: result})
		if !result.Success {
			c.logger.Warn("workflow aborted",
				slog.String("step", step.Name),
				slog.String("task_id", taskID),
				slog.String("error", result.Error),
			)
			return results, &WorkflowFailedError{Step: step.Name, TaskID: taskID, Cause: result.Error}
		}
	}
	return results, nil
}

// BenchmarkSteps is the canonical nine-step sequence over every task kind,
// in workflow order, all sharing one document set.
func BenchmarkSteps(documentsPath, inputPath string) []WorkflowStep {
	steps := make([]WorkflowStep, 0, len(domain.Kinds()))
	for _, kind := range domain.Kinds() {
		params := domain.Params{domain.ParamDocumentsPath: documentsPath}
		if inputPath != "" {
			params[domain.ParamInputPath] = inputPath
		}
		steps = append(steps, WorkflowStep{Name: kind.String(), Kind: kind, Params: params})
	}
	return steps
}

// BenchmarkWorkflow runs the canonical nine-step sequence.
func (c *Client) BenchmarkWorkflow(ctx context.Context, documentsPath, inputPath string) ([]StepResult, error) {
	return c.RunWorkflow(ctx, BenchmarkSteps(documentsPath, inputPath))
}
