package domain

import "time"

// Timings is the normalized timing/size record. Phase durations are
// independently optional; TotalMs is always present and defaults to 0 when
// the collaborator output carried no recognizable total.
type Timings struct {
	SetupMs        *int64 `json:"setupMs,omitempty"`
	PrepMs         *int64 `json:"prepMs,omitempty"`
	ProveMs        *int64 `json:"proveMs,omitempty"`
	VerifyMs       *int64 `json:"verifyMs,omitempty"`
	TotalMs        int64  `json:"totalMs"`
	ProofSizeBytes int64  `json:"proofSizeBytes,omitempty"`
	Commitment     string `json:"commitment,omitempty"`
}

// Result is the outcome record correlated to a Task by TaskID.
// Success=true implies Error is empty; the inverse is advisory only and is
// not enforced at decode time.
type Result struct {
	TaskID      string    `json:"taskId"`
	Kind        Kind      `json:"taskType"`
	Success     bool      `json:"success"`
	RawResult   string    `json:"rawResult,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timings     *Timings  `json:"timings,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// SuccessResult builds the Result for a completed task.
func SuccessResult(task *Task, raw string, timings *Timings) Result {
	var completed time.Time
	if task.CompletedAt != nil {
		completed = *task.CompletedAt
	}
	return Result{
		TaskID:      task.ID,
		Kind:        task.Kind,
		Success:     true,
		RawResult:   raw,
		Timings:     timings,
		CompletedAt: completed,
	}
}

// FailureResult builds the Result for a failed task. The error is carried as
// text only — no error value crosses the channel boundary.
func FailureResult(task *Task, errText string) Result {
	var completed time.Time
	if task.CompletedAt != nil {
		completed = *task.CompletedAt
	}
	return Result{
		TaskID:      task.ID,
		Kind:        task.Kind,
		Success:     false,
		Error:       errText,
		CompletedAt: completed,
	}
}
