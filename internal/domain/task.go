package domain

import "time"

// Kind identifies one of the nine proof operation kinds. The string values
// are the wire names used on the event channel and must not change.
type Kind string

const (
	KindSetupPrepare   Kind = "setupPrepare"
	KindSetupShow      Kind = "setupShow"
	KindGenerateBlinds Kind = "generateBlinds"
	KindProvePrepare   Kind = "provePrepare"
	KindProveShow      Kind = "proveShow"
	KindReblindPrepare Kind = "reblindPrepare"
	KindReblindShow    Kind = "reblindShow"
	KindVerifyPrepare  Kind = "verifyPrepare"
	KindVerifyShow     Kind = "verifyShow"
)

// Class groups the nine kinds into the four collaborator operation classes.
type Class string

const (
	ClassSetup   Class = "setup"
	ClassProve   Class = "prove"
	ClassReblind Class = "reblind"
	ClassVerify  Class = "verify"
)

// Kinds returns all nine kinds in canonical workflow order.
func Kinds() []Kind {
	return []Kind{
		KindSetupPrepare, KindSetupShow, KindGenerateBlinds,
		KindProvePrepare, KindProveShow,
		KindReblindPrepare, KindReblindShow,
		KindVerifyPrepare, KindVerifyShow,
	}
}

// ParseKind validates a wire string against the closed enumeration.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindSetupPrepare, KindSetupShow, KindGenerateBlinds,
		KindProvePrepare, KindProveShow,
		KindReblindPrepare, KindReblindShow,
		KindVerifyPrepare, KindVerifyShow:
		return k, nil
	}
	return "", &InvalidKindError{Kind: s}
}

// Class returns the collaborator operation class for the kind, or "" for a
// kind outside the enumeration.
func (k Kind) Class() Class {
	switch k {
	case KindSetupPrepare, KindSetupShow, KindGenerateBlinds:
		return ClassSetup
	case KindProvePrepare, KindProveShow:
		return ClassProve
	case KindReblindPrepare, KindReblindShow:
		return ClassReblind
	case KindVerifyPrepare, KindVerifyShow:
		return ClassVerify
	}
	return ""
}

func (k Kind) String() string { return string(k) }

// Param keys recognised in Task.Params.
const (
	ParamDocumentsPath = "documentsPath"
	ParamInputPath     = "inputPath"
)

// Params carries the string-keyed operation parameters.
// documentsPath is required for every kind; inputPath is optional.
type Params map[string]string

func (p Params) DocumentsPath() string { return p[ParamDocumentsPath] }

func (p Params) InputPath() (string, bool) {
	v, ok := p[ParamInputPath]
	return v, ok
}

// Status represents the lifecycle states of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is a unit of background proof work. Created by the façade, owned and
// mutated exclusively by the worker from submission until a terminal event.
type Task struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"type"`
	Params      Params     `json:"params"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewTask builds a freshly queued task.
func NewTask(id string, kind Kind, params Params, now time.Time) Task {
	return Task{
		ID:        id,
		Kind:      kind,
		Params:    params,
		CreatedAt: now.UTC(),
		Status:    StatusQueued,
	}
}

// Start transitions queued → running and stamps StartedAt.
// Any other source state is an InvalidTransitionError.
func (t *Task) Start(now time.Time) error {
	if t.Status != StatusQueued {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, To: StatusRunning}
	}
	ts := now.UTC()
	if ts.Before(t.CreatedAt) {
		ts = t.CreatedAt
	}
	t.Status = StatusRunning
	t.StartedAt = &ts
	return nil
}

// Finish transitions running → completed|failed and stamps CompletedAt.
// Terminal states never regress and are never replayed.
func (t *Task) Finish(status Status, now time.Time) error {
	if !status.IsTerminal() {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, To: status}
	}
	if t.Status != StatusRunning {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, To: status}
	}
	ts := now.UTC()
	if t.StartedAt != nil && ts.Before(*t.StartedAt) {
		ts = *t.StartedAt
	}
	t.Status = status
	t.CompletedAt = &ts
	return nil
}

// Duration is the observed running time, zero until the task is terminal.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
