package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moven0831/proofqueue/internal/domain"
)

func TestParseKind_AllNineKinds(t *testing.T) {
	wire := []string{
		"setupPrepare", "setupShow", "generateBlinds",
		"provePrepare", "proveShow",
		"reblindPrepare", "reblindShow",
		"verifyPrepare", "verifyShow",
	}
	for _, s := range wire {
		t.Run(s, func(t *testing.T) {
			k, err := domain.ParseKind(s)
			require.NoError(t, err)
			assert.Equal(t, s, k.String())
		})
	}
	assert.Len(t, domain.Kinds(), 9)
}

func TestParseKind_Unknown(t *testing.T) {
	_, err := domain.ParseKind("proveEverything")
	require.Error(t, err)

	var invalid *domain.InvalidKindError
	assert.True(t, errors.As(err, &invalid), "expected InvalidKindError, got %T", err)
	assert.Equal(t, "proveEverything", invalid.Kind)
}

func TestKind_Class(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want domain.Class
	}{
		{domain.KindSetupPrepare, domain.ClassSetup},
		{domain.KindSetupShow, domain.ClassSetup},
		{domain.KindGenerateBlinds, domain.ClassSetup},
		{domain.KindProvePrepare, domain.ClassProve},
		{domain.KindProveShow, domain.ClassProve},
		{domain.KindReblindPrepare, domain.ClassReblind},
		{domain.KindReblindShow, domain.ClassReblind},
		{domain.KindVerifyPrepare, domain.ClassVerify},
		{domain.KindVerifyShow, domain.ClassVerify},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Class())
		})
	}
	assert.Equal(t, domain.Class(""), domain.Kind("sms").Class())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, domain.StatusCompleted.IsTerminal())
	assert.True(t, domain.StatusFailed.IsTerminal())
	assert.False(t, domain.StatusQueued.IsTerminal())
	assert.False(t, domain.StatusRunning.IsTerminal())
}

func TestTask_Lifecycle_HappyPath(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task := domain.NewTask("task-1", domain.KindProvePrepare, domain.Params{
		domain.ParamDocumentsPath: "/tmp/docs",
	}, created)

	assert.Equal(t, domain.StatusQueued, task.Status)
	assert.Equal(t, created, task.CreatedAt)
	assert.Nil(t, task.StartedAt)

	require.NoError(t, task.Start(created.Add(time.Second)))
	assert.Equal(t, domain.StatusRunning, task.Status)
	require.NotNil(t, task.StartedAt)

	require.NoError(t, task.Finish(domain.StatusCompleted, created.Add(3*time.Second)))
	assert.Equal(t, domain.StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)

	// createdAt ≤ startedAt ≤ completedAt
	assert.False(t, task.StartedAt.Before(task.CreatedAt))
	assert.False(t, task.CompletedAt.Before(*task.StartedAt))
	assert.Equal(t, 2*time.Second, task.Duration())
}

func TestTask_Start_OnlyFromQueued(t *testing.T) {
	now := time.Now()
	task := domain.NewTask("task-2", domain.KindSetupShow, nil, now)
	require.NoError(t, task.Start(now))

	err := task.Start(now)
	require.Error(t, err)

	var invalid *domain.InvalidTransitionError
	assert.True(t, errors.As(err, &invalid))
	assert.Equal(t, domain.StatusRunning, invalid.From)
}

func TestTask_Finish_NoReplayAfterTerminal(t *testing.T) {
	now := time.Now()
	task := domain.NewTask("task-3", domain.KindVerifyShow, nil, now)
	require.NoError(t, task.Start(now))
	require.NoError(t, task.Finish(domain.StatusFailed, now))

	assert.Error(t, task.Finish(domain.StatusCompleted, now), "terminal state must not regress")
	assert.Error(t, task.Start(now), "terminal state must not restart")
	assert.Equal(t, domain.StatusFailed, task.Status)
}

func TestTask_Finish_RejectsNonTerminalTarget(t *testing.T) {
	now := time.Now()
	task := domain.NewTask("task-4", domain.KindSetupPrepare, nil, now)
	require.NoError(t, task.Start(now))
	assert.Error(t, task.Finish(domain.StatusRunning, now))
}

func TestTask_Finish_RequiresRunning(t *testing.T) {
	task := domain.NewTask("task-5", domain.KindSetupPrepare, nil, time.Now())
	assert.Error(t, task.Finish(domain.StatusCompleted, time.Now()),
		"queued task cannot complete without running first")
}

func TestParams_Accessors(t *testing.T) {
	p := domain.Params{
		domain.ParamDocumentsPath: "/data/docs",
		domain.ParamInputPath:     "/data/input.json",
	}
	assert.Equal(t, "/data/docs", p.DocumentsPath())

	in, ok := p.InputPath()
	assert.True(t, ok)
	assert.Equal(t, "/data/input.json", in)

	_, ok = domain.Params{}.InputPath()
	assert.False(t, ok)
}

func TestResultBuilders(t *testing.T) {
	now := time.Now()
	task := domain.NewTask("task-6", domain.KindProveShow, nil, now)
	require.NoError(t, task.Start(now))
	require.NoError(t, task.Finish(domain.StatusCompleted, now.Add(time.Second)))

	res := domain.SuccessResult(&task, "ok", &domain.Timings{TotalMs: 42})
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, "task-6", res.TaskID)
	assert.Equal(t, domain.KindProveShow, res.Kind)
	assert.Equal(t, int64(42), res.Timings.TotalMs)
	assert.Equal(t, *task.CompletedAt, res.CompletedAt)

	fail := domain.FailureResult(&task, "witness load failed")
	assert.False(t, fail.Success)
	assert.Equal(t, "witness load failed", fail.Error)
	assert.Nil(t, fail.Timings)
}
