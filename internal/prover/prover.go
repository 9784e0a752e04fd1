// Package prover defines the contract for the external proving library and
// the implementations that invoke it. Every operation is opaque, potentially
// minutes-long, and either yields a value or fails — the queue core never
// looks inside.
package prover

import (
	"context"

	"github.com/moven0831/proofqueue/internal/domain"
)

// Output is the structured result returned by prove and reblind operations.
type Output struct {
	SetupMs        *int64 `json:"setupMs,omitempty"`
	PrepMs         *int64 `json:"prepMs,omitempty"`
	ProveMs        *int64 `json:"proveMs,omitempty"`
	VerifyMs       *int64 `json:"verifyMs,omitempty"`
	TotalMs        int64  `json:"totalMs"`
	ProofSizeBytes int64  `json:"proofSizeBytes"`
	Commitment     string `json:"commitment"`
}

// Prover is the external collaborator executing the four operation classes.
//
// Init performs the runtime bootstrap (circuit assets, keys); a failure there
// is fatal to the worker and is not retried. Setup covers the three
// setup/blind kinds and returns a free-text diagnostic. Verify returns the
// proof validity only.
type Prover interface {
	Init(ctx context.Context) error
	Setup(ctx context.Context, kind domain.Kind, params domain.Params) (string, error)
	Prove(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error)
	Reblind(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error)
	Verify(ctx context.Context, kind domain.Kind, params domain.Params) (bool, error)
}
