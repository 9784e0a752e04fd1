package prover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/moven0831/proofqueue/internal/domain"
)

// SimProver is a deterministic in-process stand-in for the proving library,
// used by the one-shot benchmark mode and tests. Durations are derived from
// the kind and documents path so repeated runs are reproducible.
type SimProver struct {
	// Latency is slept per operation to mimic a long-running call.
	Latency time.Duration
}

func (p *SimProver) Init(ctx context.Context) error {
	return p.sleep(ctx)
}

func (p *SimProver) Setup(ctx context.Context, kind domain.Kind, params domain.Params) (string, error) {
	if err := p.sleep(ctx); err != nil {
		return "", err
	}
	setup := p.ms(kind, params, 200, 1800)
	prep := p.ms(kind, params, 20, 140)
	if kind == domain.KindGenerateBlinds {
		// Blind generation reports no phase timings, like the real library.
		return "blinds generated", nil
	}
	return fmt.Sprintf("%s - Setup: %dms, Prep: %dms, Total: %dms", kind, setup, prep, setup+prep), nil
}

func (p *SimProver) Prove(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error) {
	return p.structured(ctx, kind, params)
}

func (p *SimProver) Reblind(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error) {
	return p.structured(ctx, kind, params)
}

func (p *SimProver) Verify(ctx context.Context, kind domain.Kind, params domain.Params) (bool, error) {
	if err := p.sleep(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (p *SimProver) structured(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error) {
	if err := p.sleep(ctx); err != nil {
		return nil, err
	}
	prep := p.ms(kind, params, 10, 120)
	prove := p.ms(kind, params, 300, 2600)
	sum := sha256.Sum256([]byte(string(kind) + "|" + params.DocumentsPath()))
	return &Output{
		PrepMs:         &prep,
		ProveMs:        &prove,
		TotalMs:        prep + prove,
		ProofSizeBytes: 16384 + prove*7,
		Commitment:     hex.EncodeToString(sum[:8]),
	}, nil
}

// ms maps (kind, documentsPath) into [lo, hi) deterministically.
func (p *SimProver) ms(kind domain.Kind, params domain.Params, lo, hi int64) int64 {
	h := fnv.New64a()
	h.Write([]byte(string(kind)))
	h.Write([]byte(params.DocumentsPath()))
	return lo + int64(h.Sum64()%uint64(hi-lo))
}

func (p *SimProver) sleep(ctx context.Context) error {
	if p.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(p.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
