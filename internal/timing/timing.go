// Package timing normalizes heterogeneous collaborator outputs into the
// uniform Timings record: free-text diagnostics are scanned for a fixed small
// token grammar, structured prove/reblind outputs are passed through.
package timing

import (
	"regexp"
	"strconv"

	"github.com/moven0831/proofqueue/internal/domain"
	"github.com/moven0831/proofqueue/internal/prover"
)

// tokenRe matches `<Phase>: <int>ms` with Phase in the closed set below.
// The diagnostic strings look like
//
//	"ECDSA Circuit - Setup: 412ms, Prep: 88ms, Prove: 1024ms, Verify: 35ms"
//
// with an optional trailing "Total: <int>ms".
var tokenRe = regexp.MustCompile(`(Setup|Prep|Prove|Verify|Total):\s*(\d+)\s*ms`)

// ParseDiagnostic tolerantly extracts phase durations from a diagnostic
// string. Missing phases stay nil. When no Total token is present TotalMs
// stays 0 and no error is raised — a recognized weak contract preserved for
// compatibility with existing clients; callers wanting visibility should log
// the zero themselves.
func ParseDiagnostic(raw string) *domain.Timings {
	t := &domain.Timings{}
	for _, m := range tokenRe.FindAllStringSubmatch(raw, -1) {
		v, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case "Setup":
			t.SetupMs = &v
		case "Prep":
			t.PrepMs = &v
		case "Prove":
			t.ProveMs = &v
		case "Verify":
			t.VerifyMs = &v
		case "Total":
			t.TotalMs = v
		}
	}
	return t
}

// FromOutput converts a structured prove/reblind output. Pass-through only:
// the collaborator's TotalMs is authoritative and is not recomputed from the
// phase fields.
func FromOutput(out *prover.Output) *domain.Timings {
	if out == nil {
		return &domain.Timings{}
	}
	return &domain.Timings{
		SetupMs:        out.SetupMs,
		PrepMs:         out.PrepMs,
		ProveMs:        out.ProveMs,
		VerifyMs:       out.VerifyMs,
		TotalMs:        out.TotalMs,
		ProofSizeBytes: out.ProofSizeBytes,
		Commitment:     out.Commitment,
	}
}
