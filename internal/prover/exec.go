package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/moven0831/proofqueue/internal/domain"
)

// ExecProver shells out to a prover binary, one invocation per operation.
// The binary takes the operation kind as its first argument plus
// --documents/--input flags, and writes its result to stdout: free text for
// setup kinds, a JSON Output for prove/reblind kinds, "true"/"false" for
// verify kinds. Cancellation via ctx kills the process.
type ExecProver struct {
	// Path to the prover binary.
	Path string
}

// NewExecProver wraps the binary at path.
func NewExecProver(path string) *ExecProver {
	return &ExecProver{Path: path}
}

// Init asks the binary to load its runtime (circuit parameters, keys).
func (p *ExecProver) Init(ctx context.Context) error {
	if _, err := p.invoke(ctx, "init", nil); err != nil {
		return fmt.Errorf("prover runtime init: %w", err)
	}
	return nil
}

func (p *ExecProver) Setup(ctx context.Context, kind domain.Kind, params domain.Params) (string, error) {
	out, err := p.invoke(ctx, string(kind), params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (p *ExecProver) Prove(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error) {
	return p.structured(ctx, kind, params)
}

func (p *ExecProver) Reblind(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error) {
	return p.structured(ctx, kind, params)
}

func (p *ExecProver) Verify(ctx context.Context, kind domain.Kind, params domain.Params) (bool, error) {
	out, err := p.invoke(ctx, string(kind), params)
	if err != nil {
		return false, err
	}
	ok, err := strconv.ParseBool(strings.TrimSpace(out))
	if err != nil {
		return false, fmt.Errorf("prover %s: unparseable verdict %q: %w", kind, strings.TrimSpace(out), err)
	}
	return ok, nil
}

func (p *ExecProver) structured(ctx context.Context, kind domain.Kind, params domain.Params) (*Output, error) {
	raw, err := p.invoke(ctx, string(kind), params)
	if err != nil {
		return nil, err
	}
	var out Output
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("prover %s: decode output: %w", kind, err)
	}
	return &out, nil
}

func (p *ExecProver) invoke(ctx context.Context, op string, params domain.Params) (string, error) {
	args := []string{op}
	if params != nil {
		if docs := params.DocumentsPath(); docs != "" {
			args = append(args, "--documents", docs)
		}
		if in, ok := params.InputPath(); ok {
			args = append(args, "--input", in)
		}
	}

	cmd := exec.CommandContext(ctx, p.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("prover %s: %w", op, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("prover %s: %s", op, msg)
	}
	return stdout.String(), nil
}
