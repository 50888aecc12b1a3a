// Package verifier implements the autonomous verification agent: it discovers
// bonds awaiting verification, evaluates their proof through a pluggable
// policy, votes, and finalizes bonds whose vote set is already decisive.
package verifier

import (
	"context"
	"strings"
)

// Decision is a policy's judgement of one proof.
type Decision struct {
	Approve    bool
	Confidence float64 // 0..1
	Reason     string
}

// Policy evaluates a proof URI and decides whether the work looks done.
// Implementations must fail closed: when the proof cannot be judged, reject.
type Policy interface {
	Evaluate(ctx context.Context, proofURI string) (Decision, error)
}

// HeuristicPolicyConfig tunes the built-in content heuristic.
type HeuristicPolicyConfig struct {
	MinContentLength int      // below this the proof is rejected
	RequiredKeywords []string // all must appear, case-insensitive
}

// HeuristicPolicy judges a proof by its fetched content: long enough,
// reachable, and containing the required keywords. It is deterministic per
// proof content so sibling agents running the same config agree.
type HeuristicPolicy struct {
	fetch *Fetcher
	cfg   HeuristicPolicyConfig
}

// NewHeuristicPolicy creates a HeuristicPolicy using the given fetcher.
func NewHeuristicPolicy(fetch *Fetcher, cfg HeuristicPolicyConfig) *HeuristicPolicy {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = 32
	}
	return &HeuristicPolicy{fetch: fetch, cfg: cfg}
}

// Evaluate fetches the proof content and applies the heuristic. Unreachable
// or malformed proofs reject with high confidence rather than erroring out:
// an unjudgeable proof is a failed proof.
func (p *HeuristicPolicy) Evaluate(ctx context.Context, proofURI string) (Decision, error) {
	content, err := p.fetch.Fetch(ctx, proofURI)
	if err != nil {
		return Decision{
			Approve:    false,
			Confidence: 0.9,
			Reason:     "proof unreachable: " + err.Error(),
		}, nil
	}

	content = strings.TrimSpace(content)
	if len(content) < p.cfg.MinContentLength {
		return Decision{
			Approve:    false,
			Confidence: 0.8,
			Reason:     "proof content too short",
		}, nil
	}

	lower := strings.ToLower(content)
	for _, kw := range p.cfg.RequiredKeywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return Decision{
				Approve:    false,
				Confidence: 0.7,
				Reason:     "proof missing required keyword: " + kw,
			}, nil
		}
	}

	// Longer proofs earn more confidence, capped well below certainty; a
	// heuristic should never claim to be sure.
	confidence := 0.5 + float64(len(content))/float64(p.cfg.MinContentLength*20)
	if confidence > 0.85 {
		confidence = 0.85
	}
	return Decision{
		Approve:    true,
		Confidence: confidence,
		Reason:     "proof content passed checks",
	}, nil
}

var _ Policy = (*HeuristicPolicy)(nil)
