package policy

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/advisory"
	"github.com/jordigilh/rtx/internal/signal"
	"github.com/open-policy-agent/opa/rego"
)

// Engine evaluates TrustSignal -> Verdict using the embedded Rego policy in
// rego.go. It compiles the policy once and reuses the prepared query for
// every dependency, since Deriver/Engine invocations need to
// be safe to run concurrently and in parallel.
type Engine struct {
	mu      sync.Mutex
	query   rego.PreparedEvalQuery
	prepped bool
}

// NewEngine constructs an Engine, compiling the policy document eagerly so
// a syntax error surfaces at startup rather than on the first evaluation.
func NewEngine(ctx context.Context) (*Engine, error) {
	q, err := rego.New(
		rego.Query("data.rtx.policy.result"),
		rego.Module("rtx_policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "policy: compile policy")
	}
	return &Engine{query: q, prepped: true}, nil
}

type regoResult struct {
	Severity string `json:"severity"`
	Reasons  []struct {
		Signal   string `json:"signal"`
		Severity string `json:"severity"`
	} `json:"reasons"`
}

// Evaluate applies the policy to s and returns the resulting Verdict. An
// empty set of fired signals yields Severity safe with no reasons, per
// that invariant.
func (e *Engine) Evaluate(ctx context.Context, s signal.TrustSignal) (Verdict, error) {
	input := map[string]interface{}{
		"abandoned":           s.Abandoned,
		"high_churn":          s.HighChurn,
		"medium_churn":        s.MediumChurn,
		"bus_factor_zero":     s.BusFactorZero,
		"bus_factor_one":      s.BusFactorOne,
		"low_maturity":        s.LowMaturity,
		"typosquat":           s.Typosquat,
		"yanked":              s.Yanked,
		"known_vuln_severity": knownVulnSeverityString(s),
	}

	// rego.PreparedEvalQuery.Eval is safe for concurrent use; the mutex here
	// only guards reading the query prepared by NewEngine, and is never held
	// across the Eval call itself.
	e.mu.Lock()
	q := e.query
	e.mu.Unlock()

	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Verdict{}, errors.Wrap(err, "policy: evaluate")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Verdict{Severity: SeveritySafe}, nil
	}

	raw, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Verdict{Severity: SeveritySafe}, nil
	}

	v := Verdict{Severity: ParseSeverity(stringField(raw, "severity"))}
	if reasonsRaw, ok := raw["reasons"].([]interface{}); ok {
		for _, r := range reasonsRaw {
			rm, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			v.Reasons = append(v.Reasons, Reason{
				Signal:   stringField(rm, "signal"),
				Severity: ParseSeverity(stringField(rm, "severity")),
			})
		}
	}
	SortReasons(v.Reasons)

	for _, a := range advisory.CoveringAdvisories(s.Advisories, s.Version) {
		v.ContributingAdvisoryIDs = append(v.ContributingAdvisoryIDs, a.ID)
	}

	return v, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func knownVulnSeverityString(s signal.TrustSignal) string {
	if !s.HasKnownVuln {
		return ""
	}
	return s.KnownVulnSeverity.String()
}
