package policy

// policySource is the severity table expressed as Rego rather than a Go
// switch: each signal contributes a severity, and the verdict is the
// maximum contribution across all signals that fired.
const policySource = `
package rtx.policy

severity_rank := {"safe": 0, "low": 1, "medium": 2, "high": 3, "critical": 4}
rank_severity := {0: "safe", 1: "low", 2: "medium", 3: "high", 4: "critical"}

contributions contains {"signal": "has_known_vuln", "severity": input.known_vuln_severity} if {
	input.known_vuln_severity != ""
}

contributions contains {"signal": "yanked", "severity": "high"} if {
	input.yanked
}

contributions contains {"signal": "typosquat", "severity": "high"} if {
	input.typosquat
}

contributions contains {"signal": "abandoned", "severity": "medium"} if {
	input.abandoned
}

contributions contains {"signal": "bus_factor_zero", "severity": "medium"} if {
	input.bus_factor_zero
}

contributions contains {"signal": "bus_factor_one", "severity": "low"} if {
	input.bus_factor_one
	not input.bus_factor_zero
}

contributions contains {"signal": "high_churn", "severity": "medium"} if {
	input.high_churn
}

contributions contains {"signal": "medium_churn", "severity": "low"} if {
	input.medium_churn
	not input.high_churn
}

contributions contains {"signal": "low_maturity", "severity": "low"} if {
	input.low_maturity
}

ranks := [severity_rank[c.severity] | some c in contributions]

max_rank := max(ranks) if {
	count(ranks) > 0
} else := 0

result := {
	"severity": rank_severity[max_rank],
	"reasons": [c | some c in contributions],
}
`
