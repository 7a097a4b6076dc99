package catalog

import (
	"time"

	"github.com/zeropass/zeropass/internal/engine"
	"github.com/zeropass/zeropass/internal/rules"
)

// RequestOutcome is the per-request detail of a scenario run.
type RequestOutcome struct {
	Name     string          `json:"name"`
	Expected engine.Decision `json:"expected"`
	Actual   engine.Decision `json:"actual"`
	Passed   bool            `json:"passed"`
	Reason   string          `json:"reason,omitempty"`
}

// TestReport aggregates a scenario run against one rule set.
type TestReport struct {
	ScenarioID string           `json:"scenario_id"`
	RuleSetID  string           `json:"rule_set_id"`
	Passed     int              `json:"passed"`
	Total      int              `json:"total"`
	Coverage   float64          `json:"coverage"`
	Results    []RequestOutcome `json:"results"`
}

// RunScenario replays a scenario's requests against a rule set and scores
// actual vs expected decisions.
//
// The replay evaluates the IP and JWT rules only, a deliberately reduced
// smoke-test path rather than the full evaluation chain: it never touches
// rate-limit state, so runs are repeatable, and it never appends to the
// evaluation log. Scenarios exercising OAuth2, rate-limit, header, or
// path rules must go through the full simulate operation instead.
func RunScenario(s *Scenario, rs *rules.RuleSet, now time.Time) *TestReport {
	report := &TestReport{
		ScenarioID: s.ID,
		RuleSetID:  rs.ID,
		Total:      len(s.Requests),
		Results:    make([]RequestOutcome, 0, len(s.Requests)),
	}

	for _, req := range s.Requests {
		actual, reason := replayReduced(rs, &req, now)
		passed := actual == req.Expected
		if passed {
			report.Passed++
		}
		report.Results = append(report.Results, RequestOutcome{
			Name:     req.Name,
			Expected: req.Expected,
			Actual:   actual,
			Passed:   passed,
			Reason:   reason,
		})
	}

	if report.Total > 0 {
		report.Coverage = float64(report.Passed) / float64(report.Total) * 100
	}
	return report
}

func replayReduced(rs *rules.RuleSet, req *ScenarioRequest, now time.Time) (engine.Decision, string) {
	if rs.IPRule != nil {
		match := engine.MatchesAnyCIDR(req.ClientIP, rs.IPRule.CIDRs)
		if rs.IPRule.Mode == rules.ActionBlock && match {
			return engine.DecisionBlocked, "client address is in a blocked range"
		}
		if rs.IPRule.Mode == rules.ActionAllow && !match {
			return engine.DecisionBlocked, "client address is outside the allowed ranges"
		}
	}

	if rs.JWTRule != nil && rs.JWTRule.Enabled {
		if req.JWTToken == "" {
			return engine.DecisionBlocked, "JWT token required but not provided"
		}
		if ok, reason := engine.ValidateToken(req.JWTToken, rs.JWTRule, now); !ok {
			return engine.DecisionBlocked, reason
		}
	}

	if rs.DefaultAction == rules.ActionBlock {
		return engine.DecisionBlocked, "default action"
	}
	return engine.DecisionAllowed, ""
}
