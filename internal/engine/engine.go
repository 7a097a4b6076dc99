// Package engine implements the firewall policy evaluation chain: the
// ordered rule stages, their short-circuit stop-on-first-block semantics,
// and the per-(rule set, client) sliding-window rate limiter.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeropass/zeropass/internal/rules"
)

// Decision is the terminal outcome of an evaluation.
type Decision string

const (
	DecisionAllowed Decision = "ALLOWED"
	DecisionBlocked Decision = "BLOCKED"
)

// Rule category names reported in results. The evaluation order is fixed:
// IP, JWT, OAuth2, rate limit, header rules, path rules, default action.
const (
	CategoryIPRules       = "ip_rules"
	CategoryJWT           = "jwt_validation"
	CategoryOAuth2        = "oauth2_validation"
	CategoryRateLimit     = "rate_limiting"
	CategoryHeaderRules   = "header_rules"
	CategoryPathRules     = "path_rules"
	CategoryDefaultAction = "default_action"
)

// Request is a hypothetical incoming request to evaluate. Headers must
// arrive with names already normalized by the transport layer; the engine
// looks them up exactly as configured in the rule set.
type Request struct {
	RuleSetID   string            `json:"rule_set_id"`
	ClientIP    string            `json:"client_ip"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers,omitempty"`
	JWTToken    string            `json:"jwt_token,omitempty"`
	OAuthScopes []string          `json:"oauth_scopes,omitempty"`
	Owner       string            `json:"-"`
}

// Result is the immutable outcome of one evaluation: the decision, the
// rule category that produced it, and the pass explanations accumulated up
// to that point.
type Result struct {
	Decision          Decision `json:"decision"`
	MatchedRule       string   `json:"matched_rule"`
	Reason            string   `json:"reason"`
	EvaluationDetails []string `json:"evaluation_details"`
	Owner             string   `json:"owner,omitempty"`
}

// Sink receives every terminal outcome for audit purposes.
type Sink interface {
	RecordEvaluation(ctx context.Context, rs *rules.RuleSet, req *Request, res *Result)
}

// Engine orchestrates the rule chain. It is deterministic and
// side-effect-free except for the rate limiter, which mutates shared
// window state, and the sink, which records every terminal outcome.
type Engine struct {
	limiter *SlidingWindow
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Engine. A nil sink disables audit recording; a nil logger
// is replaced with slog.Default().
func New(limiter *SlidingWindow, sink Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		limiter: limiter,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Limiter exposes the engine's rate limiter so the owner of a rule set's
// lifecycle can reset windows on delete.
func (e *Engine) Limiter() *SlidingWindow { return e.limiter }

// Evaluate runs the request through the rule chain and returns the
// decision with its explanation trail. Stages whose rule is absent or
// disabled are skipped without contributing an explanation. The first
// blocking stage terminates evaluation: later stages are neither evaluated
// nor charged.
func (e *Engine) Evaluate(ctx context.Context, rs *rules.RuleSet, req *Request) *Result {
	details := []string{}

	terminal := func(decision Decision, category, reason string) *Result {
		res := &Result{
			Decision:          decision,
			MatchedRule:       category,
			Reason:            reason,
			EvaluationDetails: details,
			Owner:             req.Owner,
		}
		e.logger.Debug("evaluation complete",
			"rule_set", rs.ID,
			"client_ip", req.ClientIP,
			"decision", string(decision),
			"matched_rule", category,
		)
		if e.sink != nil {
			e.sink.RecordEvaluation(ctx, rs, req, res)
		}
		return res
	}
	block := func(category, reason string) *Result {
		return terminal(DecisionBlocked, category, reason)
	}

	if rs.IPRule != nil {
		match := MatchesAnyCIDR(req.ClientIP, rs.IPRule.CIDRs)
		if rs.IPRule.Mode == rules.ActionBlock && match {
			return block(CategoryIPRules, fmt.Sprintf("IP %s is in blocked CIDR list", req.ClientIP))
		}
		if rs.IPRule.Mode == rules.ActionAllow && !match {
			return block(CategoryIPRules, fmt.Sprintf("IP %s is not in allowed CIDR list", req.ClientIP))
		}
		details = append(details, fmt.Sprintf("IP rule check passed for %s", req.ClientIP))
	}

	if rs.JWTRule != nil && rs.JWTRule.Enabled {
		if req.JWTToken == "" {
			return block(CategoryJWT, "JWT token required but not provided")
		}
		ok, reason := ValidateToken(req.JWTToken, rs.JWTRule, e.now())
		if !ok {
			return block(CategoryJWT, reason)
		}
		details = append(details, reason)
	}

	if rs.OAuth2Rule != nil && rs.OAuth2Rule.Enabled {
		if missing := MissingScopes(req.OAuthScopes, rs.OAuth2Rule.RequiredScopes); len(missing) > 0 {
			return block(CategoryOAuth2, fmt.Sprintf("Missing required OAuth2 scopes: %v", missing))
		}
		details = append(details, "OAuth2 scope validation passed")
	}

	if rs.RateLimitRule != nil && rs.RateLimitRule.Enabled {
		ok, reason := e.limiter.Check(rs.ID, req.ClientIP, rs.RateLimitRule.Limit, rs.RateLimitRule.WindowSeconds)
		if !ok {
			return block(CategoryRateLimit, reason)
		}
		details = append(details, reason)
	}

	for _, hr := range rs.HeaderRules {
		ok, reason := MatchHeader(req.Headers, hr)
		if !ok {
			return block(CategoryHeaderRules, reason)
		}
		details = append(details, reason)
	}

	for _, pr := range rs.PathRules {
		ok, reason := MatchPath(req.Method, req.Path, pr)
		if !ok {
			return block(CategoryPathRules, reason)
		}
		details = append(details, reason)
	}

	decision := DecisionBlocked
	if rs.DefaultAction == rules.ActionAllow {
		decision = DecisionAllowed
	}
	return terminal(decision, CategoryDefaultAction,
		fmt.Sprintf("All rules passed, applying default action: %s", rs.DefaultAction))
}
