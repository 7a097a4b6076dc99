package engine

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zeropass/zeropass/internal/rules"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink captures terminal outcomes for assertions.
type recordingSink struct {
	mu      sync.Mutex
	entries []*Result
}

func (s *recordingSink) RecordEvaluation(_ context.Context, _ *rules.RuleSet, _ *Request, res *Result) {
	s.mu.Lock()
	s.entries = append(s.entries, res)
	s.mu.Unlock()
}

func newTestEngine() (*Engine, *recordingSink) {
	sink := &recordingSink{}
	return New(NewSlidingWindow(), sink, nopLogger()), sink
}

func baseRequest() *Request {
	return &Request{
		RuleSetID: "rs-1",
		ClientIP:  "8.8.8.8",
		Method:    "GET",
		Path:      "/api/data",
		Headers:   map[string]string{},
		Owner:     "alice",
	}
}

func TestEvaluate_NoRulesAppliesDefaultAction(t *testing.T) {
	eng, _ := newTestEngine()

	tests := []struct {
		action rules.Action
		want   Decision
	}{
		{rules.ActionAllow, DecisionAllowed},
		{rules.ActionBlock, DecisionBlocked},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			rs := &rules.RuleSet{ID: "rs-1", Name: "empty", DefaultAction: tt.action}
			res := eng.Evaluate(context.Background(), rs, baseRequest())
			if res.Decision != tt.want {
				t.Errorf("decision = %s, want %s", res.Decision, tt.want)
			}
			if res.MatchedRule != CategoryDefaultAction {
				t.Errorf("matched rule = %q, want %q", res.MatchedRule, CategoryDefaultAction)
			}
			if len(res.EvaluationDetails) != 0 {
				t.Errorf("trail should be empty, got %v", res.EvaluationDetails)
			}
		})
	}
}

func TestEvaluate_IPBlockMode(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "ip",
		IPRule:        &rules.IPRule{Mode: rules.ActionBlock, CIDRs: []string{"10.0.0.0/8"}},
		DefaultAction: rules.ActionAllow,
	}

	req := baseRequest()
	req.ClientIP = "10.1.2.3"
	res := eng.Evaluate(context.Background(), rs, req)
	if res.Decision != DecisionBlocked || res.MatchedRule != CategoryIPRules {
		t.Errorf("blocked CIDR hit: got %s/%s", res.Decision, res.MatchedRule)
	}
	if !strings.Contains(res.Reason, "blocked CIDR list") {
		t.Errorf("unexpected reason %q", res.Reason)
	}

	req = baseRequest()
	req.ClientIP = "8.8.8.8"
	res = eng.Evaluate(context.Background(), rs, req)
	if res.Decision != DecisionAllowed {
		t.Errorf("non-matching IP should fall through to default allow, got %s", res.Decision)
	}
	if len(res.EvaluationDetails) != 1 || !strings.Contains(res.EvaluationDetails[0], "IP rule check passed") {
		t.Errorf("expected IP pass explanation, got %v", res.EvaluationDetails)
	}
}

func TestEvaluate_IPAllowMode(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "ip",
		IPRule:        &rules.IPRule{Mode: rules.ActionAllow, CIDRs: []string{"192.168.0.0/16"}},
		DefaultAction: rules.ActionAllow,
	}

	req := baseRequest()
	req.ClientIP = "192.168.1.5"
	if res := eng.Evaluate(context.Background(), rs, req); res.Decision != DecisionAllowed {
		t.Errorf("in-list IP should pass, got %s", res.Decision)
	}

	req = baseRequest()
	req.ClientIP = "1.2.3.4"
	res := eng.Evaluate(context.Background(), rs, req)
	if res.Decision != DecisionBlocked || res.MatchedRule != CategoryIPRules {
		t.Errorf("out-of-list IP should block, got %s/%s", res.Decision, res.MatchedRule)
	}
	if !strings.Contains(res.Reason, "not in allowed CIDR list") {
		t.Errorf("unexpected reason %q", res.Reason)
	}
}

func TestEvaluate_JWTRule(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "jwt",
		JWTRule:       &rules.JWTRule{Enabled: true, RequiredClaims: map[string]any{"role": "admin"}},
		DefaultAction: rules.ActionAllow,
	}

	// No token at all blocks before the validator runs.
	res := eng.Evaluate(context.Background(), rs, baseRequest())
	if res.Decision != DecisionBlocked || res.MatchedRule != CategoryJWT {
		t.Fatalf("missing token: got %s/%s", res.Decision, res.MatchedRule)
	}
	if !strings.Contains(res.Reason, "not provided") {
		t.Errorf("reason %q should mention not provided", res.Reason)
	}

	req := baseRequest()
	req.JWTToken = makeToken(t, map[string]any{"role": "user"})
	res = eng.Evaluate(context.Background(), rs, req)
	if res.Decision != DecisionBlocked || !strings.Contains(res.Reason, "Invalid claim value for role") {
		t.Errorf("wrong claim: got %s %q", res.Decision, res.Reason)
	}

	req = baseRequest()
	req.JWTToken = makeToken(t, map[string]any{"role": "admin"})
	res = eng.Evaluate(context.Background(), rs, req)
	if res.Decision != DecisionAllowed {
		t.Errorf("matching claim should pass, got %s %q", res.Decision, res.Reason)
	}
}

func TestEvaluate_DisabledRulesAreSkipped(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "disabled",
		JWTRule:       &rules.JWTRule{Enabled: false},
		OAuth2Rule:    &rules.OAuth2Rule{Enabled: false, RequiredScopes: []string{"admin"}},
		RateLimitRule: &rules.RateLimitRule{Enabled: false, Limit: 1, WindowSeconds: 60},
		DefaultAction: rules.ActionAllow,
	}

	res := eng.Evaluate(context.Background(), rs, baseRequest())
	if res.Decision != DecisionAllowed {
		t.Errorf("disabled rules must not block, got %s %q", res.Decision, res.Reason)
	}
	if len(res.EvaluationDetails) != 0 {
		t.Errorf("skipped stages must not contribute explanations, got %v", res.EvaluationDetails)
	}
}

func TestEvaluate_OAuth2Scopes(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "scopes",
		OAuth2Rule:    &rules.OAuth2Rule{Enabled: true, RequiredScopes: []string{"read", "write"}},
		DefaultAction: rules.ActionAllow,
	}

	req := baseRequest()
	req.OAuthScopes = []string{"read"}
	res := eng.Evaluate(context.Background(), rs, req)
	if res.Decision != DecisionBlocked || res.MatchedRule != CategoryOAuth2 {
		t.Fatalf("missing scope: got %s/%s", res.Decision, res.MatchedRule)
	}
	if !strings.Contains(res.Reason, "write") {
		t.Errorf("reason %q should list the missing scope", res.Reason)
	}

	req.OAuthScopes = []string{"write", "read"}
	if res := eng.Evaluate(context.Background(), rs, req); res.Decision != DecisionAllowed {
		t.Errorf("all scopes present should pass, got %s", res.Decision)
	}

	// Enabled with no required scopes always passes, with an explanation.
	rs.OAuth2Rule.RequiredScopes = nil
	res = eng.Evaluate(context.Background(), rs, baseRequest())
	if res.Decision != DecisionAllowed {
		t.Errorf("empty required scopes should pass, got %s", res.Decision)
	}
	if len(res.EvaluationDetails) != 1 || res.EvaluationDetails[0] != "OAuth2 scope validation passed" {
		t.Errorf("expected scope pass explanation, got %v", res.EvaluationDetails)
	}
}

func TestEvaluate_RateLimitChain(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "rl",
		RateLimitRule: &rules.RateLimitRule{Enabled: true, Limit: 2, WindowSeconds: 60},
		DefaultAction: rules.ActionAllow,
	}

	for i := 0; i < 2; i++ {
		if res := eng.Evaluate(context.Background(), rs, baseRequest()); res.Decision != DecisionAllowed {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	res := eng.Evaluate(context.Background(), rs, baseRequest())
	if res.Decision != DecisionBlocked || res.MatchedRule != CategoryRateLimit {
		t.Errorf("3rd request: got %s/%s", res.Decision, res.MatchedRule)
	}
}

func TestEvaluate_HeaderRuleChain(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "hdr",
		HeaderRules: []rules.HeaderRule{
			{HeaderName: "Content-Type", Condition: rules.HeaderEquals, Value: "application/json"},
		},
		DefaultAction: rules.ActionAllow,
	}

	req := baseRequest()
	req.Headers = map[string]string{"Content-Type": "application/json"}
	if res := eng.Evaluate(context.Background(), rs, req); res.Decision != DecisionAllowed {
		t.Errorf("matching header should pass, got %s", res.Decision)
	}

	res := eng.Evaluate(context.Background(), rs, baseRequest())
	if res.Decision != DecisionBlocked || res.MatchedRule != CategoryHeaderRules {
		t.Errorf("missing header: got %s/%s", res.Decision, res.MatchedRule)
	}
}

func TestEvaluate_PathRulesInOrder(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "paths",
		PathRules: []rules.PathRule{
			{PathPattern: "/api/", Condition: rules.PathPrefix},
			{Methods: []string{"GET"}, PathPattern: "/api/data", Condition: rules.PathEquals},
		},
		DefaultAction: rules.ActionAllow,
	}

	res := eng.Evaluate(context.Background(), rs, baseRequest())
	if res.Decision != DecisionAllowed {
		t.Fatalf("both path rules should pass, got %s %q", res.Decision, res.Reason)
	}
	if len(res.EvaluationDetails) != 2 {
		t.Errorf("expected one explanation per path rule, got %v", res.EvaluationDetails)
	}

	req := baseRequest()
	req.Method = "POST"
	res = eng.Evaluate(context.Background(), rs, req)
	if res.Decision != DecisionBlocked || res.MatchedRule != CategoryPathRules {
		t.Errorf("method violation: got %s/%s", res.Decision, res.MatchedRule)
	}
	// The first rule passed before the second blocked.
	if len(res.EvaluationDetails) != 1 {
		t.Errorf("trail should hold the first rule's pass, got %v", res.EvaluationDetails)
	}
}

func TestEvaluate_ShortCircuitDoesNotChargeRateLimit(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "chain",
		IPRule:        &rules.IPRule{Mode: rules.ActionBlock, CIDRs: []string{"10.0.0.0/8"}},
		RateLimitRule: &rules.RateLimitRule{Enabled: true, Limit: 5, WindowSeconds: 60},
		HeaderRules: []rules.HeaderRule{
			{HeaderName: "X-Token", Condition: rules.HeaderExists},
		},
		DefaultAction: rules.ActionAllow,
	}

	req := baseRequest()
	req.ClientIP = "10.1.2.3"
	res := eng.Evaluate(context.Background(), rs, req)

	if res.MatchedRule != CategoryIPRules {
		t.Fatalf("expected IP block, got %s", res.MatchedRule)
	}
	if got := eng.Limiter().Occupancy("rs-1", "10.1.2.3", 60); got != 0 {
		t.Errorf("rate limiter charged %d slots on an earlier block, want 0", got)
	}
	for _, d := range res.EvaluationDetails {
		if strings.Contains(d, "Header") {
			t.Errorf("header rules must not run after an IP block: %v", res.EvaluationDetails)
		}
	}
}

func TestEvaluate_IdempotentWithoutRateLimit(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{
		ID: "rs-1", Name: "idem",
		IPRule: &rules.IPRule{Mode: rules.ActionAllow, CIDRs: []string{"8.0.0.0/8"}},
		HeaderRules: []rules.HeaderRule{
			{HeaderName: "Content-Type", Condition: rules.HeaderContains, Value: "json"},
		},
		DefaultAction: rules.ActionAllow,
	}

	req := baseRequest()
	req.Headers = map[string]string{"Content-Type": "application/json"}

	first := eng.Evaluate(context.Background(), rs, req)
	for i := 0; i < 3; i++ {
		next := eng.Evaluate(context.Background(), rs, req)
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("replay %d diverged: %+v vs %+v", i, first, next)
		}
	}
}

func TestEvaluate_SinkReceivesEveryTerminalOutcome(t *testing.T) {
	eng, sink := newTestEngine()
	rs := &rules.RuleSet{ID: "rs-1", Name: "audit", DefaultAction: rules.ActionAllow}
	blockRS := &rules.RuleSet{
		ID: "rs-2", Name: "audit-block",
		IPRule:        &rules.IPRule{Mode: rules.ActionBlock, CIDRs: []string{"0.0.0.0/0"}},
		DefaultAction: rules.ActionAllow,
	}

	eng.Evaluate(context.Background(), rs, baseRequest())
	eng.Evaluate(context.Background(), blockRS, baseRequest())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.entries) != 2 {
		t.Fatalf("sink saw %d outcomes, want 2", len(sink.entries))
	}
	if sink.entries[0].Decision != DecisionAllowed || sink.entries[1].Decision != DecisionBlocked {
		t.Errorf("sink outcomes wrong: %v, %v", sink.entries[0].Decision, sink.entries[1].Decision)
	}
}

func TestEvaluate_OwnerPropagatesToResult(t *testing.T) {
	eng, _ := newTestEngine()
	rs := &rules.RuleSet{ID: "rs-1", Name: "own", DefaultAction: rules.ActionAllow}
	req := baseRequest()
	req.Owner = "bob"
	res := eng.Evaluate(context.Background(), rs, req)
	if res.Owner != "bob" {
		t.Errorf("result owner = %q, want bob", res.Owner)
	}
}

func TestEvaluate_RateLimitWindowReplenishes(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow()
	w.now = clock.Now
	eng := New(w, nil, nopLogger())
	eng.now = clock.Now

	rs := &rules.RuleSet{
		ID: "rs-1", Name: "rl",
		RateLimitRule: &rules.RateLimitRule{Enabled: true, Limit: 1, WindowSeconds: 10},
		DefaultAction: rules.ActionAllow,
	}

	if res := eng.Evaluate(context.Background(), rs, baseRequest()); res.Decision != DecisionAllowed {
		t.Fatal("first request should pass")
	}
	if res := eng.Evaluate(context.Background(), rs, baseRequest()); res.Decision != DecisionBlocked {
		t.Fatal("second request inside window should block")
	}
	clock.Advance(11 * time.Second)
	if res := eng.Evaluate(context.Background(), rs, baseRequest()); res.Decision != DecisionAllowed {
		t.Error("request after window elapsed should pass")
	}
}
