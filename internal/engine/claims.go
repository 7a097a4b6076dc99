package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/zeropass/zeropass/internal/rules"
)

// ValidateToken checks a bearer token's claims against the JWT rule.
// The signature is deliberately NOT verified — the simulator evaluates
// policy configuration, not credentials — so parsing runs with both
// verification and built-in validation disabled, and every constraint is
// checked explicitly against the decoded claims.
func ValidateToken(token string, rule *rules.JWTRule, now time.Time) (bool, string) {
	tok, err := jwt.Parse([]byte(token), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return false, fmt.Sprintf("Invalid JWT token: %v", err)
	}

	if rule.Issuer != "" && tok.Issuer() != rule.Issuer {
		return false, fmt.Sprintf("Invalid issuer. Expected: %s", rule.Issuer)
	}

	if rule.Audience != "" && !containsString(tok.Audience(), rule.Audience) {
		return false, fmt.Sprintf("Invalid audience. Expected: %s", rule.Audience)
	}

	// Sorted claim order keeps the failure reason reproducible when more
	// than one required claim is wrong.
	names := make([]string, 0, len(rule.RequiredClaims))
	for name := range rule.RequiredClaims {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		got, ok := tok.Get(name)
		if !ok {
			return false, fmt.Sprintf("Missing required claim: %s", name)
		}
		if !claimEqual(got, rule.RequiredClaims[name]) {
			return false, fmt.Sprintf("Invalid claim value for %s", name)
		}
	}

	if exp := tok.Expiration(); !exp.IsZero() && exp.Before(now) {
		return false, "Token expired"
	}

	return true, "JWT validation passed"
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// claimEqual compares a decoded claim against the configured value.
// JSON numbers arrive as float64 on one side and may be int or json-decoded
// float on the other, so numeric values compare by magnitude.
func claimEqual(got, want any) bool {
	if got == want {
		return true
	}
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if gok && wok {
		return gf == wf
	}
	gs, gok := got.(string)
	ws, wok := want.(string)
	return gok && wok && gs == ws
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
