// Package rules defines the firewall rule-set model and its creation-time
// validation. A rule set is only ever stored after Validate succeeds, so the
// evaluation engine never sees an unknown mode, condition, or CIDR.
package rules

import (
	"fmt"
	"net"
	"strings"
)

// Action is a terminal decision configured on a rule set, and doubles as the
// mode of an IP rule (allow-list vs block-list).
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// Valid reports whether the action is one of the enumerated values.
func (a Action) Valid() bool {
	switch a {
	case ActionAllow, ActionBlock:
		return true
	}
	return false
}

// HeaderCondition selects how a header rule compares the header value.
type HeaderCondition string

const (
	HeaderEquals   HeaderCondition = "equals"
	HeaderContains HeaderCondition = "contains"
	HeaderRegex    HeaderCondition = "regex"
	HeaderExists   HeaderCondition = "exists"
)

// Valid reports whether the condition is one of the enumerated values.
func (c HeaderCondition) Valid() bool {
	switch c {
	case HeaderEquals, HeaderContains, HeaderRegex, HeaderExists:
		return true
	}
	return false
}

// PathCondition selects how a path rule compares the request path.
type PathCondition string

const (
	PathEquals PathCondition = "equals"
	PathPrefix PathCondition = "prefix"
	PathRegex  PathCondition = "regex"
)

// Valid reports whether the condition is one of the enumerated values.
func (c PathCondition) Valid() bool {
	switch c {
	case PathEquals, PathPrefix, PathRegex:
		return true
	}
	return false
}

// IPRule allows or blocks clients based on CIDR containment.
// Mode "block" blocks any matching address; mode "allow" blocks any
// non-matching address.
type IPRule struct {
	Mode  Action   `json:"mode" yaml:"mode"`
	CIDRs []string `json:"cidrs" yaml:"cidrs"`
}

// JWTRule inspects the claims of a bearer token. Signatures are never
// verified; the simulator evaluates policy configuration, not credentials.
type JWTRule struct {
	Enabled        bool           `json:"enabled" yaml:"enabled"`
	Issuer         string         `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Audience       string         `json:"audience,omitempty" yaml:"audience,omitempty"`
	RequiredClaims map[string]any `json:"required_claims,omitempty" yaml:"required_claims,omitempty"`
}

// OAuth2Rule requires a set of scopes to be present on the request.
type OAuth2Rule struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	RequiredScopes []string `json:"required_scopes,omitempty" yaml:"required_scopes,omitempty"`
}

// RateLimitRule caps requests per (rule set, client) inside a sliding window.
type RateLimitRule struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	Limit         int  `json:"limit" yaml:"limit"`
	WindowSeconds int  `json:"window_seconds" yaml:"window_seconds"`
}

// HeaderRule is a single header predicate. Value is unused for "exists".
type HeaderRule struct {
	HeaderName string          `json:"header_name" yaml:"header_name"`
	Condition  HeaderCondition `json:"condition" yaml:"condition"`
	Value      string          `json:"value,omitempty" yaml:"value,omitempty"`
}

// PathRule is a single method/path predicate. An empty Methods list allows
// any method.
type PathRule struct {
	Methods     []string      `json:"methods,omitempty" yaml:"methods,omitempty"`
	PathPattern string        `json:"path_pattern" yaml:"path_pattern"`
	Condition   PathCondition `json:"condition" yaml:"condition"`
}

// RuleSet is a named, owned firewall configuration. Rules are evaluated in a
// fixed order (IP, JWT, OAuth2, rate limit, headers, paths); DefaultAction
// applies when every configured rule passes.
type RuleSet struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Owner         string         `json:"owner,omitempty" yaml:"owner,omitempty"`
	IPRule        *IPRule        `json:"ip_rules,omitempty" yaml:"ip_rules,omitempty"`
	JWTRule       *JWTRule       `json:"jwt_validation,omitempty" yaml:"jwt_validation,omitempty"`
	OAuth2Rule    *OAuth2Rule    `json:"oauth2_validation,omitempty" yaml:"oauth2_validation,omitempty"`
	RateLimitRule *RateLimitRule `json:"rate_limiting,omitempty" yaml:"rate_limiting,omitempty"`
	HeaderRules   []HeaderRule   `json:"header_rules,omitempty" yaml:"header_rules,omitempty"`
	PathRules     []PathRule     `json:"path_rules,omitempty" yaml:"path_rules,omitempty"`
	DefaultAction Action         `json:"default_action" yaml:"default_action"`
}

// Validate checks the rule set for errors. It collects ALL errors rather
// than stopping at the first one, returning them as a joined message.
func (rs *RuleSet) Validate() error {
	var errs []string

	if rs.ID == "" {
		errs = append(errs, "id is required")
	}
	if rs.Name == "" {
		errs = append(errs, "name is required")
	}
	if !rs.DefaultAction.Valid() {
		errs = append(errs, fmt.Sprintf("default_action must be one of: allow, block (got %q)", rs.DefaultAction))
	}

	if rs.IPRule != nil {
		if !rs.IPRule.Mode.Valid() {
			errs = append(errs, fmt.Sprintf("ip_rules.mode must be one of: allow, block (got %q)", rs.IPRule.Mode))
		}
		for i, cidr := range rs.IPRule.CIDRs {
			if !ValidCIDR(cidr) {
				errs = append(errs, fmt.Sprintf("ip_rules.cidrs[%d]: invalid CIDR block %q", i, cidr))
			}
		}
	}

	if rs.RateLimitRule != nil {
		if rs.RateLimitRule.Limit < 1 {
			errs = append(errs, fmt.Sprintf("rate_limiting.limit must be positive (got %d)", rs.RateLimitRule.Limit))
		}
		if rs.RateLimitRule.WindowSeconds < 1 {
			errs = append(errs, fmt.Sprintf("rate_limiting.window_seconds must be positive (got %d)", rs.RateLimitRule.WindowSeconds))
		}
	}

	for i, hr := range rs.HeaderRules {
		if hr.HeaderName == "" {
			errs = append(errs, fmt.Sprintf("header_rules[%d]: header_name is required", i))
		}
		if !hr.Condition.Valid() {
			errs = append(errs, fmt.Sprintf("header_rules[%d]: condition must be one of: equals, contains, regex, exists (got %q)", i, hr.Condition))
		}
	}

	for i, pr := range rs.PathRules {
		if !pr.Condition.Valid() {
			errs = append(errs, fmt.Sprintf("path_rules[%d]: condition must be one of: equals, prefix, regex (got %q)", i, pr.Condition))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid rule set:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidCIDR reports whether s parses as a network prefix. Host bits set
// outside the mask are tolerated (non-strict parsing), and a bare IP is
// accepted as an exact-match prefix.
func ValidCIDR(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}

// Clone returns a deep copy of the rule set. Template application clones the
// embedded configuration so later edits never alias the catalog entry.
func (rs *RuleSet) Clone() *RuleSet {
	out := *rs
	if rs.IPRule != nil {
		ip := *rs.IPRule
		ip.CIDRs = append([]string(nil), rs.IPRule.CIDRs...)
		out.IPRule = &ip
	}
	if rs.JWTRule != nil {
		j := *rs.JWTRule
		if rs.JWTRule.RequiredClaims != nil {
			j.RequiredClaims = make(map[string]any, len(rs.JWTRule.RequiredClaims))
			for k, v := range rs.JWTRule.RequiredClaims {
				j.RequiredClaims[k] = v
			}
		}
		out.JWTRule = &j
	}
	if rs.OAuth2Rule != nil {
		o := *rs.OAuth2Rule
		o.RequiredScopes = append([]string(nil), rs.OAuth2Rule.RequiredScopes...)
		out.OAuth2Rule = &o
	}
	if rs.RateLimitRule != nil {
		rl := *rs.RateLimitRule
		out.RateLimitRule = &rl
	}
	out.HeaderRules = append([]HeaderRule(nil), rs.HeaderRules...)
	if rs.PathRules != nil {
		out.PathRules = make([]PathRule, len(rs.PathRules))
		for i, pr := range rs.PathRules {
			pr.Methods = append([]string(nil), pr.Methods...)
			out.PathRules[i] = pr
		}
	}
	return &out
}
