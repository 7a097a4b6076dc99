package catalog

import (
	"github.com/zeropass/zeropass/internal/engine"
	"github.com/zeropass/zeropass/internal/rules"
)

// Catalog categories.
const (
	CategoryIPFiltering    = "ip_filtering"
	CategoryAuthentication = "authentication"
	CategoryRateLimiting   = "rate_limiting"
)

func builtinTemplates() []*Template {
	return []*Template{
		{
			ID:          "tpl-block-private-ranges",
			Name:        "Block private IP ranges",
			Description: "Blocks requests originating from RFC 1918 private address space.",
			Category:    CategoryIPFiltering,
			Public:      true,
			Rules: rules.RuleSet{
				Name: "Block private IP ranges",
				IPRule: &rules.IPRule{
					Mode:  rules.ActionBlock,
					CIDRs: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
				},
				DefaultAction: rules.ActionAllow,
			},
		},
		{
			ID:          "tpl-internal-only",
			Name:        "Internal network only",
			Description: "Allows only the internal 192.168.0.0/16 network; everything else is blocked.",
			Category:    CategoryIPFiltering,
			Public:      true,
			Rules: rules.RuleSet{
				Name: "Internal network only",
				IPRule: &rules.IPRule{
					Mode:  rules.ActionAllow,
					CIDRs: []string{"192.168.0.0/16"},
				},
				DefaultAction: rules.ActionAllow,
			},
		},
		{
			ID:          "tpl-admin-jwt",
			Name:        "Admin JWT required",
			Description: "Requires a JWT carrying role=admin on every request.",
			Category:    CategoryAuthentication,
			Public:      true,
			Rules: rules.RuleSet{
				Name: "Admin JWT required",
				JWTRule: &rules.JWTRule{
					Enabled:        true,
					RequiredClaims: map[string]any{"role": "admin"},
				},
				DefaultAction: rules.ActionAllow,
			},
		},
		{
			ID:          "tpl-oauth-readwrite",
			Name:        "OAuth2 read/write scopes",
			Description: "Requires both the read and write OAuth2 scopes.",
			Category:    CategoryAuthentication,
			Public:      true,
			Rules: rules.RuleSet{
				Name: "OAuth2 read/write scopes",
				OAuth2Rule: &rules.OAuth2Rule{
					Enabled:        true,
					RequiredScopes: []string{"read", "write"},
				},
				DefaultAction: rules.ActionAllow,
			},
		},
		{
			ID:          "tpl-basic-rate-limit",
			Name:        "Basic rate limit",
			Description: "Caps each client at 100 requests per minute.",
			Category:    CategoryRateLimiting,
			Public:      true,
			Rules: rules.RuleSet{
				Name: "Basic rate limit",
				RateLimitRule: &rules.RateLimitRule{
					Enabled:       true,
					Limit:         100,
					WindowSeconds: 60,
				},
				DefaultAction: rules.ActionAllow,
			},
		},
		{
			ID:          "tpl-strict-api",
			Name:        "Strict API policy",
			Description: "JSON-only API under /api with a tight rate limit.",
			Category:    CategoryRateLimiting,
			Public:      true,
			Rules: rules.RuleSet{
				Name: "Strict API policy",
				RateLimitRule: &rules.RateLimitRule{
					Enabled:       true,
					Limit:         10,
					WindowSeconds: 60,
				},
				HeaderRules: []rules.HeaderRule{
					{HeaderName: "Content-Type", Condition: rules.HeaderEquals, Value: "application/json"},
				},
				PathRules: []rules.PathRule{
					{PathPattern: "/api/", Condition: rules.PathPrefix},
				},
				DefaultAction: rules.ActionAllow,
			},
		},
	}
}

func builtinScenarios() []*Scenario {
	return []*Scenario{
		{
			ID:          "scn-blocked-ip-probe",
			Name:        "Blocked IP probe",
			Description: "Requests from inside and outside a blocked range.",
			Category:    CategoryIPFiltering,
			Public:      true,
			Requests: []ScenarioRequest{
				{
					Name:     "private address",
					ClientIP: "10.1.2.3",
					Method:   "GET",
					Path:     "/api/data",
					Expected: engine.DecisionBlocked,
				},
				{
					Name:     "public address",
					ClientIP: "8.8.8.8",
					Method:   "GET",
					Path:     "/api/data",
					Expected: engine.DecisionAllowed,
				},
			},
		},
		{
			ID:          "scn-missing-token",
			Name:        "Missing token",
			Description: "Requests with and without a bearer token against a JWT-protected policy.",
			Category:    CategoryAuthentication,
			Public:      true,
			Requests: []ScenarioRequest{
				{
					Name:     "no token",
					ClientIP: "8.8.8.8",
					Method:   "GET",
					Path:     "/api/data",
					Expected: engine.DecisionBlocked,
				},
				{
					Name:     "any token",
					ClientIP: "8.8.8.8",
					Method:   "GET",
					Path:     "/api/data",
					JWTToken: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJ0ZXN0In0.sig",
					Expected: engine.DecisionAllowed,
				},
			},
		},
		{
			ID:          "scn-spoofed-sources",
			Name:        "Spoofed source addresses",
			Description: "A sweep of source addresses that should all be rejected by an allow-list policy.",
			Category:    CategoryIPFiltering,
			Public:      true,
			Requests: []ScenarioRequest{
				{Name: "loopback", ClientIP: "127.0.0.1", Method: "GET", Path: "/", Expected: engine.DecisionBlocked},
				{Name: "link local", ClientIP: "169.254.0.1", Method: "GET", Path: "/", Expected: engine.DecisionBlocked},
				{Name: "multicast", ClientIP: "224.0.0.1", Method: "GET", Path: "/", Expected: engine.DecisionBlocked},
				{Name: "internal", ClientIP: "192.168.1.10", Method: "GET", Path: "/", Expected: engine.DecisionAllowed},
			},
		},
	}
}
