// Package catalog holds the canned rule templates and exploit test
// scenarios. The catalog ships with built-in entries and can be extended
// from a YAML file; file entries are refreshed on config reload.
package catalog

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zeropass/zeropass/internal/engine"
	"github.com/zeropass/zeropass/internal/rules"
)

// Template is a reusable rule configuration a caller can clone into a
// rule set of their own.
type Template struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string        `json:"category" yaml:"category"`
	Owner       string        `json:"owner,omitempty" yaml:"owner,omitempty"`
	Public      bool          `json:"public" yaml:"public"`
	Rules       rules.RuleSet `json:"rules" yaml:"rules"`
}

// ScenarioRequest is one synthetic request in a scenario, with the
// decision its author expects.
type ScenarioRequest struct {
	Name        string            `json:"name" yaml:"name"`
	ClientIP    string            `json:"client_ip" yaml:"client_ip"`
	Method      string            `json:"method" yaml:"method"`
	Path        string            `json:"path" yaml:"path"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	JWTToken    string            `json:"jwt_token,omitempty" yaml:"jwt_token,omitempty"`
	OAuthScopes []string          `json:"oauth_scopes,omitempty" yaml:"oauth_scopes,omitempty"`
	Expected    engine.Decision   `json:"expected" yaml:"expected"`
}

// Scenario is a fixed ordered batch of synthetic requests replayed
// against a rule set to probe its behavior.
type Scenario struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string            `json:"category" yaml:"category"`
	Owner       string            `json:"owner,omitempty" yaml:"owner,omitempty"`
	Public      bool              `json:"public" yaml:"public"`
	Requests    []ScenarioRequest `json:"requests" yaml:"requests"`
}

// Catalog serves templates and scenarios with public-or-owned visibility.
// Built-in entries are fixed at construction; file entries are swapped
// wholesale on each load. Safe for concurrent use.
type Catalog struct {
	mu            sync.RWMutex
	templates     map[string]*Template
	scenarios     map[string]*Scenario
	fileTemplates map[string]*Template
	fileScenarios map[string]*Scenario
}

// New creates a Catalog populated with the built-in entries.
func New() *Catalog {
	c := &Catalog{
		templates:     make(map[string]*Template),
		scenarios:     make(map[string]*Scenario),
		fileTemplates: make(map[string]*Template),
		fileScenarios: make(map[string]*Scenario),
	}
	for _, t := range builtinTemplates() {
		c.templates[t.ID] = t
	}
	for _, s := range builtinScenarios() {
		c.scenarios[s.ID] = s
	}
	return c
}

func (t *Template) visibleTo(owner string) bool {
	return t.Public || t.Owner == owner
}

func (s *Scenario) visibleTo(owner string) bool {
	return s.Public || s.Owner == owner
}

// VisibleTemplates returns the templates owner may see, optionally
// filtered by category.
func (c *Catalog) VisibleTemplates(owner, category string) []*Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []*Template{}
	for _, set := range []map[string]*Template{c.templates, c.fileTemplates} {
		for _, t := range set {
			if !t.visibleTo(owner) {
				continue
			}
			if category != "" && t.Category != category {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// GetTemplate returns the template if it exists and is visible to owner.
func (c *Catalog) GetTemplate(owner, id string) (*Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	if !ok {
		t, ok = c.fileTemplates[id]
	}
	if !ok || !t.visibleTo(owner) {
		return nil, false
	}
	return t, true
}

// VisibleScenarios returns the scenarios owner may see, optionally
// filtered by category.
func (c *Catalog) VisibleScenarios(owner, category string) []*Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []*Scenario{}
	for _, set := range []map[string]*Scenario{c.scenarios, c.fileScenarios} {
		for _, s := range set {
			if !s.visibleTo(owner) {
				continue
			}
			if category != "" && s.Category != category {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

// GetScenario returns the scenario if it exists and is visible to owner.
func (c *Catalog) GetScenario(owner, id string) (*Scenario, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scenarios[id]
	if !ok {
		s, ok = c.fileScenarios[id]
	}
	if !ok || !s.visibleTo(owner) {
		return nil, false
	}
	return s, true
}

// Apply clones a template's rule configuration into a new rule set owned
// by owner. A non-empty name overrides the template's default.
func Apply(t *Template, owner, name string) *rules.RuleSet {
	rs := t.Rules.Clone()
	rs.ID = uuid.NewString()
	rs.Owner = owner
	if name != "" {
		rs.Name = name
	} else if rs.Name == "" {
		rs.Name = fmt.Sprintf("%s (from template)", t.Name)
	}
	return rs
}
