package catalog

import (
	"testing"
)

func TestBuiltinVisibility(t *testing.T) {
	c := New()

	all := c.VisibleTemplates("anonymous_user", "")
	if len(all) == 0 {
		t.Fatal("built-in templates must be visible to everyone")
	}
	for _, tpl := range all {
		if !tpl.Public {
			t.Errorf("built-in template %s is not public", tpl.ID)
		}
	}

	scns := c.VisibleScenarios("anonymous_user", "")
	if len(scns) == 0 {
		t.Fatal("built-in scenarios must be visible to everyone")
	}
}

func TestCategoryFilter(t *testing.T) {
	c := New()

	auth := c.VisibleTemplates("alice", CategoryAuthentication)
	if len(auth) == 0 {
		t.Fatal("no authentication templates")
	}
	for _, tpl := range auth {
		if tpl.Category != CategoryAuthentication {
			t.Errorf("template %s has category %q", tpl.ID, tpl.Category)
		}
	}

	if got := c.VisibleTemplates("alice", "no_such_category"); len(got) != 0 {
		t.Errorf("unknown category returned %d templates", len(got))
	}
}

func TestOwnedEntryHiddenFromOthers(t *testing.T) {
	c := New()
	c.fileTemplates["tpl-private"] = &Template{
		ID: "tpl-private", Name: "private", Category: CategoryIPFiltering,
		Owner: "alice", Public: false,
	}
	c.fileScenarios["scn-private"] = &Scenario{
		ID: "scn-private", Name: "private", Category: CategoryIPFiltering,
		Owner: "alice", Public: false,
	}

	if _, ok := c.GetTemplate("alice", "tpl-private"); !ok {
		t.Error("owner cannot see their own template")
	}
	if _, ok := c.GetTemplate("bob", "tpl-private"); ok {
		t.Error("private template leaked to another owner")
	}
	if _, ok := c.GetScenario("bob", "scn-private"); ok {
		t.Error("private scenario leaked to another owner")
	}

	for _, tpl := range c.VisibleTemplates("bob", "") {
		if tpl.ID == "tpl-private" {
			t.Error("private template appears in another owner's list")
		}
	}
}

func TestGetTemplateMissing(t *testing.T) {
	c := New()
	if _, ok := c.GetTemplate("alice", "no-such-template"); ok {
		t.Error("missing template reported as found")
	}
	if _, ok := c.GetScenario("alice", "no-such-scenario"); ok {
		t.Error("missing scenario reported as found")
	}
}

func TestApply(t *testing.T) {
	c := New()
	tpl, ok := c.GetTemplate("alice", "tpl-block-private-ranges")
	if !ok {
		t.Fatal("built-in template missing")
	}

	rs := Apply(tpl, "alice", "my policy")
	if rs.ID == "" {
		t.Error("applied rule set must get a fresh id")
	}
	if rs.Owner != "alice" {
		t.Errorf("owner = %q", rs.Owner)
	}
	if rs.Name != "my policy" {
		t.Errorf("name = %q", rs.Name)
	}
	if rs.IPRule == nil || len(rs.IPRule.CIDRs) != 3 {
		t.Errorf("rule configuration not cloned: %+v", rs.IPRule)
	}
	if err := rs.Validate(); err != nil {
		t.Errorf("applied rule set invalid: %v", err)
	}

	// Mutating the applied copy must not touch the template.
	rs.IPRule.CIDRs[0] = "0.0.0.0/0"
	if tpl.Rules.IPRule.CIDRs[0] != "10.0.0.0/8" {
		t.Error("Apply shares state with the template")
	}

	// Distinct ids per application.
	rs2 := Apply(tpl, "alice", "")
	if rs2.ID == rs.ID {
		t.Error("two applications produced the same id")
	}
	if rs2.Name == "" {
		t.Error("name default not applied")
	}
}

func TestBuiltinTemplatesAreValid(t *testing.T) {
	for _, tpl := range builtinTemplates() {
		rs := Apply(tpl, "anyone", "")
		if err := rs.Validate(); err != nil {
			t.Errorf("built-in template %s produces an invalid rule set: %v", tpl.ID, err)
		}
	}
}
