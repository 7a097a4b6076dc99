package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zeropass/zeropass/internal/rules"
)

// MatchHeader evaluates a single header rule against the request headers.
// Header names are looked up exactly as configured; the transport layer is
// responsible for normalizing names before the engine sees them. A
// malformed regex pattern degrades to a failing match with a descriptive
// reason rather than an error.
func MatchHeader(headers map[string]string, rule rules.HeaderRule) (bool, string) {
	value, present := headers[rule.HeaderName]

	if rule.Condition == rules.HeaderExists {
		if !present {
			return false, fmt.Sprintf("Header %s does not exist", rule.HeaderName)
		}
		return true, fmt.Sprintf("Header %s exists", rule.HeaderName)
	}

	if !present {
		return false, fmt.Sprintf("Header %s not found", rule.HeaderName)
	}

	switch rule.Condition {
	case rules.HeaderEquals:
		if value == rule.Value {
			return true, fmt.Sprintf("Header %s equals %s", rule.HeaderName, rule.Value)
		}
		return false, fmt.Sprintf("Header %s does not equal %s", rule.HeaderName, rule.Value)
	case rules.HeaderContains:
		if rule.Value != "" && strings.Contains(value, rule.Value) {
			return true, fmt.Sprintf("Header %s contains %s", rule.HeaderName, rule.Value)
		}
		return false, fmt.Sprintf("Header %s does not contain %s", rule.HeaderName, rule.Value)
	case rules.HeaderRegex:
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return false, fmt.Sprintf("Invalid regex pattern: %s", rule.Value)
		}
		if rule.Value != "" && re.MatchString(value) {
			return true, fmt.Sprintf("Header %s matches regex %s", rule.HeaderName, rule.Value)
		}
		return false, fmt.Sprintf("Header %s does not match regex %s", rule.HeaderName, rule.Value)
	default:
		// Unreachable for validated rule sets; fail explicitly rather
		// than fall through to a silent pass.
		return false, fmt.Sprintf("Unknown header condition: %s", rule.Condition)
	}
}

// MatchPath evaluates a single path rule against the request method and
// path. Method membership is case-insensitive.
func MatchPath(method, path string, rule rules.PathRule) (bool, string) {
	if len(rule.Methods) > 0 && !containsMethod(rule.Methods, method) {
		return false, fmt.Sprintf("Method %s not in allowed methods: %v", method, rule.Methods)
	}

	switch rule.Condition {
	case rules.PathEquals:
		if path == rule.PathPattern {
			return true, fmt.Sprintf("Path %s equals %s", path, rule.PathPattern)
		}
		return false, fmt.Sprintf("Path %s does not equal %s", path, rule.PathPattern)
	case rules.PathPrefix:
		if strings.HasPrefix(path, rule.PathPattern) {
			return true, fmt.Sprintf("Path %s starts with %s", path, rule.PathPattern)
		}
		return false, fmt.Sprintf("Path %s does not start with %s", path, rule.PathPattern)
	case rules.PathRegex:
		re, err := regexp.Compile(rule.PathPattern)
		if err != nil {
			return false, fmt.Sprintf("Invalid regex pattern: %s", rule.PathPattern)
		}
		if re.MatchString(path) {
			return true, fmt.Sprintf("Path %s matches regex %s", path, rule.PathPattern)
		}
		return false, fmt.Sprintf("Path %s does not match regex %s", path, rule.PathPattern)
	default:
		return false, fmt.Sprintf("Unknown path condition: %s", rule.Condition)
	}
}

func containsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
