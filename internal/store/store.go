// Package store persists rule sets and simulation logs, keyed by owner.
// Two backends exist: an in-memory store for development and tests, and a
// Redis store for deployments that need persistence across restarts.
package store

import (
	"context"
	"errors"

	"github.com/zeropass/zeropass/internal/audit"
	"github.com/zeropass/zeropass/internal/rules"
)

// ErrNotFound is returned when a rule set does not exist for the given
// owner. Callers must not distinguish "never existed" from "owned by
// someone else".
var ErrNotFound = errors.New("rule set not found")

// RuleSets stores firewall rule sets scoped to their owner.
type RuleSets interface {
	// Put stores or replaces a rule set under its owner.
	Put(ctx context.Context, rs *rules.RuleSet) error
	// Get returns the rule set with the given id if it belongs to owner,
	// ErrNotFound otherwise.
	Get(ctx context.Context, owner, id string) (*rules.RuleSet, error)
	// ListByOwner returns all rule sets belonging to owner.
	ListByOwner(ctx context.Context, owner string) ([]*rules.RuleSet, error)
	// Delete removes a rule set; ErrNotFound if it is not owner's.
	Delete(ctx context.Context, owner, id string) error
	// Count returns the total number of stored rule sets across owners.
	Count(ctx context.Context) (int, error)
}

// Logs stores simulation audit entries scoped to their owner.
type Logs interface {
	// Append adds an entry to owner's log.
	Append(ctx context.Context, owner string, e *audit.Entry) error
	// ListByOwner returns up to limit of owner's most recent entries,
	// oldest first.
	ListByOwner(ctx context.Context, owner string, limit int) ([]*audit.Entry, error)
	// Clear removes all of owner's entries.
	Clear(ctx context.Context, owner string) error
	// Count returns the total number of stored entries across owners.
	Count(ctx context.Context) (int, error)
}
