// Package audit records every simulation outcome: as a structured log
// entry, in the persistent log store, and in the Prometheus metrics.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zeropass/zeropass/internal/engine"
	"github.com/zeropass/zeropass/internal/rules"
)

// Entry is one recorded simulation, as stored and as returned by the
// logs API.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	RuleSetID string         `json:"rule_set_id"`
	ClientIP  string         `json:"client_ip"`
	Owner     string         `json:"owner"`
	Result    *engine.Result `json:"result"`
}

// Appender persists audit entries. The store package implements it.
type Appender interface {
	Append(ctx context.Context, owner string, e *Entry) error
}

// Recorder implements engine.Sink. Each terminal evaluation outcome is
// written to the log store, emitted as a structured log line, and counted
// in the metrics. A nil Appender or Metrics disables that output.
type Recorder struct {
	logs    Appender
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder. A nil logger is replaced with
// slog.Default().
func NewRecorder(logs Appender, metrics *Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logs: logs, metrics: metrics, logger: logger, now: time.Now}
}

// RecordEvaluation implements engine.Sink.
func (r *Recorder) RecordEvaluation(ctx context.Context, rs *rules.RuleSet, req *engine.Request, res *engine.Result) {
	entry := &Entry{
		ID:        uuid.NewString(),
		Timestamp: r.now().UTC(),
		RuleSetID: rs.ID,
		ClientIP:  req.ClientIP,
		Owner:     req.Owner,
		Result:    res,
	}

	if r.logs != nil {
		if err := r.logs.Append(ctx, req.Owner, entry); err != nil {
			r.logger.Error("failed to persist audit entry", "error", err, "rule_set", rs.ID)
		}
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "simulation",
		slog.String("entry_id", entry.ID),
		slog.Group("attributes",
			slog.String("zp.rule_set", rs.ID),
			slog.String("zp.client_ip", req.ClientIP),
			slog.String("zp.owner", req.Owner),
			slog.String("zp.decision", string(res.Decision)),
			slog.String("zp.matched_rule", res.MatchedRule),
			slog.String("zp.reason", res.Reason),
			slog.Time("zp.timestamp", entry.Timestamp),
		),
	)

	if r.metrics != nil {
		r.metrics.RecordSimulation(string(res.Decision), res.MatchedRule)
		if res.Decision == engine.DecisionBlocked {
			r.metrics.RecordBlock(res.MatchedRule)
			if res.MatchedRule == engine.CategoryRateLimit {
				r.metrics.RecordRateLimitHit("policy", rs.ID)
			}
		}
	}
}
