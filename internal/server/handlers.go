package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zeropass/zeropass/internal/audit"
	"github.com/zeropass/zeropass/internal/catalog"
	"github.com/zeropass/zeropass/internal/engine"
	"github.com/zeropass/zeropass/internal/httperr"
	"github.com/zeropass/zeropass/internal/rules"
	"github.com/zeropass/zeropass/internal/store"
)

const defaultLogLimit = 100

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "ZeroPass Firewall Simulator API",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ruleSets, err := s.ruleSets.Count(r.Context())
	if err != nil {
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	logs, err := s.logs.Count(r.Context())
	if err != nil {
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"rule_sets_count": ruleSets,
		"logs_count":      logs,
	})
}

func (s *Server) handleCreateRuleSet(w http.ResponseWriter, r *http.Request) {
	var rs rules.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		httperr.Write(w, httperr.ErrInvalidBody)
		return
	}
	rs.Owner = ownerFrom(r.Context())

	if err := rs.Validate(); err != nil {
		httperr.Write(w, httperr.BadRequest(err.Error()))
		return
	}

	if err := s.ruleSets.Put(r.Context(), &rs); err != nil {
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	s.refreshRuleSetGauge(r)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "success",
		"rule_set_id": rs.ID,
	})
}

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	list, err := s.ruleSets.ListByOwner(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	if list == nil {
		list = []*rules.RuleSet{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := s.ruleSets.Get(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperr.Write(w, httperr.ErrRuleSetNotFound)
			return
		}
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleDeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ruleSets.Delete(r.Context(), ownerFrom(r.Context()), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperr.Write(w, httperr.ErrRuleSetNotFound)
			return
		}
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}

	// Replacement-only lifecycle: no stale rate-limit windows survive a
	// delete, so a re-created rule set starts from a clean slate.
	s.limiter.Reset(id)
	s.refreshRuleSetGauge(r)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Rule set %s deleted", id),
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, httperr.ErrInvalidBody)
		return
	}
	owner := ownerFrom(r.Context())
	req.Owner = owner

	rs, err := s.ruleSets.Get(r.Context(), owner, req.RuleSetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperr.Write(w, httperr.ErrRuleSetNotFound)
			return
		}
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}

	start := time.Now()
	res := s.engine.Evaluate(r.Context(), rs, &req)
	s.metrics.RecordSimulationLatency(string(res.Decision), float64(time.Since(start).Microseconds())/1000)

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httperr.Write(w, httperr.BadRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := s.logs.ListByOwner(r.Context(), ownerFrom(r.Context()), limit)
	if err != nil {
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.logs.Clear(r.Context(), ownerFrom(r.Context())); err != nil {
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Evaluation logs cleared",
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := s.catalog.VisibleTemplates(ownerFrom(r.Context()), r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, ok := s.catalog.GetTemplate(ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if !ok {
		httperr.Write(w, httperr.ErrTemplateNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	tpl, ok := s.catalog.GetTemplate(owner, chi.URLParam(r, "id"))
	if !ok {
		httperr.Write(w, httperr.ErrTemplateNotFound)
		return
	}

	rs := catalog.Apply(tpl, owner, r.URL.Query().Get("rule_set_name"))
	if err := rs.Validate(); err != nil {
		httperr.Write(w, httperr.BadRequest(err.Error()))
		return
	}
	if err := s.ruleSets.Put(r.Context(), rs); err != nil {
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}
	s.refreshRuleSetGauge(r)

	writeJSON(w, http.StatusCreated, rs)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := s.catalog.VisibleScenarios(ownerFrom(r.Context()), r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.catalog.GetScenario(ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if !ok {
		httperr.Write(w, httperr.ErrScenarioNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleTestScenario(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	sc, ok := s.catalog.GetScenario(owner, chi.URLParam(r, "id"))
	if !ok {
		httperr.Write(w, httperr.ErrScenarioNotFound)
		return
	}

	ruleSetID := r.URL.Query().Get("rule_set_id")
	if ruleSetID == "" {
		httperr.Write(w, httperr.BadRequest("rule_set_id query parameter is required"))
		return
	}

	rs, err := s.ruleSets.Get(r.Context(), owner, ruleSetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperr.Write(w, httperr.ErrRuleSetNotFound)
			return
		}
		httperr.Write(w, httperr.Internal(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, catalog.RunScenario(sc, rs, time.Now()))
}

// refreshRuleSetGauge keeps the rule-set gauge in sync after writes. Count
// failures only cost gauge accuracy, not the request.
func (s *Server) refreshRuleSetGauge(r *http.Request) {
	if n, err := s.ruleSets.Count(r.Context()); err == nil {
		s.metrics.SetRuleSetCount(n)
	}
}
