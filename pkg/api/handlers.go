package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memhub/memoryd/pkg/memory"
	"github.com/memhub/memoryd/pkg/metrics"
	"github.com/memhub/memoryd/pkg/retrieval"
)

// toolHandler is the single POST / entry point: decode the envelope,
// decode its arguments into the tool's own request struct, dispatch,
// and record per-tool call count and latency.
func (s *Server) toolHandler(c *gin.Context) {
	var req ToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	handler, ok := s.dispatch[req.Tool]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool " + req.Tool})
		return
	}

	metrics.ToolCallCount.WithLabelValues(req.Tool).Inc()
	start := time.Now()
	handler(c, req.Arguments)
	metrics.ToolLatencySeconds.WithLabelValues(req.Tool).Observe(time.Since(start).Seconds())
}

// decodeArgs re-encodes a tool call's loosely-typed arguments map into
// its specific request struct via a JSON round trip, reusing the same
// `json` tags gin already binds the outer envelope with.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Server) buildDispatch() map[string]func(c *gin.Context, args map[string]any) {
	return map[string]func(c *gin.Context, args map[string]any){
		"thread.create":            s.handleThreadCreate,
		"turn.ingest":              s.handleTurnIngest,
		"plan.create":              s.handlePlanCreate,
		"plan.list":                s.handlePlanList,
		"plan.get":                 s.handlePlanGet,
		"plan.rename":              s.handlePlanRename,
		"plan.archive":             s.handlePlanArchive,
		"plan.touch":               s.handlePlanTouch,
		"distill.extract":          s.handleDistillExtract,
		"retrieve.decision_state":  s.handleRetrieveDecisionState,
		"retrieve.context":         s.handleRetrieveContext,
		"audit.check_consistency":  s.handleAuditCheck,
		"memory.deprecate":         s.handleMemoryDeprecate,
		"memory.supersede":         s.handleMemorySupersede,
		"score.override":           s.handleScoreOverride,
		"shared.export":            s.handleSharedExport,
		"shared.import":            s.handleSharedImport,
	}
}

func (s *Server) handleThreadCreate(c *gin.Context, rawArgs map[string]any) {
	var args threadCreateArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	thread, err := s.turns.CreateThread(c.Request.Context(), args.PlanID, args.Meta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": thread.ID})
}

func (s *Server) handleTurnIngest(c *gin.Context, rawArgs map[string]any) {
	var args turnIngestArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ts := time.Now().UTC()
	if args.Ts != nil {
		ts = *args.Ts
	}
	turn, err := s.turns.IngestTurn(c.Request.Context(), args.ThreadID, args.Role, args.Text, ts, args.Meta, args.BranchID, args.ExternalTurnID, args.EmbedNow)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"turn_id": turn.ID})
}

func (s *Server) handlePlanCreate(c *gin.Context, rawArgs map[string]any) {
	var args planCreateArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.plans.Create(c.Request.Context(), args.Name, args.Meta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan_id": plan.ID})
}

func (s *Server) handlePlanList(c *gin.Context, rawArgs map[string]any) {
	var args planListArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list, err := s.plans.List(c.Request.Context(), args.IncludeArchived)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, p := range list {
		out = append(out, planToMap(p))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func (s *Server) handlePlanGet(c *gin.Context, rawArgs map[string]any) {
	var args planGetArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.plans.Get(c.Request.Context(), args.PlanID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := planToMap(plan)
	resp["meta"] = plan.Meta
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePlanRename(c *gin.Context, rawArgs map[string]any) {
	var args planRenameArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.plans.Rename(c.Request.Context(), args.PlanID, args.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": plan.ID, "name": plan.Name})
}

func (s *Server) handlePlanArchive(c *gin.Context, rawArgs map[string]any) {
	var args planArchiveArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.plans.Archive(c.Request.Context(), args.PlanID, args.Archived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": plan.ID, "status": plan.Status})
}

func (s *Server) handlePlanTouch(c *gin.Context, rawArgs map[string]any) {
	var args planTouchArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.plans.Touch(c.Request.Context(), args.PlanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": plan.ID, "updated_at": plan.UpdatedAt})
}

func (s *Server) handleDistillExtract(c *gin.Context, rawArgs map[string]any) {
	var args distillExtractArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	includeRecent := args.IncludeRecentTurns
	if includeRecent <= 0 {
		includeRecent = 4
	}
	counters, extraction, err := s.distill.DistillExtract(c.Request.Context(), args.ThreadID, args.TurnID, includeRecent, args.WriteToMemory)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"inserted":   counters.Inserted,
		"deduped":    counters.Deduped,
		"superseded": counters.Superseded,
		"extracted":  extraction,
	})
}

func (s *Server) handleRetrieveDecisionState(c *gin.Context, rawArgs map[string]any) {
	var args retrieveDecisionStateArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.decisionState.DecisionState(c.Request.Context(), args.ThreadID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decisions":           memoryItemsToMaps(result.Decisions),
		"constraints":         memoryItemsToMaps(result.Constraints),
		"avoid_list_mistakes": memoryItemsToMaps(result.AvoidListMistakes),
		"assumptions":         memoryItemsToMaps(result.Assumptions),
		"open_questions":      memoryItemsToMaps(result.OpenQuestions),
	})
}

func (s *Server) handleRetrieveContext(c *gin.Context, rawArgs map[string]any) {
	var args retrieveContextArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode := retrieval.ModeFast
	if args.Mode == string(retrieval.ModeDeep) {
		mode = retrieval.ModeDeep
	}
	scope := retrieval.ScopeDistilledOnly
	switch args.Scope {
	case string(retrieval.ScopeRawOnly):
		scope = retrieval.ScopeRawOnly
	case string(retrieval.ScopeHybrid):
		scope = retrieval.ScopeHybrid
	}
	req := retrieval.Request{
		ThreadID:    args.ThreadID,
		Query:       args.Query,
		Mode:        mode,
		Scope:       scope,
		TopK:        args.TopK,
		TokenBudget: args.TokenBudget,
		RecencyBias: args.RecencyBias,
		Explain:     args.Explain,
	}
	result, err := s.retrieval.RetrieveContext(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	chunks := make([]map[string]any, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		entry := map[string]any{
			"source": chunk.Kind,
			"text":   chunk.Text,
			"score":  chunk.FusedScore,
		}
		if chunk.ID != "" {
			entry["item_id"] = chunk.ID
		}
		if chunk.ScoreDetail != nil {
			entry["score_detail"] = chunk.ScoreDetail
		}
		chunks = append(chunks, entry)
	}
	c.JSON(http.StatusOK, gin.H{
		"chunks":           chunks,
		"est_tokens":       result.EstTokens,
		"low_confidence":   result.LowConfidence,
		"debug_scores":     result.DebugScores,
		"stale_references": result.StaleReferences,
	})
}

func (s *Server) handleAuditCheck(c *gin.Context, rawArgs map[string]any) {
	var args auditCheckArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.audit.AuditConsistency(c.Request.Context(), args.ThreadID, args.ProposedPlanText, args.Deep)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"violations":          result.Violations,
		"stale_references":    result.StaleReferences,
		"missing_constraints": result.MissingConstraints,
		"fixes":               result.Fixes,
	})
}

func (s *Server) handleMemoryDeprecate(c *gin.Context, rawArgs map[string]any) {
	var args memoryDeprecateArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := s.memory.Deprecate(c.Request.Context(), args.ItemID, args.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": item.ID, "status": item.Status})
}

func (s *Server) handleMemorySupersede(c *gin.Context, rawArgs map[string]any) {
	var args memorySupersedeArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload := memory.Payload{
		Title:      args.NewItem.Title,
		Statement:  args.NewItem.Statement,
		Importance: args.NewItem.Importance,
		Confidence: args.NewItem.Confidence,
		Severity:   args.NewItem.Severity,
		Tags:       args.NewItem.Tags,
		Affects:    args.NewItem.Affects,
		CodeRefs:   args.NewItem.CodeRefs,
	}
	item, err := s.memory.Supersede(c.Request.Context(), args.OldItemID, payload, args.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": item.ID, "status": item.Status})
}

func (s *Server) handleScoreOverride(c *gin.Context, rawArgs map[string]any) {
	var args scoreOverrideArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := s.memory.OverrideScores(c.Request.Context(), args.ItemID, args.Importance, args.Confidence, args.Severity, args.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": item.ID, "status": item.Status})
}

func (s *Server) handleSharedExport(c *gin.Context, rawArgs map[string]any) {
	var args sharedExportArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	types := args.Types
	if len(types) == 0 {
		types = []string{"decision", "constraint"}
	}
	var expiresAt *time.Time
	if args.ExpiresInMinutes > 0 {
		t := time.Now().Add(time.Duration(args.ExpiresInMinutes) * time.Minute)
		expiresAt = &t
	}
	result, err := s.shared.Export(c.Request.Context(), args.ThreadID, types, args.IncludeMistakes, expiresAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"package_id": result.PackageID,
		"payload":    result.Payload,
		"signature":  result.Signature,
	})
}

func (s *Server) handleSharedImport(c *gin.Context, rawArgs map[string]any) {
	var args sharedImportArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.shared.Import(c.Request.Context(), args.Payload, args.Signature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": result.ThreadID, "inserted": result.Inserted})
}
