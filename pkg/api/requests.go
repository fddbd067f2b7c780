package api

import "time"

// ToolRequest is the single-endpoint envelope every tool call arrives
// in: {"tool": "plan.create", "arguments": {...}}.
type ToolRequest struct {
	Tool      string         `json:"tool" binding:"required"`
	Arguments map[string]any `json:"arguments"`
}

type threadCreateArgs struct {
	PlanID string         `json:"plan_id" binding:"required"`
	Meta   map[string]any `json:"meta"`
}

type turnIngestArgs struct {
	ThreadID       string         `json:"thread_id" binding:"required"`
	Role           string         `json:"role" binding:"required"`
	Text           string         `json:"text" binding:"required"`
	Ts             *time.Time     `json:"ts"`
	Meta           map[string]any `json:"meta"`
	BranchID       *string        `json:"branch_id"`
	ExternalTurnID *string        `json:"external_turn_id"`
	EmbedNow       bool           `json:"embed_now"`
}

type planCreateArgs struct {
	Name string         `json:"name" binding:"required"`
	Meta map[string]any `json:"meta"`
}

type planListArgs struct {
	IncludeArchived bool `json:"include_archived"`
}

type planGetArgs struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type planRenameArgs struct {
	PlanID string `json:"plan_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

type planArchiveArgs struct {
	PlanID   string `json:"plan_id" binding:"required"`
	Archived bool   `json:"archived"`
}

type planTouchArgs struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type distillExtractArgs struct {
	ThreadID           string `json:"thread_id" binding:"required"`
	TurnID             string `json:"turn_id" binding:"required"`
	IncludeRecentTurns int    `json:"include_recent_turns"`
	WriteToMemory      bool   `json:"write_to_memory"`
}

type retrieveDecisionStateArgs struct {
	ThreadID string `json:"thread_id" binding:"required"`
}

type retrieveContextArgs struct {
	ThreadID    string  `json:"thread_id" binding:"required"`
	Query       string  `json:"query" binding:"required"`
	Mode        string  `json:"mode"`
	Scope       string  `json:"scope"`
	TopK        int     `json:"top_k"`
	TokenBudget int     `json:"token_budget"`
	RecencyBias float64 `json:"recency_bias"`
	Explain     bool    `json:"explain"`
}

type auditCheckArgs struct {
	ThreadID         string `json:"thread_id" binding:"required"`
	ProposedPlanText string `json:"proposed_plan_text" binding:"required"`
	Deep             bool   `json:"deep"`
}

type memoryItemArgs struct {
	ThreadID        string   `json:"thread_id"`
	Type            string   `json:"type" binding:"required"`
	Title           string   `json:"title" binding:"required"`
	Statement       string   `json:"statement" binding:"required"`
	Importance      float64  `json:"importance"`
	Confidence      float64  `json:"confidence"`
	Severity        float64  `json:"severity"`
	Tags            []string `json:"tags"`
	Affects         []string `json:"affects"`
	CodeRefs        []string `json:"code_refs"`
	EvidenceTurnIDs []string `json:"evidence_turn_ids"`
}

type memoryDeprecateArgs struct {
	ItemID string `json:"item_id" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

type memorySupersedeArgs struct {
	OldItemID string         `json:"old_item_id" binding:"required"`
	NewItem   memoryItemArgs `json:"new_item" binding:"required"`
	Reason    string         `json:"reason" binding:"required"`
}

type scoreOverrideArgs struct {
	ItemID     string   `json:"item_id" binding:"required"`
	Importance *float64 `json:"importance"`
	Confidence *float64 `json:"confidence"`
	Severity   *float64 `json:"severity"`
	Reason     string   `json:"reason" binding:"required"`
}

type sharedExportArgs struct {
	ThreadID         string   `json:"thread_id" binding:"required"`
	Types            []string `json:"types"`
	IncludeMistakes  bool     `json:"include_mistakes"`
	ExpiresInMinutes int      `json:"expires_in_minutes"`
}

type sharedImportArgs struct {
	Payload   map[string]any `json:"payload" binding:"required"`
	Signature string         `json:"signature" binding:"required"`
}
