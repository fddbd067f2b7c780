// Package store provides typed access to plans, threads, turns, memory
// items, jobs, and shared packages. Since ent's codegen cannot run in
// this build, it is hand-written directly against database/sql and
// pgx, grounded on the teacher's own raw-SQL escape hatches
// (pkg/services/session_service.go's SearchSessions) rather than a
// generated ent client. ent/schema/*.go remains the documentation of
// record for the shape this package implements by hand.
package store

import "time"

// Plan is a named workspace owning threads.
type Plan struct {
	ID        string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Meta      map[string]any
}

// Thread is one conversation under a plan.
type Thread struct {
	ID        string
	PlanID    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Meta      map[string]any
}

// Turn is one raw ingested utterance.
type Turn struct {
	ID             string
	ThreadID       string
	Role           string
	Text           string
	Ts             time.Time
	Meta           map[string]any
	BranchID       *string
	ExternalTurnID *string
	Embedding      []float32
}

// Memory item type and status enumerations, matching the schema's
// field.Enum values.
const (
	MemoryTypeDecision      = "decision"
	MemoryTypeConstraint    = "constraint"
	MemoryTypeMistake       = "mistake"
	MemoryTypeAssumption    = "assumption"
	MemoryTypeOpenQuestion  = "open_question"

	MemoryStatusActive     = "active"
	MemoryStatusSuperseded = "superseded"
	MemoryStatusDeprecated = "deprecated"
)

// MemoryItem is a distilled knowledge unit.
type MemoryItem struct {
	ID              string
	ThreadID        string
	Type            string
	Status          string
	Title           string
	Statement       string
	Importance      float64
	Confidence      float64
	Severity        float64
	Tags            []string
	Affects         []string
	CodeRefs        []string
	EvidenceTurnIDs []string
	SupersedesID    *string
	SupersededByID  *string
	SupersedeReason *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Embedding       []float32
	Meta            map[string]any
}

// Job states.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"

	JobTypeEmbedTurn        = "embed_turn"
	JobTypeDistillTurn      = "distill_turn"
	JobTypeRetentionCleanup = "retention_cleanup"
)

// Job is a durable unit of background work.
type Job struct {
	ID        string
	Type      string
	Status    string
	Payload   map[string]any
	RunAt     time.Time
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SharedPackage is a signed, expiring export bundle.
type SharedPackage struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Payload   map[string]any
	Signature string
	Meta      map[string]any
}
