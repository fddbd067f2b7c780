// Package shared implements signed export/import of distilled memory
// bundles between threads (and potentially processes), grounded on
// original_source/memory_mcp/services/shared.py.
package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/memhub/memoryd/pkg/apperr"
	"github.com/memhub/memoryd/pkg/hmacsign"
	"github.com/memhub/memoryd/pkg/store"
)

// importedPlanName is the sentinel plan every imported thread is filed
// under, since an imported thread has no originating plan of its own.
const importedPlanName = "imported"

// ExportResult is Export's return value.
type ExportResult struct {
	PackageID string
	Payload   map[string]any
	Signature string
}

// ImportResult is Import's return value.
type ImportResult struct {
	ThreadID string
	Inserted int
}

// Engine signs and verifies shared export packages.
type Engine struct {
	store          *store.Store
	hmacSecret     string
	defaultExpires time.Duration
}

// NewEngine constructs a shared export/import Engine.
func NewEngine(st *store.Store, hmacSecret string, defaultExpiresMin int) *Engine {
	return &Engine{store: st, hmacSecret: hmacSecret, defaultExpires: time.Duration(defaultExpiresMin) * time.Minute}
}

// Export gathers active items of the requested types (plus mistakes
// when includeMistakes is set) in thread, signs the payload, and
// persists a SharedPackage.
func (e *Engine) Export(ctx context.Context, threadID string, types []string, includeMistakes bool, expiresAt *time.Time) (*ExportResult, error) {
	if e.hmacSecret == "" {
		return nil, fmt.Errorf("shared export requires an HMAC secret to be configured")
	}

	wanted := append([]string{}, types...)
	if includeMistakes {
		wanted = append(wanted, store.MemoryTypeMistake)
	}
	items, err := e.store.ListActiveByTypes(ctx, threadID, wanted)
	if err != nil {
		return nil, fmt.Errorf("failed to load items for export: %w", err)
	}

	expiry := time.Now().Add(e.defaultExpires)
	if expiresAt != nil {
		expiry = *expiresAt
	}

	itemPayloads := make([]any, 0, len(items))
	for _, item := range items {
		itemPayloads = append(itemPayloads, map[string]any{
			"id":         item.ID,
			"type":       item.Type,
			"title":      item.Title,
			"statement":  item.Statement,
			"importance": item.Importance,
			"confidence": item.Confidence,
			"severity":   item.Severity,
			"tags":       toAny(item.Tags),
			"affects":    toAny(item.Affects),
			"code_refs":  toAny(item.CodeRefs),
		})
	}

	payload := map[string]any{
		"thread_id":  threadID,
		"items":      itemPayloads,
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"expires_at": expiry.UTC().Format(time.RFC3339),
	}

	signature, err := hmacsign.Sign(e.hmacSecret, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign export payload: %w", err)
	}

	sp, err := e.store.CreateSharedPackage(ctx, payload, signature, expiry, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to persist shared package: %w", err)
	}

	return &ExportResult{PackageID: sp.ID, Payload: payload, Signature: signature}, nil
}

// Import verifies a payload's signature and expiry, creates a new
// free-standing thread under the sentinel "imported" plan, and inserts
// each decision/constraint/mistake item as active with an
// {source: "external"} metadata tag.
func (e *Engine) Import(ctx context.Context, payload map[string]any, signature string) (*ImportResult, error) {
	if e.hmacSecret == "" {
		return nil, fmt.Errorf("shared import requires an HMAC secret to be configured")
	}

	ok, err := hmacsign.Verify(e.hmacSecret, payload, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to verify import signature: %w", err)
	}
	if !ok {
		return nil, apperr.ErrSignatureInvalid
	}

	expiresAtRaw, _ := payload["expires_at"].(string)
	expiresAt, err := time.Parse(time.RFC3339, expiresAtRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse import expires_at: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, apperr.ErrPackageExpired
	}

	plan, err := e.store.FindOrCreatePlanByName(ctx, importedPlanName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve imported plan: %w", err)
	}
	thread, err := e.store.CreateThread(ctx, plan.ID, map[string]any{"source": "import"})
	if err != nil {
		return nil, fmt.Errorf("failed to create imported thread: %w", err)
	}

	rawItems, _ := payload["items"].([]any)
	inserted := 0
	for _, raw := range rawItems {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		itemType, _ := m["type"].(string)
		if !isImportableType(itemType) {
			continue
		}
		item := &store.MemoryItem{
			ThreadID:   thread.ID,
			Type:       itemType,
			Status:     store.MemoryStatusActive,
			Title:      stringOf(m, "title"),
			Statement:  stringOf(m, "statement"),
			Importance: floatOf(m, "importance"),
			Confidence: floatOf(m, "confidence"),
			Severity:   floatOf(m, "severity"),
			Tags:       stringsOf(m, "tags"),
			Affects:    stringsOf(m, "affects"),
			CodeRefs:   stringsOf(m, "code_refs"),
			Meta:       map[string]any{"source": "external"},
		}
		if _, err := e.store.InsertMemoryItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to insert imported item: %w", err)
		}
		inserted++
	}

	return &ImportResult{ThreadID: thread.ID, Inserted: inserted}, nil
}

func isImportableType(t string) bool {
	switch t {
	case store.MemoryTypeDecision, store.MemoryTypeConstraint, store.MemoryTypeMistake:
		return true
	default:
		return false
	}
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func stringOf(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatOf(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func stringsOf(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
