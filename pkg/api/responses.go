package api

import (
	"github.com/memhub/memoryd/pkg/database"
	"github.com/memhub/memoryd/pkg/store"
)

func memoryItemToMap(item *store.MemoryItem) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"type":       item.Type,
		"status":     item.Status,
		"title":      item.Title,
		"statement":  item.Statement,
		"importance": item.Importance,
		"confidence": item.Confidence,
		"severity":   item.Severity,
		"tags":       item.Tags,
		"affects":    item.Affects,
		"code_refs":  item.CodeRefs,
		"updated_at": item.UpdatedAt,
	}
}

func memoryItemsToMaps(items []*store.MemoryItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, memoryItemToMap(item))
	}
	return out
}

func planToMap(plan *store.Plan) map[string]any {
	return map[string]any{
		"id":         plan.ID,
		"name":       plan.Name,
		"status":     plan.Status,
		"updated_at": plan.UpdatedAt,
	}
}

// HealthResponse is GET /health's body.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Database *database.HealthStatus   `json:"database,omitempty"`
	JobPool  *JobPoolHealth           `json:"job_pool,omitempty"`
}

// JobPoolHealth summarizes the background worker engine for /health.
type JobPoolHealth struct {
	WorkerCount int `json:"worker_count"`
}
