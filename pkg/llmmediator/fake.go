package llmmediator

import (
	"context"
	"crypto/sha256"
	"strings"
)

// FakeTransport is a deterministic stand-in for the real upstream LLM,
// used in tests and local development (FAKE_LLM=true). Embeddings are
// derived from a text's SHA-256 digest so the same input always
// produces the same vector without calling out to anything. Chat
// replies are canned JSON selected by matching the system prompt's
// text, mirroring the behavior of the fake-mode client it replaces.
type FakeTransport struct {
	EmbeddingDim int
}

// Embed returns one deterministic vector per text.
func (f *FakeTransport) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = fakeEmbedding(t, f.EmbeddingDim)
	}
	return out, nil
}

func fakeEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 1
	}
	digest := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = float32(digest[i%len(digest)]) / 255.0
	}
	return vec
}

// ChatJSON dispatches on the system message's content to decide which
// canned response shape to return — COMPARE, RERANK, SUPERSEDE REASON,
// or DISTILL.
func (f *FakeTransport) ChatJSON(_ context.Context, messages []Message, _ string) (map[string]any, error) {
	var systemText, userText strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			systemText.WriteString(m.Content)
		case "user":
			userText.WriteString(m.Content)
		}
	}
	sys := systemText.String()

	lowerSys := strings.ToLower(sys)
	switch {
	case strings.Contains(lowerSys, "relation"):
		return map[string]any{
			"relation": "same",
			"reason":   "Deterministic fake compare.",
		}, nil
	case strings.Contains(lowerSys, "ranking context chunks"):
		return map[string]any{"ids": []any{}}, nil
	case strings.Contains(lowerSys, "summarizing changes"):
		return map[string]any{"reason": "Updated decision to reflect new requirements."}, nil
	default:
		return fakeDistillResponse(userText.String()), nil
	}
}

func fakeDistillResponse(userText string) map[string]any {
	resp := map[string]any{
		"decisions":          []any{},
		"constraints":        []any{},
		"mistakes":           []any{},
		"assumptions":        []any{},
		"open_questions":     []any{},
		"violations":         []any{},
		"stale_references":   []any{},
		"missing_constraints": []any{},
		"fixes":              []any{},
	}
	if strings.Contains(strings.ToLower(userText), "decision") {
		resp["decisions"] = []any{
			map[string]any{
				"title":      "Use Postgres",
				"statement":  "Postgres is the primary datastore.",
				"importance": 0.8,
				"confidence": 0.7,
				"severity":   0.0,
				"tags":       []any{"storage"},
				"affects":    []any{"database"},
				"code_refs":  []any{},
			},
		}
	}
	return resp
}
