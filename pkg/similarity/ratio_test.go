package similarity

import "testing"

func TestRatioIdentical(t *testing.T) {
	if r := Ratio("Use Postgres for storage", "Use Postgres for storage"); r != 1.0 {
		t.Fatalf("expected 1.0, got %v", r)
	}
}

func TestRatioEmpty(t *testing.T) {
	if r := Ratio("", ""); r != 1.0 {
		t.Fatalf("expected 1.0 for two empty strings, got %v", r)
	}
	if r := Ratio("abc", ""); r != 0.0 {
		t.Fatalf("expected 0.0, got %v", r)
	}
}

func TestRatioMaterialChangeBoundary(t *testing.T) {
	a := "Use Postgres for storage"
	b := "Use Postgres with pgvector for embeddings"
	r := Ratio(a, b)
	if r >= 0.95 {
		t.Fatalf("expected a material change (ratio < 0.95), got %v", r)
	}
}

func TestRatioCloseVariants(t *testing.T) {
	r := Ratio("Use Postgres for storage.", "Use Postgres for storage!")
	if r < 0.9 {
		t.Fatalf("expected near-identical strings to score high, got %v", r)
	}
}
