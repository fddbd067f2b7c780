package rrf

import "testing"

func TestFuseSingleRankingMonotoneDecreasing(t *testing.T) {
	scores := Fuse([][]string{{"a", "b", "c"}}, 60)
	if !(scores["a"] > scores["b"] && scores["b"] > scores["c"]) {
		t.Fatalf("expected strictly decreasing scores, got %v", scores)
	}
}

func TestFuseCombinesAcrossLists(t *testing.T) {
	scores := Fuse([][]string{{"a", "b"}, {"b", "a"}}, 60)
	if scores["a"] != scores["b"] {
		t.Fatalf("expected symmetric rankings to tie, got a=%v b=%v", scores["a"], scores["b"])
	}
}

func TestFuseDefaultK(t *testing.T) {
	withZero := Fuse([][]string{{"a"}}, 0)
	withSixty := Fuse([][]string{{"a"}}, 60)
	if withZero["a"] != withSixty["a"] {
		t.Fatalf("expected k=0 to default to 60")
	}
}
