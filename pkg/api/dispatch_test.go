package api

import "testing"

func TestBuildDispatchCoversEveryTool(t *testing.T) {
	s := &Server{}
	table := s.buildDispatch()

	want := []string{
		"thread.create",
		"turn.ingest",
		"plan.create",
		"plan.list",
		"plan.get",
		"plan.rename",
		"plan.archive",
		"plan.touch",
		"distill.extract",
		"retrieve.decision_state",
		"retrieve.context",
		"audit.check_consistency",
		"memory.deprecate",
		"memory.supersede",
		"score.override",
		"shared.export",
		"shared.import",
	}
	for _, tool := range want {
		if _, ok := table[tool]; !ok {
			t.Errorf("dispatch table missing tool %q", tool)
		}
	}
	if len(table) != len(want) {
		t.Errorf("dispatch table has %d tools, want %d", len(table), len(want))
	}
}

func TestDecodeArgsRoundTrips(t *testing.T) {
	var out planCreateArgs
	if err := decodeArgs(map[string]any{"name": "plan-a", "meta": map[string]any{"k": "v"}}, &out); err != nil {
		t.Fatalf("decodeArgs returned error: %v", err)
	}
	if out.Name != "plan-a" {
		t.Errorf("Name = %q, want %q", out.Name, "plan-a")
	}
	if out.Meta["k"] != "v" {
		t.Errorf("Meta[k] = %v, want v", out.Meta["k"])
	}
}
