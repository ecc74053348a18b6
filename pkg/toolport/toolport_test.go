package toolport

import (
	"context"
	"testing"
)

type fakeTool struct {
	name   string
	result Result
}

func (f fakeTool) Name() string                 { return f.name }
func (f fakeTool) Description() string          { return "fake tool: " + f.name }
func (f fakeTool) Schema() map[string]any        { return map[string]any{} }
func (f fakeTool) Run(ctx context.Context, params map[string]any, call CallContext) Result {
	return f.result
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeTool{name: "file_read", result: Ok("contents")})

	tool, ok := r.Get("file_read")
	if !ok {
		t.Fatal("expected file_read to be registered")
	}
	if tool.Name() != "file_read" {
		t.Fatalf("got %q, want file_read", tool.Name())
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("shell"); ok {
		t.Fatal("expected shell to be absent from an empty registry")
	}
}

func TestRegistryExecuteRunsTool(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeTool{name: "git", result: Ok("clean")})

	res := r.Execute(context.Background(), "git", nil, CallContext{TeamID: "t1", AgentName: "coder"})
	if res.Failed() || res.Result != "clean" {
		t.Fatalf("got %+v, want Ok(clean)", res)
	}
}

func TestRegistryExecuteUnknownToolErrors(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nonexistent", nil, CallContext{})
	if !res.Failed() {
		t.Fatal("expected Execute of an unregistered tool to fail")
	}
}

func TestRegistrySubsetFiltersToNamedTools(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeTool{name: "file_read", result: Ok("a")})
	r.Register(fakeTool{name: "shell", result: Ok("b")})
	r.Register(fakeTool{name: "git", result: Ok("c")})

	sub := r.Subset([]string{"file_read", "shell", "unknown_tool"})

	if _, ok := sub.Get("file_read"); !ok {
		t.Fatal("expected file_read in subset")
	}
	if _, ok := sub.Get("shell"); !ok {
		t.Fatal("expected shell in subset")
	}
	if _, ok := sub.Get("git"); ok {
		t.Fatal("expected git to be excluded from the subset")
	}
	if _, ok := sub.Get("unknown_tool"); ok {
		t.Fatal("expected an unregistered name to be silently skipped")
	}
}

func TestResultOkAndErr(t *testing.T) {
	ok := Ok("done")
	if ok.Failed() {
		t.Fatal("expected Ok() to not be Failed()")
	}

	bad := Err(errUnknownTool("x"))
	if !bad.Failed() {
		t.Fatal("expected Err() to be Failed()")
	}
}

func TestUniverseCarriesEveryRequiredToolName(t *testing.T) {
	required := []string{
		"file_read", "file_write", "file_edit", "file_search", "content_search",
		"directory_list", "shell", "git", "decision_log", "decision_query",
		"sub_agent", "lsp_diagnostics", "team_spawn", "team_assign",
		"team_progress", "team_dissolve",
		"peer_message", "peer_discovery", "peer_claim_region", "peer_review",
		"peer_create_task", "peer_ask_question", "peer_answer_question",
		"peer_forward_question", "context_retrieve", "context_offload",
	}
	set := make(map[string]bool, len(Universe))
	for _, n := range Universe {
		set[n] = true
	}
	for _, n := range required {
		if !set[n] {
			t.Fatalf("Universe is missing required tool %q", n)
		}
	}
}
