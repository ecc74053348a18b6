package roles

import "testing"

func TestBuiltinLeastPrivilege(t *testing.T) {
	c := NewCatalog()

	researcher, ok := c.Resolve("researcher")
	if !ok {
		t.Fatal("expected researcher to resolve")
	}
	for _, banned := range []string{"file_write", "file_edit", "shell", "git"} {
		if contains(researcher.Tools, banned) {
			t.Fatalf("researcher should not carry %q", banned)
		}
	}

	coder, ok := c.Resolve("coder")
	if !ok {
		t.Fatal("expected coder to resolve")
	}
	if !contains(coder.Tools, "file_write") || !contains(coder.Tools, "git") {
		t.Fatal("coder should carry file_write and git")
	}
	if contains(coder.Tools, "decision_query") {
		t.Fatal("coder should not carry decision_query")
	}

	lead, ok := c.Resolve("lead")
	if !ok {
		t.Fatal("expected lead to resolve")
	}
	for _, want := range []string{"sub_agent", "team_spawn", "team_dissolve", "decision_query"} {
		if !contains(lead.Tools, want) {
			t.Fatalf("lead should carry %q", want)
		}
	}
}

func TestAllRolesCarryPeerTools(t *testing.T) {
	c := NewCatalog()
	for _, name := range Names() {
		r, _ := c.Resolve(name)
		if !contains(r.Tools, "peer_message") || !contains(r.Tools, "context_offload") {
			t.Fatalf("role %q missing a peer-communication tool", name)
		}
	}
}

func TestRegisterCustomOverridesBuiltin(t *testing.T) {
	c := NewCatalog()
	c.RegisterCustom("coder", Override{MaxIterations: 30})
	r, ok := c.Resolve("coder")
	if !ok || r.MaxIterations != 30 {
		t.Fatal("expected override to raise coder's max iterations")
	}
	if !contains(r.Tools, "file_write") {
		t.Fatal("override without Tools should keep the base tool set")
	}
}

func TestResolveUnknownRole(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Resolve("nonexistent"); ok {
		t.Fatal("expected unknown role to not resolve")
	}
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}
