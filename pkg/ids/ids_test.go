package ids

import (
	"strings"
	"testing"
)

func TestGenerateTeamIDSanitizesAndTruncates(t *testing.T) {
	id := GenerateTeamID("My Cool Team!! Building Something Amazing")
	// The suffix is base64url(4 random bytes): 6 chars, which may include '-'.
	suffix := id[len(id)-6:]
	prefix := strings.TrimSuffix(id, "-"+suffix)

	if len(prefix) > 20 {
		t.Fatalf("prefix %q exceeds 20 chars", prefix)
	}
	for _, r := range prefix {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			t.Fatalf("prefix %q contains disallowed rune %q", prefix, r)
		}
	}
	if len(suffix) == 0 {
		t.Fatal("expected non-empty random suffix")
	}
}

func TestGenerateTeamIDIsRandomized(t *testing.T) {
	a := GenerateTeamID("same-name")
	b := GenerateTeamID("same-name")
	if a == b {
		t.Fatal("expected distinct IDs from distinct random suffixes")
	}
}

func TestNewReturnsDistinctUUIDs(t *testing.T) {
	if New() == New() {
		t.Fatal("expected distinct uuids")
	}
}
