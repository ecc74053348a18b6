package pricing

import "testing"

func TestCalculateKnownModel(t *testing.T) {
	got := Calculate("zai:glm-5", 1_000_000, 1_000_000)
	want := 0.95 + 3.79
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCalculateUnknownModelPricesZero(t *testing.T) {
	if got := Calculate("nonexistent:model", 1000, 1000); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestCalculateRoundsToEightDecimals(t *testing.T) {
	got := Calculate("anthropic:claude-haiku-4-5", 123, 45)
	in := float64(123) / 1e6 * 0.80
	out := float64(45) / 1e6 * 4.00
	want := round8(in + out)
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCalculateZeroTokens(t *testing.T) {
	if got := Calculate("zai:glm-4.5", 0, 0); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestTableCarriesEveryBuiltinModel(t *testing.T) {
	for _, model := range []string{
		"zai:glm-4.5", "zai:glm-5",
		"anthropic:claude-haiku-4-5", "anthropic:claude-sonnet-4-6", "anthropic:claude-opus-4-6",
	} {
		if _, ok := Table[model]; !ok {
			t.Fatalf("missing pricing entry for %s", model)
		}
	}
}
