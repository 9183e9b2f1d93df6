package policy

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := PromptPolicy{
		MaxOutputTokens:   256,
		RefusalThreshold:  0.35,
		PerturbationLevel: 0.125,
		Temperature:       0.7,
	}
	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestDecodeMissingField(t *testing.T) {
	_, err := Decode(`{"max_output_tokens":10,"refusal_threshold":0.1,"temperature":0.5}`)
	if err == nil {
		t.Fatal("expected error for missing perturbation_level")
	}
	if !strings.Contains(err.Error(), "perturbation_level") {
		t.Fatalf("error should name the missing field, got %v", err)
	}
}

func TestDecodeBadJSON(t *testing.T) {
	if _, err := Decode("not-json"); err == nil {
		t.Fatal("expected error for bad JSON")
	}
}

func TestRender(t *testing.T) {
	text := Render(PromptPolicy{MaxOutputTokens: 120, RefusalThreshold: 0.3, PerturbationLevel: 0.05, Temperature: 0.8})
	if !strings.HasPrefix(text, CoreIdentity) {
		t.Fatal("rendered prompt must start with the core identity")
	}
	for _, want := range []string{
		"Target max output tokens: 120.",
		"Refusal threshold: 0.30.",
		"Perturbation level: 0.05.",
		"Temperature: 0.80.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
}

func TestRollbackMarker(t *testing.T) {
	if got := RollbackMarker(1); got != "rollback_to_v1" {
		t.Fatalf("got %q", got)
	}
}

func TestActionStrings(t *testing.T) {
	got := ActionStrings([]EvolutionAction{TightenLength, TuneTemperature})
	if len(got) != 2 || got[0] != "tighten_length" || got[1] != "tune_temperature" {
		t.Fatalf("unexpected %v", got)
	}
}
