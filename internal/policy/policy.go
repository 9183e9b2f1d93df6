package policy

import (
	"encoding/json"
	"fmt"
)

// CoreIdentity is the fixed part of every rendered instruction.
const CoreIdentity = "You are a practitioner of Zen, living by the teaching of no reliance on words, " +
	"a special transmission outside the scriptures, pointing directly at the mind, seeing one's nature."

// #region render

// Render produces the instruction text handed to the generation layer.
func Render(p PromptPolicy) string {
	return fmt.Sprintf("%s\n\n"+
		"Respond with minimal attachment and minimal explanation. "+
		"Target max output tokens: %d. "+
		"Refusal threshold: %.2f. "+
		"Perturbation level: %.2f. "+
		"Temperature: %.2f.",
		CoreIdentity, p.MaxOutputTokens, p.RefusalThreshold, p.PerturbationLevel, p.Temperature)
}

// #endregion render

// #region codec

// Encode serializes a policy to its storage representation.
func Encode(p PromptPolicy) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	return string(b), nil
}

// Decode parses a stored policy. All four fields must be present.
func Decode(s string) (PromptPolicy, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return PromptPolicy{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	for _, k := range PolicyKeys {
		if _, ok := raw[k]; !ok {
			return PromptPolicy{}, fmt.Errorf("policy field %q missing", k)
		}
	}
	var p PromptPolicy
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return PromptPolicy{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	return p, nil
}

// #endregion codec

// RollbackMarker is the action tag recorded on a version created by rollback.
func RollbackMarker(target int) string {
	return fmt.Sprintf("rollback_to_v%d", target)
}

// ActionStrings converts typed actions to their stored form.
func ActionStrings(actions []EvolutionAction) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
