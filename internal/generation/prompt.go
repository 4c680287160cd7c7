package generation

import "strings"

// Recovery prompts are the only prompts derived after planning time. Both
// rewrites start from the original prompt, never from a previous rewrite.

// SanitizePrompt rewrites a content-policy-rejected prompt into a wide-shot,
// non-suggestive editorial framing of the same subject. Used exactly once
// per image before the rejection becomes terminal.
func SanitizePrompt(prompt string) string {
	lines := []string{
		subjectClause(prompt),
		"Wide editorial shot from a respectful distance with the full scene in frame.",
		"Modest, fully covered styling and a neutral professional pose.",
		"Clean catalogue-safe composition with soft studio lighting.",
	}
	return strings.Join(lines, "\n")
}

// SimplifyPrompt shortens a prompt that the provider reported as malformed,
// keeping only the essential subject, pose, and environment clauses. Used
// exactly once per image before the failure becomes terminal.
func SimplifyPrompt(prompt string) string {
	kept := make([]string, 0, 3)
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == 3 {
			break
		}
	}
	simplified := strings.Join(kept, "\n")
	const maxRunes = 600
	runes := []rune(simplified)
	if len(runes) > maxRunes {
		simplified = string(runes[:maxRunes])
	}
	return simplified
}

func subjectClause(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return "Fashion editorial photograph of the featured garment."
}
