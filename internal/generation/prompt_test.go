package generation

import (
	"strings"
	"testing"
)

func TestSanitizePromptKeepsSubjectLine(t *testing.T) {
	original := "Fashion editorial photograph of a model wearing a red dress.\nScene: Dynamic Twirl.\nGarment type: dress."
	got := SanitizePrompt(original)

	if !strings.HasPrefix(got, "Fashion editorial photograph of a model wearing a red dress.") {
		t.Fatalf("sanitized prompt lost the subject line: %q", got)
	}
	if !strings.Contains(got, "Wide editorial shot") {
		t.Fatalf("sanitized prompt lacks the wide-shot clause: %q", got)
	}
	if strings.Contains(got, "Dynamic Twirl") {
		t.Fatalf("sanitized prompt kept scene detail: %q", got)
	}
}

func TestSanitizePromptEmptyInput(t *testing.T) {
	got := SanitizePrompt("")
	if !strings.HasPrefix(got, "Fashion editorial photograph of the featured garment.") {
		t.Fatalf("empty prompt fallback missing: %q", got)
	}
}

func TestSimplifyPromptKeepsFirstThreeLines(t *testing.T) {
	original := "one\n\ntwo\nthree\nfour\nfive"
	got := SimplifyPrompt(original)
	if got != "one\ntwo\nthree" {
		t.Fatalf("simplified = %q", got)
	}
}

func TestSimplifyPromptCapsLength(t *testing.T) {
	got := SimplifyPrompt(strings.Repeat("x", 2000))
	if n := len([]rune(got)); n > 600 {
		t.Fatalf("simplified prompt has %d runes, want at most 600", n)
	}
}
