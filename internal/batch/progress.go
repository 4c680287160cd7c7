package batch

import "atelier/internal/domain"

// Phase is the coarse campaign lifecycle shown to callers.
type Phase string

const (
	PhaseAnalyzing  Phase = "analyzing"
	PhaseGenerating Phase = "generating"
	PhaseResults    Phase = "results"
)

const analyzingCheckpoint = 15

// Overall maps the campaign lifecycle onto a single 0-100 value: a fixed
// checkpoint while analyzing, 15 + average item progress scaled into the
// remaining band while generating, and 100 once results are ready. The
// value never decreases as item progress grows.
func Overall(phase Phase, items []domain.WorkItem) int {
	switch phase {
	case PhaseAnalyzing:
		return analyzingCheckpoint
	case PhaseResults:
		return 100
	}
	avg := averageProgress(items)
	overall := analyzingCheckpoint + avg*85/100
	if overall < analyzingCheckpoint {
		overall = analyzingCheckpoint
	}
	if overall > 100 {
		overall = 100
	}
	return overall
}

// StageLabel translates average item progress into a discrete human-readable
// stage. Thresholds are a UX choice; the sequence is monotonic in the
// average and never regresses as it increases.
func StageLabel(items []domain.WorkItem) string {
	avg := averageProgress(items)
	switch {
	case avg < 10:
		return "preparing scenes"
	case avg < 48:
		return "generating images"
	case avg < 55:
		return "quality pass"
	case avg < 90:
		if anyGeneratingVideo(items) {
			return "generating videos"
		}
		return "refining details"
	default:
		return "compiling results"
	}
}

func averageProgress(items []domain.WorkItem) int {
	if len(items) == 0 {
		return 0
	}
	total := 0
	for _, item := range items {
		total += item.Progress
	}
	return total / len(items)
}

func anyGeneratingVideo(items []domain.WorkItem) bool {
	for _, item := range items {
		if item.Status == domain.ItemStatusGeneratingVideo {
			return true
		}
	}
	return false
}
