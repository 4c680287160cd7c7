package batch

import (
	"testing"

	"atelier/internal/domain"
)

func itemsAtProgress(progresses ...int) []domain.WorkItem {
	items := make([]domain.WorkItem, 0, len(progresses))
	for i, p := range progresses {
		items = append(items, domain.WorkItem{ID: i + 1, Progress: p})
	}
	return items
}

func TestOverallByPhase(t *testing.T) {
	items := itemsAtProgress(50, 50)

	if got := Overall(PhaseAnalyzing, nil); got != 15 {
		t.Fatalf("analyzing = %d, want 15", got)
	}
	if got := Overall(PhaseGenerating, items); got != 15+50*85/100 {
		t.Fatalf("generating at avg 50 = %d, want %d", got, 15+50*85/100)
	}
	if got := Overall(PhaseResults, items); got != 100 {
		t.Fatalf("results = %d, want 100", got)
	}
}

func TestOverallNeverDecreasesAsItemsProgress(t *testing.T) {
	prev := Overall(PhaseAnalyzing, nil)
	for avg := 0; avg <= 100; avg += 5 {
		got := Overall(PhaseGenerating, itemsAtProgress(avg, avg))
		if got < prev {
			t.Fatalf("overall dropped from %d to %d at avg %d", prev, got, avg)
		}
		prev = got
	}
	if final := Overall(PhaseResults, itemsAtProgress(100, 100)); final < prev {
		t.Fatalf("results %d below generating ceiling %d", final, prev)
	}
}

func TestOverallEmptyItems(t *testing.T) {
	if got := Overall(PhaseGenerating, nil); got != 15 {
		t.Fatalf("generating with no items = %d, want the analyzing checkpoint", got)
	}
}

func TestStageLabelThresholds(t *testing.T) {
	cases := []struct {
		avg  int
		want string
	}{
		{0, "preparing scenes"},
		{9, "preparing scenes"},
		{10, "generating images"},
		{47, "generating images"},
		{48, "quality pass"},
		{54, "quality pass"},
		{55, "refining details"},
		{89, "refining details"},
		{90, "compiling results"},
		{100, "compiling results"},
	}
	for _, tc := range cases {
		if got := StageLabel(itemsAtProgress(tc.avg)); got != tc.want {
			t.Errorf("avg %d: got %q, want %q", tc.avg, got, tc.want)
		}
	}
}

func TestStageLabelVideoBand(t *testing.T) {
	items := itemsAtProgress(70, 70)
	items[0].Status = domain.ItemStatusGeneratingVideo

	if got := StageLabel(items); got != "generating videos" {
		t.Fatalf("got %q, want %q", got, "generating videos")
	}
	items[0].Status = domain.ItemStatusGeneratingImage
	if got := StageLabel(items); got != "refining details" {
		t.Fatalf("got %q, want %q", got, "refining details")
	}
}
