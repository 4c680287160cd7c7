package planner

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"atelier/internal/domain"
)

// ProductAnalysis carries what upstream analysis extracted from the user's
// product upload. All fields are optional except Description.
type ProductAnalysis struct {
	Description string `json:"description"`
	Garment     string `json:"garment"`
	Fabric      string `json:"fabric"`
	Palette     string `json:"palette"`
}

// Config is the user's campaign configuration.
type Config struct {
	Mode          domain.CampaignMode `json:"mode"`
	Style         string              `json:"style"`
	AspectRatio   string              `json:"aspect_ratio"`
	ItemCount     int                 `json:"item_count"`
	ColorVariants []string            `json:"color_variants"`
	PatternRef    string              `json:"pattern_ref"`
	Customization string              `json:"customization"`
	IncludeVideo  bool                `json:"include_video"`
	IdentityKey   string              `json:"identity_key"`
}

// Item count bounds per campaign mode. Out-of-range requests are clamped,
// never rejected.
const (
	photoshootMinItems = 4
	photoshootMaxItems = 10
	lookbookMinItems   = 6
	lookbookMaxItems   = 12
)

var photoshootScenes = []string{
	"Front Full-Body",
	"Three-Quarter Turn",
	"Walking Motion",
	"Seated Editorial",
	"Close-Up Fabric Detail",
	"Back View",
	"Leaning Against Wall",
	"Over-Shoulder Look",
	"Window Light Portrait",
	"Dynamic Twirl",
}

var lookbookScenes = []string{
	"Studio Front",
	"Studio Profile",
	"Street Crossing",
	"Cafe Doorway",
	"Rooftop Golden Hour",
	"Gallery Interior",
	"Garden Path",
	"Urban Staircase",
	"Coastal Boardwalk",
	"Evening Neon",
	"Minimal Concrete",
	"Rain-Slick Avenue",
}

var titleCaser = cases.Title(language.English)

// Plan turns a product analysis plus user configuration into the ordered
// work items for one campaign. Pure: the only nondeterminism is the injected
// seed source, and only when no identity key is supplied.
func Plan(analysis ProductAnalysis, cfg Config, seeds SeedSource) []domain.WorkItem {
	scenes := photoshootScenes
	minItems, maxItems := photoshootMinItems, photoshootMaxItems
	if cfg.Mode == domain.CampaignModeLookbook {
		scenes = lookbookScenes
		minItems, maxItems = lookbookMinItems, lookbookMaxItems
	}

	count := cfg.ItemCount
	if count < minItems {
		count = minItems
	}
	if count > maxItems {
		count = maxItems
	}

	seed := seeds.CampaignSeed(cfg.IdentityKey)
	usePattern := strings.TrimSpace(cfg.PatternRef) != ""

	items := make([]domain.WorkItem, 0, count)
	for i := 0; i < count; i++ {
		scene := scenes[i%len(scenes)]
		label := scene
		variant := ""
		if !usePattern && len(cfg.ColorVariants) > 0 {
			variant = strings.TrimSpace(cfg.ColorVariants[i%len(cfg.ColorVariants)])
			if variant != "" {
				label = fmt.Sprintf("%s — %s", scene, titleCaser.String(variant))
			}
		}
		items = append(items, domain.WorkItem{
			ID:         i + 1,
			SceneLabel: label,
			Prompt:     buildItemPrompt(analysis, cfg, scene, variant),
			Seed:       seed,
			Status:     domain.ItemStatusPending,
		})
	}
	return items
}

// buildItemPrompt assembles the full generation instruction for one scene.
// Assembled once at planning time; the only prompts derived later are the
// sanctioned recovery rewrites held inside the generation client.
func buildItemPrompt(analysis ProductAnalysis, cfg Config, scene, colorVariant string) string {
	var lines []string

	desc := strings.TrimSpace(analysis.Description)
	if desc == "" {
		desc = "the featured garment"
	}
	lines = append(lines, fmt.Sprintf("Fashion editorial photograph of a model wearing %s.", desc))
	lines = append(lines, fmt.Sprintf("Scene: %s.", scene))

	if garment := strings.TrimSpace(analysis.Garment); garment != "" {
		lines = append(lines, fmt.Sprintf("Garment type: %s.", garment))
	}
	if fabric := strings.TrimSpace(analysis.Fabric); fabric != "" {
		lines = append(lines, fmt.Sprintf("Fabric: %s. Render the weave and drape faithfully.", fabric))
	}
	if style := strings.TrimSpace(cfg.Style); style != "" {
		lines = append(lines, fmt.Sprintf("Visual style: %s.", style))
	}

	if ref := strings.TrimSpace(cfg.PatternRef); ref != "" {
		lines = append(lines, "Texture-map the supplied pattern reference onto the garment, preserving the garment's cut, seams, and silhouette exactly.")
	} else if colorVariant != "" {
		lines = append(lines, fmt.Sprintf("Recolor the garment to %s while keeping its cut, trim, and fabric texture unchanged.", colorVariant))
	}

	if custom := strings.TrimSpace(cfg.Customization); custom != "" {
		lines = append(lines, fmt.Sprintf("Creative guidance: %s.", custom))
	}

	lines = append(lines, "Keep the same model, styling, and garment identity as the rest of the campaign.")
	lines = append(lines, "Professional studio-grade lighting, sharp focus, clean post-processing, no watermarks or text artefacts.")

	return strings.Join(lines, "\n")
}
