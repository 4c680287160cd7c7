package image

import (
	"context"

	"atelier/internal/providers/genai"
)

// GeminiGenerator is the primary image provider.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	refs := make([]genai.ReferenceImage, 0, len(req.References))
	for _, ref := range req.References {
		refs = append(refs, genai.ReferenceImage{Data: ref.Data, MIME: ref.MIME})
	}
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      req.Prompt,
		References:  refs,
		Seed:        req.Seed,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{Data: asset.Data, Format: asset.Format}, nil
}

func (g *GeminiGenerator) String() string {
	return g.client.ImageModel()
}

var _ Generator = (*GeminiGenerator)(nil)
