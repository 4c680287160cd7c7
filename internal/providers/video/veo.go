package video

import (
	"context"

	"atelier/internal/providers/genai"
)

// VeoGenerator is the primary video provider, backed by Gemini's
// long-running Veo operations.
type VeoGenerator struct {
	client *genai.Client
}

func NewVeoGenerator(client *genai.Client) *VeoGenerator {
	return &VeoGenerator{client: client}
}

func (g *VeoGenerator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	return g.client.SubmitVideo(ctx, genai.VideoRequest{
		ImageData:   req.ImageData,
		ImageMIME:   req.ImageMIME,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
	})
}

func (g *VeoGenerator) Poll(ctx context.Context, handle string) (PollResult, error) {
	op, err := g.client.PollVideo(ctx, handle)
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{Done: op.Done, ResultRef: op.ResultURI}, nil
}

func (g *VeoGenerator) Fetch(ctx context.Context, resultRef string) (*Asset, error) {
	data, format, err := g.client.FetchVideo(ctx, resultRef)
	if err != nil {
		return nil, err
	}
	return &Asset{Data: data, Format: format}, nil
}

func (g *VeoGenerator) String() string {
	return g.client.VideoModel()
}

var _ Generator = (*VeoGenerator)(nil)
