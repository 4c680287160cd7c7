package image

import "context"

// ReferenceImage is conditioning input (product shot, pattern swatch)
// attached to a generation request.
type ReferenceImage struct {
	Data []byte
	MIME string
}

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt      string
	References  []ReferenceImage
	Seed        int64
	AspectRatio string
}

// Asset represents one generated image.
type Asset struct {
	Data   []byte
	Format string
}

// Generator is the contract implemented by all image providers. Failures are
// wrapped onto the domain error taxonomy so the generation client can
// classify them with errors.Is.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}
