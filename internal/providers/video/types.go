package video

import "context"

// SubmitRequest seeds an asynchronous image-to-video job with the already
// generated still.
type SubmitRequest struct {
	ImageData   []byte
	ImageMIME   string
	Prompt      string
	AspectRatio string
}

// PollResult is one observation of a submitted job.
type PollResult struct {
	Done      bool
	ResultRef string
}

// Asset represents one generated video clip.
type Asset struct {
	Data   []byte
	Format string
}

// Generator is the contract implemented by all video providers. The caller
// owns the poll loop and its timeout; a provider only reports per-poll
// state. Terminal job errors come back from Poll wrapped onto the domain
// taxonomy.
type Generator interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Poll(ctx context.Context, handle string) (PollResult, error)
	Fetch(ctx context.Context, resultRef string) (*Asset, error)
}
