package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"atelier/internal/domain"
	"atelier/internal/providers/image"
	"atelier/internal/providers/video"
)

// SleepFunc suspends for d or returns early with the context's error.
// Injectable so tests can assert backoff schedules without waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ProgressFunc receives 0-100 progress estimates while a video job polls.
type ProgressFunc func(percent int)

// Options wires the client's providers and recovery policy.
type Options struct {
	PrimaryImage   image.Generator
	SecondaryImage image.Generator
	PrimaryVideo   video.Generator
	SecondaryVideo video.Generator

	// BackoffBase is the first overload retry delay; each subsequent delay
	// grows by x1.5. Defaults to 2s.
	BackoffBase time.Duration
	// MaxAttempts is the per-provider attempt ceiling for overload-class
	// image failures. Defaults to 3.
	MaxAttempts int
	// PollInterval is the video job poll cadence. Defaults to 10s.
	PollInterval time.Duration
	// MaxPolls bounds the video poll loop; exhaustion is a terminal
	// timeout. Defaults to 60.
	MaxPolls int

	Sleep  SleepFunc
	Logger *zerolog.Logger
}

// Client produces one image (and optionally one video) from a prompt,
// hiding all provider-specific failure handling: prompt-rewrite recovery,
// overload backoff, failover to the secondary provider, and the async
// video poll loop. Retryable failure classes never escape this type;
// callers observe a binary outcome per stage.
type Client struct {
	primaryImage   image.Generator
	secondaryImage image.Generator
	primaryVideo   video.Generator
	secondaryVideo video.Generator

	backoffBase  time.Duration
	maxAttempts  int
	pollInterval time.Duration
	maxPolls     int

	sleep  SleepFunc
	logger zerolog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		primaryImage:   opts.PrimaryImage,
		secondaryImage: opts.SecondaryImage,
		primaryVideo:   opts.PrimaryVideo,
		secondaryVideo: opts.SecondaryVideo,
		backoffBase:    opts.BackoffBase,
		maxAttempts:    opts.MaxAttempts,
		pollInterval:   opts.PollInterval,
		maxPolls:       opts.MaxPolls,
		sleep:          opts.Sleep,
		logger:         zerolog.New(io.Discard),
	}
	if c.backoffBase <= 0 {
		c.backoffBase = 2 * time.Second
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 10 * time.Second
	}
	if c.maxPolls <= 0 {
		c.maxPolls = 60
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	return c
}

// GenerateImage drives one image through the recovery policy:
//   - content-policy rejection: one sanitized wide-shot rewrite, else terminal
//   - malformed request: one simplified-prompt retry, else terminal
//   - overload: backoff retries against the primary up to the attempt
//     ceiling, then one secondary attempt with the original prompt
//   - anything else: terminal immediately
func (c *Client) GenerateImage(ctx context.Context, req image.GenerateRequest) (*image.Asset, error) {
	original := req
	rewrote := false
	simplified := false
	attempt := 1
	delay := c.backoffBase

	for {
		asset, err := c.primaryImage.Generate(ctx, req)
		if err == nil {
			return asset, nil
		}

		switch {
		case errors.Is(err, domain.ErrContentPolicy):
			if rewrote {
				return nil, err
			}
			rewrote = true
			req.Prompt = SanitizePrompt(original.Prompt)
			c.logger.Warn().Err(err).Msg("generation: image rejected by policy, retrying with sanitized prompt")

		case errors.Is(err, domain.ErrMalformedRequest):
			if simplified {
				return nil, err
			}
			simplified = true
			req.Prompt = SimplifyPrompt(original.Prompt)
			c.logger.Warn().Err(err).Msg("generation: malformed image request, retrying with simplified prompt")

		case errors.Is(err, domain.ErrProviderOverloaded):
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, serr
			}
			delay = delay * 3 / 2
			attempt++
			if attempt > c.maxAttempts {
				if c.secondaryImage == nil {
					return nil, err
				}
				c.logger.Warn().Err(err).Int("attempts", c.maxAttempts).Msg("generation: primary image provider overloaded, failing over")
				return c.secondaryImage.Generate(ctx, original)
			}
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("generation: image retry after overload")

		default:
			return nil, err
		}
	}
}

// GenerateVideo submits an async job seeded with the generated image and
// owns the poll loop. Disallowed-subject, malformed, and explicit policy
// rejections are terminal without failover; overload, unavailability, and
// poll-loop timeout trigger a single failover to the secondary provider.
func (c *Client) GenerateVideo(ctx context.Context, req video.SubmitRequest, onProgress ProgressFunc) (*video.Asset, error) {
	asset, err := c.runVideoJob(ctx, c.primaryVideo, req, onProgress)
	if err == nil {
		return asset, nil
	}
	if !domain.OverloadClass(err) || c.secondaryVideo == nil {
		return nil, err
	}
	c.logger.Warn().Err(err).Msg("generation: primary video provider failed, failing over")
	return c.runVideoJob(ctx, c.secondaryVideo, req, onProgress)
}

func (c *Client) runVideoJob(ctx context.Context, gen video.Generator, req video.SubmitRequest, onProgress ProgressFunc) (*video.Asset, error) {
	handle, err := gen.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	for poll := 1; poll <= c.maxPolls; poll++ {
		if serr := c.sleep(ctx, c.pollInterval); serr != nil {
			return nil, serr
		}
		res, err := gen.Poll(ctx, handle)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			pct := poll * 100 / c.maxPolls
			if pct > 95 {
				pct = 95
			}
			onProgress(pct)
		}
		if res.Done {
			asset, err := c.fetchResult(ctx, gen, res.ResultRef)
			if err != nil {
				return nil, err
			}
			if onProgress != nil {
				onProgress(100)
			}
			return asset, nil
		}
	}
	return nil, fmt.Errorf("video job %s: not finished after %d polls: %w", handle, c.maxPolls, domain.ErrProviderTimeout)
}

// fetchResult downloads the finished job's reference, retrying a failed
// download once directly before reporting it.
func (c *Client) fetchResult(ctx context.Context, gen video.Generator, resultRef string) (*video.Asset, error) {
	asset, err := gen.Fetch(ctx, resultRef)
	if err == nil {
		return asset, nil
	}
	c.logger.Warn().Err(err).Msg("generation: video download failed, retrying once")
	return gen.Fetch(ctx, resultRef)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
