package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"atelier/internal/credits"
	"atelier/internal/domain"
	"atelier/internal/generation"
	"atelier/internal/history"
	"atelier/internal/providers/image"
	"atelier/internal/providers/video"
)

// Progress checkpoints within one item's run.
const (
	progressImageStart   = 10
	progressImageDone    = 45
	progressVideoCeiling = 95
)

// Generator is the slice of the generation client the pipeline depends on.
type Generator interface {
	GenerateImage(ctx context.Context, req image.GenerateRequest) (*image.Asset, error)
	GenerateVideo(ctx context.Context, req video.SubmitRequest, onProgress generation.ProgressFunc) (*video.Asset, error)
}

// MediaStore persists asset bytes and returns the storage key.
type MediaStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Update is the typed event a pipeline emits after every state transition.
// Pipelines never touch shared state; a single consumer applies updates to
// the work item collection keyed by item id.
type Update struct {
	ItemID       int
	Status       domain.ItemStatus
	Progress     int
	ErrorMessage string
	ImageResult  *domain.MediaRef
	VideoResult  *domain.MediaRef
}

// EmitFunc receives updates in transition order.
type EmitFunc func(Update)

// Options wires a pipeline's collaborators.
type Options struct {
	Ledger    credits.Ledger
	Generator Generator
	History   history.Recorder
	Store     MediaStore
	Logger    *zerolog.Logger
}

// Pipeline drives one work item through charge, generation, persistence and
// outcome reporting. Per run it performs at most one image charge, one video
// charge, one image refund, one video refund, and one history write; a
// charge is retained exactly when the corresponding deliverable exists.
type Pipeline struct {
	ledger  credits.Ledger
	gen     Generator
	history history.Recorder
	store   MediaStore
	logger  zerolog.Logger
}

func New(opts Options) *Pipeline {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Pipeline{
		ledger:  opts.Ledger,
		gen:     opts.Generator,
		history: opts.History,
		store:   opts.Store,
		logger:  logger,
	}
}

// Run executes the full state machine for one work item and returns the
// settled item. The input item is taken by value; all observable mutation
// flows through emit.
func (p *Pipeline) Run(ctx context.Context, campaign *domain.Campaign, item domain.WorkItem, emit EmitFunc) domain.WorkItem {
	if emit == nil {
		emit = func(Update) {}
	}

	item.Status = domain.ItemStatusGeneratingImage
	item.Progress = progressImageStart
	emit(snapshot(item))

	// Credit strictly precedes generation: a failed charge is terminal
	// before any provider call, so no credit is ever at risk here.
	charge, err := p.ledger.CheckAndDeduct(ctx, campaign.UserID, credits.OperationImage)
	if err != nil {
		return p.fail(item, fmt.Sprintf("credit check failed: %v", err), emit)
	}
	if !charge.OK {
		return p.fail(item, charge.Message, emit)
	}
	creditsUsed := charge.Amount

	asset, err := p.gen.GenerateImage(ctx, image.GenerateRequest{
		Prompt:      item.Prompt,
		References:  referenceImages(campaign),
		Seed:        item.Seed,
		AspectRatio: campaign.AspectRatio,
	})
	if err != nil {
		// The deduction must be undone before the item settles as failed.
		p.refund(ctx, campaign.UserID, charge.Amount, "image")
		return p.fail(item, err.Error(), emit)
	}

	item.ImageResult = p.persistMedia(ctx, campaign, item.ID, "image", asset.Data, asset.Format)
	item.Progress = progressImageDone

	if !campaign.IncludeVideo {
		emit(snapshot(item))
		return p.complete(ctx, campaign, item, creditsUsed, emit)
	}

	item.Status = domain.ItemStatusGeneratingVideo
	emit(snapshot(item))

	videoCharge, err := p.ledger.CheckAndDeduct(ctx, campaign.UserID, credits.OperationVideo)
	switch {
	case err != nil:
		// Image is a real deliverable; the video leg ends as a partial
		// success with the image credit kept.
		item.ErrorMessage = fmt.Sprintf("video credit check failed: %v", err)
	case !videoCharge.OK:
		item.ErrorMessage = videoCharge.Message
	default:
		vasset, verr := p.gen.GenerateVideo(ctx, video.SubmitRequest{
			ImageData:   asset.Data,
			ImageMIME:   asset.Format,
			Prompt:      item.Prompt,
			AspectRatio: campaign.AspectRatio,
		}, p.videoProgress(item, emit))
		if verr != nil {
			p.refund(ctx, campaign.UserID, videoCharge.Amount, "video")
			item.ErrorMessage = verr.Error()
		} else {
			item.VideoResult = p.persistMedia(ctx, campaign, item.ID, "video", vasset.Data, vasset.Format)
			creditsUsed += videoCharge.Amount
		}
	}

	return p.complete(ctx, campaign, item, creditsUsed, emit)
}

// videoProgress maps the generation client's 0-100 poll estimate into the
// item's 45-95 band.
func (p *Pipeline) videoProgress(item domain.WorkItem, emit EmitFunc) generation.ProgressFunc {
	return func(percent int) {
		progress := progressImageDone + percent*(progressVideoCeiling-progressImageDone)/100
		if progress > progressVideoCeiling {
			progress = progressVideoCeiling
		}
		item.Progress = progress
		emit(snapshot(item))
	}
}

func (p *Pipeline) complete(ctx context.Context, campaign *domain.Campaign, item domain.WorkItem, creditsUsed int, emit EmitFunc) domain.WorkItem {
	item.Status = domain.ItemStatusCompleted
	item.Progress = 100
	emit(snapshot(item))

	kind := history.KindImage
	videoRef := ""
	if item.VideoResult != nil {
		kind = history.KindImageVideo
		videoRef = item.VideoResult.StorageKey
	}
	imageRef := ""
	if item.ImageResult != nil {
		imageRef = item.ImageResult.StorageKey
	}
	rec := history.Record{
		CampaignID:  campaign.ID,
		ItemID:      item.ID,
		Kind:        kind,
		CreditsUsed: creditsUsed,
		SceneLabel:  item.SceneLabel,
		ImageRef:    imageRef,
		VideoRef:    videoRef,
	}
	if item.ErrorMessage != "" {
		rec.Metadata = map[string]any{"video_warning": item.ErrorMessage}
	}
	if err := p.history.Save(ctx, campaign.UserID, rec); err != nil {
		p.logger.Error().Err(err).Str("campaign_id", campaign.ID).Int("item_id", item.ID).Msg("pipeline: history write failed")
	}
	return item
}

func (p *Pipeline) fail(item domain.WorkItem, message string, emit EmitFunc) domain.WorkItem {
	item.Status = domain.ItemStatusFailed
	item.ErrorMessage = message
	emit(snapshot(item))
	return item
}

func (p *Pipeline) refund(ctx context.Context, userID string, amount int, stage string) {
	if err := p.ledger.Refund(ctx, userID, amount); err != nil {
		p.logger.Error().Err(err).Str("user_id", userID).Str("stage", stage).Int("amount", amount).Msg("pipeline: refund failed")
	}
}

func (p *Pipeline) persistMedia(ctx context.Context, campaign *domain.Campaign, itemID int, kind string, data []byte, format string) *domain.MediaRef {
	ref := &domain.MediaRef{Data: data, Format: format}
	if p.store == nil {
		return ref
	}
	key := fmt.Sprintf("campaigns/%s/item-%02d-%s%s", campaign.ID, itemID, kind, extensionForFormat(format))
	saved, err := p.store.Write(ctx, key, data)
	if err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("pipeline: media persist failed, keeping in-memory bytes")
		return ref
	}
	ref.StorageKey = saved
	return ref
}

func referenceImages(campaign *domain.Campaign) []image.ReferenceImage {
	if len(campaign.References) == 0 {
		return nil
	}
	refs := make([]image.ReferenceImage, 0, len(campaign.References))
	for _, r := range campaign.References {
		if len(r.Data) == 0 {
			continue
		}
		refs = append(refs, image.ReferenceImage{Data: r.Data, MIME: r.Format})
	}
	return refs
}

func snapshot(item domain.WorkItem) Update {
	return Update{
		ItemID:       item.ID,
		Status:       item.Status,
		Progress:     item.Progress,
		ErrorMessage: item.ErrorMessage,
		ImageResult:  item.ImageResult,
		VideoResult:  item.VideoResult,
	}
}

func extensionForFormat(format string) string {
	switch format {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
