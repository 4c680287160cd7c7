package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"atelier/internal/batch"
	"atelier/internal/credits"
	"atelier/internal/domain"
	"atelier/internal/generation"
	"atelier/internal/history"
	"atelier/internal/infra"
	"atelier/internal/infra/credentials"
	"atelier/internal/pipeline"
	"atelier/internal/planner"
	"atelier/internal/providers/genai"
	"atelier/internal/providers/image"
	videoprovider "atelier/internal/providers/video"
	"atelier/internal/sqlinline"
	"atelier/internal/storage"
)

const claimPollInterval = 2 * time.Second

// campaignPayload is the config document stored at enqueue time.
type campaignPayload struct {
	Analysis planner.ProductAnalysis `json:"analysis"`
	Config   planner.Config          `json:"config"`
}

type campaignWorker struct {
	runner   *infra.SQLRunner
	logger   zerolog.Logger
	store    *storage.FileStore
	pipeline *pipeline.Pipeline
	seeds    planner.SeedSource
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	credStore := credentials.NewStore(runner)
	geminiAPIKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if geminiAPIKey == "" {
		keyFromStore, err := credStore.GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load gemini api key from store")
		} else {
			geminiAPIKey = keyFromStore
		}
	}
	dashScopeAPIKey := strings.TrimSpace(cfg.DashScopeAPIKey)
	if dashScopeAPIKey == "" {
		keyFromStore, err := credStore.DashScopeAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load dashscope api key from store")
		} else {
			dashScopeAPIKey = keyFromStore
		}
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     geminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.GeminiImageModel,
		VideoModel: cfg.GeminiVideoModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}

	genOpts := generation.Options{
		PrimaryImage: image.NewGeminiGenerator(geminiClient),
		PrimaryVideo: videoprovider.NewVeoGenerator(geminiClient),
		BackoffBase:  cfg.BackoffBase,
		PollInterval: cfg.VideoPollEvery,
		MaxPolls:     cfg.VideoMaxPolls,
		Logger:       &logger,
	}
	if dashScopeAPIKey != "" {
		genOpts.SecondaryImage = image.NewQwenGenerator(image.QwenOptions{
			BaseURL:    cfg.DashScopeBaseURL,
			APIKey:     dashScopeAPIKey,
			HTTPClient: httpClient,
		})
		genOpts.SecondaryVideo = videoprovider.NewWanGenerator(videoprovider.WanOptions{
			BaseURL:    cfg.DashScopeBaseURL,
			APIKey:     dashScopeAPIKey,
			HTTPClient: httpClient,
		})
	} else {
		logger.Warn().Msg("worker: dashscope api key missing, running without provider failover")
	}

	costs := credits.DefaultCosts()
	if cfg.ImageCreditCost > 0 {
		costs.Image = cfg.ImageCreditCost
	}
	if cfg.VideoCreditCost > 0 {
		costs.Video = cfg.VideoCreditCost
	}

	worker := &campaignWorker{
		runner: runner,
		logger: logger,
		store:  fileStore,
		pipeline: pipeline.New(pipeline.Options{
			Ledger:    credits.NewPostgresLedger(runner, costs, logger),
			Generator: generation.NewClient(genOpts),
			History:   history.NewPostgresRecorder(runner, logger),
			Store:     fileStore,
			Logger:    &logger,
		}),
		seeds: planner.NewStableSeedSource(),
	}

	logger.Info().Msg("worker: started")
	worker.loop(ctx)
	logger.Info().Msg("worker: stopped")
}

// loop claims one queued campaign at a time. Claiming uses a skip-locked
// select, so multiple worker processes never race over the same campaign.
func (w *campaignWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(claimPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var (
			campaignID     string
			userID         string
			payload        []byte
			regenerateItem *int
		)
		row := w.runner.QueryRow(ctx, sqlinline.QClaimCampaign)
		if err := row.Scan(&campaignID, &userID, &payload, &regenerateItem); err != nil {
			if infra.IsNoRows(err) {
				continue
			}
			w.logger.Error().Err(err).Msg("worker: claim failed")
			continue
		}

		w.process(ctx, campaignID, userID, payload, regenerateItem)
	}
}

func (w *campaignWorker) process(ctx context.Context, campaignID, userID string, payload []byte, regenerateItem *int) {
	logger := w.logger.With().Str("campaign_id", campaignID).Logger()

	var doc campaignPayload
	if err := json.Unmarshal(payload, &doc); err != nil {
		logger.Error().Err(err).Msg("worker: invalid campaign config")
		w.settle(ctx, campaignID, domain.CampaignStatusFailed)
		return
	}

	campaign := &domain.Campaign{
		ID:           campaignID,
		UserID:       userID,
		Mode:         doc.Config.Mode,
		IncludeVideo: doc.Config.IncludeVideo,
		AspectRatio:  doc.Config.AspectRatio,
		IdentityKey:  doc.Config.IdentityKey,
		References:   w.loadReferences(ctx, logger, doc.Config),
	}

	items := planner.Plan(doc.Analysis, doc.Config, w.seeds)
	if regenerateItem != nil {
		w.overlayPersistedItems(ctx, logger, campaignID, items)
	}
	store := batch.NewItemStore(items)
	campaign.Items = store.Snapshot()

	orchestrator := batch.NewOrchestrator(w.pipeline, func(u pipeline.Update) {
		if item, ok := store.Get(u.ItemID); ok {
			w.persistItem(ctx, logger, campaignID, item)
		}
	}, &logger)

	if regenerateItem != nil {
		final, err := orchestrator.RunItem(ctx, campaign, store, *regenerateItem)
		if err != nil {
			logger.Error().Err(err).Int("item_id", *regenerateItem).Msg("worker: regeneration failed")
		} else {
			w.persistItem(ctx, logger, campaignID, final)
		}
		w.settle(ctx, campaignID, settledStatus(store.Snapshot()))
		return
	}

	for _, item := range items {
		w.persistItem(ctx, logger, campaignID, item)
	}
	settled := orchestrator.Run(ctx, campaign, store)
	for _, item := range settled {
		w.persistItem(ctx, logger, campaignID, item)
	}
	w.settle(ctx, campaignID, settledStatus(settled))
}

// loadReferences resolves the pattern reference into inline bytes for the
// generation providers. A missing asset degrades to no reference.
func (w *campaignWorker) loadReferences(ctx context.Context, logger zerolog.Logger, cfg planner.Config) []domain.MediaRef {
	if cfg.PatternRef == "" {
		return nil
	}
	data, err := w.store.Read(ctx, cfg.PatternRef)
	if err != nil {
		logger.Warn().Err(err).Str("key", cfg.PatternRef).Msg("worker: pattern reference unavailable")
		return nil
	}
	return []domain.MediaRef{{Data: data, Format: mimeForKey(cfg.PatternRef), StorageKey: cfg.PatternRef}}
}

// overlayPersistedItems replays stored item state onto the freshly planned
// items so a single-item regeneration keeps every sibling untouched.
func (w *campaignWorker) overlayPersistedItems(ctx context.Context, logger zerolog.Logger, campaignID string, items []domain.WorkItem) {
	rows, err := w.runner.Query(ctx, sqlinline.QSelectCampaignItems, campaignID)
	if err != nil {
		logger.Error().Err(err).Msg("worker: load persisted items failed")
		return
	}
	defer rows.Close()

	persisted := make(map[int]domain.WorkItem)
	for rows.Next() {
		var (
			item               domain.WorkItem
			imageRef, videoRef *string
			errMsg             *string
		)
		if err := rows.Scan(&item.ID, &item.SceneLabel, &item.Seed, &item.Status, &item.Progress, &imageRef, &videoRef, &errMsg); err != nil {
			logger.Error().Err(err).Msg("worker: scan persisted item failed")
			return
		}
		if imageRef != nil && *imageRef != "" {
			item.ImageResult = &domain.MediaRef{StorageKey: *imageRef, Format: mimeForKey(*imageRef)}
		}
		if videoRef != nil && *videoRef != "" {
			item.VideoResult = &domain.MediaRef{StorageKey: *videoRef, Format: mimeForKey(*videoRef)}
		}
		if errMsg != nil {
			item.ErrorMessage = *errMsg
		}
		persisted[item.ID] = item
	}

	for i := range items {
		prev, ok := persisted[items[i].ID]
		if !ok {
			continue
		}
		items[i].Seed = prev.Seed
		items[i].Status = prev.Status
		items[i].Progress = prev.Progress
		items[i].ImageResult = prev.ImageResult
		items[i].VideoResult = prev.VideoResult
		items[i].ErrorMessage = prev.ErrorMessage
	}
}

func (w *campaignWorker) persistItem(ctx context.Context, logger zerolog.Logger, campaignID string, item domain.WorkItem) {
	var imageRef, videoRef, errMsg *string
	if item.ImageResult != nil && item.ImageResult.StorageKey != "" {
		imageRef = &item.ImageResult.StorageKey
	}
	if item.VideoResult != nil && item.VideoResult.StorageKey != "" {
		videoRef = &item.VideoResult.StorageKey
	}
	if item.ErrorMessage != "" {
		errMsg = &item.ErrorMessage
	}
	_, err := w.runner.Exec(ctx, sqlinline.QUpsertCampaignItem,
		campaignID, item.ID, item.SceneLabel, item.Seed,
		string(item.Status), item.Progress, imageRef, videoRef, errMsg)
	if err != nil {
		logger.Error().Err(err).Int("item_id", item.ID).Msg("worker: persist item failed")
	}
}

func (w *campaignWorker) settle(ctx context.Context, campaignID string, status domain.CampaignStatus) {
	if _, err := w.runner.Exec(ctx, sqlinline.QUpdateCampaignStatus, campaignID, string(status)); err != nil {
		w.logger.Error().Err(err).Str("campaign_id", campaignID).Msg("worker: settle failed")
	}
}

// settledStatus marks the campaign failed only when no item produced a
// deliverable. Partial batches still count as succeeded.
func settledStatus(items []domain.WorkItem) domain.CampaignStatus {
	for _, item := range items {
		if item.Status == domain.ItemStatusCompleted {
			return domain.CampaignStatusSucceeded
		}
	}
	return domain.CampaignStatusFailed
}

func mimeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	case strings.HasSuffix(key, ".mp4"):
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
