package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"atelier/internal/batch"
	"atelier/internal/domain"
	"atelier/internal/infra"
	"atelier/internal/planner"
	"atelier/internal/sqlinline"
	"atelier/pkg/zip"
)

type campaignGenerateRequest struct {
	Analysis planner.ProductAnalysis `json:"analysis"`
	Config   planner.Config          `json:"config"`
}

type campaignResponse struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
}

// CampaignsGenerate validates the configuration and enqueues the campaign
// for the worker. Planning and generation happen off the request path.
func (a *App) CampaignsGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req campaignGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Analysis.Description) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "product description is required")
		return
	}
	if req.Config.Mode != domain.CampaignModeLookbook {
		req.Config.Mode = domain.CampaignModePhotoshoot
	}
	if req.Config.AspectRatio == "" {
		req.Config.AspectRatio = "3:4"
	}

	payload, err := json.Marshal(req)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to encode configuration")
		return
	}
	campaignID := uuid.NewString()
	row := a.SQL.QueryRow(r.Context(), sqlinline.QEnqueueCampaign, campaignID, userID, payload)
	var id string
	if err := row.Scan(&id); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: enqueue campaign failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue campaign")
		return
	}
	a.json(w, http.StatusAccepted, campaignResponse{CampaignID: id, Status: string(domain.CampaignStatusQueued)})
}

type campaignItemView struct {
	ID           int    `json:"id"`
	SceneLabel   string `json:"scene_label"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ImageRef     string `json:"image_ref,omitempty"`
	VideoRef     string `json:"video_ref,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CampaignStatus reports the campaign, its items, and the aggregate
// progress stage for the UI.
func (a *App) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	campaignID := chi.URLParam(r, "campaign_id")
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCampaign, campaignID, userID)
	var (
		id, ownerID, status string
		config              []byte
		createdAt, updated  any
	)
	if err := row.Scan(&id, &ownerID, &status, &config, &createdAt, &updated); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "campaign not found")
		return
	}

	items, err := a.loadItems(r, campaignID)
	if err != nil {
		a.Logger.Error().Err(err).Str("campaign_id", campaignID).Msg("handlers: load campaign items failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load campaign items")
		return
	}

	phase := phaseForStatus(domain.CampaignStatus(status), len(items))
	views := make([]campaignItemView, 0, len(items))
	for _, item := range items {
		view := campaignItemView{
			ID:           item.ID,
			SceneLabel:   item.SceneLabel,
			Status:       string(item.Status),
			Progress:     item.Progress,
			ErrorMessage: item.ErrorMessage,
		}
		if item.ImageResult != nil {
			view.ImageRef = item.ImageResult.StorageKey
		}
		if item.VideoResult != nil {
			view.VideoRef = item.VideoResult.StorageKey
		}
		views = append(views, view)
	}

	a.json(w, http.StatusOK, map[string]any{
		"id":               id,
		"status":           status,
		"phase":            string(phase),
		"overall_progress": batch.Overall(phase, items),
		"stage_label":      batch.StageLabel(items),
		"items":            views,
	})
}

// CampaignRegenerate re-queues exactly one settled item for a fresh run.
func (a *App) CampaignRegenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	campaignID := chi.URLParam(r, "campaign_id")
	itemID, err := strconv.Atoi(chi.URLParam(r, "item_id"))
	if err != nil || itemID <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}
	row := a.SQL.QueryRow(r.Context(), sqlinline.QEnqueueItemRegeneration, campaignID, userID, itemID)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			a.error(w, http.StatusConflict, "conflict", "campaign not found or still running")
			return
		}
		a.Logger.Error().Err(err).Str("campaign_id", campaignID).Msg("handlers: enqueue regeneration failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue regeneration")
		return
	}
	a.json(w, http.StatusAccepted, campaignResponse{CampaignID: id, Status: string(domain.CampaignStatusQueued)})
}

// CampaignAssetsZip streams every persisted asset of the campaign as one
// archive.
func (a *App) CampaignAssetsZip(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	campaignID := chi.URLParam(r, "campaign_id")
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCampaign, campaignID, userID)
	var (
		id, ownerID, status string
		config              []byte
		createdAt, updated  any
	)
	if err := row.Scan(&id, &ownerID, &status, &config, &createdAt, &updated); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "campaign not found")
		return
	}
	items, err := a.loadItems(r, campaignID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load campaign items")
		return
	}

	var assets []zip.Asset
	for _, item := range items {
		for _, ref := range []*domain.MediaRef{item.ImageResult, item.VideoResult} {
			if ref == nil || ref.StorageKey == "" {
				continue
			}
			data, err := a.Store.Read(r.Context(), ref.StorageKey)
			if err != nil {
				a.Logger.Warn().Err(err).Str("key", ref.StorageKey).Msg("handlers: asset read failed, skipping")
				continue
			}
			assets = append(assets, zip.Asset{
				Filename: zipFilename(item, ref),
				MIME:     ref.Format,
				Data:     data,
			})
		}
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no assets available")
		return
	}

	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "campaign-"+campaignID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) loadItems(r *http.Request, campaignID string) ([]domain.WorkItem, error) {
	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectCampaignItems, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		var (
			item               domain.WorkItem
			imageRef, videoRef *string
			errMsg             *string
		)
		if err := rows.Scan(&item.ID, &item.SceneLabel, &item.Seed, &item.Status, &item.Progress, &imageRef, &videoRef, &errMsg); err != nil {
			return nil, err
		}
		if imageRef != nil && *imageRef != "" {
			item.ImageResult = &domain.MediaRef{StorageKey: *imageRef, Format: formatForKey(*imageRef)}
		}
		if videoRef != nil && *videoRef != "" {
			item.VideoResult = &domain.MediaRef{StorageKey: *videoRef, Format: formatForKey(*videoRef)}
		}
		if errMsg != nil {
			item.ErrorMessage = *errMsg
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func phaseForStatus(status domain.CampaignStatus, itemCount int) batch.Phase {
	switch status {
	case domain.CampaignStatusQueued:
		return batch.PhaseAnalyzing
	case domain.CampaignStatusRunning:
		if itemCount == 0 {
			return batch.PhaseAnalyzing
		}
		return batch.PhaseGenerating
	default:
		return batch.PhaseResults
	}
}

func zipFilename(item domain.WorkItem, ref *domain.MediaRef) string {
	base := strings.ReplaceAll(strings.ToLower(item.SceneLabel), " ", "-")
	if base == "" {
		base = fmt.Sprintf("item-%02d", item.ID)
	}
	idx := strings.LastIndex(ref.StorageKey, ".")
	ext := ".bin"
	if idx >= 0 {
		ext = ref.StorageKey[idx:]
	}
	return fmt.Sprintf("%02d-%s%s", item.ID, base, ext)
}

func formatForKey(key string) string {
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
