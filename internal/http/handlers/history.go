package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"atelier/internal/sqlinline"
)

type historyEntry struct {
	CampaignID  string          `json:"campaign_id"`
	ItemID      int             `json:"item_id"`
	Kind        string          `json:"kind"`
	CreditsUsed int             `json:"credits_used"`
	ImageRef    string          `json:"image_ref,omitempty"`
	VideoRef    string          `json:"video_ref,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

// HistoryList returns the caller's generation history, newest first.
func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectHistoryForUser, userID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: history query failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	defer rows.Close()

	entries := make([]historyEntry, 0, limit)
	for rows.Next() {
		var (
			entry              historyEntry
			imageRef, videoRef *string
			metadata           []byte
		)
		if err := rows.Scan(&entry.CampaignID, &entry.ItemID, &entry.Kind, &entry.CreditsUsed, &imageRef, &videoRef, &metadata, &entry.CreatedAt); err != nil {
			a.Logger.Error().Err(err).Msg("handlers: history scan failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
			return
		}
		if imageRef != nil {
			entry.ImageRef = *imageRef
		}
		if videoRef != nil {
			entry.VideoRef = *videoRef
		}
		if len(metadata) > 0 {
			entry.Metadata = json.RawMessage(metadata)
		} else {
			entry.Metadata = json.RawMessage(`{}`)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: history rows failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}

	a.json(w, http.StatusOK, map[string]any{"entries": entries})
}
