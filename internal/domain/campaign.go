package domain

import "time"

// CampaignMode enumerates supported campaign layouts.
type CampaignMode string

const (
	CampaignModePhotoshoot CampaignMode = "photoshoot"
	CampaignModeLookbook   CampaignMode = "lookbook"
)

// CampaignStatus enumerates batch lifecycle states.
type CampaignStatus string

const (
	CampaignStatusQueued    CampaignStatus = "queued"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusSucceeded CampaignStatus = "succeeded"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// ItemStatus enumerates the lifecycle of a single billable work item.
type ItemStatus string

const (
	ItemStatusPending         ItemStatus = "pending"
	ItemStatusGeneratingImage ItemStatus = "generating_image"
	ItemStatusGeneratingVideo ItemStatus = "generating_video"
	ItemStatusCompleted       ItemStatus = "completed"
	ItemStatusFailed          ItemStatus = "failed"
)

// MediaRef is an opaque handle to a produced asset. Data is populated while
// the asset is in flight; StorageKey once it has been persisted.
type MediaRef struct {
	Data       []byte
	Format     string
	StorageKey string
}

// WorkItem is one billable unit of image (and optionally video) generation.
// ID is stable for the item's lifetime and is the only key used for
// concurrent state updates.
type WorkItem struct {
	ID           int
	SceneLabel   string
	Prompt       string
	Seed         int64
	Status       ItemStatus
	Progress     int
	ImageResult  *MediaRef
	VideoResult  *MediaRef
	ErrorMessage string
}

// Terminal reports whether the item has settled.
func (w WorkItem) Terminal() bool {
	return w.Status == ItemStatusCompleted || w.Status == ItemStatusFailed
}

// ResetForRegeneration clears the mutable fields so a finished item can
// re-enter the pipeline from pending. The id, scene, prompt and seed are
// kept; the regeneration is billed as a fresh run.
func (w *WorkItem) ResetForRegeneration() {
	w.Status = ItemStatusPending
	w.Progress = 0
	w.ImageResult = nil
	w.VideoResult = nil
	w.ErrorMessage = ""
}

// Campaign is the full batch of work items produced for one user request.
// Everything except item state is fixed at planning time; item state flows
// through pipeline updates, never through this struct.
type Campaign struct {
	ID           string
	UserID       string
	Mode         CampaignMode
	Items        []WorkItem
	IncludeVideo bool
	AspectRatio  string
	IdentityKey  string
	References   []MediaRef
	CreatedAt    time.Time
}
