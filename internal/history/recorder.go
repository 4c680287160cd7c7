package history

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"atelier/internal/infra"
	"atelier/internal/sqlinline"
)

// Kind enumerates recorded generation outcomes.
type Kind string

const (
	KindImage      Kind = "image"
	KindImageVideo Kind = "image_video"
)

// Record is the finished item's persisted metadata. Media refs are storage
// keys, not bytes.
type Record struct {
	CampaignID  string
	ItemID      int
	Kind        Kind
	CreditsUsed int
	SceneLabel  string
	InputRef    string
	ImageRef    string
	VideoRef    string
	Metadata    map[string]any
}

// Recorder persists a finished item's outputs. Fire-and-forget from the
// pipeline's perspective: failures are logged, not retried, never fatal to
// the item.
type Recorder interface {
	Save(ctx context.Context, userID string, rec Record) error
}

// PostgresRecorder writes generation_history rows.
type PostgresRecorder struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
}

func NewPostgresRecorder(sql infra.SQLExecutor, logger zerolog.Logger) *PostgresRecorder {
	return &PostgresRecorder{sql: sql, logger: logger}
}

func (r *PostgresRecorder) Save(ctx context.Context, userID string, rec Record) error {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["scene_label"] = rec.SceneLabel
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertHistory,
		userID,
		rec.CampaignID,
		rec.ItemID,
		string(rec.Kind),
		rec.CreditsUsed,
		nullable(rec.InputRef),
		nullable(rec.ImageRef),
		nullable(rec.VideoRef),
		raw,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Recorder = (*PostgresRecorder)(nil)
