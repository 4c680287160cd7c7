package batch

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"atelier/internal/domain"
	"atelier/internal/pipeline"
)

// Runner is the slice of the item pipeline the orchestrator depends on.
type Runner interface {
	Run(ctx context.Context, campaign *domain.Campaign, item domain.WorkItem, emit pipeline.EmitFunc) domain.WorkItem
}

// OnItemUpdate is pushed after every item state transition; it is the UI
// progress channel.
type OnItemUpdate func(pipeline.Update)

// Orchestrator fans one pipeline out per pending item. Every item starts
// immediately, each outcome is collected independently, and the batch only
// settles once every item has reached a terminal state. A failed item never
// short-circuits its siblings.
type Orchestrator struct {
	pipeline Runner
	onUpdate OnItemUpdate
	logger   zerolog.Logger
}

func NewOrchestrator(p Runner, onUpdate OnItemUpdate, logger *zerolog.Logger) *Orchestrator {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Orchestrator{pipeline: p, onUpdate: onUpdate, logger: l}
}

// Run executes the batch against the store and returns the settled items in
// planning order. Pipelines emit onto a channel consumed by a single
// goroutine, which is the only writer into the store.
func (o *Orchestrator) Run(ctx context.Context, campaign *domain.Campaign, store *ItemStore) []domain.WorkItem {
	var pending []domain.WorkItem
	for _, item := range store.Snapshot() {
		if item.Status != domain.ItemStatusCompleted {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		return store.Snapshot()
	}

	updates := make(chan pipeline.Update, len(pending)*4)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for u := range updates {
			store.Apply(u)
			if o.onUpdate != nil {
				o.onUpdate(u)
			}
		}
	}()

	var wg sync.WaitGroup
	for _, item := range pending {
		wg.Add(1)
		go func(item domain.WorkItem) {
			defer wg.Done()
			final := o.pipeline.Run(ctx, campaign, item, func(u pipeline.Update) { updates <- u })
			o.logger.Info().
				Str("campaign_id", campaign.ID).
				Int("item_id", final.ID).
				Str("status", string(final.Status)).
				Msg("batch: item settled")
		}(item)
	}
	wg.Wait()
	close(updates)
	<-consumerDone

	return store.Snapshot()
}

// RunItem re-runs the pipeline for exactly one item by id without touching
// any other item's state. The item is reset to pending and billed as a
// fresh run.
func (o *Orchestrator) RunItem(ctx context.Context, campaign *domain.Campaign, store *ItemStore, itemID int) (domain.WorkItem, error) {
	item, ok := store.Get(itemID)
	if !ok {
		return domain.WorkItem{}, fmt.Errorf("item %d: %w", itemID, domain.ErrNotFound)
	}
	item.ResetForRegeneration()
	store.Put(item)

	final := o.pipeline.Run(ctx, campaign, item, func(u pipeline.Update) {
		store.Apply(u)
		if o.onUpdate != nil {
			o.onUpdate(u)
		}
	})
	return final, nil
}
