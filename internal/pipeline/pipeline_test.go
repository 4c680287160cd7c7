package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"atelier/internal/credits"
	"atelier/internal/domain"
	"atelier/internal/generation"
	"atelier/internal/history"
	"atelier/internal/providers/image"
	"atelier/internal/providers/video"
)

type fakeLedger struct {
	balance      int
	costs        credits.Costs
	charges      []credits.Operation
	refunds      []int
	chargeErr    error
	refundErr    error
	refundErrOps int
}

func newFakeLedger(balance int) *fakeLedger {
	return &fakeLedger{balance: balance, costs: credits.DefaultCosts()}
}

func (l *fakeLedger) CheckAndDeduct(_ context.Context, _ string, op credits.Operation) (credits.Charge, error) {
	if l.chargeErr != nil {
		return credits.Charge{}, l.chargeErr
	}
	cost := l.costs.For(op)
	if l.balance < cost {
		return credits.Charge{OK: false, Amount: cost, Message: "insufficient credits"}, nil
	}
	l.balance -= cost
	l.charges = append(l.charges, op)
	return credits.Charge{OK: true, Amount: cost, Balance: l.balance}, nil
}

func (l *fakeLedger) Refund(_ context.Context, _ string, amount int) error {
	if l.refundErr != nil && l.refundErrOps > 0 {
		l.refundErrOps--
		return l.refundErr
	}
	l.balance += amount
	l.refunds = append(l.refunds, amount)
	return nil
}

type fakeGenerator struct {
	imageErr   error
	videoErr   error
	imageCalls int
	videoCalls int
}

func (g *fakeGenerator) GenerateImage(_ context.Context, _ image.GenerateRequest) (*image.Asset, error) {
	g.imageCalls++
	if g.imageErr != nil {
		return nil, g.imageErr
	}
	return &image.Asset{Data: []byte("img-bytes"), Format: "image/png"}, nil
}

func (g *fakeGenerator) GenerateVideo(_ context.Context, _ video.SubmitRequest, onProgress generation.ProgressFunc) (*video.Asset, error) {
	g.videoCalls++
	if g.videoErr != nil {
		return nil, g.videoErr
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return &video.Asset{Data: []byte("vid-bytes"), Format: "video/mp4"}, nil
}

type fakeRecorder struct {
	records []history.Record
	err     error
}

func (r *fakeRecorder) Save(_ context.Context, _ string, rec history.Record) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

type memStore struct {
	keys []string
}

func (s *memStore) Write(_ context.Context, key string, _ []byte) (string, error) {
	s.keys = append(s.keys, key)
	return key, nil
}

func testCampaign(includeVideo bool) *domain.Campaign {
	return &domain.Campaign{
		ID:           "c-1",
		UserID:       "u-1",
		Mode:         domain.CampaignModePhotoshoot,
		IncludeVideo: includeVideo,
		AspectRatio:  "3:4",
	}
}

func testItem() domain.WorkItem {
	return domain.WorkItem{ID: 1, SceneLabel: "Front Full-Body", Prompt: "prompt", Seed: 11, Status: domain.ItemStatusPending}
}

func collect() (EmitFunc, *[]Update) {
	var updates []Update
	return func(u Update) { updates = append(updates, u) }, &updates
}

func TestRunImageOnlySuccess(t *testing.T) {
	ledger := newFakeLedger(10)
	gen := &fakeGenerator{}
	rec := &fakeRecorder{}
	p := New(Options{Ledger: ledger, Generator: gen, History: rec, Store: &memStore{}})

	emit, updates := collect()
	final := p.Run(context.Background(), testCampaign(false), testItem(), emit)

	if final.Status != domain.ItemStatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %d, want 100", final.Progress)
	}
	if final.ImageResult == nil || final.ImageResult.StorageKey == "" {
		t.Fatal("image result missing")
	}
	if final.VideoResult != nil {
		t.Fatal("image-only run produced a video")
	}
	if ledger.balance != 9 {
		t.Fatalf("balance = %d, want 9 (one image charge retained)", ledger.balance)
	}
	if len(ledger.refunds) != 0 {
		t.Fatalf("refunds = %v, want none", ledger.refunds)
	}
	if len(rec.records) != 1 {
		t.Fatalf("history writes = %d, want exactly 1", len(rec.records))
	}
	if rec.records[0].Kind != history.KindImage || rec.records[0].CreditsUsed != 1 {
		t.Fatalf("history record = %+v", rec.records[0])
	}
	if len(*updates) == 0 {
		t.Fatal("no updates emitted")
	}
	first := (*updates)[0]
	if first.Status != domain.ItemStatusGeneratingImage || first.Progress != 10 {
		t.Fatalf("first update = %+v, want generating_image at 10", first)
	}
}

func TestRunInsufficientCreditsFailsBeforeGeneration(t *testing.T) {
	ledger := newFakeLedger(0)
	gen := &fakeGenerator{}
	rec := &fakeRecorder{}
	p := New(Options{Ledger: ledger, Generator: gen, History: rec, Store: &memStore{}})

	emit, _ := collect()
	final := p.Run(context.Background(), testCampaign(false), testItem(), emit)

	if final.Status != domain.ItemStatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if gen.imageCalls != 0 {
		t.Fatal("provider called despite failed charge")
	}
	if len(ledger.refunds) != 0 {
		t.Fatal("nothing was deducted, nothing may be refunded")
	}
	if len(rec.records) != 0 {
		t.Fatal("failed item must not write history")
	}
}

func TestRunImageFailureRefundsExactlyOnce(t *testing.T) {
	ledger := newFakeLedger(10)
	gen := &fakeGenerator{imageErr: domain.ErrContentPolicy}
	rec := &fakeRecorder{}
	p := New(Options{Ledger: ledger, Generator: gen, History: rec, Store: &memStore{}})

	emit, _ := collect()
	final := p.Run(context.Background(), testCampaign(false), testItem(), emit)

	if final.Status != domain.ItemStatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if ledger.balance != 10 {
		t.Fatalf("balance = %d, want restored 10", ledger.balance)
	}
	if len(ledger.refunds) != 1 {
		t.Fatalf("refunds = %v, want exactly one", ledger.refunds)
	}
	if len(rec.records) != 0 {
		t.Fatal("failed item must not write history")
	}
}

func TestRunVideoSuccessChargesBoth(t *testing.T) {
	ledger := newFakeLedger(10)
	gen := &fakeGenerator{}
	rec := &fakeRecorder{}
	p := New(Options{Ledger: ledger, Generator: gen, History: rec, Store: &memStore{}})

	emit, updates := collect()
	final := p.Run(context.Background(), testCampaign(true), testItem(), emit)

	if final.Status != domain.ItemStatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if final.VideoResult == nil || final.VideoResult.StorageKey == "" {
		t.Fatal("video result missing")
	}
	if ledger.balance != 5 {
		t.Fatalf("balance = %d, want 5 (image 1 + video 4 retained)", ledger.balance)
	}
	if len(rec.records) != 1 || rec.records[0].Kind != history.KindImageVideo || rec.records[0].CreditsUsed != 5 {
		t.Fatalf("history record = %+v", rec.records)
	}
	for _, u := range *updates {
		if u.Status == domain.ItemStatusGeneratingVideo && (u.Progress < 45 || u.Progress > 95) {
			t.Fatalf("video-phase progress %d outside the 45-95 band", u.Progress)
		}
	}
}

func TestRunVideoFailureIsPartialSuccess(t *testing.T) {
	ledger := newFakeLedger(10)
	gen := &fakeGenerator{videoErr: domain.ErrProviderTimeout}
	rec := &fakeRecorder{}
	p := New(Options{Ledger: ledger, Generator: gen, History: rec, Store: &memStore{}})

	emit, _ := collect()
	final := p.Run(context.Background(), testCampaign(true), testItem(), emit)

	if final.Status != domain.ItemStatusCompleted {
		t.Fatalf("status = %q, want completed with image deliverable", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Fatal("partial success must carry the video error message")
	}
	if final.VideoResult != nil {
		t.Fatal("failed video leg must not attach a video result")
	}
	// Image credit kept, video credit refunded.
	if ledger.balance != 9 {
		t.Fatalf("balance = %d, want 9", ledger.balance)
	}
	if len(ledger.refunds) != 1 || ledger.refunds[0] != 4 {
		t.Fatalf("refunds = %v, want exactly one video refund of 4", ledger.refunds)
	}
	if len(rec.records) != 1 || rec.records[0].Kind != history.KindImage || rec.records[0].CreditsUsed != 1 {
		t.Fatalf("history record = %+v", rec.records)
	}
}

func TestRunVideoChargeShortfallKeepsImage(t *testing.T) {
	ledger := newFakeLedger(2)
	gen := &fakeGenerator{}
	rec := &fakeRecorder{}
	p := New(Options{Ledger: ledger, Generator: gen, History: rec, Store: &memStore{}})

	emit, _ := collect()
	final := p.Run(context.Background(), testCampaign(true), testItem(), emit)

	if final.Status != domain.ItemStatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "insufficient") {
		t.Fatalf("error message = %q, want the charge message", final.ErrorMessage)
	}
	if gen.videoCalls != 0 {
		t.Fatal("video provider called despite failed charge")
	}
	if ledger.balance != 1 {
		t.Fatalf("balance = %d, want 1 (image charge only)", ledger.balance)
	}
	if len(ledger.refunds) != 0 {
		t.Fatal("nothing was deducted for video, nothing may be refunded")
	}
}

func TestRunChargeErrorIsTerminal(t *testing.T) {
	ledger := newFakeLedger(10)
	ledger.chargeErr = errors.New("ledger offline")
	gen := &fakeGenerator{}
	p := New(Options{Ledger: ledger, Generator: gen, History: &fakeRecorder{}, Store: &memStore{}})

	emit, _ := collect()
	final := p.Run(context.Background(), testCampaign(false), testItem(), emit)

	if final.Status != domain.ItemStatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
	if gen.imageCalls != 0 {
		t.Fatal("provider called despite ledger error")
	}
}

func TestRunHistoryFailureDoesNotFailItem(t *testing.T) {
	ledger := newFakeLedger(10)
	rec := &fakeRecorder{err: errors.New("history unavailable")}
	p := New(Options{Ledger: ledger, Generator: &fakeGenerator{}, History: rec, Store: &memStore{}})

	emit, _ := collect()
	final := p.Run(context.Background(), testCampaign(false), testItem(), emit)

	if final.Status != domain.ItemStatusCompleted {
		t.Fatalf("status = %q, want completed despite history failure", final.Status)
	}
	if ledger.balance != 9 {
		t.Fatalf("balance = %d, want 9 (charge retained, deliverable exists)", ledger.balance)
	}
}

func TestRunRefundFailureStillSettlesItem(t *testing.T) {
	ledger := newFakeLedger(10)
	ledger.refundErr = errors.New("refund rejected")
	ledger.refundErrOps = 1
	gen := &fakeGenerator{imageErr: domain.ErrProviderOverloaded}
	p := New(Options{Ledger: ledger, Generator: gen, History: &fakeRecorder{}, Store: &memStore{}})

	emit, _ := collect()
	final := p.Run(context.Background(), testCampaign(false), testItem(), emit)

	if final.Status != domain.ItemStatusFailed {
		t.Fatalf("status = %q, want failed", final.Status)
	}
}

func TestRunStoresMediaUnderCampaignKeys(t *testing.T) {
	store := &memStore{}
	p := New(Options{Ledger: newFakeLedger(10), Generator: &fakeGenerator{}, History: &fakeRecorder{}, Store: store})

	emit, _ := collect()
	p.Run(context.Background(), testCampaign(true), testItem(), emit)

	if len(store.keys) != 2 {
		t.Fatalf("stored keys = %v, want image and video", store.keys)
	}
	if store.keys[0] != "campaigns/c-1/item-01-image.png" {
		t.Fatalf("image key = %q", store.keys[0])
	}
	if store.keys[1] != "campaigns/c-1/item-01-video.mp4" {
		t.Fatalf("video key = %q", store.keys[1])
	}
}
