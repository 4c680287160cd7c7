package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"atelier/internal/middleware"
)

const testUserID = "6b9f54c8-3f2a-4f1e-9c58-6a2d9b6f4c21"

type fakeSQL struct {
	rowFor  func(query string, args []any) fakeRow
	rowsFor func(query string, args []any) *fakeRows
}

func (f *fakeSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if f.rowFor == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return f.rowFor(query, args)
}

func (f *fakeSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if f.rowsFor == nil {
		return &fakeRows{}, nil
	}
	return f.rowsFor(query, args), nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(r.vals))
	}
	for i, val := range r.vals {
		if err := assign(dest[i], val); err != nil {
			return err
		}
	}
	return nil
}

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return fakeRow{vals: r.rows[r.idx-1]}.Scan(dest...)
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func assign(dest, val any) error {
	switch d := dest.(type) {
	case *string:
		*d = val.(string)
	case *int:
		*d = val.(int)
	case *int64:
		*d = int64(toInt(val))
	case *[]byte:
		*d = val.([]byte)
	case *any:
		*d = val
	case **string:
		if val == nil {
			*d = nil
		} else {
			s := val.(string)
			*d = &s
		}
	default:
		// Named string types (statuses) land here.
		rv := reflect.ValueOf(dest)
		if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.String {
			rv.Elem().SetString(val.(string))
			return nil
		}
		return fmt.Errorf("assign: unsupported dest %T", dest)
	}
	return nil
}

func toInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func newTestRouter(sql *fakeSQL) *chi.Mux {
	app := NewApp(sql, nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.UserID)
		r.Post("/campaigns", app.CampaignsGenerate)
		r.Get("/campaigns/{campaign_id}", app.CampaignStatus)
		r.Post("/campaigns/{campaign_id}/items/{item_id}/regenerate", app.CampaignRegenerate)
		r.Get("/history", app.HistoryList)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-ID", testUserID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCampaignsGenerateQueues(t *testing.T) {
	sql := &fakeSQL{rowFor: func(query string, args []any) fakeRow {
		if len(args) != 3 {
			t.Fatalf("enqueue got %d args, want 3", len(args))
		}
		return fakeRow{vals: []any{args[0]}}
	}}
	router := newTestRouter(sql)

	body := `{"analysis":{"description":"a linen midi dress"},"config":{"mode":"photoshoot","item_count":6,"include_video":true}}`
	rec := doRequest(t, router, http.MethodPost, "/api/campaigns", body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		CampaignID string `json:"campaign_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CampaignID == "" || resp.Status != "queued" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestCampaignsGenerateRejectsMissingDescription(t *testing.T) {
	router := newTestRouter(&fakeSQL{})
	rec := doRequest(t, router, http.MethodPost, "/api/campaigns", `{"analysis":{},"config":{"mode":"photoshoot"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCampaignsGenerateRequiresUser(t *testing.T) {
	router := newTestRouter(&fakeSQL{})
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCampaignStatusReportsProgress(t *testing.T) {
	sql := &fakeSQL{
		rowFor: func(query string, args []any) fakeRow {
			return fakeRow{vals: []any{"c-1", testUserID, "running", []byte(`{}`), nil, nil}}
		},
		rowsFor: func(query string, args []any) *fakeRows {
			return &fakeRows{rows: [][]any{
				{1, "Front Full-Body", 42, "completed", 100, "campaigns/c-1/item-01-image.png", nil, nil},
				{2, "Back View", 42, "generating_video", 70, "campaigns/c-1/item-02-image.png", nil, nil},
			}}
		},
	}
	router := newTestRouter(sql)

	rec := doRequest(t, router, http.MethodGet, "/api/campaigns/c-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status  string `json:"status"`
		Phase   string `json:"phase"`
		Overall int    `json:"overall_progress"`
		Stage   string `json:"stage_label"`
		Items   []struct {
			ID       int    `json:"id"`
			Status   string `json:"status"`
			ImageRef string `json:"image_ref"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Phase != "generating" {
		t.Fatalf("phase = %q, want generating", resp.Phase)
	}
	// Average item progress 85 maps into the 15-100 band.
	if want := 15 + 85*85/100; resp.Overall != want {
		t.Fatalf("overall = %d, want %d", resp.Overall, want)
	}
	if resp.Stage != "generating videos" {
		t.Fatalf("stage = %q, want generating videos", resp.Stage)
	}
	if len(resp.Items) != 2 || resp.Items[0].ImageRef == "" {
		t.Fatalf("items = %+v", resp.Items)
	}
}

func TestCampaignStatusNotFound(t *testing.T) {
	sql := &fakeSQL{rowFor: func(string, []any) fakeRow { return fakeRow{err: pgx.ErrNoRows} }}
	router := newTestRouter(sql)
	rec := doRequest(t, router, http.MethodGet, "/api/campaigns/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCampaignRegenerateConflictWhenRunning(t *testing.T) {
	sql := &fakeSQL{rowFor: func(string, []any) fakeRow { return fakeRow{err: pgx.ErrNoRows} }}
	router := newTestRouter(sql)
	rec := doRequest(t, router, http.MethodPost, "/api/campaigns/c-1/items/2/regenerate", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCampaignRegenerateAccepted(t *testing.T) {
	sql := &fakeSQL{rowFor: func(query string, args []any) fakeRow {
		if len(args) != 3 {
			t.Fatalf("regenerate got %d args, want 3", len(args))
		}
		return fakeRow{vals: []any{"c-1"}}
	}}
	router := newTestRouter(sql)
	rec := doRequest(t, router, http.MethodPost, "/api/campaigns/c-1/items/2/regenerate", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
}

func TestCampaignRegenerateRejectsBadItemID(t *testing.T) {
	router := newTestRouter(&fakeSQL{})
	rec := doRequest(t, router, http.MethodPost, "/api/campaigns/c-1/items/zero/regenerate", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
