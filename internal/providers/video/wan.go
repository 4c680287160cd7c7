package video

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"atelier/internal/domain"
)

// WanOptions configures the DashScope-backed secondary video provider.
type WanOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// WanGenerator drives DashScope's Wan image-to-video tasks. It is the
// designated secondary: invoked once when the primary fails with an
// overload-class error after the poll/timeout path.
type WanGenerator struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

func NewWanGenerator(opts WanOptions) *WanGenerator {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := opts.Model
	if model == "" {
		model = "wan2.2-i2v-flash"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &WanGenerator{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

type wanSubmitRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt string `json:"prompt"`
		ImgURL string `json:"img_url"`
	} `json:"input"`
	Parameters struct {
		Resolution string `json:"resolution,omitempty"`
	} `json:"parameters"`
}

type wanTaskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Code       string `json:"code"`
		Message    string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *WanGenerator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if g.token == "" {
		return "", errors.New("wan: api key is missing")
	}
	mime := req.ImageMIME
	if mime == "" {
		mime = "image/png"
	}
	var payload wanSubmitRequest
	payload.Model = g.model
	payload.Input.Prompt = req.Prompt
	payload.Input.ImgURL = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.ImageData))

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("wan: marshal request: %w", err)
	}
	endpoint := g.baseURL + "/services/aigc/video-generation/video-synthesis"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("wan: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.token)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	var decoded wanTaskResponse
	status, err := g.invoke(httpReq, &decoded)
	if err != nil {
		return "", err
	}
	if status >= http.StatusBadRequest || decoded.Code != "" {
		return "", classifyWanError(status, decoded.Code, decoded.Message)
	}
	if decoded.Output.TaskID == "" {
		return "", fmt.Errorf("wan: submit returned no task id")
	}
	return decoded.Output.TaskID, nil
}

func (g *WanGenerator) Poll(ctx context.Context, handle string) (PollResult, error) {
	endpoint := g.baseURL + "/tasks/" + handle
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("wan: create poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.token)

	var decoded wanTaskResponse
	status, err := g.invoke(httpReq, &decoded)
	if err != nil {
		return PollResult{}, err
	}
	if status >= http.StatusBadRequest || decoded.Code != "" {
		return PollResult{}, classifyWanError(status, decoded.Code, decoded.Message)
	}
	switch decoded.Output.TaskStatus {
	case "SUCCEEDED":
		return PollResult{Done: true, ResultRef: decoded.Output.VideoURL}, nil
	case "FAILED", "CANCELED":
		return PollResult{}, classifyWanError(status, decoded.Output.Code, decoded.Output.Message)
	default:
		return PollResult{Done: false}, nil
	}
}

func (g *WanGenerator) Fetch(ctx context.Context, resultRef string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultRef, nil)
	if err != nil {
		return nil, fmt.Errorf("wan: create download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wan: download: %v: %w", err, domain.ErrDownloadFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("wan: download status %d: %w", resp.StatusCode, domain.ErrDownloadFailed)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wan: read download: %v: %w", err, domain.ErrDownloadFailed)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "video/mp4"
	}
	return &Asset{Data: data, Format: format}, nil
}

func (g *WanGenerator) String() string { return g.model }

var _ Generator = (*WanGenerator)(nil)

func (g *WanGenerator) invoke(req *http.Request, out *wanTaskResponse) (int, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("wan: invoke: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("wan: decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// classifyWanError maps DashScope task errors onto the domain taxonomy.
func classifyWanError(status int, code, message string) error {
	switch {
	case status == http.StatusTooManyRequests,
		strings.HasPrefix(code, "Throttling"),
		status == http.StatusServiceUnavailable:
		return fmt.Errorf("wan %s: %s: %w", code, message, domain.ErrProviderOverloaded)
	case code == "DataInspectionFailed", code == "IPInfringementSuspect":
		return fmt.Errorf("wan %s: %s: %w", code, message, domain.ErrContentPolicy)
	case code == "InvalidParameter", status == http.StatusBadRequest:
		return fmt.Errorf("wan %s: %s: %w", code, message, domain.ErrMalformedRequest)
	default:
		return fmt.Errorf("wan %s (status %d): %s", code, status, message)
	}
}
