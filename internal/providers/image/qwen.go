package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"atelier/internal/domain"
)

// QwenOptions configures the DashScope-backed secondary provider.
type QwenOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// QwenGenerator calls DashScope's Qwen image model. It serves as the
// designated secondary: the generation client invokes it once after
// exhausting overload retries against the primary.
type QwenGenerator struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

func NewQwenGenerator(opts QwenOptions) *QwenGenerator {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := opts.Model
	if model == "" {
		model = "qwen-image"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &QwenGenerator{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []qwenMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Size      string `json:"size,omitempty"`
		Seed      *int64 `json:"seed,omitempty"`
		Watermark bool   `json:"watermark"`
	} `json:"parameters"`
}

type qwenMessage struct {
	Role    string              `json:"role"`
	Content []map[string]string `json:"content"`
}

type qwenResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []map[string]string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *QwenGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if g.token == "" {
		return nil, errors.New("qwen: api key is missing")
	}

	var payload qwenRequest
	payload.Model = g.model
	payload.Input.Messages = []qwenMessage{{
		Role:    "user",
		Content: []map[string]string{{"text": req.Prompt}},
	}}
	payload.Parameters.Size = aspectRatioSize(req.AspectRatio)
	seed := req.Seed
	payload.Parameters.Seed = &seed
	payload.Parameters.Watermark = false

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: marshal request: %w", err)
	}
	endpoint := g.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qwen: invoke: %w", err)
	}
	defer resp.Body.Close()

	var decoded qwenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || decoded.Code != "" {
		return nil, classifyQwenError(resp.StatusCode, decoded.Code, decoded.Message)
	}

	for _, choice := range decoded.Output.Choices {
		for _, content := range choice.Message.Content {
			if url := strings.TrimSpace(content["image"]); url != "" {
				return g.download(ctx, url)
			}
		}
	}
	return nil, fmt.Errorf("qwen: no image content returned")
}

func (g *QwenGenerator) String() string { return g.model }

func (g *QwenGenerator) download(ctx context.Context, url string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("qwen: create download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qwen: download: %v: %w", err, domain.ErrDownloadFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("qwen: download status %d: %w", resp.StatusCode, domain.ErrDownloadFailed)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qwen: read download: %v: %w", err, domain.ErrDownloadFailed)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return &Asset{Data: data, Format: format}, nil
}

// classifyQwenError maps DashScope error codes onto the domain taxonomy.
func classifyQwenError(status int, code, message string) error {
	switch {
	case status == http.StatusTooManyRequests,
		strings.HasPrefix(code, "Throttling"),
		code == "LimitRequests",
		status == http.StatusServiceUnavailable:
		return fmt.Errorf("qwen %s: %s: %w", code, message, domain.ErrProviderOverloaded)
	case code == "DataInspectionFailed", code == "IPInfringementSuspect":
		return fmt.Errorf("qwen %s: %s: %w", code, message, domain.ErrContentPolicy)
	case code == "InvalidParameter", status == http.StatusBadRequest:
		return fmt.Errorf("qwen %s: %s: %w", code, message, domain.ErrMalformedRequest)
	default:
		return fmt.Errorf("qwen %s (status %d): %s", code, status, message)
	}
}

// aspectRatioSize maps an aspect ratio string to the DashScope size token.
func aspectRatioSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4":
		return "1140*1472"
	case "9:16":
		return "928*1664"
	default:
		return "1328*1328"
	}
}
