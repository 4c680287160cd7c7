package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"atelier/internal/domain"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	VideoModel string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client is a thin facade over the Gemini REST surface used by the image and
// video providers: synchronous image generation plus long-running Veo
// operations. Failure classes are normalized onto the domain error taxonomy
// so callers never inspect HTTP details.
type Client struct {
	apiKey     string
	baseURL    string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     zerolog.Logger
}

// ImageRequest represents the information required to generate one image.
type ImageRequest struct {
	Prompt      string
	References  []ReferenceImage
	Seed        int64
	AspectRatio string
}

// ReferenceImage is conditioning input passed inline with the prompt.
type ReferenceImage struct {
	Data []byte
	MIME string
}

// ImageAsset is the normalized image result.
type ImageAsset struct {
	Data   []byte
	Format string
}

// VideoRequest seeds an asynchronous image-to-video job.
type VideoRequest struct {
	ImageData   []byte
	ImageMIME   string
	Prompt      string
	AspectRatio string
}

// VideoOperation is one poll observation of a long-running video job.
type VideoOperation struct {
	Done      bool
	ResultURI string
}

func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "veo-3.0-generate-001"
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageModel: imageModel,
		videoModel: videoModel,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string { return c.imageModel }

// VideoModel returns the configured video model identifier.
func (c *Client) VideoModel() string { return c.videoModel }

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	Seed               int64        `json:"seed,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// GenerateImage performs one synchronous image generation call. The seed is
// forwarded verbatim so that a campaign's items share a consistent subject.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	parts := []part{{Text: req.Prompt}}
	for _, ref := range req.References {
		if len(ref.Data) == 0 {
			continue
		}
		mime := ref.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			Seed:               req.Seed,
			ImageConfig:        &imageConfig{AspectRatio: req.AspectRatio},
		},
	}

	var response generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.imageModel))
	if err := c.invoke(ctx, http.MethodPost, path, payload, &response); err != nil {
		return nil, err
	}

	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini: prompt blocked (%s): %w", response.PromptFeedback.BlockReason, domain.ErrContentPolicy)
	}
	for _, cand := range response.Candidates {
		if blockedFinishReason(cand.FinishReason) {
			return nil, fmt.Errorf("gemini: generation blocked (%s): %w", cand.FinishReason, domain.ErrContentPolicy)
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini: decode inline image: %w", err)
			}
			format := p.InlineData.MimeType
			if format == "" {
				format = "image/png"
			}
			return &ImageAsset{Data: data, Format: format}, nil
		}
	}
	return nil, fmt.Errorf("gemini: no image content returned")
}

type videoSubmitRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *inlineData `json:"image,omitempty"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Error    *struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// SubmitVideo starts a long-running Veo job seeded with the generated image
// and returns the operation name. The caller owns the poll loop.
func (c *Client) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	mime := req.ImageMIME
	if mime == "" {
		mime = "image/png"
	}
	payload := videoSubmitRequest{
		Instances: []videoInstance{{
			Prompt: req.Prompt,
			Image: &inlineData{
				MimeType: mime,
				Data:     base64.StdEncoding.EncodeToString(req.ImageData),
			},
		}},
		Parameters: videoParameters{AspectRatio: req.AspectRatio},
	}

	var op operationResponse
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.videoModel))
	if err := c.invoke(ctx, http.MethodPost, path, payload, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("veo: submit returned no operation name")
	}
	return op.Name, nil
}

// PollVideo reads one observation of a long-running video job. A terminal
// operation error is normalized onto the domain taxonomy.
func (c *Client) PollVideo(ctx context.Context, operationName string) (VideoOperation, error) {
	var op operationResponse
	if err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimPrefix(operationName, "/"), nil, &op); err != nil {
		return VideoOperation{}, err
	}
	if op.Error != nil {
		return VideoOperation{}, classifyOperationError(op.Error.Code, op.Error.Status, op.Error.Message)
	}
	if !op.Done {
		return VideoOperation{Done: false}, nil
	}
	if op.Response != nil {
		samples := op.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) > 0 && samples[0].Video.URI != "" {
			return VideoOperation{Done: true, ResultURI: samples[0].Video.URI}, nil
		}
	}
	return VideoOperation{}, fmt.Errorf("veo: operation finished without a result")
}

// FetchVideo downloads the finished job's result reference into bytes.
func (c *Client) FetchVideo(ctx context.Context, resultURI string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURI, nil)
	if err != nil {
		return nil, "", fmt.Errorf("veo: create download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("veo: download: %v: %w", err, domain.ErrDownloadFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("veo: download status %d: %w", resp.StatusCode, domain.ErrDownloadFailed)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("veo: read download: %v: %w", err, domain.ErrDownloadFailed)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "video/mp4"
	}
	return data, format, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, payload, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("genai: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genai: invoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		data, _ := io.ReadAll(resp.Body)
		message := strings.TrimSpace(string(data))
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		classified := classifyHTTPStatus(resp.StatusCode, message)
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("genai: request failed")
		return classified
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("genai: decode response: %w", err)
	}
	return nil
}

func blockedFinishReason(reason string) bool {
	switch strings.ToUpper(reason) {
	case "SAFETY", "IMAGE_SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return true
	default:
		return false
	}
}

// classifyHTTPStatus maps a failed Gemini HTTP call onto the domain taxonomy.
func classifyHTTPStatus(status int, message string) error {
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusServiceUnavailable,
		strings.Contains(lower, "resource_exhausted"),
		strings.Contains(lower, "overloaded"):
		return fmt.Errorf("gemini status %d: %s: %w", status, message, domain.ErrProviderOverloaded)
	case strings.Contains(lower, "safety"), strings.Contains(lower, "policy"):
		return fmt.Errorf("gemini status %d: %s: %w", status, message, domain.ErrContentPolicy)
	case status == http.StatusBadRequest:
		return fmt.Errorf("gemini status %d: %s: %w", status, message, domain.ErrMalformedRequest)
	default:
		return fmt.Errorf("gemini status %d: %s", status, message)
	}
}

// classifyOperationError maps a terminal long-running-operation error.
// Disallowed subject detections and explicit policy rejections must surface
// verbatim and never trigger failover.
func classifyOperationError(code int, status, message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "public figure"),
		strings.Contains(lower, "celebrity"),
		strings.Contains(lower, "minor"),
		strings.Contains(lower, "child"):
		return fmt.Errorf("veo: %s: %w", message, domain.ErrDisallowedSubject)
	case strings.Contains(lower, "safety"), strings.Contains(lower, "policy"), strings.Contains(lower, "prohibited"):
		return fmt.Errorf("veo: %s: %w", message, domain.ErrContentPolicy)
	case code == 3, strings.EqualFold(status, "INVALID_ARGUMENT"):
		return fmt.Errorf("veo: %s: %w", message, domain.ErrMalformedRequest)
	case code == 8, code == 14, code == 4,
		strings.EqualFold(status, "RESOURCE_EXHAUSTED"),
		strings.EqualFold(status, "UNAVAILABLE"),
		strings.EqualFold(status, "DEADLINE_EXCEEDED"):
		return fmt.Errorf("veo: %s: %w", message, domain.ErrProviderOverloaded)
	default:
		return fmt.Errorf("veo: operation failed: %s", message)
	}
}
