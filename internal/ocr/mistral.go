package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdfocr/internal/logging"
)

type OCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OCRResponse struct {
	Pages     []OCRPage `json:"pages"`
	Model     string    `json:"model"`
	UsageInfo UsageInfo `json:"usage_info"`
}

type UsageInfo struct {
	PagesProcessed int  `json:"pages_processed"`
	DocSizeBytes   *int `json:"doc_size_bytes"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the Mistral OCR endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mistral OCR %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

const (
	defaultMistralURL   = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
	defaultRetryDelay   = 2 * time.Second
	defaultOCRTimeout   = 120 * time.Second
	maxResponseBytes    = 100 << 20
)

type MistralOptions struct {
	APIKey  string
	URL     string
	Model   string
	Retries int
	// RetryDelay is multiplied by the attempt number.
	RetryDelay    time.Duration
	Timeout       time.Duration
	MaxConcurrent int64
	RateEvery     time.Duration
	RateBurst     int
	HTTPClient    *http.Client
	Log           logrus.FieldLogger
}

// MistralEngine sends each page image to the Mistral OCR API as an
// image_url document and returns the markdown reduced to plain text.
type MistralEngine struct {
	opts   MistralOptions
	client *http.Client
	limit  *limiter
	log    logrus.FieldLogger
}

func NewMistral(opts MistralOptions) (*MistralEngine, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("MISTRAL_API_KEY not configured")
	}
	if opts.URL == "" {
		opts.URL = defaultMistralURL
	}
	if opts.Model == "" {
		opts.Model = defaultMistralModel
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultOCRTimeout
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &MistralEngine{
		opts:   opts,
		client: client,
		limit:  newLimiter(opts.MaxConcurrent, opts.RateEvery, opts.RateBurst),
		log:    log.WithField("engine", "mistral"),
	}, nil
}

func (e *MistralEngine) Name() string { return "mistral" }

// Recognize ignores lang; the service detects the script itself.
func (e *MistralEngine) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	png, err := EncodePNG(img)
	if err != nil {
		return "", wrap(e.Name(), err)
	}

	body := map[string]any{
		"model": e.opts.Model,
		"document": map[string]any{
			"type":      "image_url",
			"image_url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", wrap(e.Name(), fmt.Errorf("marshal: %w", err))
	}

	resp, err := withLimit(ctx, e.limit, func() (OCRResponse, error) {
		var lastErr error
		for attempt := 0; attempt <= e.opts.Retries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return OCRResponse{}, ctx.Err()
				case <-time.After(e.opts.RetryDelay * time.Duration(attempt)):
				}
				e.log.WithError(lastErr).WithField("attempt", attempt+1).Warn("retrying OCR request")
			}

			result, err := e.execute(ctx, bodyBytes)
			if err == nil {
				return result, nil
			}
			lastErr = err

			// Don't retry client errors (4xx)
			if isClientError(err) || ctx.Err() != nil {
				break
			}
		}
		return OCRResponse{}, fmt.Errorf("OCR failed after %d attempts: %w", e.opts.Retries+1, lastErr)
	})
	if err != nil {
		return "", wrap(e.Name(), err)
	}

	return combinePages(resp), nil
}

func (e *MistralEngine) execute(ctx context.Context, bodyBytes []byte) (OCRResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.opts.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return OCRResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pdfocr/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return OCRResponse{}, eris.Wrap(err, "mistral request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OCRResponse{}, parseErrorResponse(resp)
	}

	var result OCRResponse
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := decoder.Decode(&result); err != nil {
		return OCRResponse{}, fmt.Errorf("decode: %w", err)
	}
	if len(result.Pages) == 0 {
		return OCRResponse{}, fmt.Errorf("OCR returned no pages")
	}
	for i, page := range result.Pages {
		if page.Index < 0 {
			return OCRResponse{}, fmt.Errorf("invalid page index at %d: %d", i, page.Index)
		}
		if len(page.Markdown) > 10<<20 {
			return OCRResponse{}, fmt.Errorf("page %d markdown too large: %dMB", page.Index, len(page.Markdown)/(1<<20))
		}
	}
	return result, nil
}

func parseErrorResponse(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp mistralErrorResponse
	if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error.Message,
			Type:       errResp.Error.Type,
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(bodyBytes)),
		Type:       "unknown",
	}
}

func isClientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return false
}

// combinePages joins the returned page markdown, already reduced to text.
func combinePages(resp OCRResponse) string {
	var parts []string
	for _, p := range resp.Pages {
		md := strings.TrimSpace(p.Markdown)
		if md == "" || md == "." {
			continue
		}
		parts = append(parts, StripMarkup(md))
	}
	return strings.Join(parts, "\n\n")
}
