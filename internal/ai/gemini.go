// Package ai wraps the Google Generative Language API: text generation,
// streaming generation and embeddings, with API key rotation on rate limits.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/metrics"
)

const (
	DefaultTemperature = 0.7
	EmbeddingDimension = 768

	rateLimitDelay   = 2 * time.Second
	serverErrorDelay = 3 * time.Second

	embedMaxRetries    = 3
	generateMaxRetries = 1

	defaultBaseURL = "https://generativelanguage.googleapis.com"
	maxErrorBody   = 4 << 10
)

var (
	// ErrNoAPIKeys is a startup error: the client cannot be built without keys.
	ErrNoAPIKeys = errors.New("no Gemini API keys configured")
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrAPICallFailed indicates the HTTP call itself failed
	ErrAPICallFailed = errors.New("Gemini API call failed")
	// ErrInvalidResponse indicates a response that could not be decoded
	ErrInvalidResponse = errors.New("invalid Gemini API response")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Body)
}

// Turn is one prior message of a conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Options tunes a generation call. A zero Temperature means DefaultTemperature.
type Options struct {
	Temperature       float64
	SystemInstruction string
	History           []Turn
}

type Config struct {
	APIKeys        []string
	Model          string
	EmbeddingModel string
	BaseURL        string
	HTTPClient     *http.Client
}

// Client is the content generator. One instance owns its key pool.
type Client struct {
	keys           *KeyPool
	model          string
	embeddingModel string
	baseURL        string
	httpClient     *http.Client
	logger         *zap.Logger

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	keys, err := NewKeyPool(cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Initialized Gemini client", zap.Int("api_keys", keys.Len()), zap.String("model", cfg.Model))

	return &Client{
		keys:           keys,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:     cfg.HTTPClient,
		logger:         logger,
		sleep:          sleepCtx,
	}, nil
}

// KeyIndex reports the index of the key currently in use.
func (c *Client) KeyIndex() int { return c.keys.Index() }

// KeyStatus lists the configured keys, masked.
func (c *Client) KeyStatus() []KeyStatus { return c.keys.Status() }

// ====================== Wire types ======================

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type embedRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// ====================== Operations ======================

// Generate returns the model's answer to prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	body := buildRequest(prompt, opts)

	var text string
	err := c.withRetry(ctx, "generate", generateMaxRetries, func(ctx context.Context, key string) error {
		resp, err := c.post(ctx, key, c.modelURL(c.model, "generateContent"), body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var out generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		text = out.text()
		return nil
	})
	if err != nil {
		c.logger.Error("Error generating content", zap.Error(err))
		return "", err
	}
	return text, nil
}

// GenerateStream yields the answer in chunks as the API produces them. The
// sequence is single-use; breaking out of the range loop closes the upstream
// response. A failure is yielded once as a non-nil error and ends the sequence.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if strings.TrimSpace(prompt) == "" {
			yield("", ErrEmptyPrompt)
			return
		}
		body := buildRequest(prompt, opts)

		var resp *http.Response
		err := c.withRetry(ctx, "stream", generateMaxRetries, func(ctx context.Context, key string) error {
			r, err := c.post(ctx, key, c.modelURL(c.model, "streamGenerateContent")+"?alt=sse", body)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			c.logger.Error("Error generating content stream", zap.Error(err))
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}
			var chunk generateResponse
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &chunk); err != nil {
				yield("", fmt.Errorf("%w: %v", ErrInvalidResponse, err))
				return
			}
			if text := chunk.text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			yield("", fmt.Errorf("%w: %v", ErrAPICallFailed, err))
		}
	}
}

// Embed returns a 768-dimension embedding for text. It never fails: after
// retries are exhausted it returns a zero vector so indexing can continue.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	req := embedRequest{
		Model:   "models/" + c.embeddingModel,
		Content: content{Parts: []part{{Text: text}}},
	}

	var values []float32
	err := c.withRetry(ctx, "embed", embedMaxRetries, func(ctx context.Context, key string) error {
		resp, err := c.post(ctx, key, c.modelURL(c.embeddingModel, "embedContent"), req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var out embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		values = out.Embedding.Values
		return nil
	})
	if err != nil || len(values) == 0 {
		c.logger.Error("Error embedding text after retries", zap.Error(err), zap.Int("values", len(values)))
		return make([]float32, EmbeddingDimension)
	}
	return values
}

// ====================== Transport ======================

// withRetry runs call with the current key. Rate limits rotate the key and
// retry after rateLimitDelay; 500/503 retry on the same key after
// serverErrorDelay. Any other error is returned immediately.
func (c *Client) withRetry(ctx context.Context, op string, maxRetries int, call func(ctx context.Context, key string) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		idx, key := c.keys.Current()
		err = call(ctx, key)
		if err == nil {
			metrics.LLMRequests.WithLabelValues(op, "ok").Inc()
			return nil
		}
		metrics.LLMRequests.WithLabelValues(op, "error").Inc()

		if attempt >= maxRetries {
			return err
		}

		var delay time.Duration
		switch {
		case isRateLimited(err):
			next := c.keys.Rotate(idx)
			metrics.LLMKeyRotations.Inc()
			c.logger.Warn("API key limit exhausted, switching",
				zap.String("op", op),
				zap.Int("from_key", idx+1),
				zap.Int("to_key", next+1),
				zap.Int("keys", c.keys.Len()),
			)
			delay = rateLimitDelay
		case isServerError(err):
			c.logger.Warn("Gemini service error, retrying", zap.String("op", op), zap.Error(err))
			delay = serverErrorDelay
		default:
			return err
		}

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func (c *Client) modelURL(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, model, method)
}

// post sends payload as JSON and returns the response for a 2xx status.
// The caller owns the response body.
func (c *Client) post(ctx context.Context, key, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func buildRequest(prompt string, opts Options) generateRequest {
	temp := opts.Temperature
	if temp == 0 {
		temp = DefaultTemperature
	}
	req := generateRequest{
		Contents:         formatContents(prompt, opts.History),
		GenerationConfig: generationConfig{Temperature: temp},
	}
	if strings.TrimSpace(opts.SystemInstruction) != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: opts.SystemInstruction}}}
	}
	return req
}

// formatContents maps history onto the user/model schema, drops empty turns
// and appends the prompt as the final user turn.
func formatContents(prompt string, history []Turn) []content {
	out := make([]content, 0, len(history)+1)
	for _, t := range history {
		if t.Text == "" {
			continue
		}
		role := "user"
		if t.Role == "assistant" || t.Role == "model" {
			role = "model"
		}
		out = append(out, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	return append(out, content{Role: "user", Parts: []part{{Text: prompt}}})
}

// isRateLimited trusts the status of an APIError. Message matching is only a
// fallback for errors that carry no status, such as a proxy's transport error.
func isRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}

func isServerError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusInternalServerError || apiErr.StatusCode == http.StatusServiceUnavailable
	}
	return strings.Contains(err.Error(), "Service Unavailable")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
