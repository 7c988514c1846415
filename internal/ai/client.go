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
	"math/rand"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is Groq's OpenAI-compatible API root.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// maxBodyBytes caps a non-streamed reply body.
const maxBodyBytes = 8 << 20

type Client struct {
	httpClient       *http.Client
	apiKey           string
	model            string
	baseURL          string
	stream           bool
	maxTokens        int
	temperature      float64
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat-completions payload. Zero Model, MaxTokens and
// Temperature take the client's values.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewClient builds a Groq client. Zero values get defaults; RetryMax of 0
// means a single attempt.
func NewClient(cfg RuntimeConfig) *Client {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 4 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:       &http.Client{Timeout: cfg.HTTPTimeout},
		apiKey:           cfg.APIKey,
		model:            cfg.Model,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		stream:           cfg.Stream,
		maxTokens:        cfg.MaxTokens,
		temperature:      cfg.Temperature,
		retryMaxAttempts: cfg.RetryMax,
		retryBaseDelay:   cfg.BaseDelay,
		retryMaxDelay:    cfg.MaxDelay,
	}
}

func (c *Client) ValidateModel(model string) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	return nil
}

// Chat sends one chat-completions request. With streaming enabled the reply
// carries a chunk iterator that owns the response body.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	if c.apiKey == "" {
		return nil, errors.New("GROQ_API_KEY is missing")
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if err := c.ValidateModel(req.Model); err != nil {
		return nil, err
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	req.Stream = req.Stream || c.stream
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.do(ctx, payload, req.Stream)
	if err != nil {
		return nil, err
	}
	rid := extractRequestID(resp)
	if isEventStream(resp) {
		reply := &Reply{RequestID: rid}
		reply.Chunks = readEvents(resp.Body, &reply.Usage)
		return reply, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	reply, err := decodeReply(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	reply.RequestID = rid
	return reply, nil
}

// do performs the POST with retry on 429/5xx and timeouts. The caller owns
// the body of the returned 2xx response.
func (c *Client) do(ctx context.Context, payload []byte, stream bool) (*http.Response, error) {
	endpoint := c.baseURL + "/chat/completions"
	maxAttempts := c.retryMaxAttempts
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", "csvchat")
		if stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = &UnreachableError{Host: hostOf(endpoint), Err: err}
			if isRetryableNetErr(err) && attempt < maxAttempts {
				if err := sleepCtx(ctx, withJitter(backoff)); err != nil {
					return nil, err
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := readAPIError(resp)
		retryable := resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)
		if !retryable || attempt >= maxAttempts {
			return nil, classifyAPIError(apiErr, resp)
		}
		lastErr = apiErr
		sleep := withJitter(backoff)
		if c.retryMaxDelay > 0 && sleep > c.retryMaxDelay {
			sleep = c.retryMaxDelay
		}
		// Retry-After wins over the computed backoff.
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := parseRetryAfterSeconds(ra); err == nil && secs >= 0 {
				sleep = time.Duration(secs) * time.Second
			}
		}
		if err := sleepCtx(ctx, sleep); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, lastErr
}

// decodeReply maps a non-streamed body onto a Reply. A JSON string or a
// text/plain body is kept as Raw.
func decodeReply(body []byte, contentType string) (*Reply, error) {
	if !gjson.ValidBytes(body) {
		if mt, _, _ := mime.ParseMediaType(contentType); mt == "text/plain" {
			raw := string(body)
			return &Reply{Raw: &raw}, nil
		}
		return nil, fmt.Errorf("decode response: invalid JSON body (%d bytes)", len(body))
	}
	r := gjson.ParseBytes(body)
	if r.Type == gjson.String {
		raw := r.Str
		return &Reply{Raw: &raw}, nil
	}
	content := r.Get("choices.0.message.content")
	if !content.Exists() {
		return nil, errors.New("decode response: no choices in reply")
	}
	text := content.String()
	return &Reply{Content: &text, Usage: usageOf(r.Get("usage"))}, nil
}

func usageOf(u gjson.Result) Usage {
	return Usage{
		PromptTokens:     int(u.Get("prompt_tokens").Int()),
		CompletionTokens: int(u.Get("completion_tokens").Int()),
		TotalTokens:      int(u.Get("total_tokens").Int()),
	}
}

// streamUsage finds the token usage Groq attaches to the final stream chunk,
// either under x_groq.usage or at the top level.
func streamUsage(data []byte) (Usage, bool) {
	for _, path := range []string{"x_groq.usage", "usage"} {
		if u := gjson.GetBytes(data, path); u.IsObject() {
			return usageOf(u), true
		}
	}
	return Usage{}, false
}

// readEvents iterates the data payloads of a server-sent event stream up to
// [DONE]. Payloads without text are skipped; invalid JSON and error payloads
// end the iteration with an error. Token usage seen on the way is stored in
// usage.
func readEvents(body io.ReadCloser, usage *Usage) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		defer body.Close()
		scanner := bufio.NewScanner(body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}
			if u, ok := streamUsage([]byte(data)); ok && usage != nil {
				*usage = u
			}
			ch, err := DecodeChunk([]byte(data))
			if errors.Is(err, ErrUnknownChunk) {
				continue
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ch, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("stream read: %w", err))
		}
	}
}

func isEventStream(resp *http.Response) bool {
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return mt == "text/event-stream"
}

func readAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body), RequestID: extractRequestID(resp)}
	if !gjson.ValidBytes(body) {
		return apiErr
	}
	r := gjson.ParseBytes(body)
	if e := r.Get("error"); e.IsObject() {
		r = e
	}
	apiErr.Message = r.Get("message").String()
	apiErr.Code = r.Get("code").String()
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	// EOF or connection reset
	return errors.Is(err, io.EOF)
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// classifyAPIError maps generic APIError to typed errors for better UX.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	msg := apiErr.Message
	code := apiErr.Code
	if sc == http.StatusUnauthorized || sc == http.StatusForbidden {
		return &AuthError{APIError: apiErr}
	}
	if sc == http.StatusTooManyRequests {
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		if code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing") {
			return &QuotaExceededError{APIError: apiErr}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	}
	if sc == http.StatusNotFound {
		if code == "model_not_found" || containsAllFold(msg, "model", "not", "found") || containsAllFold(msg, "model", "does not exist") {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	}
	if sc == http.StatusBadRequest {
		if code == "model_decommissioned" {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return &BadRequestError{APIError: apiErr}
	}
	if code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing", "limit exceeded") {
		return &QuotaExceededError{APIError: apiErr}
	}
	if sc >= 500 && sc <= 599 {
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func containsAllFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if !containsFold(s, sub) {
			return false
		}
	}
	return true
}

func containsAnyFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	if s == "" || sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Groq-Request-Id", "OpenAI-Request-ID"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
