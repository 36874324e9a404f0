// Package client submits comparisons to a remote twincheck server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/ingest"
)

type Client struct {
	httpClient       *http.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Compare uploads the units to /classic-analysis/ and decodes the report.
// An empty sheet leaves the server's configured results sheet in effect.
// A 422 no-matches reply satisfies errors.Is(err, analysis.ErrNoMatches).
func (c *Client) Compare(ctx context.Context, virtual, reals []ingest.Unit, sheet string, opt analysis.Options) (*analysis.Report, error) {
	if c.baseURL == "" {
		return nil, errors.New("remote URL is empty")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct {
		field string
		units []ingest.Unit
	}{{"virt_files", virtual}, {"real_files", reals}} {
		for _, u := range part.units {
			if u.Err != nil {
				return nil, fmt.Errorf("%s: %w", u.Name, u.Err)
			}
			fw, err := mw.CreateFormFile(part.field, u.Name)
			if err != nil {
				return nil, fmt.Errorf("build form: %w", err)
			}
			if _, err := fw.Write(u.Data); err != nil {
				return nil, fmt.Errorf("build form: %w", err)
			}
		}
	}
	fields := map[string]string{
		"error_threshold": strconv.FormatFloat(opt.Tolerance, 'f', -1, 64),
		"pair_only":       strconv.FormatBool(opt.PairOnly),
	}
	if opt.GroupEpsilon > 0 {
		fields["group_epsilon"] = strconv.FormatFloat(opt.GroupEpsilon, 'f', -1, 64)
	}
	if opt.Alpha > 0 {
		fields["alpha"] = strconv.FormatFloat(opt.Alpha, 'f', -1, 64)
	}
	if sheet != "" {
		fields["sheet"] = sheet
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	var out analysis.Report
	if err := c.post(ctx, "/classic-analysis/", mw.FormDataContentType(), body.Bytes(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// post sends payload with retries on network timeouts, 429 and 5xx.
func (c *Client) post(ctx context.Context, path, contentType string, payload []byte, out any) error {
	endpoint := c.baseURL + path
	maxAttempts := c.retryMaxAttempts
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isRetryableNetErr(err) && attempt < maxAttempts {
				lastErr = err
				time.Sleep(backoff)
				backoff *= 2
				continue
			}
			return fmt.Errorf("http request: %w", err)
		}
		retry := false
		func() {
			defer resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					lastErr = fmt.Errorf("decode response: %w", err)
					return
				}
				lastErr = nil
				return
			}
			apiErr := decodeAPIError(resp)
			if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < maxAttempts {
				retry = true
				lastErr = apiErr
				sleep := withJitter(backoff)
				if ra := resp.Header.Get("Retry-After"); ra != "" {
					if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
						sleep = time.Duration(secs) * time.Second
					}
				}
				if c.retryMaxDelay > 0 && sleep > c.retryMaxDelay {
					sleep = c.retryMaxDelay
				}
				time.Sleep(sleep)
				backoff *= 2
				return
			}
			lastErr = classifyAPIError(apiErr, resp)
		}()
		if lastErr == nil {
			return nil
		}
		if !retry {
			break
		}
	}
	return lastErr
}

func decodeAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get("X-Request-Id")}
	var raw map[string]any
	if json.Unmarshal(body, &raw) == nil {
		apiErr.Raw = raw
		if code, ok := raw["error"].(string); ok {
			apiErr.Code = code
		}
		if msg, ok := raw["message"].(string); ok {
			apiErr.Message = msg
		}
	} else if s := strings.TrimSpace(string(body)); s != "" {
		apiErr.Message = s
	}
	return apiErr
}

// classifyAPIError maps generic APIError to typed errors for better UX.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	switch {
	case sc == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
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
