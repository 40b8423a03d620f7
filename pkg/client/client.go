// Package client is the Go upload client for the meal analysis API. It
// models the browser flow: validate the image, submit it with retries, then
// wait for the result over the live event stream with a polling fallback.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
)

// BridgeUserID mirrors the server's bridge account. Rows produced for
// non-UUID identifiers are stored under it, so the polling fallback must
// query with the same mapping.
const BridgeUserID = "22222222-2222-2222-2222-222222222222"

// Error codes the retry wrapper treats as terminal.
const (
	CodeMissingData       = "MISSING_DATA"
	CodeInvalidFile       = "INVALID_FILE"
	CodeMaxRetries        = "MAX_RETRIES_EXCEEDED"
	maxAttempts           = 3
	initialRetryDelay     = time.Second
	defaultRequestTimeout = 35 * time.Second
)

// APIError is a structured error returned by the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AnalyzeResult is the server's reply to an upload.
type AnalyzeResult struct {
	Status        string `json:"status"`
	LogID         string `json:"logId,omitempty"`
	TotalCalories int    `json:"totalCalories,omitempty"`
	ItemCount     int    `json:"itemCount,omitempty"`
}

// FoodLog is the subset of the server's log row the client consumes.
type FoodLog struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ImageURL      *string   `json:"image_url"`
	MealType      string    `json:"meal_type"`
	TotalCalories int       `json:"total_calories"`
	CreatedAt     time.Time `json:"created_at"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the meal analysis API.
type Client struct {
	baseURL string
	http    *http.Client

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(time.Duration)
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		sleep:   time.Sleep,
	}
}

// AnalyzeFood submits one meal photo for analysis. A single attempt; use
// AnalyzeWithRetry for the resilient path.
func (c *Client) AnalyzeFood(ctx context.Context, userID, filename string, image []byte) (*AnalyzeResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", path.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	_ = writer.WriteField("userId", userID)
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/webhook/analyze", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result AnalyzeResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AnalyzeWithRetry runs AnalyzeFood up to three times. Validation failures
// (MISSING_DATA, INVALID_FILE) are terminal and returned after the first
// attempt; other failures back off 1s, 2s, 4s between attempts. Exhaustion
// is reported as MAX_RETRIES_EXCEEDED carrying the final error.
func (c *Client) AnalyzeWithRetry(ctx context.Context, userID, filename string, image []byte) (*AnalyzeResult, error) {
	delay := initialRetryDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.AnalyzeFood(ctx, userID, filename, image)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if apiErr, ok := err.(*APIError); ok {
			if apiErr.Code == CodeMissingData || apiErr.Code == CodeInvalidFile {
				return nil, err
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < maxAttempts {
			c.sleep(delay)
			delay *= 2
		}
	}

	return nil, &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeMaxRetries,
		Message:    lastErr.Error(),
	}
}

// ListOptions filters ListFoodLogs.
type ListOptions struct {
	Date     string
	MealType string
	Limit    int
}

// ListFoodLogs returns a user's logs, newest first. Non-UUID identifiers
// are mapped to the bridge account the way the server stores them.
func (c *Client) ListFoodLogs(ctx context.Context, userID string, opts ListOptions) ([]FoodLog, error) {
	q := url.Values{}
	q.Set("userId", StorageUserID(userID))
	if opts.Date != "" {
		q.Set("date", opts.Date)
	}
	if opts.MealType != "" {
		q.Set("mealType", opts.MealType)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/food-logs?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var logs []FoodLog
	if err := c.do(req, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// StorageUserID maps an identifier to the account its rows are stored
// under: UUIDs pass through, everything else lands on the bridge account.
func StorageUserID(userID string) string {
	if _, err := uuid.Parse(userID); err != nil {
		return BridgeUserID
	}
	return userID
}

// do executes the request and decodes the response envelope into out.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}

	if !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "UNKNOWN", Message: "request failed"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
