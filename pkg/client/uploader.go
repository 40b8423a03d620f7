package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Upload states.
const (
	StateIdle      = "idle"
	StateAnalyzing = "analyzing"
	StateComplete  = "complete"
)

const (
	// MaxImageSize is the upload limit, matching the server.
	MaxImageSize = 10 << 20

	pollInterval    = time.Second
	analysisCeiling = 3 * time.Minute

	msgNotImage    = "이미지 파일만 업로드 가능합니다."
	msgTooLarge    = "파일 크기는 10MB 이하여야 합니다."
	msgTookTooLong = "분석 시간이 너무 오래 걸립니다. 다시 시도해주세요."
)

// Completion is the analysis outcome delivered to the uploader.
type Completion struct {
	LogID         string `json:"logId"`
	TotalCalories int    `json:"totalCalories"`
	ItemCount     int    `json:"itemCount"`
}

type streamEvent struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Uploader drives one meal photo through validation, submission, and result
// delivery. At most one analysis is outstanding; starting a new upload
// resets prior state and tears down any stale subscription.
type Uploader struct {
	client *Client

	// ceiling bounds the wait for an asynchronous result; tests shorten it.
	ceiling time.Duration

	mu      sync.Mutex
	state   string
	message string
	result  *Completion
	cancel  context.CancelFunc
}

// NewUploader creates an idle uploader backed by the given client.
func NewUploader(c *Client) *Uploader {
	return &Uploader{client: c, state: StateIdle, ceiling: analysisCeiling}
}

// State returns the current upload state.
func (u *Uploader) State() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Message returns the last user-facing message (validation or failure).
func (u *Uploader) Message() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.message
}

// Result returns the completion, or nil before one arrives.
func (u *Uploader) Result() *Completion {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result
}

// Reset returns the uploader to idle and closes any live subscription.
func (u *Uploader) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.reset()
}

func (u *Uploader) reset() {
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
	u.state = StateIdle
	u.message = ""
	u.result = nil
}

// Validate checks the file before any network call. Rejection keeps the
// uploader idle and records the user-facing message.
func (u *Uploader) Validate(contentType string, size int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !strings.HasPrefix(contentType, "image/") {
		u.message = msgNotImage
		return errors.New(msgNotImage)
	}
	if size > MaxImageSize {
		u.message = msgTooLarge
		return errors.New(msgTooLarge)
	}
	return nil
}

// Upload runs the full flow: validate, submit with retries, then wait for
// the result. It blocks until completion, failure, or the 3-minute ceiling.
func (u *Uploader) Upload(ctx context.Context, userID, filename, contentType string, image []byte) (*Completion, error) {
	if err := u.Validate(contentType, int64(len(image))); err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.reset()
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.state = StateAnalyzing
	u.mu.Unlock()
	defer cancel()

	outcome, err := u.client.AnalyzeWithRetry(ctx, userID, filename, image)
	if err != nil {
		u.fail(err.Error())
		return nil, err
	}

	if outcome.Status == "complete" {
		done := &Completion{
			LogID:         outcome.LogID,
			TotalCalories: outcome.TotalCalories,
			ItemCount:     outcome.ItemCount,
		}
		u.complete(done)
		return done, nil
	}

	done, err := u.waitForResult(ctx, userID)
	if err != nil {
		u.fail(err.Error())
		return nil, err
	}
	u.complete(done)
	return done, nil
}

func (u *Uploader) complete(done *Completion) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = StateComplete
	u.result = done
	u.message = ""
}

func (u *Uploader) fail(message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = StateIdle
	u.message = message
}

// waitForResult listens on the live event stream while polling the log list
// every second as a fallback, until the completion arrives or the ceiling
// passes.
func (u *Uploader) waitForResult(ctx context.Context, userID string) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, u.ceiling)
	defer cancel()

	since := time.Now().Add(-time.Second)

	events := make(chan *Completion, 1)
	failures := make(chan error, 1)
	go u.streamEvents(ctx, userID, events, failures)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case done := <-events:
			return done, nil
		case err := <-failures:
			return nil, err
		case <-ticker.C:
			if done := u.pollOnce(ctx, userID, since); done != nil {
				return done, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.New(msgTookTooLong)
			}
			return nil, ctx.Err()
		}
	}
}

// streamEvents subscribes to the per-user stream and forwards completions
// and errors. Stream transport failures are swallowed: polling covers them.
func (u *Uploader) streamEvents(ctx context.Context, userID string, events chan<- *Completion, failures chan<- error) {
	q := url.Values{}
	q.Set("userId", userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		u.client.baseURL+"/api/sse/food-analysis?"+q.Encode(), nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream outlives the client's request timeout; its lifetime is
	// bounded by ctx instead.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(bytes.TrimPrefix(line, []byte("data: ")), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "analysis_complete":
			var done Completion
			if err := json.Unmarshal(ev.Data, &done); err != nil {
				continue
			}
			select {
			case events <- &done:
			default:
			}
			return
		case "error":
			select {
			case failures <- fmt.Errorf("analysis failed: %s", ev.Message):
			default:
			}
			return
		}
	}
}

// pollOnce checks the stored logs for a row created after the upload began.
// Queries use the bridge-mapped identifier, matching where the server
// stores rows for non-UUID users.
func (u *Uploader) pollOnce(ctx context.Context, userID string, since time.Time) *Completion {
	logs, err := u.client.ListFoodLogs(ctx, userID, ListOptions{Limit: 1})
	if err != nil || len(logs) == 0 {
		return nil
	}
	latest := logs[0]
	if !latest.CreatedAt.After(since) {
		return nil
	}
	return &Completion{
		LogID:         latest.ID,
		TotalCalories: latest.TotalCalories,
	}
}
