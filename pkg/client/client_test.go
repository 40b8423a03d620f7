package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) (*Client, *[]time.Duration) {
	c := New(baseURL)
	delays := &[]time.Duration{}
	c.sleep = func(d time.Duration) { *delays = append(*delays, d) }
	return c, delays
}

func writeEnvelope(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestAnalyzeFoodDecodesOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/webhook/analyze", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.Equal(t, "u1", r.FormValue("userId"))
		_, header, err := r.FormFile("image")
		require.NoError(t, err)
		assert.Equal(t, "meal.jpg", header.Filename)

		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"status": "processing"},
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	result, err := c.AnalyzeFood(context.Background(), "u1", "meal.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "processing", result.Status)
}

func TestAnalyzeFoodSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "MISSING_DATA", "message": "이미지와 사용자 ID가 필요합니다."},
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	_, err := c.AnalyzeFood(context.Background(), "u1", "meal.jpg", []byte("jpeg"))
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, CodeMissingData, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestRetryStopsOnTerminalCodes(t *testing.T) {
	for _, code := range []string{CodeMissingData, CodeInvalidFile} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"error":   map[string]string{"code": code, "message": "rejected"},
			})
		}))

		c, delays := newTestClient(srv.URL)
		_, err := c.AnalyzeWithRetry(context.Background(), "u1", "meal.jpg", []byte("jpeg"))
		srv.Close()

		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, code, apiErr.Code)
		assert.EqualValues(t, 1, calls.Load())
		assert.Empty(t, *delays)
	}
}

func TestRetryBacksOffThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeEnvelope(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   map[string]string{"code": "WEBHOOK_ERROR", "message": "flaky"},
			})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"status": "complete", "logId": "log-1"},
		})
	}))
	defer srv.Close()

	c, delays := newTestClient(srv.URL)
	result, err := c.AnalyzeWithRetry(context.Background(), "u1", "meal.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "complete", result.Status)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestRetryExhaustionReportsMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "WEBHOOK_ERROR", "message": "still down"},
		})
	}))
	defer srv.Close()

	c, delays := newTestClient(srv.URL)
	_, err := c.AnalyzeWithRetry(context.Background(), "u1", "meal.jpg", []byte("jpeg"))
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, CodeMaxRetries, apiErr.Code)
	assert.Contains(t, apiErr.Message, "still down")
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestStorageUserID(t *testing.T) {
	assert.Equal(t, "99999999-9999-9999-9999-999999999999",
		StorageUserID("99999999-9999-9999-9999-999999999999"))
	assert.Equal(t, BridgeUserID, StorageUserID("demo-user"))
	assert.Equal(t, BridgeUserID, StorageUserID(""))
}

func TestListFoodLogsMapsBridgeUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/food-logs", r.URL.Path)
		assert.Equal(t, BridgeUserID, r.URL.Query().Get("userId"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": []map[string]interface{}{{
				"id":             "log-1",
				"total_calories": 520,
				"created_at":     time.Now().UTC().Format(time.RFC3339Nano),
			}},
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	logs, err := c.ListFoodLogs(context.Background(), "demo-user", ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "log-1", logs[0].ID)
	assert.Equal(t, 520, logs[0].TotalCalories)
}
