package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/service"
)

func TestStreamRequiresUserID(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.getJSON(t, "/api/sse/food-analysis")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.CodeMissingData, resp.Error.Code)
}

// readEvent scans the stream for the next data line, skipping heartbeat
// comments.
func readEvent(t *testing.T, reader *bufio.Reader) service.Event {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev service.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
		return ev
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/sse/food-analysis?userId=u1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ev := readEvent(t, reader)
	assert.Equal(t, service.EventConnected, ev.Type)

	// The subscription is live once "connected" arrives.
	require.True(t, env.notifier.Notify("u1", service.Event{
		Type: service.EventAnalysisComplete,
		Data: map[string]interface{}{"logId": "log-1"},
	}))

	ev = readEvent(t, reader)
	assert.Equal(t, service.EventAnalysisComplete, ev.Type)
	data, ok := ev.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "log-1", data["logId"])
}

func TestStreamClosedOnShutdown(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/sse/food-analysis?userId=u1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	reader := bufio.NewReader(resp.Body)
	ev := readEvent(t, reader)
	require.Equal(t, service.EventConnected, ev.Type)

	env.notifier.Close()

	// The handler returns and the body reaches EOF without a timeout.
	_, err = io.ReadAll(reader)
	require.NoError(t, err)
}
