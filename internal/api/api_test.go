package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/calai-cam/backend/config"
	"github.com/calai-cam/backend/internal/models"
	"github.com/calai-cam/backend/internal/service"
)

type testEnv struct {
	router   *gin.Engine
	notifier *service.Notifier
	logs     *service.FoodLogService
	db       *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.FoodLog{}))

	notifier := service.NewNotifier()
	t.Cleanup(notifier.Close)

	logs := service.NewFoodLogService(db, nil)
	cfg := &config.Config{AppBaseURL: "http://localhost:8080"}
	analysis := service.NewAnalysisService(cfg, logs, notifier, nil)
	auth := service.NewAuthService(db, "test-secret")

	router := gin.New()
	root := router.Group("/api")
	NewWebhookHandler(analysis).RegisterRoutes(root, nil)
	NewSSEHandler(notifier).RegisterRoutes(root)
	NewFoodLogHandler(logs).RegisterRoutes(root)
	NewAuthHandler(auth).RegisterRoutes(root)
	NewPlaceholderHandler().RegisterRoutes(root)

	return &testEnv{router: router, notifier: notifier, logs: logs, db: db}
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func (e *testEnv) getJSON(t *testing.T, path string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func newDeleteRequest(path string) *http.Request {
	return httptest.NewRequest(http.MethodDelete, path, nil)
}

// doRaw serves a request without decoding the envelope (non-JSON endpoints).
func doRaw(e *testEnv, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

// multipartImage builds an analyze request body with the given image bytes.
func multipartImage(t *testing.T, userID string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if image != nil {
		part, err := writer.CreateFormFile("image", "meal.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	if userID != "" {
		require.NoError(t, writer.WriteField("userId", userID))
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func analysisResultBody(calories int) map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{{
			"foodName":   "불고기",
			"confidence": 0.88,
			"quantity":   "1인분",
			"calories":   calories,
		}},
		"summary": map[string]interface{}{
			"totalCalories":      calories,
			"totalCarbohydrates": map[string]interface{}{"value": 30, "unit": "g"},
			"totalProtein":       map[string]interface{}{"value": 40, "unit": "g"},
			"totalFat":           map[string]interface{}{"value": 25, "unit": "g"},
		},
	}
}
