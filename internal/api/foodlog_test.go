package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/models"
	"github.com/calai-cam/backend/internal/service"
)

func seedLog(t *testing.T, env *testEnv, userID string, meal models.MealType, calories int, at time.Time) *models.FoodLog {
	t.Helper()
	log, err := env.logs.Save(context.Background(), service.SaveFoodLogInput{
		UserID:   userID,
		MealType: meal,
		Summary:  service.AnalysisSummary{TotalCalories: calories},
		At:       at,
	})
	require.NoError(t, err)
	return log
}

func TestListFoodLogs(t *testing.T) {
	env := newTestEnv(t)
	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	seedLog(t, env, "u1", models.MealBreakfast, 400, day.Add(8*time.Hour))
	seedLog(t, env, "u1", models.MealLunch, 700, day.Add(13*time.Hour))
	seedLog(t, env, "u2", models.MealLunch, 500, day.Add(13*time.Hour))

	w, resp := env.getJSON(t, "/api/food-logs?userId=u1&date=2026-08-27")
	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)

	var logs []models.FoodLog
	require.NoError(t, json.Unmarshal(resp.Data, &logs))
	require.Len(t, logs, 2)
	assert.Equal(t, models.MealLunch, logs[0].MealType)

	w, resp = env.getJSON(t, "/api/food-logs?userId=u1&mealType=breakfast")
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &logs))
	assert.Len(t, logs, 1)

	w, resp = env.getJSON(t, "/api/food-logs")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.CodeMissingData, resp.Error.Code)

	w, resp = env.getJSON(t, "/api/food-logs?userId=u1&limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, apperr.CodeInvalidData, resp.Error.Code)
}

func TestCreateFoodLog(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.postJSON(t, "/api/food-logs", map[string]interface{}{
		"userId":   "u1",
		"mealType": "dinner",
		"items": []map[string]interface{}{{
			"foodName":   "삼겹살",
			"confidence": 0.95,
			"calories":   900,
		}},
		"summary": map[string]interface{}{"totalCalories": 900},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	require.True(t, resp.Success)

	var log models.FoodLog
	require.NoError(t, json.Unmarshal(resp.Data, &log))
	assert.Equal(t, models.MealDinner, log.MealType)
	assert.Equal(t, 900, log.TotalCalories)
	assert.InDelta(t, 0.95, log.ConfidenceScore, 1e-9)
}

func TestDeleteFoodLog(t *testing.T) {
	env := newTestEnv(t)
	log := seedLog(t, env, "u1", models.MealLunch, 600, time.Now().UTC())

	req := func(path string) (int, testEnvelope) {
		w, resp := env.do(t, newDeleteRequest(path))
		return w.Code, resp
	}

	code, resp := req("/api/food-logs/" + log.ID.String())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperr.CodeMissingData, resp.Error.Code)

	code, resp = req("/api/food-logs/" + log.ID.String() + "?userId=other")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperr.CodeNotFound, resp.Error.Code)

	code, resp = req("/api/food-logs/" + log.ID.String() + "?userId=u1")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, resp = req("/api/food-logs/" + log.ID.String() + "?userId=u1")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperr.CodeNotFound, resp.Error.Code)
}

func TestDailySummaryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	seedLog(t, env, "u1", models.MealBreakfast, 300, day.Add(8*time.Hour))
	seedLog(t, env, "u1", models.MealDinner, 800, day.Add(19*time.Hour))

	w, resp := env.getJSON(t, "/api/food-logs/summary?userId=u1&date=2026-08-27")
	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)

	var summary service.DailySummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, 1100, summary.TotalCalories)
	assert.Equal(t, 300, summary.MealBreakdown["breakfast"])
	assert.Equal(t, 800, summary.MealBreakdown["dinner"])

	w, resp = env.getJSON(t, "/api/food-logs/summary?userId=u1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.CodeMissingData, resp.Error.Code)
}
