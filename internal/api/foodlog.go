package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/models"
	"github.com/calai-cam/backend/internal/service"
)

// FoodLogHandler serves the food-log CRUD and summary endpoints.
type FoodLogHandler struct {
	logs *service.FoodLogService
}

// NewFoodLogHandler creates a FoodLogHandler.
func NewFoodLogHandler(logs *service.FoodLogService) *FoodLogHandler {
	return &FoodLogHandler{logs: logs}
}

// RegisterRoutes mounts the food-log endpoints.
func (h *FoodLogHandler) RegisterRoutes(router *gin.RouterGroup) {
	logs := router.Group("/food-logs")
	{
		logs.GET("", h.List)
		logs.POST("", h.Create)
		logs.DELETE("/:id", h.Delete)
		logs.GET("/summary", h.Summary)
	}
}

// List returns a user's food logs, optionally filtered by date and meal
// type.
func (h *FoodLogHandler) List(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "User ID is required"))
		return
	}

	opts := service.ListOptions{
		Date:     c.Query("date"),
		MealType: models.MealType(c.Query("mealType")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeInvalidData, "limit must be a non-negative integer"))
			return
		}
		opts.Limit = limit
	}

	logs, err := h.logs.List(c.Request.Context(), userID, opts)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, logs)
}

type createLogRequest struct {
	UserID   string                  `json:"userId"`
	ImageURL *string                 `json:"imageUrl"`
	MealType models.MealType         `json:"mealType"`
	Items    []models.FoodItem       `json:"items"`
	Summary  service.AnalysisSummary `json:"summary"`
}

// Create persists a food log directly, using the same normalization as the
// analysis callback.
func (h *FoodLogHandler) Create(c *gin.Context) {
	var req createLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeInvalidData, err.Error()))
		return
	}

	log, err := h.logs.Save(c.Request.Context(), service.SaveFoodLogInput{
		UserID:   req.UserID,
		ImageURL: req.ImageURL,
		MealType: req.MealType,
		Items:    req.Items,
		Summary:  req.Summary,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, log)
}

// Delete removes a food log scoped to its owner. A second delete for the
// same id reports not-found.
func (h *FoodLogHandler) Delete(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "User ID is required"))
		return
	}

	if err := h.logs.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

// Summary returns one day's calorie totals for a user.
func (h *FoodLogHandler) Summary(c *gin.Context) {
	userID := c.Query("userId")
	date := c.Query("date")
	if userID == "" {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "User ID is required"))
		return
	}
	if date == "" {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "Date is required"))
		return
	}

	summary, err := h.logs.DailySummary(c.Request.Context(), userID, date)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, summary)
}
