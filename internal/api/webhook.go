package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/service"
)

// MaxImageSize is the upload ceiling for meal photos.
const MaxImageSize = 10 << 20 // 10 MiB

// WebhookHandler serves the analysis dispatch endpoint and the result
// callback the external workflow posts back to.
type WebhookHandler struct {
	analysis *service.AnalysisService
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(analysis *service.AnalysisService) *WebhookHandler {
	return &WebhookHandler{analysis: analysis}
}

// RegisterRoutes mounts the webhook endpoints. rateLimit may be nil.
func (h *WebhookHandler) RegisterRoutes(router *gin.RouterGroup, rateLimit gin.HandlerFunc) {
	webhook := router.Group("/webhook")
	{
		if rateLimit != nil {
			webhook.POST("/analyze", rateLimit, h.Analyze)
		} else {
			webhook.POST("/analyze", h.Analyze)
		}
		webhook.POST("/result", h.Result)
	}
}

// Analyze accepts a multipart meal photo and relays it to the external
// workflow (or the simulation fallback).
func (h *WebhookHandler) Analyze(c *gin.Context) {
	file, err := c.FormFile("image")
	userID := c.PostForm("userId")
	if err != nil || userID == "" {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData,
			"이미지와 사용자 ID가 필요합니다."))
		return
	}
	if file.Size > MaxImageSize {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeInvalidFile,
			"파일 크기는 10MB 이하여야 합니다."))
		return
	}

	opened, err := file.Open()
	if err != nil {
		respondErr(c, err)
		return
	}
	defer func() { _ = opened.Close() }()

	image, err := io.ReadAll(opened)
	if err != nil {
		respondErr(c, err)
		return
	}

	outcome, err := h.analysis.Analyze(c.Request.Context(), userID, file.Filename, image)
	if err != nil {
		slog.Error("analysis dispatch failed", "user_id", userID, "error", err)
		respondErr(c, err)
		return
	}

	respondOK(c, http.StatusOK, outcome)
}

type resultRequest struct {
	UserID         string                  `json:"userId"`
	AnalysisResult *service.AnalysisResult `json:"analysisResult"`
}

// Result receives the asynchronous analysis result from the external
// workflow, persists it, and notifies the originating live stream.
func (h *WebhookHandler) Result(c *gin.Context) {
	var req resultRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.AnalysisResult == nil {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData,
			"사용자 ID와 분석 결과가 필요합니다."))
		return
	}

	log, err := h.analysis.HandleResult(c.Request.Context(), req.UserID, *req.AnalysisResult)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"logId":         log.ID.String(),
		"totalCalories": log.TotalCalories,
		"itemCount":     len(log.FoodItems),
	})
}
