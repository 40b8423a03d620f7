package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/calai-cam/backend/config"
	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/models"
)

// BridgeUserID is the fixed bridge account that rows for non-UUID (demo)
// identifiers are stored under. Notifications still target the original
// identifier, which is what the browser's live connection is keyed on.
const BridgeUserID = "22222222-2222-2222-2222-222222222222"

const (
	workflowTimeout = 30 * time.Second
	// Analysis status values returned to the upload client.
	StatusProcessing = "processing"
	StatusComplete   = "complete"
)

// AnalysisResult is the payload produced by the external workflow (or the
// simulation fallback).
type AnalysisResult struct {
	Items    []models.FoodItem `json:"items"`
	Summary  *AnalysisSummary  `json:"summary"`
	MealType models.MealType   `json:"mealType,omitempty"`
	ImageURL *string           `json:"imageUrl,omitempty"`
}

// AnalyzeOutcome is the dispatcher's reply to an upload.
type AnalyzeOutcome struct {
	Status        string `json:"status"`
	LogID         string `json:"logId,omitempty"`
	TotalCalories int    `json:"totalCalories,omitempty"`
	ItemCount     int    `json:"itemCount,omitempty"`
}

// CompletionData is pushed over the live stream when an analysis finishes.
type CompletionData struct {
	LogID          string         `json:"logId"`
	TotalCalories  int            `json:"totalCalories"`
	ItemCount      int            `json:"itemCount"`
	Timestamp      string         `json:"timestamp"`
	AnalysisResult AnalysisResult `json:"analysisResult"`
}

type workflowResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Status         string          `json:"status"`
		AnalysisResult *AnalysisResult `json:"analysisResult"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// AnalysisService forwards meal photos to the external workflow and feeds
// results back through persistence and the live stream. With no workflow
// configured it simulates the round trip so the delivery pipeline stays
// exercisable locally.
type AnalysisService struct {
	logs        *FoodLogService
	notifier    *Notifier
	storage     *config.S3Config
	workflowURL string
	callbackURL string
	client      *http.Client

	// simulateDelay approximates the external analysis latency; tests
	// shorten it.
	simulateDelay time.Duration
}

// NewAnalysisService creates the dispatcher. storage may be nil (images are
// then relayed without being stored).
func NewAnalysisService(cfg *config.Config, logs *FoodLogService, notifier *Notifier, storage *config.S3Config) *AnalysisService {
	return &AnalysisService{
		logs:          logs,
		notifier:      notifier,
		storage:       storage,
		workflowURL:   cfg.WorkflowURL,
		callbackURL:   cfg.AppBaseURL + "/api/webhook/result",
		client:        &http.Client{Timeout: workflowTimeout},
		simulateDelay: 2 * time.Second,
	}
}

// Analyze relays an uploaded image to the external workflow. It returns a
// "complete" outcome when the workflow answers synchronously with a full
// result, and a "processing" outcome when the result will arrive later on
// the callback endpoint. In simulation mode it always acknowledges with
// "processing" and finishes in the background.
func (s *AnalysisService) Analyze(ctx context.Context, userID, filename string, image []byte) (*AnalyzeOutcome, error) {
	imageURL := s.storeImage(ctx, filename, image)

	if s.workflowURL == "" {
		slog.Info("no workflow configured, simulating analysis", "user_id", userID)
		go s.simulate(userID, imageURL)
		return &AnalyzeOutcome{Status: StatusProcessing}, nil
	}

	resp, err := s.forward(ctx, userID, filename, image)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.New(http.StatusRequestTimeout, apperr.CodeTimeout,
				"분석 시간이 너무 오래 걸립니다. 다시 시도해주세요.")
		}
		return nil, apperr.New(http.StatusInternalServerError, apperr.CodeWebhookError, err.Error())
	}

	if !resp.Success {
		msg := "워크플로우 응답이 올바르지 않습니다."
		code := apperr.CodeWebhookError
		if resp.Error != nil {
			msg = resp.Error.Message
			if resp.Error.Code != "" {
				code = resp.Error.Code
			}
		}
		return nil, apperr.New(http.StatusBadRequest, code, msg)
	}

	// Synchronous completion: persist and notify on the same contract the
	// callback path uses.
	if resp.Data != nil && resp.Data.Status == StatusComplete && resp.Data.AnalysisResult != nil {
		result := *resp.Data.AnalysisResult
		if result.ImageURL == nil {
			result.ImageURL = imageURL
		}
		log, err := s.HandleResult(ctx, userID, result)
		if err != nil {
			return nil, err
		}
		return &AnalyzeOutcome{
			Status:        StatusComplete,
			LogID:         log.ID.String(),
			TotalCalories: log.TotalCalories,
			ItemCount:     len(log.FoodItems),
		}, nil
	}

	return &AnalyzeOutcome{Status: StatusProcessing}, nil
}

// HandleResult validates, persists, and announces one analysis result. Rows
// for non-UUID identifiers are stored under the bridge account, while the
// notification targets the original identifier. Notification failure never
// fails the call: the stored row is the durable outcome.
func (s *AnalysisService) HandleResult(ctx context.Context, userID string, result AnalysisResult) (*models.FoodLog, error) {
	if result.Items == nil || result.Summary == nil {
		return nil, apperr.New(http.StatusBadRequest, apperr.CodeInvalidData,
			"분석 결과 데이터가 올바르지 않습니다.")
	}

	storageID := userID
	if _, err := uuid.Parse(userID); err != nil {
		slog.Info("mapping non-UUID user to bridge account", "user_id", userID, "bridge_id", BridgeUserID)
		storageID = BridgeUserID
	}

	log, err := s.logs.Save(ctx, SaveFoodLogInput{
		UserID:   storageID,
		ImageURL: result.ImageURL,
		MealType: result.MealType,
		Items:    result.Items,
		Summary:  *result.Summary,
	})
	if err != nil {
		return nil, err
	}

	result.MealType = log.MealType
	sent := s.notifier.Notify(userID, Event{
		Type: EventAnalysisComplete,
		Data: CompletionData{
			LogID:          log.ID.String(),
			TotalCalories:  log.TotalCalories,
			ItemCount:      len(log.FoodItems),
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			AnalysisResult: result,
		},
	})
	if !sent {
		slog.Warn("completion not delivered, client will catch up by polling", "user_id", userID, "log_id", log.ID)
	}
	return log, nil
}

// forward sends the image to the workflow as multipart form data, together
// with the user id, a timestamp, and the callback URL.
func (s *AnalysisService) forward(ctx context.Context, userID, filename string, image []byte) (*workflowResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, path.Base(filename)))
	header.Set("Content-Type", "application/octet-stream")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	_ = writer.WriteField("userId", userID)
	_ = writer.WriteField("timestamp", time.Now().UTC().Format(time.RFC3339))
	_ = writer.WriteField("callbackUrl", s.callbackURL)
	if err := writer.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, workflowTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.workflowURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("workflow call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("workflow returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var parsed workflowResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode workflow response: %w", err)
	}
	return &parsed, nil
}

// simulate produces a canned result after a short delay and delivers it
// through the same path the real callback uses. Failures are pushed to the
// live stream since the caller already holds a "processing" acknowledgment.
func (s *AnalysisService) simulate(userID string, imageURL *string) {
	time.Sleep(s.simulateDelay)

	result := AnalysisResult{
		Items: []models.FoodItem{{
			FoodName:   "김치볶음밥",
			Confidence: 0.87,
			Quantity:   "1인분 (300g)",
			Calories:   520,
			Nutrients: models.NutrientTotals{
				Carbohydrates: models.NutrientAmount{Value: 68, Unit: "g"},
				Protein:       models.NutrientAmount{Value: 14, Unit: "g"},
				Fat:           models.NutrientAmount{Value: 21, Unit: "g"},
				Sugars:        models.NutrientAmount{Value: 5, Unit: "g"},
				Sodium:        models.NutrientAmount{Value: 1200, Unit: "mg"},
			},
		}},
		Summary: &AnalysisSummary{
			TotalCalories:      520,
			TotalCarbohydrates: models.NutrientAmount{Value: 68, Unit: "g"},
			TotalProtein:       models.NutrientAmount{Value: 14, Unit: "g"},
			TotalFat:           models.NutrientAmount{Value: 21, Unit: "g"},
		},
		ImageURL: imageURL,
	}

	if _, err := s.HandleResult(context.Background(), userID, result); err != nil {
		slog.Error("simulated analysis failed", "user_id", userID, "error", err)
		s.notifier.Notify(userID, Event{Type: EventError, Message: err.Error()})
	}
}

// storeImage uploads the meal photo to S3 and returns its public URL, or
// nil when storage is unconfigured or the upload fails (the analysis still
// proceeds; image absence is a first-class state).
func (s *AnalysisService) storeImage(ctx context.Context, filename string, image []byte) *string {
	if s.storage == nil {
		return nil
	}

	ext := path.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("meal-images/%s%s", uuid.New().String(), ext)

	_, err := s.storage.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.storage.BucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(image),
	})
	if err != nil {
		slog.Warn("image upload failed, continuing without image URL", "error", err)
		return nil
	}

	url := s.storage.ObjectURL(key)
	slog.Info("meal photo stored", "key", key)
	return &url
}
