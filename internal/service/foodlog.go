package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/cache"
	"github.com/calai-cam/backend/internal/models"
)

// AnalysisSummary is the aggregate block of a workflow result payload.
type AnalysisSummary struct {
	TotalCalories      int                   `json:"totalCalories"`
	TotalCarbohydrates models.NutrientAmount `json:"totalCarbohydrates"`
	TotalProtein       models.NutrientAmount `json:"totalProtein"`
	TotalFat           models.NutrientAmount `json:"totalFat"`
}

// SaveFoodLogInput is the normalized input for persisting one analysis
// result.
type SaveFoodLogInput struct {
	UserID   string
	ImageURL *string
	MealType models.MealType // derived from At when empty
	Items    []models.FoodItem
	Summary  AnalysisSummary
	At       time.Time // zero means now
}

// DailySummary is one day's calorie aggregate for a user.
type DailySummary struct {
	TotalCalories int            `json:"totalCalories"`
	MealBreakdown map[string]int `json:"mealBreakdown"`
}

// ListOptions filter a food-log query.
type ListOptions struct {
	Date     string // YYYY-MM-DD, filters the UTC day
	MealType models.MealType
	Limit    int
}

const summaryCacheTTL = 60 * time.Second

// FoodLogService persists and queries food logs on the configured backend.
type FoodLogService struct {
	db    *gorm.DB
	cache *cache.Client
}

// NewFoodLogService creates a FoodLogService. cache may be nil.
func NewFoodLogService(db *gorm.DB, c *cache.Client) *FoodLogService {
	return &FoodLogService{db: db, cache: c}
}

// Save persists one analysis result as a new FoodLog row. The confidence
// score is the unweighted mean of item confidences (0 with no items);
// sugars and sodium totals default to zero since the workflow summary does
// not carry them.
func (s *FoodLogService) Save(ctx context.Context, input SaveFoodLogInput) (*models.FoodLog, error) {
	if input.UserID == "" {
		return nil, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "user ID is required")
	}
	if input.Summary.TotalCalories < 0 {
		return nil, apperr.New(http.StatusBadRequest, apperr.CodeInvalidData, "total calories must be non-negative")
	}

	at := input.At
	if at.IsZero() {
		at = time.Now()
	}

	mealType := input.MealType
	if mealType == "" {
		mealType = models.MealTypeForTime(at)
	} else if !mealType.Valid() {
		return nil, apperr.ErrInvalidMealType
	}

	var confidenceSum float64
	for _, item := range input.Items {
		confidenceSum += item.Confidence
	}
	avgConfidence := 0.0
	if len(input.Items) > 0 {
		avgConfidence = confidenceSum / float64(len(input.Items))
	}

	log := &models.FoodLog{
		ID:       uuid.New(),
		UserID:   input.UserID,
		ImageURL: input.ImageURL,
		MealType: mealType,
		FoodItems: append(models.FoodItems{},
			input.Items...),
		TotalCalories: input.Summary.TotalCalories,
		TotalNutrients: models.NutrientTotals{
			Carbohydrates: input.Summary.TotalCarbohydrates,
			Protein:       input.Summary.TotalProtein,
			Fat:           input.Summary.TotalFat,
			Sugars:        models.NutrientAmount{Value: 0, Unit: "g"},
			Sodium:        models.NutrientAmount{Value: 0, Unit: "mg"},
		},
		ConfidenceScore: avgConfidence,
		CreatedAt:       at,
		UpdatedAt:       at,
	}

	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, apperr.New(http.StatusInternalServerError, apperr.CodeDatabaseError, err.Error())
	}

	s.cache.Delete(ctx, summaryCacheKey(log.UserID, at.UTC().Format("2006-01-02")))
	slog.Info("food log saved", "log_id", log.ID, "user_id", log.UserID, "meal_type", log.MealType, "calories", log.TotalCalories)
	return log, nil
}

// List returns a user's food logs, newest first, optionally filtered by day
// and meal type and capped by a limit.
func (s *FoodLogService) List(ctx context.Context, userID string, opts ListOptions) ([]models.FoodLog, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)

	if opts.Date != "" {
		start, end, err := dayRange(opts.Date)
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at >= ? AND created_at < ?", start, end)
	}
	if opts.MealType != "" {
		if !opts.MealType.Valid() {
			return nil, apperr.ErrInvalidMealType
		}
		query = query.Where("meal_type = ?", opts.MealType)
	}

	query = query.Order("created_at DESC")
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var logs []models.FoodLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, apperr.New(http.StatusInternalServerError, apperr.CodeDatabaseError, err.Error())
	}
	return logs, nil
}

// Delete removes a food log by id, scoped to its owner. Deleting a row that
// does not exist (or belongs to someone else) returns ErrNotFound.
func (s *FoodLogService) Delete(ctx context.Context, id, userID string) error {
	var log models.FoodLog
	err := s.db.WithContext(ctx).First(&log, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return apperr.New(http.StatusInternalServerError, apperr.CodeDatabaseError, err.Error())
	}

	if err := s.db.WithContext(ctx).Delete(&log).Error; err != nil {
		return apperr.New(http.StatusInternalServerError, apperr.CodeDatabaseError, err.Error())
	}

	s.cache.Delete(ctx, summaryCacheKey(userID, log.CreatedAt.UTC().Format("2006-01-02")))
	slog.Info("food log deleted", "log_id", id, "user_id", userID)
	return nil
}

// DailySummary aggregates one day's total calories and per-meal subtotals.
// Results are cached briefly; the cache fails safe to the store.
func (s *FoodLogService) DailySummary(ctx context.Context, userID, date string) (*DailySummary, error) {
	key := summaryCacheKey(userID, date)
	if raw, _ := s.cache.Get(ctx, key); raw != nil {
		var cached DailySummary
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	start, end, err := dayRange(date)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		MealType      string
		TotalCalories int
	}
	err = s.db.WithContext(ctx).
		Model(&models.FoodLog{}).
		Select("meal_type, total_calories").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.New(http.StatusInternalServerError, apperr.CodeDatabaseError, err.Error())
	}

	summary := &DailySummary{MealBreakdown: make(map[string]int)}
	for _, row := range rows {
		summary.TotalCalories += row.TotalCalories
		summary.MealBreakdown[row.MealType] += row.TotalCalories
	}

	if raw, err := json.Marshal(summary); err == nil {
		s.cache.Set(ctx, key, raw, summaryCacheTTL)
	}
	return summary, nil
}

func summaryCacheKey(userID, date string) string {
	return fmt.Sprintf("summary:%s:%s", userID, date)
}

func dayRange(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.New(http.StatusBadRequest, apperr.CodeInvalidData, "date must be YYYY-MM-DD")
	}
	return day, day.Add(24 * time.Hour), nil
}
