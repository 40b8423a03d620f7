package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MealType is one of the four fixed meal categories.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// Valid reports whether m is one of the enumerated meal types.
func (m MealType) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return true
	}
	return false
}

// MealTypeForTime derives the meal type from the hour of day:
// 06:00-10:59 breakfast, 11:00-16:59 lunch, 17:00-21:59 dinner, else snack.
func MealTypeForTime(t time.Time) MealType {
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 11:
		return MealBreakfast
	case hour >= 11 && hour < 17:
		return MealLunch
	case hour >= 17 && hour < 22:
		return MealDinner
	default:
		return MealSnack
	}
}

// NutrientAmount is a value with its unit, e.g. {12.5, "g"}.
type NutrientAmount struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// NutrientTotals is the per-log nutrient breakdown stored as JSON.
type NutrientTotals struct {
	Carbohydrates NutrientAmount `json:"carbohydrates"`
	Protein       NutrientAmount `json:"protein"`
	Fat           NutrientAmount `json:"fat"`
	Sugars        NutrientAmount `json:"sugars"`
	Sodium        NutrientAmount `json:"sodium"`
}

// Value implements the driver.Valuer interface
func (n NutrientTotals) Value() (driver.Value, error) {
	return json.Marshal(n)
}

// Scan implements the sql.Scanner interface
func (n *NutrientTotals) Scan(value interface{}) error {
	return scanJSON(value, n)
}

// FoodItem is one recognized food within a FoodLog. Field names follow the
// workflow payload.
type FoodItem struct {
	FoodName   string         `json:"foodName"`
	Confidence float64        `json:"confidence"`
	Quantity   string         `json:"quantity"`
	Calories   int            `json:"calories"`
	Nutrients  NutrientTotals `json:"nutrients"`
}

// FoodItems is the ordered item list stored as a JSON array.
type FoodItems []FoodItem

// Value implements the driver.Valuer interface
func (f FoodItems) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "[]", nil
	}
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface
func (f *FoodItems) Scan(value interface{}) error {
	if value == nil {
		*f = FoodItems{}
		return nil
	}
	return scanJSON(value, f)
}

// FoodLog is one persisted meal-analysis result. Rows are created exactly
// once when analysis completes and never mutated except by owner-scoped
// delete.
type FoodLog struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string         `gorm:"size:64;not null;index;index:idx_food_logs_user_date,priority:1" json:"user_id"`
	ImageURL        *string        `gorm:"size:512" json:"image_url"`
	MealType        MealType       `gorm:"size:16;not null;check:meal_type IN ('breakfast','lunch','dinner','snack')" json:"meal_type"`
	FoodItems       FoodItems      `gorm:"type:jsonb;not null;default:'[]'" json:"food_items"`
	TotalCalories   int            `gorm:"not null;default:0;check:total_calories >= 0" json:"total_calories"`
	TotalNutrients  NutrientTotals `gorm:"type:jsonb;not null;default:'{}'" json:"total_nutrients"`
	ConfidenceScore float64        `gorm:"not null;default:0;check:confidence_score >= 0 AND confidence_score <= 1" json:"confidence_score"`
	CreatedAt       time.Time      `gorm:"index;index:idx_food_logs_user_date,priority:2" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func scanJSON(value, dest interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
	return json.Unmarshal(bytes, dest)
}
