package achievement

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
)

type Type string

const (
	TypeNormal Type = "NORMAL"
	// TypeHidden stays out of a user's list until unlocked.
	TypeHidden Type = "HIDDEN"
	// TypeTemporary can only be unlocked within its availability window.
	TypeTemporary   Type = "TEMPORARY"
	TypeProgressive Type = "PROGRESSIVE"
)

// Category tells which user metric unlocks the achievement. CategoryOther is only unlocked by hand.
type Category string

const (
	CategoryLevel  Category = "LEVEL"
	CategoryXP     Category = "XP"
	CategoryQuest  Category = "QUEST"
	CategoryJob    Category = "JOB"
	CategoryStreak Category = "STREAK"
	CategoryOther  Category = "OTHER"
)

type Achievement struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        Type        `json:"type"`
	Category    Category    `json:"category"`
	Icon        string      `json:"icon,omitempty"`
	Rarity      item.Rarity `json:"rarity"`
	// Target is the metric value unlocking the achievement.
	Target        int       `json:"target"`
	XPReward      int       `json:"xp_reward"`
	MoneyReward   int       `json:"money_reward"`
	AvailableFrom time.Time `json:"available_from,omitempty"`
	AvailableTo   time.Time `json:"available_to,omitempty"`
	SortOrder     int       `json:"sort_order"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsAvailableAt reports whether the achievement can be unlocked at t.
func (a Achievement) IsAvailableAt(t time.Time) bool {
	if !a.IsActive {
		return false
	}
	if !a.AvailableFrom.IsZero() && t.Before(a.AvailableFrom) {
		return false
	}
	return a.AvailableTo.IsZero() || !t.After(a.AvailableTo)
}

// IsAutomatic reports whether reaching the target unlocks it without anyone's action.
func (a Achievement) IsAutomatic() bool {
	return a.Category != CategoryOther && a.Target > 0
}

type Award struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	AwardedBy     string    `json:"awarded_by,omitempty"`
	AwardedAt     time.Time `json:"awarded_at"`
}

// Metrics are the user figures automatic achievements are measured against.
type Metrics struct {
	Level           int `json:"level"`
	TotalXP         int `json:"total_xp"`
	QuestsCompleted int `json:"quests_completed"`
	JobsCompleted   int `json:"jobs_completed"`
	LongestStreak   int `json:"longest_streak"`
}

// Value returns the metric matching c, false for manual categories.
func (m Metrics) Value(c Category) (int, bool) {
	switch c {
	case CategoryLevel:
		return m.Level, true
	case CategoryXP:
		return m.TotalXP, true
	case CategoryQuest:
		return m.QuestsCompleted, true
	case CategoryJob:
		return m.JobsCompleted, true
	case CategoryStreak:
		return m.LongestStreak, true
	}
	return 0, false
}

type Progress struct {
	Current int `json:"current"`
	Target  int `json:"target"`
	Percent int `json:"percent"`
}

func newProgress(current, target int) *Progress {
	p := &Progress{Current: current, Target: target, Percent: 100}
	if current < target {
		p.Percent = current * 100 / target
	}
	return p
}

// UserAchievement is an achievement as seen by a user.
type UserAchievement struct {
	Achievement
	Unlocked   bool      `json:"unlocked"`
	UnlockedAt time.Time `json:"unlocked_at,omitempty"`
	Progress   *Progress `json:"progress,omitempty"`
}

type UnlockResult struct {
	Award       Award       `json:"award"`
	Achievement Achievement `json:"achievement"`
	XP          int         `json:"xp"`
	Gold        int         `json:"gold"`
	// AlreadyUnlocked is set when the user held it before; no reward was paid again.
	AlreadyUnlocked bool `json:"already_unlocked,omitempty"`
}

type NewAchievement struct {
	Name          string      `json:"name" validate:"required,notblank,max=100"`
	Description   string      `json:"description" validate:"max=500"`
	Type          Type        `json:"type" validate:"omitempty,achievementtype"`
	Category      Category    `json:"category" validate:"omitempty,achievementcategory"`
	Icon          string      `json:"icon" validate:"max=200"`
	Rarity        item.Rarity `json:"rarity" validate:"omitempty,rarity"`
	Target        int         `json:"target" validate:"min=0,max=10000000"`
	XPReward      int         `json:"xp_reward" validate:"min=0,max=10000"`
	MoneyReward   int         `json:"money_reward" validate:"min=0,max=10000"`
	AvailableFrom *time.Time  `json:"available_from"`
	AvailableTo   *time.Time  `json:"available_to"`
	SortOrder     int         `json:"sort_order" validate:"min=0,max=10000"`
}

func (na *NewAchievement) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Description = core.CleanString(na.Description)
	return validate.Struct(na)
}

type UnlockRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (ur *UnlockRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(ur)
}

// InitValidators registers the achievement validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterEnumValidation(validate, translator, "achievementtype", "invalid achievement type",
		string(TypeNormal), string(TypeHidden), string(TypeTemporary), string(TypeProgressive))
	core.RegisterEnumValidation(validate, translator, "achievementcategory", "invalid achievement category",
		string(CategoryLevel), string(CategoryXP), string(CategoryQuest), string(CategoryJob),
		string(CategoryStreak), string(CategoryOther))
}
