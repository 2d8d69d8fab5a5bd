package quest

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/core"
)

type Difficulty string

const (
	DifficultyEasy      Difficulty = "EASY"
	DifficultyMedium    Difficulty = "MEDIUM"
	DifficultyHard      Difficulty = "HARD"
	DifficultyEpic      Difficulty = "EPIC"
	DifficultyLegendary Difficulty = "LEGENDARY"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusArchived Status = "ARCHIVED"
)

type ProgressStatus string

const (
	ProgressAccepted   ProgressStatus = "ACCEPTED"
	ProgressInProgress ProgressStatus = "IN_PROGRESS"
	ProgressCompleted  ProgressStatus = "COMPLETED"
	ProgressAbandoned  ProgressStatus = "ABANDONED"
)

// IsOpen reports whether the quest is being worked on.
func (s ProgressStatus) IsOpen() bool {
	return s == ProgressAccepted || s == ProgressInProgress
}

type Quest struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Difficulty    Difficulty `json:"difficulty"`
	RequiredLevel int        `json:"required_level"`
	XPReward      int        `json:"xp_reward"`
	MoneyReward   int        `json:"money_reward"`
	Status        Status     `json:"status"`
	// GuildID makes it a guild quest: completing members feed that guild.
	GuildID   string    `json:"guild_id,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Progress struct {
	ID          string         `json:"id"`
	QuestID     string         `json:"quest_id"`
	UserID      string         `json:"user_id"`
	Status      ProgressStatus `json:"status"`
	Progress    int            `json:"progress"` // percent
	AcceptedAt  time.Time      `json:"accepted_at"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// UserQuest is a quest as seen by a user working on it.
type UserQuest struct {
	Quest    Quest    `json:"quest"`
	Progress Progress `json:"progress"`
}

type CompletionResult struct {
	Progress Progress `json:"progress"`
	XP       int      `json:"xp"`
	Gold     int      `json:"gold"`
	LevelUp  bool     `json:"level_up"`
}

type NewQuest struct {
	Title         string     `json:"title" validate:"required,notblank,min=3,max=100"`
	Description   string     `json:"description" validate:"max=2000"`
	Category      string     `json:"category" validate:"max=50"`
	Difficulty    Difficulty `json:"difficulty" validate:"required,difficulty"`
	RequiredLevel int        `json:"required_level" validate:"min=0,max=100"`
	XPReward      int        `json:"xp_reward" validate:"min=0,max=10000"`
	MoneyReward   int        `json:"money_reward" validate:"min=0,max=10000"`
	GuildID       string     `json:"guild_id"`
}

func (nq *NewQuest) Validate(validate *validator.Validate) error {
	nq.Title = core.CleanString(nq.Title)
	nq.Description = core.CleanString(nq.Description)
	nq.Category = core.CleanString(nq.Category, true /* lower */)
	return validate.Struct(nq)
}

type UpdateQuest struct {
	Title         *string     `json:"title" validate:"omitempty,notblank,min=3,max=100"`
	Description   *string     `json:"description" validate:"omitempty,max=2000"`
	Category      *string     `json:"category" validate:"omitempty,max=50"`
	Difficulty    *Difficulty `json:"difficulty" validate:"omitempty,difficulty"`
	RequiredLevel *int        `json:"required_level" validate:"omitempty,min=0,max=100"`
	XPReward      *int        `json:"xp_reward" validate:"omitempty,min=0,max=10000"`
	MoneyReward   *int        `json:"money_reward" validate:"omitempty,min=0,max=10000"`
	Status        *Status     `json:"status" validate:"omitempty,queststatus"`
}

func (uq *UpdateQuest) Validate(validate *validator.Validate) error {
	return validate.Struct(uq)
}

type QueryFilter struct {
	IDs        []string   `query:"-"`
	Search     string     `query:"search"`
	Category   string     `query:"category"`
	Difficulty Difficulty `query:"difficulty"`
	Status     Status     `query:"status"`
	GuildID    string     `query:"guild_id"`
	// MaxLevel keeps quests whose required level is at most this value; 0 disables.
	MaxLevel int `query:"max_level"`
}

type UpdateProgress struct {
	Progress int `json:"progress" validate:"min=0,max=100"`
}

func (up UpdateProgress) Validate(validate *validator.Validate) error { return validate.Struct(up) }

// OrderingFields are the fields quests can be ordered by.
var OrderingFields = []string{"title", "difficulty", "required_level", "xp_reward", "money_reward", "created_at"}

// InitValidators registers the quest validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterEnumValidation(validate, translator, "difficulty", "invalid difficulty",
		string(DifficultyEasy), string(DifficultyMedium), string(DifficultyHard), string(DifficultyEpic), string(DifficultyLegendary))
	core.RegisterEnumValidation(validate, translator, "queststatus", "invalid quest status",
		string(StatusActive), string(StatusInactive), string(StatusArchived))
}
