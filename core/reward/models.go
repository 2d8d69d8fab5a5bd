package reward

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/core"
)

type Category string

const (
	CategoryPrivilege  Category = "PRIVILEGE"
	CategorySupplies   Category = "SUPPLIES"
	CategoryFood       Category = "FOOD"
	CategoryExperience Category = "EXPERIENCE"
	CategoryOther      Category = "OTHER"
)

type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "PENDING"
	ClaimApproved  ClaimStatus = "APPROVED"
	ClaimRejected  ClaimStatus = "REJECTED"
	ClaimCompleted ClaimStatus = "COMPLETED"
)

// Reward is a real-world prize students pay for with gold. A teacher hands it over once the claim is approved.
type Reward struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       Category  `json:"category"`
	ImageURL       string    `json:"image_url,omitempty"`
	GoldPrice      int       `json:"gold_price"`
	LevelRequired  int       `json:"level_required"`
	TotalStock     int       `json:"total_stock"`
	AvailableStock int       `json:"available_stock"`
	AvailableFrom  time.Time `json:"available_from,omitempty"`
	AvailableTo    time.Time `json:"available_to,omitempty"`
	IsFeatured     bool      `json:"is_featured"`
	Priority       int       `json:"priority"`
	IsActive       bool      `json:"is_active"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsAvailableAt reports whether the reward can be claimed at t, stock aside.
func (r Reward) IsAvailableAt(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	if !r.AvailableFrom.IsZero() && t.Before(r.AvailableFrom) {
		return false
	}
	return r.AvailableTo.IsZero() || !t.After(r.AvailableTo)
}

type Claim struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	RewardID       string      `json:"reward_id"`
	Status         ClaimStatus `json:"status"`
	GoldPaid       int         `json:"gold_paid"`
	StudentNote    string      `json:"student_note,omitempty"`
	AdminNote      string      `json:"admin_note,omitempty"`
	RejectedReason string      `json:"rejected_reason,omitempty"`
	DecidedBy      string      `json:"decided_by,omitempty"`
	DecidedAt      time.Time   `json:"decided_at,omitempty"`
	CompletedBy    string      `json:"completed_by,omitempty"`
	CompletedAt    time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ClaimDetails is a claim with the claimed reward.
type ClaimDetails struct {
	Claim
	Reward Reward `json:"reward"`
}

type NewReward struct {
	Name          string     `json:"name" validate:"required,notblank,max=100"`
	Description   string     `json:"description" validate:"max=1000"`
	Category      Category   `json:"category" validate:"required,rewardcategory"`
	ImageURL      string     `json:"image_url" validate:"omitempty,url,max=500"`
	GoldPrice     int        `json:"gold_price" validate:"min=0,max=1000000"`
	LevelRequired int        `json:"level_required" validate:"min=0,max=1000"`
	TotalStock    int        `json:"total_stock" validate:"required,min=1,max=100000"`
	AvailableFrom *time.Time `json:"available_from"`
	AvailableTo   *time.Time `json:"available_to"`
	IsFeatured    bool       `json:"is_featured"`
	Priority      int        `json:"priority" validate:"min=0,max=1000"`
}

func (nr *NewReward) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Description = core.CleanString(nr.Description)
	return validate.Struct(nr)
}

type UpdateReward struct {
	Name          *string    `json:"name" validate:"omitempty,notblank,max=100"`
	Description   *string    `json:"description" validate:"omitempty,max=1000"`
	GoldPrice     *int       `json:"gold_price" validate:"omitempty,min=0,max=1000000"`
	LevelRequired *int       `json:"level_required" validate:"omitempty,min=0,max=1000"`
	TotalStock    *int       `json:"total_stock" validate:"omitempty,min=1,max=100000"`
	AvailableFrom *time.Time `json:"available_from"`
	AvailableTo   *time.Time `json:"available_to"`
	IsFeatured    *bool      `json:"is_featured"`
	Priority      *int       `json:"priority" validate:"omitempty,min=0,max=1000"`
	IsActive      *bool      `json:"is_active"`
}

func (ur *UpdateReward) Validate(validate *validator.Validate) error {
	return validate.Struct(ur)
}

type ClaimRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (cr *ClaimRequest) Validate(validate *validator.Validate) error {
	cr.Note = core.CleanString(cr.Note)
	return validate.Struct(cr)
}

type Decision struct {
	Note string `json:"note" validate:"max=500"`
}

func (d *Decision) Validate(validate *validator.Validate) error {
	d.Note = core.CleanString(d.Note)
	return validate.Struct(d)
}

type Rejection struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

func (r *Rejection) Validate(validate *validator.Validate) error {
	r.Reason = core.CleanString(r.Reason)
	return validate.Struct(r)
}

type QueryFilter struct {
	Category   Category `query:"category"`
	IsActive   *bool    `query:"is_active"`
	IsFeatured *bool    `query:"is_featured"`
	// AvailableAt keeps active rewards in stock and within their availability window at that time.
	AvailableAt time.Time `query:"-"`
	// MaxLevel drops rewards requiring a higher level. Zero disables it.
	MaxLevel int `query:"-"`
}

type ClaimFilter struct {
	Status   ClaimStatus `query:"status"`
	UserID   string      `query:"user_id"`
	RewardID string      `query:"reward_id"`
}

// InitValidators registers the reward validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterEnumValidation(validate, translator, "rewardcategory", "invalid reward category",
		string(CategoryPrivilege), string(CategorySupplies), string(CategoryFood), string(CategoryExperience),
		string(CategoryOther))
}
