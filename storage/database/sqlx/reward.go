package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/reward"
)

type rewardRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Description    string      `db:"description"`
	Category       string      `db:"category"`
	ImageURL       null.String `db:"image_url"`
	GoldPrice      int         `db:"gold_price"`
	LevelRequired  int         `db:"level_required"`
	TotalStock     int         `db:"total_stock"`
	AvailableStock int         `db:"available_stock"`
	AvailableFrom  null.Time   `db:"available_from"`
	AvailableTo    null.Time   `db:"available_to"`
	IsFeatured     bool        `db:"is_featured"`
	Priority       int         `db:"priority"`
	IsActive       bool        `db:"is_active"`
	CreatedBy      string      `db:"created_by"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func toRewardRow(r reward.Reward) rewardRow {
	return rewardRow{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Category:       string(r.Category),
		ImageURL:       nullString(r.ImageURL),
		GoldPrice:      r.GoldPrice,
		LevelRequired:  r.LevelRequired,
		TotalStock:     r.TotalStock,
		AvailableStock: r.AvailableStock,
		AvailableFrom:  nullTime(r.AvailableFrom),
		AvailableTo:    nullTime(r.AvailableTo),
		IsFeatured:     r.IsFeatured,
		Priority:       r.Priority,
		IsActive:       r.IsActive,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r rewardRow) reward() reward.Reward {
	return reward.Reward{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Category:       reward.Category(r.Category),
		ImageURL:       r.ImageURL.String,
		GoldPrice:      r.GoldPrice,
		LevelRequired:  r.LevelRequired,
		TotalStock:     r.TotalStock,
		AvailableStock: r.AvailableStock,
		AvailableFrom:  utc(r.AvailableFrom),
		AvailableTo:    utc(r.AvailableTo),
		IsFeatured:     r.IsFeatured,
		Priority:       r.Priority,
		IsActive:       r.IsActive,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type claimRow struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	RewardID       string      `db:"reward_id"`
	Status         string      `db:"status"`
	GoldPaid       int         `db:"gold_paid"`
	StudentNote    string      `db:"student_note"`
	AdminNote      string      `db:"admin_note"`
	RejectedReason string      `db:"rejected_reason"`
	DecidedBy      null.String `db:"decided_by"`
	DecidedAt      null.Time   `db:"decided_at"`
	CompletedBy    null.String `db:"completed_by"`
	CompletedAt    null.Time   `db:"completed_at"`
	CreatedAt      time.Time   `db:"created_at"`
}

func toClaimRow(c reward.Claim) claimRow {
	return claimRow{
		ID:             c.ID,
		UserID:         c.UserID,
		RewardID:       c.RewardID,
		Status:         string(c.Status),
		GoldPaid:       c.GoldPaid,
		StudentNote:    c.StudentNote,
		AdminNote:      c.AdminNote,
		RejectedReason: c.RejectedReason,
		DecidedBy:      nullString(c.DecidedBy),
		DecidedAt:      nullTime(c.DecidedAt),
		CompletedBy:    nullString(c.CompletedBy),
		CompletedAt:    nullTime(c.CompletedAt),
		CreatedAt:      c.CreatedAt.UTC(),
	}
}

func (r claimRow) claim() reward.Claim {
	return reward.Claim{
		ID:             r.ID,
		UserID:         r.UserID,
		RewardID:       r.RewardID,
		Status:         reward.ClaimStatus(r.Status),
		GoldPaid:       r.GoldPaid,
		StudentNote:    r.StudentNote,
		AdminNote:      r.AdminNote,
		RejectedReason: r.RejectedReason,
		DecidedBy:      r.DecidedBy.String,
		DecidedAt:      utc(r.DecidedAt),
		CompletedBy:    r.CompletedBy.String,
		CompletedAt:    utc(r.CompletedAt),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

const (
	rewardColumns = `id, name, description, category, image_url, gold_price, level_required, total_stock, available_stock,
		available_from, available_to, is_featured, priority, is_active, created_by, created_at, updated_at`
	claimColumns = `id, user_id, reward_id, status, gold_paid, student_note, admin_note, rejected_reason,
		decided_by, decided_at, completed_by, completed_at, created_at`
)

type rewardRepository struct {
	*Store
}

var _ reward.Repository = (*rewardRepository)(nil)

func NewRewardRepository(s *Store) *rewardRepository {
	return &rewardRepository{Store: s}
}

func (repo rewardRepository) CreateReward(ctx context.Context, r reward.Reward) (reward.Reward, error) {
	r.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO reward (`+rewardColumns+`)
		VALUES (:id, :name, :description, :category, :image_url, :gold_price, :level_required, :total_stock,
			:available_stock, :available_from, :available_to, :is_featured, :priority, :is_active, :created_by,
			:created_at, :updated_at)`,
		toRewardRow(r))
	if err != nil {
		return reward.Reward{}, errors.Wrap(err, "inserting reward")
	}
	return r, nil
}

func (repo rewardRepository) GetReward(ctx context.Context, id string) (reward.Reward, error) {
	if !validID(id) {
		return reward.Reward{}, reward.ErrNotFound
	}
	var r rewardRow
	if err := repo.get(ctx, &r, `SELECT `+rewardColumns+` FROM reward WHERE id = ?`+forUpdate(ctx), id); err != nil {
		return reward.Reward{}, trapNoRows(err, reward.ErrNotFound, "getting reward")
	}
	return r.reward(), nil
}

func (repo rewardRepository) QueryRewards(ctx context.Context, qf reward.QueryFilter, page core.Page) ([]reward.Reward, error) {
	var f filter
	if qf.Category != "" {
		f.and("category = ?", string(qf.Category))
	}
	if qf.IsActive != nil {
		f.and("is_active = ?", *qf.IsActive)
	}
	if qf.IsFeatured != nil {
		f.and("is_featured = ?", *qf.IsFeatured)
	}
	if !qf.AvailableAt.IsZero() {
		at := qf.AvailableAt.UTC()
		f.and("is_active AND available_stock > 0")
		f.and("(available_from IS NULL OR available_from <= ?)", at)
		f.and("(available_to IS NULL OR available_to >= ?)", at)
	}
	if qf.MaxLevel > 0 {
		f.and("level_required <= ?", qf.MaxLevel)
	}

	var rows []rewardRow
	q := `SELECT ` + rewardColumns + ` FROM reward` + f.where() +
		` ORDER BY is_featured DESC, priority DESC, created_at DESC, id` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying rewards")
	}
	res := make([]reward.Reward, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.reward())
	}
	return res, nil
}

func (repo rewardRepository) UpdateReward(ctx context.Context, r reward.Reward) (reward.Reward, error) {
	var created struct {
		CreatedBy string    `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}
	row := toRewardRow(r)
	err := repo.get(ctx, &created, `
		UPDATE reward SET
			name = ?, description = ?, category = ?, image_url = ?, gold_price = ?, level_required = ?,
			total_stock = ?, available_stock = ?, available_from = ?, available_to = ?, is_featured = ?,
			priority = ?, is_active = ?, updated_at = ?
		WHERE id = ?
		RETURNING created_by, created_at`,
		row.Name, row.Description, row.Category, row.ImageURL, row.GoldPrice, row.LevelRequired,
		row.TotalStock, row.AvailableStock, row.AvailableFrom, row.AvailableTo, row.IsFeatured,
		row.Priority, row.IsActive, row.UpdatedAt, row.ID)
	if err != nil {
		return reward.Reward{}, trapNoRows(err, reward.ErrNotFound, "updating reward")
	}
	r.CreatedBy = created.CreatedBy
	r.CreatedAt = created.CreatedAt.UTC()
	return r, nil
}

func (repo rewardRepository) CreateClaim(ctx context.Context, c reward.Claim) (reward.Claim, error) {
	c.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO reward_claim (`+claimColumns+`)
		VALUES (:id, :user_id, :reward_id, :status, :gold_paid, :student_note, :admin_note, :rejected_reason,
			:decided_by, :decided_at, :completed_by, :completed_at, :created_at)`,
		toClaimRow(c))
	if err != nil {
		return reward.Claim{}, errors.Wrap(err, "inserting reward claim")
	}
	return c, nil
}

func (repo rewardRepository) GetClaim(ctx context.Context, id string) (reward.Claim, error) {
	if !validID(id) {
		return reward.Claim{}, reward.ErrClaimNotFound
	}
	var r claimRow
	if err := repo.get(ctx, &r, `SELECT `+claimColumns+` FROM reward_claim WHERE id = ?`+forUpdate(ctx), id); err != nil {
		return reward.Claim{}, trapNoRows(err, reward.ErrClaimNotFound, "getting reward claim")
	}
	return r.claim(), nil
}

func (repo rewardRepository) QueryClaims(ctx context.Context, qf reward.ClaimFilter, page core.Page) ([]reward.Claim, error) {
	var f filter
	if qf.Status != "" {
		f.and("status = ?", string(qf.Status))
	}
	if qf.UserID != "" {
		f.and("user_id::text = ?", qf.UserID)
	}
	if qf.RewardID != "" {
		f.and("reward_id::text = ?", qf.RewardID)
	}
	order := ` ORDER BY created_at DESC, id`
	if qf.Status == reward.ClaimPending {
		order = ` ORDER BY created_at, id`
	}

	var rows []claimRow
	q := `SELECT ` + claimColumns + ` FROM reward_claim` + f.where() + order + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying reward claims")
	}
	res := make([]reward.Claim, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.claim())
	}
	return res, nil
}

func (repo rewardRepository) UpdateClaim(ctx context.Context, c reward.Claim) (reward.Claim, error) {
	var orig struct {
		UserID    string    `db:"user_id"`
		RewardID  string    `db:"reward_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	r := toClaimRow(c)
	err := repo.get(ctx, &orig, `
		UPDATE reward_claim SET
			status = ?, admin_note = ?, rejected_reason = ?, decided_by = ?, decided_at = ?,
			completed_by = ?, completed_at = ?
		WHERE id = ?
		RETURNING user_id, reward_id, created_at`,
		r.Status, r.AdminNote, r.RejectedReason, r.DecidedBy, r.DecidedAt, r.CompletedBy, r.CompletedAt, r.ID)
	if err != nil {
		return reward.Claim{}, trapNoRows(err, reward.ErrClaimNotFound, "updating reward claim")
	}
	c.UserID = orig.UserID
	c.RewardID = orig.RewardID
	c.CreatedAt = orig.CreatedAt.UTC()
	return c, nil
}
