package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/leaderboard"
	"github.com/edurpg/edurpg/core/progression"
	"github.com/edurpg/edurpg/core/xp"
)

type xpEntryRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	Amount     int         `db:"amount"`
	BaseAmount int         `db:"base_amount"`
	Multiplier float64     `db:"multiplier"`
	Reason     string      `db:"reason"`
	Source     string      `db:"source"`
	GrantedBy  null.String `db:"granted_by"`
	SubjectID  null.String `db:"subject_id"`
	RefID      null.String `db:"ref_id"`
	RequestID  null.String `db:"request_id"`
	CreatedAt  time.Time   `db:"created_at"`
}

func (r xpEntryRow) entry() xp.Entry {
	return xp.Entry{
		ID:         r.ID,
		UserID:     r.UserID,
		Amount:     r.Amount,
		BaseAmount: r.BaseAmount,
		Multiplier: r.Multiplier,
		Reason:     r.Reason,
		Source:     xp.Source(r.Source),
		GrantedBy:  r.GrantedBy.String,
		SubjectID:  r.SubjectID.String,
		RefID:      r.RefID.String,
		RequestID:  r.RequestID.String,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

const xpEntryColumns = `id, user_id, amount, base_amount, multiplier, reason, source, granted_by, subject_id, ref_id, request_id, created_at`

type xpRepository struct {
	*Store
}

var _ xp.Repository = (*xpRepository)(nil)

func NewXPRepository(s *Store) *xpRepository {
	return &xpRepository{Store: s}
}

func (repo xpRepository) GetProgress(ctx context.Context, userID string) (xp.Progress, error) {
	p := xp.Progress{UserID: userID, Level: progression.MinLevel}
	var row struct {
		TotalXP   int       `db:"total_xp"`
		Level     int       `db:"level"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := repo.get(ctx, &row, `SELECT total_xp, level, updated_at FROM xp_progress WHERE user_id = ?`+forUpdate(ctx), userID)
	switch {
	case errors.Cause(err) == sql.ErrNoRows:
		return p, nil
	case err != nil:
		return p, errors.Wrap(err, "getting xp progress")
	}
	p.TotalXP = row.TotalXP
	p.Level = row.Level
	p.UpdatedAt = row.UpdatedAt.UTC()
	return p, nil
}

func (repo xpRepository) SaveProgress(ctx context.Context, p xp.Progress) (xp.Progress, error) {
	_, err := repo.execx(ctx, `
		INSERT INTO xp_progress (user_id, total_xp, level, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp, level = EXCLUDED.level, updated_at = EXCLUDED.updated_at`,
		p.UserID, p.TotalXP, p.Level, p.UpdatedAt.UTC())
	if err != nil {
		return xp.Progress{}, errors.Wrap(err, "saving xp progress")
	}
	return p, nil
}

func (repo xpRepository) CreateEntry(ctx context.Context, e xp.Entry) (xp.Entry, error) {
	e.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO xp_entry (`+xpEntryColumns+`)
		VALUES (:id, :user_id, :amount, :base_amount, :multiplier, :reason, :source, :granted_by, :subject_id, :ref_id, :request_id, :created_at)`,
		xpEntryRow{
			ID:         e.ID,
			UserID:     e.UserID,
			Amount:     e.Amount,
			BaseAmount: e.BaseAmount,
			Multiplier: e.Multiplier,
			Reason:     e.Reason,
			Source:     string(e.Source),
			GrantedBy:  nullString(e.GrantedBy),
			SubjectID:  nullString(e.SubjectID),
			RefID:      nullString(e.RefID),
			RequestID:  nullString(e.RequestID),
			CreatedAt:  e.CreatedAt.UTC(),
		})
	if err != nil {
		return xp.Entry{}, errors.Wrap(err, "inserting xp entry")
	}
	return e, nil
}

func (repo xpRepository) GetEntryByRequestID(ctx context.Context, userID, requestID string) (xp.Entry, error) {
	if !validID(userID) {
		return xp.Entry{}, xp.ErrEntryNotFound
	}
	var r xpEntryRow
	err := repo.get(ctx, &r, `SELECT `+xpEntryColumns+` FROM xp_entry WHERE user_id = ? AND request_id = ?`, userID, requestID)
	if err != nil {
		return xp.Entry{}, trapNoRows(err, xp.ErrEntryNotFound, "getting xp entry")
	}
	return r.entry(), nil
}

func (repo xpRepository) Lock(ctx context.Context, key string) error {
	return advisoryLock(ctx, repo.Store, key)
}

func (repo xpRepository) QueryEntries(ctx context.Context, userID string, page core.Page) ([]xp.Entry, error) {
	var f filter
	f.and("user_id = ?", userID)
	var rows []xpEntryRow
	q := `SELECT ` + xpEntryColumns + ` FROM xp_entry` + f.where() + ` ORDER BY created_at DESC, id` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying xp entries")
	}
	res := make([]xp.Entry, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.entry())
	}
	return res, nil
}

func (repo xpRepository) SumGranted(ctx context.Context, grantedBy, subjectID string, since time.Time) (int, error) {
	if !validID(grantedBy) {
		return 0, nil
	}
	var sum int
	err := repo.get(ctx, &sum, `
		SELECT COALESCE(SUM(base_amount), 0) FROM xp_entry
		WHERE granted_by = ? AND COALESCE(subject_id, '') = ? AND created_at >= ?`,
		grantedBy, subjectID, since.UTC())
	return sum, errors.Wrap(err, "summing granted xp")
}

type leaderboardRow struct {
	Rank     int         `db:"rank"`
	UserID   string      `db:"user_id"`
	Username null.String `db:"username"`
	TotalXP  int         `db:"total_xp"`
	Level    int         `db:"level"`
}

func (r leaderboardRow) entry() leaderboard.Entry {
	return leaderboard.Entry{
		Rank:     r.Rank,
		UserID:   r.UserID,
		Username: r.Username.String,
		TotalXP:  r.TotalXP,
		Level:    r.Level,
	}
}

type leaderboardRepository struct {
	*Store
}

var _ leaderboard.Repository = (*leaderboardRepository)(nil)

func NewLeaderboardRepository(s *Store) *leaderboardRepository {
	return &leaderboardRepository{Store: s}
}

func (repo leaderboardRepository) QueryTop(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	var rows []leaderboardRow
	err := repo.selectx(ctx, &rows, `
		SELECT ROW_NUMBER() OVER (ORDER BY p.total_xp DESC, p.user_id) AS rank,
			p.user_id, u.username, p.total_xp, p.level
		FROM xp_progress p JOIN "user" u ON u.id = p.user_id
		WHERE p.total_xp > 0
		ORDER BY p.total_xp DESC, p.user_id
		LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "querying leaderboard")
	}
	res := make([]leaderboard.Entry, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.entry())
	}
	return res, nil
}

func (repo leaderboardRepository) GetRank(ctx context.Context, userID string) (leaderboard.Entry, error) {
	if !validID(userID) {
		return leaderboard.Entry{}, leaderboard.ErrNotFound
	}
	var r leaderboardRow
	err := repo.get(ctx, &r, `
		SELECT u.id AS user_id, u.username,
			COALESCE(p.total_xp, 0) AS total_xp,
			COALESCE(p.level, ?) AS level,
			1 + (SELECT COUNT(*) FROM xp_progress o JOIN "user" ou ON ou.id = o.user_id
				WHERE o.total_xp > COALESCE(p.total_xp, 0)) AS rank
		FROM "user" u LEFT JOIN xp_progress p ON p.user_id = u.id
		WHERE u.id = ?`, progression.MinLevel, userID)
	if err != nil {
		return leaderboard.Entry{}, trapNoRows(err, leaderboard.ErrNotFound, "getting rank")
	}
	return r.entry(), nil
}

func (repo leaderboardRepository) QueryScores(ctx context.Context) ([]leaderboard.Score, error) {
	var rows []struct {
		UserID  string `db:"user_id"`
		TotalXP int    `db:"total_xp"`
	}
	err := repo.selectx(ctx, &rows, `
		SELECT p.user_id, p.total_xp FROM xp_progress p JOIN "user" u ON u.id = p.user_id
		WHERE p.total_xp > 0 ORDER BY p.total_xp DESC, p.user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying scores")
	}
	res := make([]leaderboard.Score, 0, len(rows))
	for _, r := range rows {
		res = append(res, leaderboard.Score{UserID: r.UserID, TotalXP: r.TotalXP})
	}
	return res, nil
}

func (repo leaderboardRepository) GetEntries(ctx context.Context, userIDs ...string) (map[string]leaderboard.Entry, error) {
	res := make(map[string]leaderboard.Entry, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if validID(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return res, nil
	}

	q, args, err := sqlx.In(`
		SELECT u.id AS user_id, u.username, COALESCE(p.total_xp, 0) AS total_xp, COALESCE(p.level, ?) AS level
		FROM "user" u LEFT JOIN xp_progress p ON p.user_id = u.id
		WHERE u.id IN (?)`, progression.MinLevel, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building entries query")
	}
	var rows []leaderboardRow
	if err := repo.selectx(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "getting leaderboard entries")
	}
	for _, r := range rows {
		res[r.UserID] = r.entry()
	}
	return res, nil
}
