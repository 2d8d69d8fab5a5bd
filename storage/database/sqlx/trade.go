package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/trade"
)

type tradeRow struct {
	ID             string         `db:"id"`
	RequesterID    string         `db:"requester_id"`
	RecipientID    string         `db:"recipient_id"`
	Message        string         `db:"message"`
	OfferedItems   types.JSONText `db:"offered_items"`
	RequestedItems types.JSONText `db:"requested_items"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	ClosedAt       null.Time      `db:"closed_at"`
}

func lines(ll []trade.Line) (types.JSONText, error) {
	if ll == nil {
		ll = []trade.Line{}
	}
	b, err := json.Marshal(ll)
	return types.JSONText(b), errors.Wrap(err, "encoding trade lines")
}

func (r tradeRow) trade() (trade.Trade, error) {
	t := trade.Trade{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		RecipientID: r.RecipientID,
		Message:     r.Message,
		Status:      trade.Status(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		ClosedAt:    utc(r.ClosedAt),
	}
	if err := r.OfferedItems.Unmarshal(&t.OfferedItems); err != nil {
		return t, errors.Wrap(err, "decoding offered items")
	}
	if err := r.RequestedItems.Unmarshal(&t.RequestedItems); err != nil {
		return t, errors.Wrap(err, "decoding requested items")
	}
	return t, nil
}

const tradeColumns = `id, requester_id, recipient_id, message, offered_items, requested_items, status, created_at, updated_at, closed_at`

type tradeRepository struct {
	*Store
}

var _ trade.Repository = (*tradeRepository)(nil)

func NewTradeRepository(s *Store) *tradeRepository {
	return &tradeRepository{Store: s}
}

func (repo tradeRepository) CreateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	offered, err := lines(t.OfferedItems)
	if err != nil {
		return trade.Trade{}, err
	}
	requested, err := lines(t.RequestedItems)
	if err != nil {
		return trade.Trade{}, err
	}

	t.ID = uuid.New().String()
	_, err = repo.named(ctx, `
		INSERT INTO trade (`+tradeColumns+`)
		VALUES (:id, :requester_id, :recipient_id, :message, :offered_items, :requested_items, :status,
			:created_at, :updated_at, :closed_at)`,
		tradeRow{
			ID:             t.ID,
			RequesterID:    t.RequesterID,
			RecipientID:    t.RecipientID,
			Message:        t.Message,
			OfferedItems:   offered,
			RequestedItems: requested,
			Status:         string(t.Status),
			CreatedAt:      t.CreatedAt.UTC(),
			UpdatedAt:      t.UpdatedAt.UTC(),
			ClosedAt:       nullTime(t.ClosedAt),
		})
	if err != nil {
		return trade.Trade{}, errors.Wrap(err, "inserting trade")
	}
	return t, nil
}

func (repo tradeRepository) GetTrade(ctx context.Context, id string) (trade.Trade, error) {
	if !validID(id) {
		return trade.Trade{}, trade.ErrNotFound
	}
	var r tradeRow
	if err := repo.get(ctx, &r, `SELECT `+tradeColumns+` FROM trade WHERE id = ?`+forUpdate(ctx), id); err != nil {
		return trade.Trade{}, trapNoRows(err, trade.ErrNotFound, "getting trade")
	}
	return r.trade()
}

func (repo tradeRepository) UpdateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	var r tradeRow
	err := repo.get(ctx, &r, `
		UPDATE trade SET status = ?, updated_at = ?, closed_at = ?
		WHERE id = ?
		RETURNING `+tradeColumns,
		string(t.Status), t.UpdatedAt.UTC(), nullTime(t.ClosedAt), t.ID)
	if err != nil {
		return trade.Trade{}, trapNoRows(err, trade.ErrNotFound, "updating trade")
	}
	return r.trade()
}

func (repo tradeRepository) QueryTrades(ctx context.Context, userID string, qf trade.QueryFilter, page core.Page) ([]trade.Trade, error) {
	var f filter
	switch qf.Side {
	case trade.SideSent:
		f.and("requester_id = ?", userID)
	case trade.SideReceived:
		f.and("recipient_id = ?", userID)
	default:
		f.and("(requester_id = ? OR recipient_id = ?)", userID, userID)
	}
	if qf.Status != "" {
		f.and("status = ?", string(qf.Status))
	}

	var rows []tradeRow
	q := `SELECT ` + tradeColumns + ` FROM trade` + f.where() + ` ORDER BY created_at DESC, id` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying trades")
	}
	res := make([]trade.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.trade()
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}
