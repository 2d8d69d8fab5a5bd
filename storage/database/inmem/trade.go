package inmemdb

import (
	"context"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/trade"
)

type tradeRepository struct {
	db *DB
}

var _ trade.Repository = (*tradeRepository)(nil)

func NewTradeRepository(db *DB) *tradeRepository {
	return &tradeRepository{db: db}
}

func (repo *tradeRepository) CreateTrade(ctx context.Context, tr trade.Trade) (trade.Trade, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		tr.ID = newID()
		t.trades[tr.ID] = tr
		return nil
	})
	return tr, err
}

func (repo *tradeRepository) GetTrade(ctx context.Context, id string) (trade.Trade, error) {
	var tr trade.Trade
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if tr, ok = t.trades[id]; !ok {
			return trade.ErrNotFound
		}
		return nil
	})
	return tr, err
}

func (repo *tradeRepository) UpdateTrade(ctx context.Context, tr trade.Trade) (trade.Trade, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.trades[tr.ID]
		if !ok {
			return trade.ErrNotFound
		}
		orig.Status = tr.Status
		orig.UpdatedAt = tr.UpdatedAt
		orig.ClosedAt = tr.ClosedAt
		t.trades[tr.ID] = orig
		tr = orig
		return nil
	})
	return tr, err
}

func (repo *tradeRepository) QueryTrades(ctx context.Context, userID string, filter trade.QueryFilter, page core.Page) ([]trade.Trade, error) {
	var res []trade.Trade
	err := repo.db.read(ctx, func(t *tables) error {
		for _, tr := range t.trades {
			var mine bool
			switch filter.Side {
			case trade.SideSent:
				mine = tr.RequesterID == userID
			case trade.SideReceived:
				mine = tr.RecipientID == userID
			default:
				mine = tr.RequesterID == userID || tr.RecipientID == userID
			}
			if mine && (filter.Status == "" || tr.Status == filter.Status) {
				res = append(res, tr)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b trade.Trade) bool { return a.CreatedAt.After(b.CreatedAt) })
	return paginate(res, page), err
}
