package inmemdb

import (
	"context"
	"time"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/wallet"
)

type walletRepository struct {
	db *DB
}

var _ wallet.Repository = (*walletRepository)(nil)

func NewWalletRepository(db *DB) *walletRepository {
	return &walletRepository{db: db}
}

func (repo *walletRepository) GetWallet(ctx context.Context, userID string) (wallet.Wallet, error) {
	var w wallet.Wallet
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if w, ok = t.wallets[userID]; !ok {
			w = wallet.Wallet{UserID: userID}
		}
		return nil
	})
	return w, err
}

func (repo *walletRepository) AdjustBalance(ctx context.Context, userID string, delta int, at time.Time) (int, error) {
	var balance int
	err := repo.db.write(ctx, func(t *tables) error {
		w, ok := t.wallets[userID]
		if !ok {
			w = wallet.Wallet{UserID: userID}
		}
		if w.Balance+delta < 0 {
			return wallet.ErrInsufficientFunds
		}
		w.Balance += delta
		w.UpdatedAt = at
		t.wallets[userID] = w
		balance = w.Balance
		return nil
	})
	return balance, err
}

func (repo *walletRepository) CreateTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if tx.RequestID != "" {
			for _, prev := range t.walletTxs {
				if prev.UserID == tx.UserID && prev.RequestID == tx.RequestID {
					tx = prev
					return wallet.ErrDuplicateRequest
				}
			}
		}
		tx.ID = newID()
		t.walletTxs = append(t.walletTxs, tx)
		return nil
	})
	return tx, err
}

// Lock is a no-op: writers are already serialized.
func (repo *walletRepository) Lock(ctx context.Context, key string) error {
	return nil
}

func (repo *walletRepository) GetTransactionByRequestID(ctx context.Context, userID, requestID string) (wallet.Transaction, error) {
	var res wallet.Transaction
	err := repo.db.read(ctx, func(t *tables) error {
		for _, tx := range t.walletTxs {
			if tx.UserID == userID && tx.RequestID == requestID {
				res = tx
				return nil
			}
		}
		return wallet.ErrTxNotFound
	})
	return res, err
}

func (repo *walletRepository) QueryTransactions(ctx context.Context, userID string, filter wallet.HistoryFilter, page core.Page) ([]wallet.Transaction, error) {
	var res []wallet.Transaction
	err := repo.db.read(ctx, func(t *tables) error {
		// newest first: transactions are appended in creation order
		for i := len(t.walletTxs) - 1; i >= 0; i-- {
			tx := t.walletTxs[i]
			if tx.UserID != userID || (filter.Type != "" && tx.Type != filter.Type) {
				continue
			}
			if !filter.Since.IsZero() && tx.CreatedAt.Before(filter.Since) {
				continue
			}
			res = append(res, tx)
		}
		return nil
	})
	return paginate(res, page), err
}

func (repo *walletRepository) SumEarnedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var sum int
	err := repo.db.read(ctx, func(t *tables) error {
		for _, tx := range t.walletTxs {
			if tx.UserID == userID && tx.Type == wallet.TxEarned && !tx.CreatedAt.Before(since) {
				sum += tx.Amount
			}
		}
		return nil
	})
	return sum, err
}
