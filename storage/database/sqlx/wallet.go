package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/wallet"
)

type walletTxRow struct {
	ID           string      `db:"id"`
	UserID       string      `db:"user_id"`
	Amount       int         `db:"amount"`
	Type         string      `db:"type"`
	Reason       string      `db:"reason"`
	RefType      null.String `db:"ref_type"`
	RefID        null.String `db:"ref_id"`
	RequestID    null.String `db:"request_id"`
	BalanceAfter int         `db:"balance_after"`
	CreatedAt    time.Time   `db:"created_at"`
}

func (r walletTxRow) transaction() wallet.Transaction {
	return wallet.Transaction{
		ID:           r.ID,
		UserID:       r.UserID,
		Amount:       r.Amount,
		Type:         wallet.TxType(r.Type),
		Reason:       r.Reason,
		RefType:      r.RefType.String,
		RefID:        r.RefID.String,
		RequestID:    r.RequestID.String,
		BalanceAfter: r.BalanceAfter,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

const walletTxColumns = `id, user_id, amount, type, reason, ref_type, ref_id, request_id, balance_after, created_at`

type walletRepository struct {
	*Store
}

var _ wallet.Repository = (*walletRepository)(nil)

func NewWalletRepository(s *Store) *walletRepository {
	return &walletRepository{Store: s}
}

func (repo walletRepository) GetWallet(ctx context.Context, userID string) (wallet.Wallet, error) {
	w := wallet.Wallet{UserID: userID}
	var row struct {
		Balance   int       `db:"balance"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := repo.get(ctx, &row, `SELECT balance, updated_at FROM wallet WHERE user_id = ?`, userID)
	switch {
	case errors.Cause(err) == sql.ErrNoRows:
		return w, nil
	case err != nil:
		return w, errors.Wrap(err, "getting wallet")
	}
	w.Balance = row.Balance
	w.UpdatedAt = row.UpdatedAt.UTC()
	return w, nil
}

func (repo walletRepository) AdjustBalance(ctx context.Context, userID string, delta int, at time.Time) (int, error) {
	_, err := repo.execx(ctx,
		`INSERT INTO wallet (user_id, balance, updated_at) VALUES (?, 0, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, at.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "creating wallet")
	}

	var balance int
	err = repo.get(ctx, &balance, `
		UPDATE wallet SET balance = balance + ?, updated_at = ?
		WHERE user_id = ? AND balance + ? >= 0
		RETURNING balance`,
		delta, at.UTC(), userID, delta)
	if errors.Cause(err) == sql.ErrNoRows {
		return 0, wallet.ErrInsufficientFunds
	}
	return balance, errors.Wrap(err, "adjusting balance")
}

func (repo walletRepository) CreateTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, error) {
	tx.ID = uuid.New().String()
	// DO NOTHING keeps a surrounding transaction usable when the request ID is taken
	n, err := repo.named(ctx, `
		INSERT INTO wallet_transaction (`+walletTxColumns+`)
		VALUES (:id, :user_id, :amount, :type, :reason, :ref_type, :ref_id, :request_id, :balance_after, :created_at)
		ON CONFLICT (user_id, request_id) WHERE request_id IS NOT NULL DO NOTHING`,
		walletTxRow{
			ID:           tx.ID,
			UserID:       tx.UserID,
			Amount:       tx.Amount,
			Type:         string(tx.Type),
			Reason:       tx.Reason,
			RefType:      nullString(tx.RefType),
			RefID:        nullString(tx.RefID),
			RequestID:    nullString(tx.RequestID),
			BalanceAfter: tx.BalanceAfter,
			CreatedAt:    tx.CreatedAt.UTC(),
		})
	if err != nil {
		return wallet.Transaction{}, errors.Wrap(err, "inserting wallet transaction")
	}
	if n == 0 {
		prev, err := repo.GetTransactionByRequestID(ctx, tx.UserID, tx.RequestID)
		if err != nil {
			return wallet.Transaction{}, err
		}
		return prev, wallet.ErrDuplicateRequest
	}
	return tx, nil
}

func (repo walletRepository) Lock(ctx context.Context, key string) error {
	return advisoryLock(ctx, repo.Store, key)
}

func (repo walletRepository) GetTransactionByRequestID(ctx context.Context, userID, requestID string) (wallet.Transaction, error) {
	var r walletTxRow
	err := repo.get(ctx, &r,
		`SELECT `+walletTxColumns+` FROM wallet_transaction WHERE user_id = ? AND request_id = ? ORDER BY created_at LIMIT 1`,
		userID, requestID)
	if err != nil {
		return wallet.Transaction{}, trapNoRows(err, wallet.ErrTxNotFound, "getting wallet transaction")
	}
	return r.transaction(), nil
}

func (repo walletRepository) QueryTransactions(ctx context.Context, userID string, hf wallet.HistoryFilter, page core.Page) ([]wallet.Transaction, error) {
	var f filter
	f.and("user_id = ?", userID)
	if hf.Type != "" {
		f.and("type = ?", string(hf.Type))
	}
	if !hf.Since.IsZero() {
		f.and("created_at >= ?", hf.Since.UTC())
	}

	var rows []walletTxRow
	q := `SELECT ` + walletTxColumns + ` FROM wallet_transaction` + f.where() + ` ORDER BY created_at DESC, id` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying wallet transactions")
	}
	res := make([]wallet.Transaction, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.transaction())
	}
	return res, nil
}

func (repo walletRepository) SumEarnedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var sum int
	err := repo.get(ctx, &sum,
		`SELECT COALESCE(SUM(amount), 0) FROM wallet_transaction WHERE user_id = ? AND type = ? AND created_at >= ?`,
		userID, string(wallet.TxEarned), since.UTC())
	return sum, errors.Wrap(err, "summing earned gold")
}
