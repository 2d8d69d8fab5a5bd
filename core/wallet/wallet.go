// Package wallet is the gold ledger: balances plus an append-only history of money transactions.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/user"
)

type TxType string

const (
	TxEarned      TxType = "EARNED"
	TxSpent       TxType = "SPENT"
	TxTransferIn  TxType = "TRANSFER_IN"
	TxTransferOut TxType = "TRANSFER_OUT"
	TxRefund      TxType = "REFUND"
	TxFee         TxType = "FEE"
)

var (
	ErrInsufficientFunds = core.NewInvalidError("insufficient funds")
	ErrInvalidAmount     = core.NewInvalidError("amount must be positive")
	ErrSelfTransfer      = core.NewInvalidError("cannot transfer to yourself")
	ErrRecipientNotFound = core.NewNotFoundError("recipient not found")
	// ErrTxNotFound is returned by repositories when no transaction matches a request ID.
	ErrTxNotFound = core.NewNotFoundError("transaction not found")
	// ErrDuplicateRequest is returned by CreateTransaction, together with the stored transaction,
	// when the user already has a transaction with the same request ID.
	ErrDuplicateRequest = core.NewConflictError("request already processed")
)

type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Amount       int       `json:"amount"` // negative for debits
	Type         TxType    `json:"type"`
	Reason       string    `json:"reason"`
	RefType      string    `json:"ref_type,omitempty"`
	RefID        string    `json:"ref_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// Entry describes a single-user balance change. Amount is always positive.
type Entry struct {
	UserID  string
	Amount  int
	Type    TxType
	Reason  string
	RefType string
	RefID   string
	// RequestID makes the entry idempotent: a second entry with the same ID returns the first transaction.
	RequestID string
}

type TransferRequest struct {
	ToUserID  string `json:"to_user_id" validate:"required"`
	Amount    int    `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=200"`
	RequestID string `json:"request_id" validate:"omitempty,max=64"`
}

type TransferResult struct {
	Out Transaction `json:"out"`
	In  Transaction `json:"in"`
}

type HistoryFilter struct {
	Type  TxType    `query:"type"`
	Since time.Time `query:"-"`
}

type (
	Repository interface {
		// GetWallet returns the user's wallet, a zero balance one if it does not exist yet.
		GetWallet(ctx context.Context, userID string) (Wallet, error)
		// AdjustBalance atomically adds delta to the balance, returning the new balance.
		// It fails with ErrInsufficientFunds when the balance would become negative.
		AdjustBalance(ctx context.Context, userID string, delta int, at time.Time) (int, error)
		CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
		// Lock blocks other transactions locking the same key until the current transaction ends.
		Lock(ctx context.Context, key string) error
		// GetTransactionByRequestID returns ErrTxNotFound when there is none.
		GetTransactionByRequestID(ctx context.Context, userID, requestID string) (Transaction, error)
		// QueryTransactions returns the user's transactions, newest first.
		QueryTransactions(ctx context.Context, userID string, filter HistoryFilter, page core.Page) ([]Transaction, error)
		SumEarnedSince(ctx context.Context, userID string, since time.Time) (int, error)
	}

	userGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		users    userGetter
		notifier notification.Notifier
	}
)

func NewService(repo Repository, tx core.Transactor, users userGetter, notifier notification.Notifier) *Service {
	return &Service{repo: repo, tx: tx, users: users, notifier: notifier}
}

func (svc *Service) Balance(ctx context.Context, userID string) (Wallet, error) {
	return svc.repo.GetWallet(ctx, userID)
}

func (svc *Service) History(ctx context.Context, userID string, filter HistoryFilter, page core.Page) ([]Transaction, error) {
	page.Clean()
	return svc.repo.QueryTransactions(ctx, userID, filter, page)
}

func (svc *Service) EarnedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return svc.repo.SumEarnedSince(ctx, userID, since)
}

// Credit adds gold to a wallet.
func (svc *Service) Credit(ctx context.Context, e Entry) (Transaction, error) {
	if e.Type == "" {
		e.Type = TxEarned
	}
	return svc.apply(ctx, e, e.Amount)
}

// Debit removes gold from a wallet, failing with ErrInsufficientFunds if the balance is too low.
func (svc *Service) Debit(ctx context.Context, e Entry) (Transaction, error) {
	if e.Type == "" {
		e.Type = TxSpent
	}
	return svc.apply(ctx, e, -e.Amount)
}

func (svc *Service) apply(ctx context.Context, e Entry, delta int) (Transaction, error) {
	if e.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	var res Transaction
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if e.RequestID != "" {
			if err := svc.repo.Lock(ctx, requestKey(e.UserID, e.RequestID)); err != nil {
				return err
			}
			prev, err := svc.repo.GetTransactionByRequestID(ctx, e.UserID, e.RequestID)
			if err == nil {
				res = prev
				return nil
			}
			if errors.Cause(err) != ErrTxNotFound {
				return errors.Wrap(err, "checking request id")
			}
		}

		now := core.Now()
		balance, err := svc.repo.AdjustBalance(ctx, e.UserID, delta, now)
		if err != nil {
			return err
		}
		res, err = svc.repo.CreateTransaction(ctx, Transaction{
			UserID:       e.UserID,
			Amount:       delta,
			Type:         e.Type,
			Reason:       e.Reason,
			RefType:      e.RefType,
			RefID:        e.RefID,
			RequestID:    e.RequestID,
			BalanceAfter: balance,
			CreatedAt:    now,
		})
		if errors.Cause(err) == ErrDuplicateRequest {
			// written by someone not holding the request lock: undo and replay
			if _, err = svc.repo.AdjustBalance(ctx, e.UserID, -delta, now); err != nil {
				return errors.Wrap(err, "reverting balance")
			}
			return nil
		}
		return errors.Wrap(err, "creating transaction")
	})
	return res, err
}

func requestKey(userID, requestID string) string {
	return "wallet-request:" + userID + ":" + requestID
}

// Transfer atomically moves gold between two users.
func (svc *Service) Transfer(ctx context.Context, fromUserID string, req TransferRequest) (TransferResult, error) {
	if req.Amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if fromUserID == req.ToUserID {
		return TransferResult{}, ErrSelfTransfer
	}
	recipient, err := svc.users.GetByID(ctx, req.ToUserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return TransferResult{}, ErrRecipientNotFound
		}
		return TransferResult{}, errors.Wrap(err, "finding recipient")
	}
	if !recipient.IsActive {
		return TransferResult{}, ErrRecipientNotFound
	}

	reason := req.Reason
	if reason == "" {
		reason = "Transfer"
	}

	var res TransferResult
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if req.RequestID != "" {
			if err := svc.repo.Lock(ctx, requestKey(fromUserID, req.RequestID)); err != nil {
				return err
			}
			out, err := svc.repo.GetTransactionByRequestID(ctx, fromUserID, req.RequestID)
			if err == nil {
				in, err := svc.repo.GetTransactionByRequestID(ctx, req.ToUserID, req.RequestID)
				if err != nil {
					return errors.Wrap(err, "finding transfer counterpart")
				}
				res = TransferResult{Out: out, In: in}
				return nil
			}
			if errors.Cause(err) != ErrTxNotFound {
				return errors.Wrap(err, "checking request id")
			}
		}

		var err error
		res.Out, err = svc.Debit(ctx, Entry{
			UserID:    fromUserID,
			Amount:    req.Amount,
			Type:      TxTransferOut,
			Reason:    reason,
			RefType:   "user",
			RefID:     req.ToUserID,
			RequestID: req.RequestID,
		})
		if err != nil {
			return err
		}
		res.In, err = svc.Credit(ctx, Entry{
			UserID:    req.ToUserID,
			Amount:    req.Amount,
			Type:      TxTransferIn,
			Reason:    reason,
			RefType:   "user",
			RefID:     fromUserID,
			RequestID: req.RequestID,
		})
		if err != nil {
			return err
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  req.ToUserID,
			Type:    notification.TypeSystem,
			Title:   "Gold received",
			Message: fmt.Sprintf("You received %d gold", req.Amount),
			Data:    map[string]interface{}{"from_user_id": fromUserID, "amount": req.Amount},
		})
		return err
	})
	return res, err
}
