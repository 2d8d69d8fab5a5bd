package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/tests"
)

func TestService_CreditDebit(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Wallet
	ctx := context.Background()
	usr := env.Student(t, "hero")

	w, err := svc.Balance(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Balance)

	tx, err := svc.Credit(ctx, wallet.Entry{UserID: usr.ID, Amount: 100, Reason: "quest"})
	require.NoError(t, err)
	assert.Equal(t, wallet.TxEarned, tx.Type)
	assert.Equal(t, 100, tx.Amount)
	assert.Equal(t, 100, tx.BalanceAfter)

	tx, err = svc.Debit(ctx, wallet.Entry{UserID: usr.ID, Amount: 30, Reason: "shop"})
	require.NoError(t, err)
	assert.Equal(t, wallet.TxSpent, tx.Type)
	assert.Equal(t, -30, tx.Amount)
	assert.Equal(t, 70, tx.BalanceAfter)

	_, err = svc.Debit(ctx, wallet.Entry{UserID: usr.ID, Amount: 71})
	assert.Equal(t, wallet.ErrInsufficientFunds, errors.Cause(err))
	assert.Equal(t, 70, env.Balance(t, usr.ID))

	for _, amount := range []int{0, -5} {
		_, err = svc.Credit(ctx, wallet.Entry{UserID: usr.ID, Amount: amount})
		assert.Equal(t, wallet.ErrInvalidAmount, err)
		_, err = svc.Debit(ctx, wallet.Entry{UserID: usr.ID, Amount: amount})
		assert.Equal(t, wallet.ErrInvalidAmount, err)
	}

	history, err := svc.History(ctx, usr.ID, wallet.HistoryFilter{}, core.Page{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, wallet.TxSpent, history[0].Type)

	history, err = svc.History(ctx, usr.ID, wallet.HistoryFilter{Type: wallet.TxEarned}, core.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 100, history[0].Amount)
}

func TestService_idempotentRequests(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Wallet
	ctx := context.Background()
	usr := env.Student(t, "hero")

	e := wallet.Entry{UserID: usr.ID, Amount: 50, Reason: "bonus", RequestID: "req-1"}
	first, err := svc.Credit(ctx, e)
	require.NoError(t, err)
	again, err := svc.Credit(ctx, e)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 50, env.Balance(t, usr.ID))
}

// staleLookups hides existing request IDs, like a concurrent writer that committed after the lookup.
type staleLookups struct {
	wallet.Repository
}

func (staleLookups) GetTransactionByRequestID(ctx context.Context, userID, requestID string) (wallet.Transaction, error) {
	return wallet.Transaction{}, wallet.ErrTxNotFound
}

func TestService_duplicateRequestOnInsert(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := env.Student(t, "hero")

	e := wallet.Entry{UserID: usr.ID, Amount: 50, Reason: "bonus", RequestID: "req-1"}
	first, err := env.Svc.Wallet.Credit(ctx, e)
	require.NoError(t, err)

	svc := wallet.NewService(staleLookups{env.Repos.Wallets}, env.Repos.Tx, env.Svc.Users, env.Svc.Notifications)
	again, err := svc.Credit(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 50, env.Balance(t, usr.ID))

	_, err = svc.Debit(ctx, wallet.Entry{UserID: usr.ID, Amount: 20, RequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, 50, env.Balance(t, usr.ID))
}

func TestService_EarnedSince(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Wallet
	ctx := context.Background()
	usr := env.Student(t, "hero")
	now := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	testutil.SetNow(t, now.Add(-48*time.Hour))
	env.Fund(t, usr.ID, 500)
	testutil.SetNow(t, now)
	env.Fund(t, usr.ID, 20)
	_, err := svc.Debit(ctx, wallet.Entry{UserID: usr.ID, Amount: 100})
	require.NoError(t, err)

	earned, err := svc.EarnedSince(ctx, usr.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 20, earned)
}

func TestService_Transfer(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Wallet
	ctx := context.Background()
	alice := env.Student(t, "alice")
	bob := env.Student(t, "bob")
	gone := testutil.CreateUser(t, env.Repos.Users, "Gone", "gone", "gone@test.cd", "", []string{user.RoleStudent}, false)
	env.Fund(t, alice.ID, 100)

	tests := []struct {
		name    string
		req     wallet.TransferRequest
		wantErr error
	}{
		{name: "zero amount", req: wallet.TransferRequest{ToUserID: bob.ID}, wantErr: wallet.ErrInvalidAmount},
		{name: "to self", req: wallet.TransferRequest{ToUserID: alice.ID, Amount: 10}, wantErr: wallet.ErrSelfTransfer},
		{name: "unknown recipient", req: wallet.TransferRequest{ToUserID: "nobody", Amount: 10}, wantErr: wallet.ErrRecipientNotFound},
		{name: "inactive recipient", req: wallet.TransferRequest{ToUserID: gone.ID, Amount: 10}, wantErr: wallet.ErrRecipientNotFound},
		{name: "too poor", req: wallet.TransferRequest{ToUserID: bob.ID, Amount: 101}, wantErr: wallet.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transfer(ctx, alice.ID, tt.req)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
			assert.Equal(t, 100, env.Balance(t, alice.ID))
			assert.Equal(t, 0, env.Balance(t, bob.ID))
		})
	}

	t.Run("success", func(t *testing.T) {
		req := wallet.TransferRequest{ToUserID: bob.ID, Amount: 40, RequestID: "gift-1"}
		res, err := svc.Transfer(ctx, alice.ID, req)
		require.NoError(t, err)
		assert.Equal(t, wallet.TxTransferOut, res.Out.Type)
		assert.Equal(t, -40, res.Out.Amount)
		assert.Equal(t, "Transfer", res.Out.Reason)
		assert.Equal(t, wallet.TxTransferIn, res.In.Type)
		assert.Equal(t, 40, res.In.Amount)
		assert.Equal(t, 60, env.Balance(t, alice.ID))
		assert.Equal(t, 40, env.Balance(t, bob.ID))

		// replaying the request moves nothing
		again, err := svc.Transfer(ctx, alice.ID, req)
		require.NoError(t, err)
		assert.Equal(t, res.Out.ID, again.Out.ID)
		assert.Equal(t, res.In.ID, again.In.ID)
		assert.Equal(t, 60, env.Balance(t, alice.ID))

		notifs, err := env.Svc.Notifications.List(ctx, bob.ID, notification.QueryFilter{}, core.Page{})
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, "Gold received", notifs[0].Title)
	})
}
