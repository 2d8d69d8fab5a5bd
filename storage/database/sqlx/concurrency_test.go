package sqlxrepos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/market"
	"github.com/edurpg/edurpg/core/progression"
	"github.com/edurpg/edurpg/core/streak"
	"github.com/edurpg/edurpg/core/trade"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
	testutil "github.com/edurpg/edurpg/tests"
)

// newUser creates an active user with a unique username, deleted at the end of the test.
func newUser(t *testing.T, repos di.Repositories, roles ...string) user.User {
	t.Helper()
	uname := "c" + uuid.New().String()[:8]
	usr := testutil.CreateUser(t, repos.Users, uname, uname, uname+"@test.cd", "", roles, true)
	t.Cleanup(func() { _ = repos.Users.DeleteUsers(context.Background(), usr.ID) })
	return usr
}

func fund(t *testing.T, svc *di.Services, userID string, amount int) {
	t.Helper()
	_, err := svc.Wallet.Credit(context.Background(), wallet.Entry{UserID: userID, Amount: amount, Reason: "test funds"})
	require.NoError(t, err)
}

func balance(t *testing.T, svc *di.Services, userID string) int {
	t.Helper()
	w, err := svc.Wallet.Balance(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func newItem(t *testing.T, repos di.Repositories, svc *di.Services, price int) item.Item {
	t.Helper()
	ctx := context.Background()
	it, err := svc.Items.Create(ctx, item.NewItem{
		Name:   "Item " + uuid.New().String()[:8],
		Price:  price,
		Rarity: item.RarityCommon,
		Type:   item.TypeCollectible,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Items.DeleteItem(ctx, it.ID) })
	return it
}

// concurrently runs fn n times at once, returning the error of each call.
func concurrently(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return errs
}

func countNil(errs []error) int {
	n := 0
	for _, err := range errs {
		if err == nil {
			n++
		}
	}
	return n
}

func TestGuild_concurrentDeposits(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	svc := di.NewServices(core.NewTestConfig(), testutil.Logger{}, repos, nil, nil)

	leader := newUser(t, repos, user.RoleStudent)
	g, err := svc.Guilds.Create(ctx, leader.ID, guild.NewGuild{Name: "Guild " + uuid.New().String()[:8], MaxMembers: 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Guilds.DeleteGuild(ctx, g.ID) })

	members := []user.User{leader}
	for i := 0; i < 7; i++ {
		m := newUser(t, repos, user.RoleStudent)
		_, err = svc.Guilds.Join(ctx, m.ID, g.ID)
		require.NoError(t, err)
		members = append(members, m)
	}
	for _, m := range members {
		fund(t, svc, m.ID, 100)
	}

	// every member deposits twice at the same time
	errs := concurrently(2*len(members), func(i int) error {
		_, err := svc.Guilds.Deposit(ctx, members[i%len(members)].ID, g.ID, 10)
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.Guilds.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*len(members)*10, got.Treasury)
	for _, m := range members {
		assert.Equal(t, 80, balance(t, svc, m.ID))
		mb, err := repos.Guilds.GetMember(ctx, g.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, mb.ContributedGold)
	}
}

func TestGuild_concurrentJoins(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	svc := di.NewServices(core.NewTestConfig(), testutil.Logger{}, repos, nil, nil)

	leader := newUser(t, repos, user.RoleStudent)
	g, err := svc.Guilds.Create(ctx, leader.ID, guild.NewGuild{Name: "Guild " + uuid.New().String()[:8], MaxMembers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Guilds.DeleteGuild(ctx, g.ID) })

	var joiners []user.User
	for i := 0; i < 6; i++ {
		joiners = append(joiners, newUser(t, repos, user.RoleStudent))
	}
	errs := concurrently(len(joiners), func(i int) error {
		_, err := svc.Guilds.Join(ctx, joiners[i].ID, g.ID)
		return err
	})

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.Equal(t, guild.ErrGuildFull, errors.Cause(err))
	}
	assert.Equal(t, 1, joined)

	got, err := svc.Guilds.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount)
	members, err := repos.Guilds.QueryMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestXP_concurrentGrantsWithinBudget(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	conf := core.NewTestConfig()
	svc := di.NewServices(conf, testutil.Logger{}, repos, nil, nil)

	teacher := newUser(t, repos, user.RoleTeacher)
	var students []user.User
	for i := 0; i < 10; i++ {
		students = append(students, newUser(t, repos, user.RoleStudent))
	}
	amount := conf.Game.TeacherDailyXPBudget / 5

	errs := concurrently(len(students), func(i int) error {
		_, err := svc.XP.Grant(ctx, teacher, xp.GrantRequest{
			UserID:    students[i].ID,
			Amount:    amount,
			Reason:    "Great presentation",
			SubjectID: "math",
		})
		return err
	})

	granted := 0
	for _, err := range errs {
		if err == nil {
			granted++
			continue
		}
		assert.Equal(t, xp.ErrBudgetExceeded, errors.Cause(err))
	}
	assert.Equal(t, 5, granted)

	b, err := svc.XP.RemainingBudget(ctx, teacher.ID, "math")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Remaining)
}

func TestXP_concurrentRequestIDs(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	svc := di.NewServices(core.NewTestConfig(), testutil.Logger{}, repos, nil, nil)

	alice := newUser(t, repos, user.RoleStudent)
	bob := newUser(t, repos, user.RoleStudent)

	errs := concurrently(6, func(i int) error {
		to := alice
		if i%2 == 1 {
			to = bob
		}
		_, err := svc.XP.Award(ctx, xp.GrantRequest{UserID: to.ID, Amount: 50, Reason: "Quest", RequestID: "quest-1"})
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, u := range []user.User{alice, bob} {
		entries, err := svc.XP.History(ctx, u.ID, core.Page{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "quest-1", entries[0].RequestID)
	}
}

func Test_walletRepository(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	svc := di.NewServices(core.NewTestConfig(), testutil.Logger{}, repos, nil, nil)
	usr := newUser(t, repos, user.RoleStudent)
	now := time.Now().UTC().Truncate(time.Second)

	tests := []struct {
		name        string
		delta       int
		wantBalance int
		wantErr     error
	}{
		{name: "creates the wallet", delta: 30, wantBalance: 30},
		{name: "adds", delta: 20, wantBalance: 50},
		{name: "removes", delta: -50, wantBalance: 0},
		{name: "overdraft", delta: -1, wantErr: wallet.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repos.Wallets.AdjustBalance(ctx, usr.ID, tt.delta, now)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBalance, got)
		})
	}

	first, err := repos.Wallets.CreateTransaction(ctx, wallet.Transaction{
		UserID: usr.ID, Amount: 5, Type: wallet.TxEarned, Reason: "first", RequestID: "req-1", CreatedAt: now,
	})
	require.NoError(t, err)
	err = repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		again, err := repos.Wallets.CreateTransaction(ctx, wallet.Transaction{
			UserID: usr.ID, Amount: 5, Type: wallet.TxEarned, Reason: "again", RequestID: "req-1", CreatedAt: now,
		})
		assert.Equal(t, wallet.ErrDuplicateRequest, errors.Cause(err))
		assert.Equal(t, first.ID, again.ID)
		// the transaction is still usable after the conflict
		_, err = repos.Wallets.GetWallet(ctx, usr.ID)
		return err
	})
	require.NoError(t, err)

	// the same request id, sent at once, is credited once
	errs := concurrently(8, func(int) error {
		_, err := svc.Wallet.Credit(ctx, wallet.Entry{UserID: usr.ID, Amount: 10, Reason: "job pay", RequestID: "job-1"})
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 10, balance(t, svc, usr.ID))
	history, err := svc.Wallet.History(ctx, usr.ID, wallet.HistoryFilter{}, core.Page{})
	require.NoError(t, err)
	credited := 0
	for _, tx := range history {
		if tx.RequestID == "job-1" {
			credited++
		}
	}
	assert.Equal(t, 1, credited)
}

func Test_inventoryRepository(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	svc := di.NewServices(core.NewTestConfig(), testutil.Logger{}, repos, nil, nil)
	usr := newUser(t, repos, user.RoleStudent)
	it := newItem(t, repos, svc, 10)

	tests := []struct {
		name    string
		delta   int
		wantQty int
		wantErr error
	}{
		{name: "adds", delta: 3, wantQty: 3},
		{name: "adds more", delta: 2, wantQty: 5},
		{name: "removes some", delta: -1, wantQty: 4},
		{name: "removes too many", delta: -5, wantErr: item.ErrInsufficientQuantity},
		{name: "removes all", delta: -4, wantQty: 0},
		{name: "removes from empty", delta: -1, wantErr: item.ErrInsufficientQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repos.Items.AdjustInventory(ctx, usr.ID, it.ID, tt.delta)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQty, got)
		})
	}

	inv, err := repos.Items.QueryInventory(ctx, usr.ID)
	require.NoError(t, err)
	assert.Empty(t, inv)
}

func TestMarket_escrow(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	conf := core.NewTestConfig()
	svc := di.NewServices(conf, testutil.Logger{}, repos, nil, nil)

	seller := newUser(t, repos, user.RoleStudent)
	total := progression.TotalXPForLevel(conf.Game.MinTradeLevel)
	_, err := repos.XP.SaveProgress(ctx, xp.Progress{UserID: seller.ID, TotalXP: total, Level: progression.LevelFromXP(total), UpdatedAt: core.Now()})
	require.NoError(t, err)
	it := newItem(t, repos, svc, 100)
	_, err = svc.Items.AddToInventory(ctx, seller.ID, it.ID, 5)
	require.NoError(t, err)

	l, err := svc.Market.CreateListing(ctx, seller.ID, market.NewListing{ItemID: it.ID, Quantity: 3, PricePerUnit: 100})
	require.NoError(t, err)
	qty, err := svc.Items.Quantity(ctx, seller.ID, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	var buyers []user.User
	for i := 0; i < 5; i++ {
		b := newUser(t, repos, user.RoleStudent)
		fund(t, svc, b.ID, 100)
		buyers = append(buyers, b)
	}
	errs := concurrently(len(buyers), func(i int) error {
		_, err := svc.Market.Buy(ctx, buyers[i].ID, l.ID, 1)
		return err
	})
	var broke user.User
	for i, err := range errs {
		qty, qerr := svc.Items.Quantity(ctx, buyers[i].ID, it.ID)
		require.NoError(t, qerr)
		if err == nil {
			broke = buyers[i]
			assert.Equal(t, 1, qty)
			assert.Equal(t, 0, balance(t, svc, buyers[i].ID))
			continue
		}
		assert.Contains(t, []error{market.ErrNotEnoughRemaining, market.ErrNotActive}, errors.Cause(err))
		assert.Equal(t, 0, qty)
		assert.Equal(t, 100, balance(t, svc, buyers[i].ID))
	}
	assert.Equal(t, 3, countNil(errs))

	got, err := svc.Market.Get(ctx, l.ID, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, market.ListingSold, got.Status)
	assert.Equal(t, 0, got.Remaining)

	// cancelling returns what is left
	l, err = svc.Market.CreateListing(ctx, seller.ID, market.NewListing{ItemID: it.ID, Quantity: 2, PricePerUnit: 100})
	require.NoError(t, err)
	_, err = svc.Market.Buy(ctx, broke.ID, l.ID, 1)
	assert.Equal(t, wallet.ErrInsufficientFunds, errors.Cause(err))
	cancelled, err := svc.Market.Cancel(ctx, seller.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, market.ListingCancelled, cancelled.Status)
	qty, err = svc.Items.Quantity(ctx, seller.ID, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
}

func TestTrade_accept(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	svc := di.NewServices(core.NewTestConfig(), testutil.Logger{}, repos, nil, nil)

	alice := newUser(t, repos, user.RoleStudent)
	bob := newUser(t, repos, user.RoleStudent)
	card := newItem(t, repos, svc, 10)
	gem := newItem(t, repos, svc, 50)
	_, err := svc.Items.AddToInventory(ctx, alice.ID, card.ID, 4)
	require.NoError(t, err)
	_, err = svc.Items.AddToInventory(ctx, bob.ID, gem.ID, 1)
	require.NoError(t, err)

	tr, err := svc.Trades.Create(ctx, alice.ID, trade.NewTrade{
		RecipientID:    bob.ID,
		OfferedItems:   []trade.Line{{ItemID: card.ID, Quantity: 4}},
		RequestedItems: []trade.Line{{ItemID: gem.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	got, err := repos.Trades.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.OfferedItems, got.OfferedItems)

	_, err = svc.Trades.Accept(ctx, alice.ID, tr.ID)
	assert.Equal(t, trade.ErrNotRecipient, errors.Cause(err))

	done, err := svc.Trades.Accept(ctx, bob.ID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusCompleted, done.Status)

	want := map[string]map[string]int{
		alice.ID: {card.ID: 0, gem.ID: 1},
		bob.ID:   {card.ID: 4, gem.ID: 0},
	}
	for userID, items := range want {
		for itemID, qty := range items {
			got, err := svc.Items.Quantity(ctx, userID, itemID)
			require.NoError(t, err)
			assert.Equal(t, qty, got)
		}
	}

	_, err = svc.Trades.Accept(ctx, bob.ID, tr.ID)
	assert.Error(t, err)
}

func Test_streakRepository(t *testing.T) {
	repos := prepareDB(t)
	ctx := context.Background()
	svc := di.NewServices(core.NewTestConfig(), testutil.Logger{}, repos, nil, nil)
	usr := newUser(t, repos, user.RoleStudent)

	_, err := repos.Streaks.GetStreak(ctx, usr.ID)
	assert.Equal(t, streak.ErrNotFound, errors.Cause(err))

	res, err := svc.Streaks.RecordActivity(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	res, err = svc.Streaks.RecordActivity(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak.CurrentStreak)

	last := time.Now().UTC().Add(-72 * time.Hour).Truncate(time.Second)
	saved := streak.Streak{
		UserID:             usr.ID,
		CurrentStreak:      4,
		LongestStreak:      9,
		TotalParticipation: 20,
		LastActivityAt:     last,
		UpdatedAt:          last,
	}
	_, err = repos.Streaks.SaveStreak(ctx, saved)
	require.NoError(t, err)

	got, err := repos.Streaks.GetStreak(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.CurrentStreak)
	assert.Equal(t, 9, got.LongestStreak)
	assert.Equal(t, 20, got.TotalParticipation)
	assert.True(t, last.Equal(got.LastActivityAt))
	assert.True(t, got.BrokenAt.IsZero())

	stale, err := repos.Streaks.QueryStaleStreaks(ctx, last.Add(time.Hour))
	require.NoError(t, err)
	found := false
	for _, s := range stale {
		found = found || s.UserID == usr.ID
	}
	assert.True(t, found)
}
