package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/edurpg/edurpg/apps/api/echo"
	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/leaderboard"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/core/trade"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
)

func Test_xpApi_grant(t *testing.T) {
	app := setup(t)
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "student")
	teacherToken := app.token(t, teacher)
	studentToken := app.token(t, student)

	grant := func(amount int, reqID string) []byte {
		return marshallObj(t, xp.GrantRequest{UserID: student.ID, Amount: amount, Reason: "homework", SubjectID: "math", RequestID: reqID})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "students cannot grant",
			method:   http.MethodPost,
			path:     "/v1/xp/grant",
			body:     grant(10, ""),
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "missing reason",
			method:   http.MethodPost,
			path:     "/v1/xp/grant",
			body:     marshallObj(t, xp.GrantRequest{UserID: student.ID, Amount: 10}),
			token:    teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"reason": "this field is required"}),
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/v1/xp/grant",
			body:     marshallObj(t, xp.GrantRequest{UserID: "ghost", Amount: 10, Reason: "homework"}),
			token:    teacherToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
	})

	rec := app.do(http.MethodPost, "/v1/xp/grant", teacherToken, grant(100, "hw-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res xp.GrantResult
	decode(t, rec, &res)
	assert.Equal(t, 100, res.Entry.Amount)
	assert.Equal(t, 100, res.Progress.TotalXP)
	assert.False(t, res.Replayed)

	// same request ID is not granted twice
	rec = app.do(http.MethodPost, "/v1/xp/grant", teacherToken, grant(100, "hw-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &res)
	assert.True(t, res.Replayed)
	assert.Equal(t, 100, res.Progress.TotalXP)

	rec = app.do(http.MethodPost, "/v1/xp/grant", teacherToken, grant(950, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: xp.ErrBudgetExceeded.Error()})}, rec)

	rec = app.do(http.MethodGet, "/v1/xp/budget?subject_id=math", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var budget xp.Budget
	decode(t, rec, &budget)
	assert.Equal(t, xp.Budget{SubjectID: "math", Limit: 1000, Used: 100, Remaining: 900}, budget)

	rec = app.do(http.MethodGet, "/v1/xp/progress", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress xp.ProgressInfo
	decode(t, rec, &progress)
	assert.Equal(t, 100, progress.TotalXP)
	assert.Equal(t, 1, progress.Streak.Streak.CurrentStreak)

	rec = app.do(http.MethodGet, "/v1/xp/history", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []xp.Entry
	decode(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, teacher.ID, entries[0].GrantedBy)
}

func Test_walletApi(t *testing.T) {
	app := setup(t)
	alice := app.Student(t, "alice")
	bob := app.Student(t, "bob")
	aliceToken := app.token(t, alice)
	bobToken := app.token(t, bob)
	app.Fund(t, alice.ID, 100)

	transfer := func(to string, amount int) []byte {
		return marshallObj(t, wallet.TransferRequest{ToUserID: to, Amount: amount})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing recipient",
			method:   http.MethodPost,
			path:     "/v1/wallet/transfer",
			body:     transfer("", 10),
			token:    aliceToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"to_user_id": "this field is required"}),
		},
		{
			name:     "to self",
			method:   http.MethodPost,
			path:     "/v1/wallet/transfer",
			body:     transfer(alice.ID, 10),
			token:    aliceToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "cannot transfer to yourself"}),
		},
		{
			name:     "unknown recipient",
			method:   http.MethodPost,
			path:     "/v1/wallet/transfer",
			body:     transfer("ghost", 10),
			token:    aliceToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "recipient not found"}),
		},
		{
			name:     "insufficient funds",
			method:   http.MethodPost,
			path:     "/v1/wallet/transfer",
			body:     transfer(bob.ID, 1000),
			token:    aliceToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "insufficient funds"}),
		},
		{
			name:     "success",
			method:   http.MethodPost,
			path:     "/v1/wallet/transfer",
			body:     transfer(bob.ID, 30),
			token:    aliceToken,
			wantCode: http.StatusOK,
		},
	})

	rec := app.do(http.MethodGet, "/v1/wallet", aliceToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var w wallet.Wallet
	decode(t, rec, &w)
	assert.Equal(t, 70, w.Balance)

	rec = app.do(http.MethodGet, "/v1/wallet/transactions?type=TRANSFER_IN", bobToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []wallet.Transaction
	decode(t, rec, &txs)
	require.Len(t, txs, 1)
	assert.Equal(t, 30, txs[0].Amount)
	assert.Equal(t, alice.ID, txs[0].RefID)

	// the recipient was notified
	type count struct {
		Count int `json:"count"`
	}
	var c count
	rec = app.do(http.MethodGet, "/v1/notifications/unread-count", bobToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &c)
	assert.Equal(t, 1, c.Count)

	rec = app.do(http.MethodPost, "/v1/notifications/read-all", bobToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &c)
	assert.Equal(t, 1, c.Count)

	rec = app.do(http.MethodGet, "/v1/notifications?unread=true", bobToken)
	require.Equal(t, http.StatusOK, rec.Code)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte("[]")}, rec)
}

func Test_itemApi_shop(t *testing.T) {
	app := setup(t)
	admin := app.Admin(t, "admin")
	student := app.Student(t, "student")
	adminToken := app.token(t, admin)
	studentToken := app.token(t, student)
	app.Fund(t, student.ID, 100)

	newItem := marshallObj(t, item.NewItem{Name: "Golden Pen", Price: 40, Rarity: item.RarityRare, Type: item.TypeCosmetic})

	rec := app.do(http.MethodPost, "/v1/items", studentToken, newItem)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/v1/items", adminToken, newItem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pen item.Item
	decode(t, rec, &pen)
	assert.True(t, pen.IsActive)

	rec = app.do(http.MethodPost, "/v1/items", adminToken, newItem)
	checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: item.ErrNameTaken.Error()})}, rec)

	rec = app.do(http.MethodGet, "/v1/shop?ordering=-price", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var shop []item.Item
	decode(t, rec, &shop)
	require.Len(t, shop, 1)
	assert.Equal(t, pen.ID, shop[0].ID)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "unknown item",
			method:   http.MethodPost,
			path:     "/v1/shop/ghost/buy",
			token:    studentToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "item not found"}),
		},
		{
			name:     "too expensive",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/v1/shop/%s/buy", pen.ID),
			body:     marshallObj(t, item.BuyRequest{Quantity: 3}),
			token:    studentToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "insufficient funds"}),
		},
	})

	rec = app.do(http.MethodPost, fmt.Sprintf("/v1/shop/%s/buy", pen.ID), studentToken, marshallObj(t, item.BuyRequest{Quantity: 2}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p item.Purchase
	decode(t, rec, &p)
	assert.Equal(t, 80, p.Total)
	assert.Equal(t, 2, p.Owned)
	assert.Equal(t, 20, app.Balance(t, student.ID))

	rec = app.do(http.MethodGet, "/v1/inventory", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var inv []item.InventoryEntry
	decode(t, rec, &inv)
	require.Len(t, inv, 1)
	assert.Equal(t, 2, inv[0].Quantity)

	// disabled items leave the shop
	rec = app.do(http.MethodPost, fmt.Sprintf("/v1/items/%s/toggle", pen.ID), adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(http.MethodGet, "/v1/shop", studentToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte("[]")}, rec)
}

func Test_guildApi(t *testing.T) {
	app := setup(t)
	leader := app.Student(t, "leader")
	member := app.Student(t, "member")
	leaderToken := app.token(t, leader)
	memberToken := app.token(t, member)

	rec := app.do(http.MethodGet, "/v1/guilds/mine", memberToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: guild.ErrNotMember.Error()})}, rec)

	rec = app.do(http.MethodPost, "/v1/guilds", leaderToken, marshallObj(t, guild.NewGuild{Name: "Dragons"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var g guild.Guild
	decode(t, rec, &g)
	assert.Equal(t, leader.ID, g.LeaderID)

	rec = app.do(http.MethodPost, "/v1/guilds", memberToken, marshallObj(t, guild.NewGuild{Name: "dragons"}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(http.MethodPost, "/v1/guilds/"+g.ID+"/join", memberToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, "/v1/guilds/"+g.ID+"/join", memberToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: guild.ErrAlreadyInGuild.Error()})}, rec)

	rec = app.do(http.MethodPut, "/v1/guilds/"+g.ID+"/members/"+leader.ID+"/role", memberToken, marshallObj(t, echoapi.RoleRequest{Role: guild.RoleOfficer}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPut, "/v1/guilds/"+g.ID+"/members/"+member.ID+"/role", leaderToken, marshallObj(t, echoapi.RoleRequest{Role: guild.RoleOfficer}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var m guild.Member
	decode(t, rec, &m)
	assert.Equal(t, guild.RoleOfficer, m.Role)

	rec = app.do(http.MethodPost, "/v1/guilds/"+g.ID+"/messages", memberToken, marshallObj(t, guild.NewMessage{Content: "  hello  "}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(http.MethodGet, "/v1/guilds/"+g.ID+"/messages", leaderToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []guild.Message
	decode(t, rec, &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)

	rec = app.do(http.MethodGet, "/v1/guilds/mine", memberToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var d guild.Details
	decode(t, rec, &d)
	assert.Equal(t, g.ID, d.ID)
	assert.Len(t, d.Members, 2)

	rec = app.do(http.MethodPost, "/v1/guilds/"+g.ID+"/leave", leaderToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: guild.ErrLeaderCannotLeave.Error()})}, rec)

	rec = app.do(http.MethodPost, "/v1/guilds/"+g.ID+"/leave", memberToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func Test_questApi_flow(t *testing.T) {
	app := setup(t)
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "student")
	teacherToken := app.token(t, teacher)
	studentToken := app.token(t, student)

	nq := quest.NewQuest{Title: "Read a book", Difficulty: quest.DifficultyEasy, XPReward: 100, MoneyReward: 50}
	rec := app.do(http.MethodPost, "/v1/quests", studentToken, marshallObj(t, nq))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/v1/quests", teacherToken, marshallObj(t, nq))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var q quest.Quest
	decode(t, rec, &q)
	assert.Equal(t, quest.StatusActive, q.Status)

	base := "/v1/quests/" + q.ID
	rec = app.do(http.MethodPost, base+"/accept", studentToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, base+"/accept", studentToken)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(http.MethodPut, base+"/progress", studentToken, marshallObj(t, quest.UpdateProgress{Progress: 40}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPut, base+"/progress", studentToken, marshallObj(t, quest.UpdateProgress{Progress: 10}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: quest.ErrProgressBackward.Error()})}, rec)

	rec = app.do(http.MethodPost, base+"/complete", studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res quest.CompletionResult
	decode(t, rec, &res)
	assert.Equal(t, 100, res.XP)
	assert.Equal(t, 50, res.Gold)
	assert.Equal(t, quest.ProgressCompleted, res.Progress.Status)
	assert.Equal(t, 50, app.Balance(t, student.ID))

	rec = app.do(http.MethodGet, "/v1/quests/mine?status=COMPLETED", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []quest.UserQuest
	decode(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, q.ID, mine[0].Quest.ID)

	rec = app.do(http.MethodGet, "/v1/quests/ghost", studentToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "quest not found"})}, rec)
}

func Test_tradeApi_flow(t *testing.T) {
	app := setup(t)
	alice := app.Student(t, "alice")
	bob := app.Student(t, "bob")
	aliceToken := app.token(t, alice)
	bobToken := app.token(t, bob)
	apple := app.CreateItem(t, "Apple", 10, item.RarityCommon)
	pear := app.CreateItem(t, "Pear", 10, item.RarityCommon)
	app.Give(t, alice.ID, apple.ID, 2)
	app.Give(t, bob.ID, pear.ID, 1)

	nt := trade.NewTrade{
		RecipientID:    bob.ID,
		OfferedItems:   []trade.Line{{ItemID: apple.ID, Quantity: 2}},
		RequestedItems: []trade.Line{{ItemID: pear.ID, Quantity: 1}},
	}
	rec := app.do(http.MethodPost, "/v1/trades", aliceToken, marshallObj(t, nt))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tr trade.Trade
	decode(t, rec, &tr)
	assert.Equal(t, trade.StatusPending, tr.Status)

	rec = app.do(http.MethodPost, "/v1/trades/"+tr.ID+"/accept", aliceToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodGet, "/v1/trades?side=received", bobToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var received []trade.Trade
	decode(t, rec, &received)
	require.Len(t, received, 1)

	rec = app.do(http.MethodPost, "/v1/trades/"+tr.ID+"/accept", bobToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &tr)
	assert.Equal(t, trade.StatusCompleted, tr.Status)
	assert.Equal(t, 2, app.Quantity(t, bob.ID, apple.ID))
	assert.Equal(t, 1, app.Quantity(t, alice.ID, pear.ID))

	rec = app.do(http.MethodPost, "/v1/trades/"+tr.ID+"/cancel", aliceToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: trade.ErrNotPending.Error()})}, rec)
}

func Test_leaderboardApi(t *testing.T) {
	app := setup(t)
	teacher := app.Teacher(t, "teacher")
	alice := app.Student(t, "alice")
	bob := app.Student(t, "bob")
	teacherToken := app.token(t, teacher)

	for _, g := range []xp.GrantRequest{
		{UserID: alice.ID, Amount: 50, Reason: "quiz"},
		{UserID: bob.ID, Amount: 80, Reason: "quiz"},
	} {
		rec := app.do(http.MethodPost, "/v1/xp/grant", teacherToken, marshallObj(t, g))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := app.do(http.MethodGet, "/v1/leaderboard?limit=5", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var top []leaderboard.Entry
	decode(t, rec, &top)
	require.Len(t, top, 2)
	assert.Equal(t, bob.ID, top[0].UserID)
	assert.Equal(t, 1, top[0].Rank)

	rec = app.do(http.MethodGet, "/v1/leaderboard/me", app.token(t, alice))
	require.Equal(t, http.StatusOK, rec.Code)
	var me leaderboard.Entry
	decode(t, rec, &me)
	assert.Equal(t, 2, me.Rank)
	assert.Equal(t, 50, me.TotalXP)

	// users without XP rank after everyone else
	rec = app.do(http.MethodGet, "/v1/leaderboard/me", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &me)
	assert.Equal(t, 3, me.Rank)
}

func Test_profileApi(t *testing.T) {
	app := setup(t)
	student := app.Student(t, "student")
	app.Fund(t, student.ID, 25)

	rec := app.do(http.MethodGet, "/v1/me", app.token(t, student))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p echoapi.Profile
	decode(t, rec, &p)
	assert.Equal(t, student.ID, p.User.ID)
	assert.Equal(t, 25, p.Wallet.Balance)
	assert.Nil(t, p.Guild)
	assert.Empty(t, p.PinnedBadges)
	assert.Equal(t, 1, p.Progress.Level)
}

func Test_rateLimit(t *testing.T) {
	app := setup(t, func(conf *core.Config) {
		conf.Server.RateLimit = 0.001
		conf.Server.RateBurst = 2
	})
	student := app.Student(t, "student")
	token := app.token(t, student)

	for i := 0; i < 2; i++ {
		rec := app.do(http.MethodGet, "/v1/wallet", token)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := app.do(http.MethodGet, "/v1/wallet", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusTooManyRequests, wantData: marshallObj(t, httpErr{Error: "too many requests"})}, rec)

	// limits are per user
	rec = app.do(http.MethodGet, "/v1/wallet", app.token(t, app.Student(t, "other")))
	assert.Equal(t, http.StatusOK, rec.Code)
}
