package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core/achievement"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/core/reward"
	"github.com/edurpg/edurpg/core/teacherstats"
)

func Test_rewardApi_flow(t *testing.T) {
	app := setup(t)
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "student")
	teacherToken := app.token(t, teacher)
	studentToken := app.token(t, student)
	app.Fund(t, student.ID, 80)

	nr := reward.NewReward{Name: "Front row seat", Category: reward.CategoryPrivilege, GoldPrice: 50, TotalStock: 2}
	runHTTPTests(t, app, []httpTest{
		{
			name:     "students cannot create",
			method:   http.MethodPost,
			path:     "/v1/rewards",
			body:     marshallObj(t, nr),
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "bad category",
			method:   http.MethodPost,
			path:     "/v1/rewards",
			body:     marshallObj(t, reward.NewReward{Name: "Cake", Category: "CAKE", TotalStock: 1}),
			token:    teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"category": "invalid reward category"}),
		},
	})

	rec := app.do(http.MethodPost, "/v1/rewards", teacherToken, marshallObj(t, nr))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r reward.Reward
	decode(t, rec, &r)

	rec = app.do(http.MethodGet, "/v1/rewards", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var available []reward.Reward
	decode(t, rec, &available)
	require.Len(t, available, 1)

	rec = app.do(http.MethodPost, "/v1/rewards/"+r.ID+"/claim", studentToken, marshallObj(t, reward.ClaimRequest{}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c reward.Claim
	decode(t, rec, &c)
	assert.Equal(t, 30, app.Balance(t, student.ID))

	rec = app.do(http.MethodPost, "/v1/rewards/"+r.ID+"/claim", studentToken, marshallObj(t, reward.ClaimRequest{}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "insufficient funds"})}, rec)

	rec = app.do(http.MethodPost, "/v1/rewards/claims/"+c.ID+"/approve", studentToken, marshallObj(t, reward.Decision{}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/v1/rewards/claims/"+c.ID+"/reject", teacherToken, marshallObj(t, reward.Rejection{}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"reason": "this field is required"})}, rec)

	rec = app.do(http.MethodPost, "/v1/rewards/claims/"+c.ID+"/reject", teacherToken, marshallObj(t, reward.Rejection{Reason: "no seats left"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &c)
	assert.Equal(t, reward.ClaimRejected, c.Status)
	assert.Equal(t, 80, app.Balance(t, student.ID))

	rec = app.do(http.MethodGet, "/v1/rewards/claims/mine", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []reward.ClaimDetails
	decode(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, r.Name, mine[0].Reward.Name)
}

func Test_achievementApi(t *testing.T) {
	app := setup(t)
	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "student")
	adminToken := app.token(t, admin)
	teacherToken := app.token(t, teacher)
	studentToken := app.token(t, student)
	app.SetLevel(t, student.ID, 2)

	rec := app.do(http.MethodPost, "/v1/achievements", teacherToken,
		marshallObj(t, achievement.NewAchievement{Name: "Level 2", Category: achievement.CategoryLevel, Target: 2, MoneyReward: 5}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPost, "/v1/achievements", adminToken,
		marshallObj(t, achievement.NewAchievement{Name: "Level 2", Category: achievement.CategoryLevel, Target: 2, MoneyReward: 5}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// listing unlocks what the student already earned
	rec = app.do(http.MethodGet, "/v1/achievements/mine", studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mine []achievement.UserAchievement
	decode(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Unlocked)
	assert.Equal(t, 5, app.Balance(t, student.ID))
}

func Test_achievementApi_unlockOnQuestComplete(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "student")
	studentToken := app.token(t, student)

	first, err := app.Svc.Achievements.Create(ctx, achievement.NewAchievement{Name: "First quest", Category: achievement.CategoryQuest, Target: 1})
	require.NoError(t, err)
	q, err := app.Svc.Quests.Create(ctx, teacher, quest.NewQuest{Title: "Read a chapter", Difficulty: quest.DifficultyEasy})
	require.NoError(t, err)

	rec := app.do(http.MethodPost, "/v1/quests/"+q.ID+"/accept", studentToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, "/v1/quests/"+q.ID+"/complete", studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	awards, err := app.Repos.Achievements.QueryAwards(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, first.ID, awards[0].AchievementID)
}

func Test_teacherStatsApi(t *testing.T) {
	app := setup(t)
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "student")
	teacherToken := app.token(t, teacher)

	rec := app.do(http.MethodGet, "/v1/teachers/me/stats", app.token(t, student))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodGet, "/v1/teachers/me/stats?period=year", teacherToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: teacherstats.ErrInvalidPeriod.Error()})}, rec)

	rec = app.do(http.MethodGet, "/v1/teachers/me/rank?period=week", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rank teacherstats.RankInfo
	decode(t, rec, &rank)
	assert.Equal(t, 1, rank.Rank)
	assert.Equal(t, 1, rank.Total)
	assert.Equal(t, 100.0, rank.Percentile)

	rec = app.do(http.MethodGet, "/v1/teachers/"+teacher.ID+"/stats", teacherToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
