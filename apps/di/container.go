// Package di wires repositories and services together for the API server, the admin CLI & tests.
package di

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/achievement"
	"github.com/edurpg/edurpg/core/badge"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/job"
	"github.com/edurpg/edurpg/core/leaderboard"
	"github.com/edurpg/edurpg/core/market"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/core/reward"
	"github.com/edurpg/edurpg/core/streak"
	"github.com/edurpg/edurpg/core/teacherstats"
	"github.com/edurpg/edurpg/core/trade"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
	cachesvc "github.com/edurpg/edurpg/services/cache"
	emailsvc "github.com/edurpg/edurpg/services/email"
	logsvc "github.com/edurpg/edurpg/services/logger"
	"github.com/edurpg/edurpg/storage/database"
	inmemdb "github.com/edurpg/edurpg/storage/database/inmem"
	sqlxrepos "github.com/edurpg/edurpg/storage/database/sqlx"
)

type Repositories struct {
	Tx            core.Transactor
	Users         user.Repository
	Notifications notification.Repository
	Wallets       wallet.Repository
	Streaks       streak.Repository
	XP            xp.Repository
	Leaderboard   leaderboard.Repository
	Guilds        guild.Repository
	Quests        quest.Repository
	Jobs          job.Repository
	Items         item.Repository
	Badges        badge.Repository
	Market        market.Repository
	Trades        trade.Repository
	Rewards       reward.Repository
	Achievements  achievement.Repository
	TeacherStats  teacherstats.Repository
}

func NewSQLRepositories(db *sql.DB) Repositories {
	s := sqlxrepos.NewStore(db)
	return Repositories{
		Tx:            s,
		Users:         sqlxrepos.NewUserRepository(s),
		Notifications: sqlxrepos.NewNotificationRepository(s),
		Wallets:       sqlxrepos.NewWalletRepository(s),
		Streaks:       sqlxrepos.NewStreakRepository(s),
		XP:            sqlxrepos.NewXPRepository(s),
		Leaderboard:   sqlxrepos.NewLeaderboardRepository(s),
		Guilds:        sqlxrepos.NewGuildRepository(s),
		Quests:        sqlxrepos.NewQuestRepository(s),
		Jobs:          sqlxrepos.NewJobRepository(s),
		Items:         sqlxrepos.NewItemRepository(s),
		Badges:        sqlxrepos.NewBadgeRepository(s),
		Market:        sqlxrepos.NewMarketRepository(s),
		Trades:        sqlxrepos.NewTradeRepository(s),
		Rewards:       sqlxrepos.NewRewardRepository(s),
		Achievements:  sqlxrepos.NewAchievementRepository(s),
		TeacherStats:  sqlxrepos.NewTeacherStatsRepository(s),
	}
}

func NewInMemRepositories(db *inmemdb.DB) Repositories {
	return Repositories{
		Tx:            db,
		Users:         inmemdb.NewUserRepository(db),
		Notifications: inmemdb.NewNotificationRepository(db),
		Wallets:       inmemdb.NewWalletRepository(db),
		Streaks:       inmemdb.NewStreakRepository(db),
		XP:            inmemdb.NewXPRepository(db),
		Leaderboard:   inmemdb.NewLeaderboardRepository(db),
		Guilds:        inmemdb.NewGuildRepository(db),
		Quests:        inmemdb.NewQuestRepository(db),
		Jobs:          inmemdb.NewJobRepository(db),
		Items:         inmemdb.NewItemRepository(db),
		Badges:        inmemdb.NewBadgeRepository(db),
		Market:        inmemdb.NewMarketRepository(db),
		Trades:        inmemdb.NewTradeRepository(db),
		Rewards:       inmemdb.NewRewardRepository(db),
		Achievements:  inmemdb.NewAchievementRepository(db),
		TeacherStats:  inmemdb.NewTeacherStatsRepository(db),
	}
}

type Services struct {
	Users         *user.Service
	Notifications *notification.Service
	Wallet        *wallet.Service
	Streaks       *streak.Service
	XP            *xp.Service
	Leaderboard   *leaderboard.Service
	Guilds        *guild.Service
	Quests        *quest.Service
	Jobs          *job.Service
	Items         *item.Service
	Badges        *badge.Service
	Market        *market.Service
	Trades        *trade.Service
	Rewards       *reward.Service
	Achievements  *achievement.Service
	TeacherStats  *teacherstats.Service
}

// NewServices builds every domain service. cache may be nil.
func NewServices(
	conf *core.Config,
	logger core.Logger,
	repos Repositories,
	mailSvc core.EmailService,
	cache leaderboard.Cache,
) *Services {
	s := new(Services)
	s.Users = user.NewService(repos.Users, mailSvc, conf)
	s.Notifications = notification.NewService(repos.Notifications)
	s.Wallet = wallet.NewService(repos.Wallets, repos.Tx, s.Users, s.Notifications)
	s.Streaks = streak.NewService(repos.Streaks, repos.Tx, s.Notifications, conf)
	s.Leaderboard = leaderboard.NewService(repos.Leaderboard, cache, logger)
	s.Guilds = guild.NewService(repos.Guilds, repos.Tx, s.Wallet, s.Notifications)
	s.XP = xp.NewService(repos.XP, repos.Tx, s.Streaks, s.Wallet, s.Guilds, s.Notifications, s.Leaderboard, conf)
	s.Quests = quest.NewService(repos.Quests, repos.Tx, s.XP, s.Wallet, s.Guilds, s.Notifications)
	s.Jobs = job.NewService(repos.Jobs, repos.Tx, s.XP, s.Wallet, s.Guilds, s.Notifications)
	s.Items = item.NewService(repos.Items, repos.Tx, s.Wallet, s.Guilds)
	s.Badges = badge.NewService(repos.Badges, repos.Tx, s.Notifications, conf)
	s.Market = market.NewService(repos.Market, repos.Tx, s.Wallet, s.Items, s.XP, s.Notifications, conf)
	s.Trades = trade.NewService(repos.Trades, repos.Tx, s.Users, s.Items, s.Notifications)
	s.Rewards = reward.NewService(repos.Rewards, repos.Tx, s.XP, s.Wallet, s.Notifications)
	s.Achievements = achievement.NewService(repos.Achievements, repos.Tx, s.Users, s.XP, s.Quests, s.Jobs, s.Wallet, s.Notifications)
	s.TeacherStats = teacherstats.NewService(repos.TeacherStats, s.Users)
	return s
}

func NewLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
}

func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewValidator returns the validator used to check request payloads, with every custom rule registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	item.InitValidators(validate, translator)
	quest.InitValidators(validate, translator)
	reward.InitValidators(validate, translator)
	achievement.InitValidators(validate, translator)
	return validate, translator
}

// SetUpDB creates the database if needed, connects to it and applies pending migrations.
func SetUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = database.RunMigrations(db, "up"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return db, nil
}

// NewCache connects to Redis when an address is configured. Without one, both the cache & the closer are nil.
func NewCache(ctx context.Context, conf *core.Config) (leaderboard.Cache, func() error, error) {
	client, err := cachesvc.NewClient(ctx, conf)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to redis")
	}
	if client == nil {
		return nil, nil, nil
	}
	return cachesvc.NewLeaderboard(client), client.Close, nil
}
