// Package inmemdb is a memory-backed implementation of every repository, used by tests & local runs.
package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/achievement"
	"github.com/edurpg/edurpg/core/badge"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/job"
	"github.com/edurpg/edurpg/core/market"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/core/reward"
	"github.com/edurpg/edurpg/core/streak"
	"github.com/edurpg/edurpg/core/trade"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
)

// tables hold values, never pointers, so that a shallow copy of each map is a snapshot.
type tables struct {
	users         map[string]user.User
	notifications map[string]notification.Notification
	notifOrder    []string // IDs by insertion; deleted ones are skipped
	wallets       map[string]wallet.Wallet
	walletTxs     []wallet.Transaction
	streaks       map[string]streak.Streak
	progress      map[string]xp.Progress
	xpEntries     []xp.Entry

	guilds          map[string]guild.Guild
	members         map[string]guild.Member // by user ID
	guildActivities []guild.Activity
	guildMessages   []guild.Message

	quests        map[string]quest.Quest
	questProgress map[string]quest.Progress // by quest & user IDs
	jobs          map[string]job.Job
	assignments   map[string]job.Assignment // by job & student IDs

	items      map[string]item.Item
	inventory  map[string]item.InventoryItem // by user & item IDs
	badges     map[string]badge.Badge
	userBadges map[string]badge.UserBadge // by user & badge IDs

	listings    map[string]market.Listing
	marketTxs   []market.Transaction
	reputations map[string]market.Reputation
	pricePoints map[string]market.PricePoint
	watches     map[string]time.Time // by user & item IDs

	trades map[string]trade.Trade

	rewards      map[string]reward.Reward
	claims       map[string]reward.Claim
	achievements map[string]achievement.Achievement
	awards       map[string]achievement.Award // by user & achievement IDs
}

func newTables() tables {
	return tables{
		users:         make(map[string]user.User),
		notifications: make(map[string]notification.Notification),
		wallets:       make(map[string]wallet.Wallet),
		streaks:       make(map[string]streak.Streak),
		progress:      make(map[string]xp.Progress),
		guilds:        make(map[string]guild.Guild),
		members:       make(map[string]guild.Member),
		quests:        make(map[string]quest.Quest),
		questProgress: make(map[string]quest.Progress),
		jobs:          make(map[string]job.Job),
		assignments:   make(map[string]job.Assignment),
		items:         make(map[string]item.Item),
		inventory:     make(map[string]item.InventoryItem),
		badges:        make(map[string]badge.Badge),
		userBadges:    make(map[string]badge.UserBadge),
		listings:      make(map[string]market.Listing),
		reputations:   make(map[string]market.Reputation),
		pricePoints:   make(map[string]market.PricePoint),
		watches:       make(map[string]time.Time),
		trades:        make(map[string]trade.Trade),
		rewards:       make(map[string]reward.Reward),
		claims:        make(map[string]reward.Claim),
		achievements:  make(map[string]achievement.Achievement),
		awards:        make(map[string]achievement.Award),
	}
}

func (t tables) clone() tables {
	return tables{
		users:           cloneMap(t.users),
		notifications:   cloneMap(t.notifications),
		notifOrder:      cloneSlice(t.notifOrder),
		wallets:         cloneMap(t.wallets),
		walletTxs:       cloneSlice(t.walletTxs),
		streaks:         cloneMap(t.streaks),
		progress:        cloneMap(t.progress),
		xpEntries:       cloneSlice(t.xpEntries),
		guilds:          cloneMap(t.guilds),
		members:         cloneMap(t.members),
		guildActivities: cloneSlice(t.guildActivities),
		guildMessages:   cloneSlice(t.guildMessages),
		quests:          cloneMap(t.quests),
		questProgress:   cloneMap(t.questProgress),
		jobs:            cloneMap(t.jobs),
		assignments:     cloneMap(t.assignments),
		items:           cloneMap(t.items),
		inventory:       cloneMap(t.inventory),
		badges:          cloneMap(t.badges),
		userBadges:      cloneMap(t.userBadges),
		listings:        cloneMap(t.listings),
		marketTxs:       cloneSlice(t.marketTxs),
		reputations:     cloneMap(t.reputations),
		pricePoints:     cloneMap(t.pricePoints),
		watches:         cloneMap(t.watches),
		trades:          cloneMap(t.trades),
		rewards:         cloneMap(t.rewards),
		claims:          cloneMap(t.claims),
		achievements:    cloneMap(t.achievements),
		awards:          cloneMap(t.awards),
	}
}

// DB is a single in-memory database guarded by one lock.
// A transaction holds the write lock for its whole duration and restores a snapshot on error.
type DB struct {
	mu sync.RWMutex
	t  tables
}

var _ core.Transactor = (*DB)(nil)

func New() *DB {
	return &DB{t: newTables()}
}

type txKey struct{}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.t.clone()
	committed := false
	defer func() {
		if !committed {
			db.t = snapshot
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		return err
	}
	committed = true
	return nil
}

// read runs fn under the read lock, unless ctx already holds the transaction lock.
func (db *DB) read(ctx context.Context, fn func(t *tables) error) error {
	if !db.inTx(ctx) {
		db.mu.RLock()
		defer db.mu.RUnlock()
	}
	return fn(&db.t)
}

func (db *DB) write(ctx context.Context, fn func(t *tables) error) error {
	if !db.inTx(ctx) {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	return fn(&db.t)
}

// Reset drops all data.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
}

func newID() string {
	return uuid.New().String()
}

func key(parts ...string) string {
	return strings.Join(parts, "/")
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	res := make(map[K]V, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	res := make([]T, len(s))
	copy(res, s)
	return res
}

func values[K comparable, V any](m map[K]V) []V {
	res := make([]V, 0, len(m))
	for _, v := range m {
		res = append(res, v)
	}
	return res
}

// paginate returns the page window of s.
func paginate[T any](s []T, page core.Page) []T {
	start, end := page.Window(len(s))
	return s[start:end]
}

// comparer compares two rows on a single field, returning <0, 0 or >0.
type comparer[T any] func(a, b T) int

// orderBy sorts rows by the given orderings, then by the fallback.
func orderBy[T any](rows []T, orderings []core.DBOrdering, fields map[string]comparer[T], fallback func(a, b T) bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := fields[ord.Field]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return fallback(rows[i], rows[j])
	})
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	}
	return 1
}

func contains(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func inSlice(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
