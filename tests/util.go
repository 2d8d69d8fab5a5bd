// Package testutil builds in-memory test environments and fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/progression"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
	emailsvc "github.com/edurpg/edurpg/services/email"
	inmemdb "github.com/edurpg/edurpg/storage/database/inmem"
)

// Logger discards everything.
type Logger struct{}

func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(string, ...interface{}) {}

type Mailer interface {
	core.EmailService
	SentMessages() []core.EmailMessage
}

// Env is a complete application backed by the in-memory database.
type Env struct {
	Conf     *core.Config
	DB       *inmemdb.DB
	Repos    di.Repositories
	Svc      *di.Services
	Mail     Mailer
	Validate *validator.Validate
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	conf.WorkDir = core.Getwd()
	core.ParseEmailTemplates(conf, Logger{})

	db := inmemdb.New()
	repos := di.NewInMemRepositories(db)
	mail := emailsvc.NewConsoleServiceMock(conf, Logger{})
	validate, _ := di.NewValidator()

	return &Env{
		Conf:     conf,
		DB:       db,
		Repos:    repos,
		Svc:      di.NewServices(conf, Logger{}, repos, mail, nil),
		Mail:     mail,
		Validate: validate,
	}
}

// SetNow freezes core.Now at now until the end of the test.
func SetNow(t *testing.T, now time.Time) {
	t.Helper()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (env *Env) Student(t *testing.T, uname string) user.User {
	t.Helper()
	return CreateUser(t, env.Repos.Users, uname, uname, uname+"@test.cd", "", []string{user.RoleStudent}, true)
}

func (env *Env) Teacher(t *testing.T, uname string) user.User {
	t.Helper()
	return CreateUser(t, env.Repos.Users, uname, uname, uname+"@test.cd", "", []string{user.RoleTeacher}, true)
}

func (env *Env) Admin(t *testing.T, uname string) user.User {
	t.Helper()
	return CreateUser(t, env.Repos.Users, uname, uname, uname+"@test.cd", "", []string{user.RoleAdmin}, true)
}

// Fund credits gold to the user's wallet.
func (env *Env) Fund(t *testing.T, userID string, amount int) {
	t.Helper()
	_, err := env.Svc.Wallet.Credit(context.Background(), wallet.Entry{UserID: userID, Amount: amount, Reason: "test funds"})
	if err != nil {
		t.Fatalf("Fund() failed: %v", err)
	}
}

func (env *Env) Balance(t *testing.T, userID string) int {
	t.Helper()
	w, err := env.Svc.Wallet.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	return w.Balance
}

// SetLevel stores the minimal XP total of the level for the user, bypassing grants.
func (env *Env) SetLevel(t *testing.T, userID string, level int) {
	t.Helper()
	total := progression.TotalXPForLevel(level)
	_, err := env.Repos.XP.SaveProgress(context.Background(), xp.Progress{
		UserID:    userID,
		TotalXP:   total,
		Level:     progression.LevelFromXP(total),
		UpdatedAt: core.Now(),
	})
	if err != nil {
		t.Fatalf("SetLevel() failed: %v", err)
	}
}

func (env *Env) CreateItem(t *testing.T, name string, price int, rarity item.Rarity) item.Item {
	t.Helper()
	it, err := env.Svc.Items.Create(context.Background(), item.NewItem{
		Name:   name,
		Price:  price,
		Rarity: rarity,
		Type:   item.TypeCollectible,
	})
	if err != nil {
		t.Fatalf("CreateItem() failed: %v", err)
	}
	return it
}

// Give puts qty of the item in the user's inventory.
func (env *Env) Give(t *testing.T, userID, itemID string, qty int) {
	t.Helper()
	if _, err := env.Svc.Items.AddToInventory(context.Background(), userID, itemID, qty); err != nil {
		t.Fatalf("Give() failed: %v", err)
	}
}

func (env *Env) Quantity(t *testing.T, userID, itemID string) int {
	t.Helper()
	qty, err := env.Svc.Items.Quantity(context.Background(), userID, itemID)
	if err != nil {
		t.Fatalf("Quantity() failed: %v", err)
	}
	return qty
}

func BoolPtr(b bool) *bool { return &b }
func IntPtr(i int) *int    { return &i }
func StrPtr(s string) *string {
	return &s
}
