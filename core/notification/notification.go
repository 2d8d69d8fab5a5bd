package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
)

type Type string

const (
	TypeSystem  Type = "SYSTEM"
	TypeXP      Type = "XP"
	TypeLevelUp Type = "LEVEL_UP"
	TypeStreak  Type = "STREAK"
	TypeGuild   Type = "GUILD"
	TypeQuest   Type = "QUEST"
	TypeJob     Type = "JOB"
	TypeMarket  Type = "MARKET"
	TypeTrade   Type = "TRADE"
	TypeBadge   Type = "BADGE"

	TypeReward      Type = "REWARD"
	TypeAchievement Type = "ACHIEVEMENT"
)

var ErrNotFound = core.NewNotFoundError("notification not found")

type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      Type                   `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
	ReadAt    time.Time              `json:"read_at,omitempty"`
}

type NewNotification struct {
	UserID  string
	Type    Type
	Title   string
	Message string
	Data    map[string]interface{}
}

type QueryFilter struct {
	UnreadOnly bool `query:"unread"`
	Type       Type `query:"type"`
}

// Notifier is what other services need to notify users.
type Notifier interface {
	Notify(ctx context.Context, nn NewNotification) (Notification, error)
}

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		// QueryNotifications returns the user's notifications, newest first.
		QueryNotifications(ctx context.Context, userID string, filter QueryFilter, page core.Page) ([]Notification, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		// MarkRead marks the given notification (all unread ones if id is empty) of the user as read.
		MarkRead(ctx context.Context, userID, id string, at time.Time) (int, error)
		DeleteNotification(ctx context.Context, userID, id string) error
		DeleteOlderThan(ctx context.Context, before time.Time) (int, error)
	}

	Service struct {
		repo Repository
	}
)

var _ Notifier = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Notify(ctx context.Context, nn NewNotification) (Notification, error) {
	n := Notification{
		UserID:    nn.UserID,
		Type:      nn.Type,
		Title:     nn.Title,
		Message:   nn.Message,
		Data:      nn.Data,
		CreatedAt: core.Now(),
	}
	if n.Type == "" {
		n.Type = TypeSystem
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	return n, errors.Wrap(err, "creating notification")
}

func (svc *Service) List(ctx context.Context, userID string, filter QueryFilter, page core.Page) ([]Notification, error) {
	page.Clean()
	return svc.repo.QueryNotifications(ctx, userID, filter, page)
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}

func (svc *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := svc.repo.MarkRead(ctx, userID, id, core.Now())
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkRead(ctx, userID, "", core.Now())
}

func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	return svc.repo.DeleteNotification(ctx, userID, id)
}

// Cleanup removes notifications older than the given number of days.
func (svc *Service) Cleanup(ctx context.Context, days int) (int, error) {
	if days < 1 {
		return 0, core.NewInvalidError("days must be positive")
	}
	return svc.repo.DeleteOlderThan(ctx, core.Now().AddDate(0, 0, -days))
}
