package inmemdb

import (
	"context"
	"time"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		n.ID = newID()
		t.notifications[n.ID] = n
		t.notifOrder = append(t.notifOrder, n.ID)
		return nil
	})
	return n, err
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, filter notification.QueryFilter, page core.Page) ([]notification.Notification, error) {
	var res []notification.Notification
	err := repo.db.read(ctx, func(t *tables) error {
		for i := len(t.notifOrder) - 1; i >= 0; i-- {
			n, ok := t.notifications[t.notifOrder[i]]
			if !ok || n.UserID != userID || (filter.UnreadOnly && n.Read) || (filter.Type != "" && n.Type != filter.Type) {
				continue
			}
			res = append(res, n)
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b notification.Notification) bool { return a.CreatedAt.After(b.CreatedAt) })
	return paginate(res, page), err
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := repo.db.read(ctx, func(t *tables) error {
		for _, n := range t.notifications {
			if n.UserID == userID && !n.Read {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID, id string, at time.Time) (int, error) {
	var count int
	err := repo.db.write(ctx, func(t *tables) error {
		for nid, n := range t.notifications {
			if n.UserID != userID || (id != "" && nid != id) || (id == "" && n.Read) {
				continue
			}
			if !n.Read {
				n.Read = true
				n.ReadAt = at
			}
			t.notifications[nid] = n
			count++
		}
		return nil
	})
	return count, err
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, userID, id string) error {
	return repo.db.write(ctx, func(t *tables) error {
		n, ok := t.notifications[id]
		if !ok || n.UserID != userID {
			return notification.ErrNotFound
		}
		delete(t.notifications, id)
		return nil
	})
}

func (repo *notificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int, error) {
	var count int
	err := repo.db.write(ctx, func(t *tables) error {
		for id, n := range t.notifications {
			if n.CreatedAt.Before(before) {
				delete(t.notifications, id)
				count++
			}
		}
		return nil
	})
	return count, err
}
