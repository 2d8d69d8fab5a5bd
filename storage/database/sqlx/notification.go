package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
)

type notificationRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Type      string         `db:"type"`
	Title     string         `db:"title"`
	Message   string         `db:"message"`
	Data      types.JSONText `db:"data"`
	Read      bool           `db:"read"`
	CreatedAt time.Time      `db:"created_at"`
	ReadAt    null.Time      `db:"read_at"`
}

func (r notificationRow) notification() (notification.Notification, error) {
	n := notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      notification.Type(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.Read,
		CreatedAt: r.CreatedAt.UTC(),
		ReadAt:    utc(r.ReadAt),
	}
	if len(r.Data) > 0 {
		if err := r.Data.Unmarshal(&n.Data); err != nil {
			return n, errors.Wrap(err, "decoding notification data")
		}
	}
	if len(n.Data) == 0 {
		n.Data = nil
	}
	return n, nil
}

const notificationColumns = `id, user_id, type, title, message, data, read, created_at, read_at`

type notificationRepository struct {
	*Store
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(s *Store) *notificationRepository {
	return &notificationRepository{Store: s}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	data := types.JSONText("{}")
	if len(n.Data) > 0 {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return notification.Notification{}, errors.Wrap(err, "encoding notification data")
		}
		data = b
	}
	n.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO notification (`+notificationColumns+`)
		VALUES (:id, :user_id, :type, :title, :message, :data, :read, :created_at, :read_at)`,
		notificationRow{
			ID:        n.ID,
			UserID:    n.UserID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			Data:      data,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.UTC(),
			ReadAt:    nullTime(n.ReadAt),
		})
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, userID string, qf notification.QueryFilter, page core.Page) ([]notification.Notification, error) {
	var f filter
	f.and("user_id = ?", userID)
	if qf.UnreadOnly {
		f.and("NOT read")
	}
	if qf.Type != "" {
		f.and("type = ?", string(qf.Type))
	}

	var rows []notificationRow
	q := `SELECT ` + notificationColumns + ` FROM notification` + f.where() + ` ORDER BY created_at DESC, id` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	res := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.notification()
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, nil
}

func (repo notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := repo.get(ctx, &count, `SELECT COUNT(*) FROM notification WHERE user_id = ? AND NOT read`, userID)
	return count, errors.Wrap(err, "counting unread notifications")
}

func (repo notificationRepository) MarkRead(ctx context.Context, userID, id string, at time.Time) (int, error) {
	var (
		n   int64
		err error
	)
	if id == "" {
		n, err = repo.execx(ctx, `UPDATE notification SET read = TRUE, read_at = ? WHERE user_id = ? AND NOT read`, at.UTC(), userID)
	} else {
		if !validID(id) {
			return 0, nil
		}
		n, err = repo.execx(ctx,
			`UPDATE notification SET read = TRUE, read_at = COALESCE(read_at, ?) WHERE user_id = ? AND id = ?`,
			at.UTC(), userID, id)
	}
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return int(n), nil
}

func (repo notificationRepository) DeleteNotification(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return notification.ErrNotFound
	}
	n, err := repo.execx(ctx, `DELETE FROM notification WHERE user_id = ? AND id = ?`, userID, id)
	return mustAffect(n, err, notification.ErrNotFound, "deleting notification")
}

func (repo notificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int, error) {
	n, err := repo.execx(ctx, `DELETE FROM notification WHERE created_at < ?`, before.UTC())
	return int(n), errors.Wrap(err, "deleting old notifications")
}
