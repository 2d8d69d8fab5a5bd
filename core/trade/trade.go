// Package trade handles direct item swaps between two users.
package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/user"
)

var (
	ErrNotFound        = core.NewNotFoundError("trade not found")
	ErrNoRecipient     = core.NewNotFoundError("recipient not found")
	ErrSelfTrade       = core.NewInvalidError("cannot trade with yourself")
	ErrEmptyTrade      = core.NewInvalidError("a trade needs at least one item")
	ErrNotPending      = core.NewInvalidError("trade is no longer pending")
	ErrNotRecipient    = core.NewForbiddenError("only the recipient can do this")
	ErrNotRequester    = core.NewForbiddenError("only the requester can do this")
	ErrMissingItems    = core.NewInvalidError("items are missing from an inventory")
	ErrNotTradeable    = core.NewInvalidError("item is not tradeable")
	ErrDuplicatedItems = core.NewInvalidError("an item is listed twice on the same side")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Side tells which trades of a user to list.
type Side string

const (
	SideSent     Side = "sent"
	SideReceived Side = "received"
)

type Line struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=999"`
}

type Trade struct {
	ID             string    `json:"id"`
	RequesterID    string    `json:"requester_id"`
	RecipientID    string    `json:"recipient_id"`
	Message        string    `json:"message,omitempty"`
	OfferedItems   []Line    `json:"offered_items"`
	RequestedItems []Line    `json:"requested_items"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ClosedAt       time.Time `json:"closed_at,omitempty"`
}

type NewTrade struct {
	RecipientID    string `json:"recipient_id" validate:"required"`
	Message        string `json:"message" validate:"max=500"`
	OfferedItems   []Line `json:"offered_items" validate:"max=20,dive"`
	RequestedItems []Line `json:"requested_items" validate:"max=20,dive"`
}

func (nt *NewTrade) Validate(validate *validator.Validate) error {
	nt.Message = core.CleanString(nt.Message)
	return validate.Struct(nt)
}

type QueryFilter struct {
	Status Status `query:"status"`
	Side   Side   `query:"side"`
}

type (
	Repository interface {
		CreateTrade(ctx context.Context, t Trade) (Trade, error)
		GetTrade(ctx context.Context, id string) (Trade, error)
		// UpdateTrade persists the status & dates of t.
		UpdateTrade(ctx context.Context, t Trade) (Trade, error)
		// QueryTrades returns the trades the user sent, received or both, newest first.
		QueryTrades(ctx context.Context, userID string, filter QueryFilter, page core.Page) ([]Trade, error)
	}

	inventory interface {
		Get(ctx context.Context, id string) (item.Item, error)
		Quantity(ctx context.Context, userID, itemID string) (int, error)
		AddToInventory(ctx context.Context, userID, itemID string, qty int) (int, error)
		RemoveFromInventory(ctx context.Context, userID, itemID string, qty int) (int, error)
	}

	userGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		users    userGetter
		items    inventory
		notifier notification.Notifier
	}
)

func NewService(repo Repository, tx core.Transactor, users userGetter, items inventory, notifier notification.Notifier) *Service {
	return &Service{repo: repo, tx: tx, users: users, items: items, notifier: notifier}
}

// Create proposes a trade. The requester must own the offered items; the requested ones are only checked on accept.
func (svc *Service) Create(ctx context.Context, requesterID string, nt NewTrade) (Trade, error) {
	if requesterID == nt.RecipientID {
		return Trade{}, ErrSelfTrade
	}
	if len(nt.OfferedItems) == 0 && len(nt.RequestedItems) == 0 {
		return Trade{}, ErrEmptyTrade
	}
	recipient, err := svc.users.GetByID(ctx, nt.RecipientID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Trade{}, ErrNoRecipient
		}
		return Trade{}, errors.Wrap(err, "finding recipient")
	}
	if !recipient.IsActive {
		return Trade{}, ErrNoRecipient
	}
	if err := svc.checkLines(ctx, nt.OfferedItems); err != nil {
		return Trade{}, err
	}
	if err := svc.checkLines(ctx, nt.RequestedItems); err != nil {
		return Trade{}, err
	}
	if err := svc.checkOwned(ctx, requesterID, nt.OfferedItems); err != nil {
		return Trade{}, err
	}

	var t Trade
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		var err error
		t, err = svc.repo.CreateTrade(ctx, Trade{
			RequesterID:    requesterID,
			RecipientID:    nt.RecipientID,
			Message:        nt.Message,
			OfferedItems:   nonNil(nt.OfferedItems),
			RequestedItems: nonNil(nt.RequestedItems),
			Status:         StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return errors.Wrap(err, "creating trade")
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  nt.RecipientID,
			Type:    notification.TypeTrade,
			Title:   "New trade offer",
			Message: fmt.Sprintf("You received a trade offer with %d items", countItems(t.OfferedItems)),
			Data:    map[string]interface{}{"trade_id": t.ID, "from_user_id": requesterID},
		})
		return err
	})
	return t, err
}

func (svc *Service) Get(ctx context.Context, userID, id string) (Trade, error) {
	t, err := svc.repo.GetTrade(ctx, id)
	if err != nil {
		return Trade{}, err
	}
	if t.RequesterID != userID && t.RecipientID != userID {
		return Trade{}, ErrNotFound
	}
	return t, nil
}

// Accept swaps the items of both sides. Nothing moves if either side is missing items.
func (svc *Service) Accept(ctx context.Context, recipientID, id string) (Trade, error) {
	var t Trade
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = svc.pending(ctx, id); err != nil {
			return err
		}
		if t.RecipientID != recipientID {
			return ErrNotRecipient
		}

		if err = svc.move(ctx, t.RequesterID, t.RecipientID, t.OfferedItems); err != nil {
			return err
		}
		if err = svc.move(ctx, t.RecipientID, t.RequesterID, t.RequestedItems); err != nil {
			return err
		}

		if t, err = svc.closeTrade(ctx, t, StatusCompleted); err != nil {
			return err
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  t.RequesterID,
			Type:    notification.TypeTrade,
			Title:   "Trade accepted",
			Message: "Your trade offer was accepted, the items were exchanged",
			Data:    map[string]interface{}{"trade_id": t.ID},
		})
		return err
	})
	return t, err
}

func (svc *Service) Reject(ctx context.Context, recipientID, id string) (Trade, error) {
	var t Trade
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = svc.pending(ctx, id); err != nil {
			return err
		}
		if t.RecipientID != recipientID {
			return ErrNotRecipient
		}
		if t, err = svc.closeTrade(ctx, t, StatusRejected); err != nil {
			return err
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  t.RequesterID,
			Type:    notification.TypeTrade,
			Title:   "Trade rejected",
			Message: "Your trade offer was rejected",
			Data:    map[string]interface{}{"trade_id": t.ID},
		})
		return err
	})
	return t, err
}

func (svc *Service) Cancel(ctx context.Context, requesterID, id string) (Trade, error) {
	var t Trade
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = svc.pending(ctx, id); err != nil {
			return err
		}
		if t.RequesterID != requesterID {
			return ErrNotRequester
		}
		t, err = svc.closeTrade(ctx, t, StatusCancelled)
		return err
	})
	return t, err
}

func (svc *Service) List(ctx context.Context, userID string, filter QueryFilter, page core.Page) ([]Trade, error) {
	page.Clean()
	return svc.repo.QueryTrades(ctx, userID, filter, page)
}

func (svc *Service) pending(ctx context.Context, id string) (Trade, error) {
	t, err := svc.repo.GetTrade(ctx, id)
	if err != nil {
		return Trade{}, err
	}
	if t.Status != StatusPending {
		return Trade{}, ErrNotPending
	}
	return t, nil
}

func (svc *Service) closeTrade(ctx context.Context, t Trade, status Status) (Trade, error) {
	now := core.Now()
	t.Status = status
	t.ClosedAt = now
	t.UpdatedAt = now
	t, err := svc.repo.UpdateTrade(ctx, t)
	return t, errors.Wrap(err, "updating trade")
}

func (svc *Service) move(ctx context.Context, fromID, toID string, lines []Line) error {
	for _, l := range lines {
		if _, err := svc.items.RemoveFromInventory(ctx, fromID, l.ItemID, l.Quantity); err != nil {
			if errors.Cause(err) == item.ErrInsufficientQuantity {
				return ErrMissingItems
			}
			return errors.Wrap(err, "removing items")
		}
		if _, err := svc.items.AddToInventory(ctx, toID, l.ItemID, l.Quantity); err != nil {
			return errors.Wrap(err, "adding items")
		}
	}
	return nil
}

func (svc *Service) checkLines(ctx context.Context, lines []Line) error {
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return item.ErrInvalidQuantity
		}
		if seen[l.ItemID] {
			return ErrDuplicatedItems
		}
		seen[l.ItemID] = true
		it, err := svc.items.Get(ctx, l.ItemID)
		if err != nil {
			return err
		}
		if !it.Tradeable {
			return ErrNotTradeable
		}
	}
	return nil
}

func (svc *Service) checkOwned(ctx context.Context, userID string, lines []Line) error {
	for _, l := range lines {
		qty, err := svc.items.Quantity(ctx, userID, l.ItemID)
		if err != nil {
			return err
		}
		if qty < l.Quantity {
			return ErrMissingItems
		}
	}
	return nil
}

func countItems(lines []Line) int {
	var n int
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func nonNil(lines []Line) []Line {
	if lines == nil {
		return []Line{}
	}
	return lines
}
