// Package market is the user to user marketplace: escrowed listings, fee-taking sales, dynamic pricing & trader reputation.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/wallet"
)

var (
	ErrNotFound           = core.NewNotFoundError("listing not found")
	ErrReputationNotFound = core.NewNotFoundError("reputation not found")
	ErrCannotTrade        = core.NewForbiddenError("you cannot trade on the market")
	ErrNotTradeable       = core.NewInvalidError("item is not tradeable")
	ErrPriceTooLow        = core.NewInvalidError("price is too low (min 10% of the base price)")
	ErrPriceTooHigh       = core.NewInvalidError("price is too high (max 500% of the base price)")
	ErrOwnListing         = core.NewInvalidError("cannot buy your own listing")
	ErrNotActive          = core.NewInvalidError("listing is not active")
	ErrExpired            = core.NewInvalidError("listing has expired")
	ErrNotEnoughRemaining = core.NewInvalidError("not enough items left in this listing")
	ErrNotSeller          = core.NewForbiddenError("only the seller can do this")
	ErrInvalidPeriod      = core.NewInvalidError("invalid period")
)

const (
	suspiciousTxCount  = 100
	suspiciousEarnings = 100000
	saleTrustReward    = 1
	priceHistoryLimit  = 30
)

type (
	Repository interface {
		CreateListing(ctx context.Context, l Listing) (Listing, error)
		GetListing(ctx context.Context, id string) (Listing, error)
		QueryListings(ctx context.Context, filter ListingFilter, ordering []core.DBOrdering, page core.Page) ([]Listing, error)
		// UpdateListing persists all fields of l but ID, SellerID, ItemID & CreatedAt.
		UpdateListing(ctx context.Context, l Listing) (Listing, error)
		IncrementViews(ctx context.Context, id string) error
		CountListingsSince(ctx context.Context, sellerID string, since time.Time) (int, error)
		// QueryExpiredListings returns active listings expiring at or before the given time.
		QueryExpiredListings(ctx context.Context, before time.Time) ([]Listing, error)

		CreateTransaction(ctx context.Context, t Transaction) (Transaction, error)
		// QueryTransactions returns the sales the user took part in, newest first.
		QueryTransactions(ctx context.Context, userID string, page core.Page) ([]Transaction, error)
		CountUserTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error)
		// QueryItemSales returns the sales of the item since the given time.
		QueryItemSales(ctx context.Context, itemID string, since time.Time) ([]Transaction, error)
		// QueryTradedItemIDs returns the distinct items sold since the given time.
		QueryTradedItemIDs(ctx context.Context, since time.Time) ([]string, error)
		// GetDemand gathers the market activity of the item; sales & average price are counted since the given time.
		GetDemand(ctx context.Context, itemID string, since time.Time) (Demand, error)

		// GetReputation returns ErrReputationNotFound for users who never traded.
		GetReputation(ctx context.Context, userID string) (Reputation, error)
		SaveReputation(ctx context.Context, r Reputation) (Reputation, error)

		// SavePricePoint creates or replaces the point of the same item, period & period start.
		SavePricePoint(ctx context.Context, p PricePoint) (PricePoint, error)
		// QueryPriceHistory returns the item's points for the period, newest first.
		QueryPriceHistory(ctx context.Context, itemID string, period Period, limit int) ([]PricePoint, error)

		// AddWatch is a no-op if the user already watches the item.
		AddWatch(ctx context.Context, userID, itemID string, at time.Time) error
		RemoveWatch(ctx context.Context, userID, itemID string) error
		QueryWatchlist(ctx context.Context, userID string) ([]string, error)
	}

	walletService interface {
		Credit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
		Debit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
		EarnedSince(ctx context.Context, userID string, since time.Time) (int, error)
	}

	inventory interface {
		Get(ctx context.Context, id string) (item.Item, error)
		AddToInventory(ctx context.Context, userID, itemID string, qty int) (int, error)
		RemoveFromInventory(ctx context.Context, userID, itemID string, qty int) (int, error)
	}

	leveler interface {
		Level(ctx context.Context, userID string) (int, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		wallet   walletService
		items    inventory
		levels   leveler
		notifier notification.Notifier
		rules    core.GameConfig
		loc      *time.Location
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	wallet walletService,
	items inventory,
	levels leveler,
	notifier notification.Notifier,
	conf *core.Config,
) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		wallet:   wallet,
		items:    items,
		levels:   levels,
		notifier: notifier,
		rules:    conf.Game,
		loc:      conf.Location(),
	}
}

// CanTrade checks the level, daily listing count & trust requirements of sellers.
func (svc *Service) CanTrade(ctx context.Context, userID string) (Eligibility, error) {
	level, err := svc.levels.Level(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}
	if level < svc.rules.MinTradeLevel {
		return Eligibility{Reason: fmt.Sprintf("you must be at least level %d to trade", svc.rules.MinTradeLevel)}, nil
	}

	today := core.StartOfDay(core.Now(), svc.loc)
	count, err := svc.repo.CountListingsSince(ctx, userID, today)
	if err != nil {
		return Eligibility{}, errors.Wrap(err, "counting listings")
	}
	if count >= svc.rules.MaxListingsPerDay {
		return Eligibility{Reason: fmt.Sprintf("daily limit of %d listings reached", svc.rules.MaxListingsPerDay)}, nil
	}

	rep, err := svc.Reputation(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}
	if rep.TrustScore < svc.rules.MinTrustScore {
		return Eligibility{Reason: "your trading reputation is too low"}, nil
	}
	return Eligibility{CanTrade: true}, nil
}

func (svc *Service) SuggestedPrice(ctx context.Context, itemID string) (PriceSuggestion, error) {
	it, err := svc.items.Get(ctx, itemID)
	if err != nil {
		return PriceSuggestion{}, err
	}
	return svc.suggest(ctx, it)
}

func (svc *Service) suggest(ctx context.Context, it item.Item) (PriceSuggestion, error) {
	d, err := svc.repo.GetDemand(ctx, it.ID, core.Now().Add(-24*time.Hour))
	if err != nil {
		return PriceSuggestion{}, errors.Wrap(err, "getting demand")
	}
	var prevAvg float64
	history, err := svc.repo.QueryPriceHistory(ctx, it.ID, PeriodDaily, 1)
	if err != nil {
		return PriceSuggestion{}, errors.Wrap(err, "querying price history")
	}
	if len(history) > 0 {
		prevAvg = float64(history[0].AvgPrice)
	}

	demandMult := DemandMultiplier(d)
	s := PriceSuggestion{
		ItemID:           it.ID,
		BasePrice:        it.Price,
		RarityMultiplier: RarityMultiplier(it.Rarity),
		DemandMultiplier: demandMult,
		Recommended:      RecommendedPrice(it.Price, it.Rarity, demandMult),
		Popularity:       PopularityScore(d),
		PriceChange:      PriceChange(prevAvg, d.AvgPrice24h),
		Demand:           d,
	}
	s.MinPrice, s.MaxPrice = PriceBounds(it.Price)
	s.Trend = DetectTrend(s.PriceChange)
	return s, nil
}

// CreateListing puts items up for sale. The items leave the seller's inventory until sold, cancelled or expired.
func (svc *Service) CreateListing(ctx context.Context, sellerID string, nl NewListing) (Listing, error) {
	elig, err := svc.CanTrade(ctx, sellerID)
	if err != nil {
		return Listing{}, err
	}
	if !elig.CanTrade {
		return Listing{}, core.NewForbiddenError(elig.Reason)
	}

	var l Listing
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		it, err := svc.items.Get(ctx, nl.ItemID)
		if err != nil {
			return err
		}
		if !it.Tradeable || !it.IsActive {
			return ErrNotTradeable
		}

		price := nl.PricePerUnit
		if price == 0 {
			s, err := svc.suggest(ctx, it)
			if err != nil {
				return err
			}
			price = s.Recommended
		}
		if err = ValidatePrice(it.Price, price); err != nil {
			return err
		}

		if _, err = svc.items.RemoveFromInventory(ctx, sellerID, it.ID, nl.Quantity); err != nil {
			return err
		}
		now := core.Now()
		l, err = svc.repo.CreateListing(ctx, Listing{
			SellerID:     sellerID,
			ItemID:       it.ID,
			Quantity:     nl.Quantity,
			Remaining:    nl.Quantity,
			PricePerUnit: price,
			Status:       ListingActive,
			ExpiresAt:    now.Add(svc.rules.ListingTTL),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return errors.Wrap(err, "creating listing")
	})
	return l, err
}

// Get returns a listing, counting a view when looked at by someone else than the seller.
func (svc *Service) Get(ctx context.Context, id, viewerID string) (Listing, error) {
	l, err := svc.repo.GetListing(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if viewerID != "" && viewerID != l.SellerID && l.Status == ListingActive {
		if err = svc.repo.IncrementViews(ctx, id); err != nil {
			return Listing{}, errors.Wrap(err, "counting view")
		}
		l.Views++
	}
	return l, nil
}

// Listings defaults to the active listings.
func (svc *Service) Listings(ctx context.Context, filter ListingFilter, ordering []core.DBOrdering, page core.Page) ([]Listing, error) {
	page.Clean()
	if filter.Status == "" {
		filter.Status = ListingActive
	}
	return svc.repo.QueryListings(ctx, filter, core.FilterOrderings(ordering, OrderingFields...), page)
}

// Buy purchases qty items of a listing. The seller is paid minus the market fee.
func (svc *Service) Buy(ctx context.Context, buyerID, listingID string, qty int) (Transaction, error) {
	if qty <= 0 {
		return Transaction{}, item.ErrInvalidQuantity
	}
	var t Transaction
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		l, err := svc.repo.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		now := core.Now()
		switch {
		case l.SellerID == buyerID:
			return ErrOwnListing
		case l.Status != ListingActive:
			return ErrNotActive
		case l.IsExpired(now):
			return ErrExpired
		case qty > l.Remaining:
			return ErrNotEnoughRemaining
		}

		it, err := svc.items.Get(ctx, l.ItemID)
		if err != nil {
			return err
		}
		fees := CalculateFees(l.PricePerUnit, qty, svc.rules.MarketFeePercent)
		reason := fmt.Sprintf("Market: %d x %s", qty, it.Name)

		_, err = svc.wallet.Debit(ctx, wallet.Entry{
			UserID:  buyerID,
			Amount:  fees.Total,
			Type:    wallet.TxSpent,
			Reason:  reason,
			RefType: "listing",
			RefID:   l.ID,
		})
		if err != nil {
			return err
		}
		_, err = svc.wallet.Credit(ctx, wallet.Entry{
			UserID:  l.SellerID,
			Amount:  fees.Total,
			Type:    wallet.TxEarned,
			Reason:  reason,
			RefType: "listing",
			RefID:   l.ID,
		})
		if err != nil {
			return errors.Wrap(err, "paying seller")
		}
		if fees.Fee > 0 {
			_, err = svc.wallet.Debit(ctx, wallet.Entry{
				UserID:  l.SellerID,
				Amount:  fees.Fee,
				Type:    wallet.TxFee,
				Reason:  "Market fee",
				RefType: "listing",
				RefID:   l.ID,
			})
			if err != nil {
				return errors.Wrap(err, "taking market fee")
			}
		}
		if _, err = svc.items.AddToInventory(ctx, buyerID, l.ItemID, qty); err != nil {
			return errors.Wrap(err, "delivering items")
		}

		l.Remaining -= qty
		if l.Remaining == 0 {
			l.Status = ListingSold
			l.ClosedAt = now
		}
		l.UpdatedAt = now
		if _, err = svc.repo.UpdateListing(ctx, l); err != nil {
			return errors.Wrap(err, "updating listing")
		}

		t, err = svc.repo.CreateTransaction(ctx, Transaction{
			ListingID:    l.ID,
			SellerID:     l.SellerID,
			BuyerID:      buyerID,
			ItemID:       l.ItemID,
			Quantity:     qty,
			PricePerUnit: l.PricePerUnit,
			Total:        fees.Total,
			Fee:          fees.Fee,
			CreatedAt:    now,
		})
		if err != nil {
			return errors.Wrap(err, "creating transaction")
		}

		if err = svc.recordTrade(ctx, l.SellerID, true); err != nil {
			return err
		}
		if err = svc.recordTrade(ctx, buyerID, false); err != nil {
			return err
		}

		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  l.SellerID,
			Type:    notification.TypeMarket,
			Title:   "Item sold!",
			Message: fmt.Sprintf("You sold %d x %s for %d gold (fee %d)", qty, it.Name, fees.SellerReceives, fees.Fee),
			Data:    map[string]interface{}{"listing_id": l.ID, "quantity": qty, "gold": fees.SellerReceives},
		})
		return err
	})
	return t, err
}

func (svc *Service) recordTrade(ctx context.Context, userID string, sale bool) error {
	rep, err := svc.Reputation(ctx, userID)
	if err != nil {
		return err
	}
	if sale {
		rep.TotalSales++
	} else {
		rep.TotalPurchases++
	}
	rep.TrustScore = clampTrust(rep.TrustScore + saleTrustReward)
	rep.UpdatedAt = core.Now()
	_, err = svc.repo.SaveReputation(ctx, rep)
	return errors.Wrap(err, "saving reputation")
}

// Cancel withdraws a listing, returning the unsold items to the seller.
func (svc *Service) Cancel(ctx context.Context, sellerID, listingID string) (Listing, error) {
	var l Listing
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if l, err = svc.repo.GetListing(ctx, listingID); err != nil {
			return err
		}
		if l.SellerID != sellerID {
			return ErrNotSeller
		}
		if l.Status != ListingActive {
			return ErrNotActive
		}
		l, err = svc.close(ctx, l, ListingCancelled)
		return err
	})
	return l, err
}

// ExpireListings closes the listings past their expiry date. It returns how many were expired.
func (svc *Service) ExpireListings(ctx context.Context) (int, error) {
	var count int
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		expired, err := svc.repo.QueryExpiredListings(ctx, core.Now())
		if err != nil {
			return errors.Wrap(err, "querying expired listings")
		}
		for _, l := range expired {
			if l, err = svc.close(ctx, l, ListingExpired); err != nil {
				return err
			}
			_, err = svc.notifier.Notify(ctx, notification.NewNotification{
				UserID:  l.SellerID,
				Type:    notification.TypeMarket,
				Title:   "Listing expired",
				Message: fmt.Sprintf("Your listing of %d items expired, they are back in your inventory", l.Remaining),
				Data:    map[string]interface{}{"listing_id": l.ID},
			})
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func (svc *Service) close(ctx context.Context, l Listing, status ListingStatus) (Listing, error) {
	if l.Remaining > 0 {
		if _, err := svc.items.AddToInventory(ctx, l.SellerID, l.ItemID, l.Remaining); err != nil {
			return Listing{}, errors.Wrap(err, "returning items")
		}
	}
	now := core.Now()
	l.Status = status
	l.ClosedAt = now
	l.UpdatedAt = now
	l, err := svc.repo.UpdateListing(ctx, l)
	return l, errors.Wrap(err, "updating listing")
}

// SnapshotPrices records the price summary of every item sold during the period. It returns how many were written.
func (svc *Service) SnapshotPrices(ctx context.Context, period Period) (int, error) {
	if !period.IsValid() {
		return 0, ErrInvalidPeriod
	}
	now := core.Now()
	start := period.Start(now, svc.loc)

	itemIDs, err := svc.repo.QueryTradedItemIDs(ctx, start)
	if err != nil {
		return 0, errors.Wrap(err, "querying traded items")
	}
	var count int
	for _, itemID := range itemIDs {
		sales, err := svc.repo.QueryItemSales(ctx, itemID, start)
		if err != nil {
			return count, errors.Wrap(err, "querying sales")
		}
		if len(sales) == 0 {
			continue
		}
		d, err := svc.repo.GetDemand(ctx, itemID, start)
		if err != nil {
			return count, errors.Wrap(err, "getting demand")
		}

		prices := make([]int, 0, len(sales))
		var sold int
		for _, s := range sales {
			prices = append(prices, s.PricePerUnit)
			sold += s.Quantity
		}
		stats := ComputePriceStats(prices)
		_, err = svc.repo.SavePricePoint(ctx, PricePoint{
			ItemID:        itemID,
			Period:        period,
			PeriodStart:   start,
			PeriodEnd:     now,
			AvgPrice:      stats.Avg,
			LowPrice:      stats.Low,
			HighPrice:     stats.High,
			MedianPrice:   stats.Median,
			TotalSold:     sold,
			TotalListings: d.Supply,
		})
		if err != nil {
			return count, errors.Wrap(err, "saving price point")
		}
		count++
	}
	return count, nil
}

func (svc *Service) PriceHistory(ctx context.Context, itemID string, period Period) ([]PricePoint, error) {
	if period == "" {
		period = PeriodDaily
	}
	if !period.IsValid() {
		return nil, ErrInvalidPeriod
	}
	if _, err := svc.items.Get(ctx, itemID); err != nil {
		return nil, err
	}
	return svc.repo.QueryPriceHistory(ctx, itemID, period, priceHistoryLimit)
}

// Reputation returns the user's trading reputation; new traders start with the default trust score.
func (svc *Service) Reputation(ctx context.Context, userID string) (Reputation, error) {
	rep, err := svc.repo.GetReputation(ctx, userID)
	if err != nil {
		if errors.Cause(err) != ErrReputationNotFound {
			return Reputation{}, errors.Wrap(err, "getting reputation")
		}
		rep = Reputation{UserID: userID, TrustScore: DefaultTrustScore}
	}
	return rep, nil
}

// AdjustTrust moves the user's trust score by delta, within [0, 100].
func (svc *Service) AdjustTrust(ctx context.Context, userID string, ta TrustAdjustment) (Reputation, error) {
	var rep Reputation
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if rep, err = svc.Reputation(ctx, userID); err != nil {
			return err
		}
		rep.TrustScore = clampTrust(rep.TrustScore + ta.Delta)
		rep.UpdatedAt = core.Now()
		if rep, err = svc.repo.SaveReputation(ctx, rep); err != nil {
			return errors.Wrap(err, "saving reputation")
		}
		if ta.Reason == "" {
			return nil
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  userID,
			Type:    notification.TypeMarket,
			Title:   "Trading reputation changed",
			Message: ta.Reason,
			Data:    map[string]interface{}{"trust_score": rep.TrustScore, "delta": ta.Delta},
		})
		return err
	})
	return rep, err
}

// IsSuspicious flags users with abnormal trading volume or earnings over the last day.
func (svc *Service) IsSuspicious(ctx context.Context, userID string) (bool, error) {
	since := core.Now().Add(-24 * time.Hour)
	count, err := svc.repo.CountUserTransactionsSince(ctx, userID, since)
	if err != nil {
		return false, errors.Wrap(err, "counting transactions")
	}
	if count > suspiciousTxCount {
		return true, nil
	}
	earned, err := svc.wallet.EarnedSince(ctx, userID, since)
	if err != nil {
		return false, errors.Wrap(err, "summing earnings")
	}
	return earned > suspiciousEarnings, nil
}

// History returns the sales the user took part in as buyer or seller.
func (svc *Service) History(ctx context.Context, userID string, page core.Page) ([]Transaction, error) {
	page.Clean()
	return svc.repo.QueryTransactions(ctx, userID, page)
}

func (svc *Service) Watch(ctx context.Context, userID, itemID string) error {
	if _, err := svc.items.Get(ctx, itemID); err != nil {
		return err
	}
	return svc.repo.AddWatch(ctx, userID, itemID, core.Now())
}

func (svc *Service) Unwatch(ctx context.Context, userID, itemID string) error {
	return svc.repo.RemoveWatch(ctx, userID, itemID)
}

func (svc *Service) Watchlist(ctx context.Context, userID string) ([]string, error) {
	return svc.repo.QueryWatchlist(ctx, userID)
}

func clampTrust(score int) int {
	switch {
	case score < 0:
		return 0
	case score > MaxTrustScore:
		return MaxTrustScore
	}
	return score
}
