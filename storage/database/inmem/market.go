package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/market"
)

type marketRepository struct {
	db *DB
}

var _ market.Repository = (*marketRepository)(nil)

func NewMarketRepository(db *DB) *marketRepository {
	return &marketRepository{db: db}
}

func (repo *marketRepository) CreateListing(ctx context.Context, l market.Listing) (market.Listing, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		l.ID = newID()
		t.listings[l.ID] = l
		return nil
	})
	return l, err
}

func (repo *marketRepository) GetListing(ctx context.Context, id string) (market.Listing, error) {
	var l market.Listing
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if l, ok = t.listings[id]; !ok {
			return market.ErrNotFound
		}
		return nil
	})
	return l, err
}

var listingFields = map[string]comparer[market.Listing]{
	"price_per_unit": func(a, b market.Listing) int { return cmpInt(a.PricePerUnit, b.PricePerUnit) },
	"created_at":     func(a, b market.Listing) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	"expires_at":     func(a, b market.Listing) int { return cmpTime(a.ExpiresAt, b.ExpiresAt) },
	"views":          func(a, b market.Listing) int { return cmpInt(a.Views, b.Views) },
}

func (repo *marketRepository) QueryListings(ctx context.Context, filter market.ListingFilter, ordering []core.DBOrdering, page core.Page) ([]market.Listing, error) {
	var res []market.Listing
	err := repo.db.read(ctx, func(t *tables) error {
		for _, l := range t.listings {
			switch {
			case filter.ItemID != "" && l.ItemID != filter.ItemID,
				filter.SellerID != "" && l.SellerID != filter.SellerID,
				filter.Status != "" && l.Status != filter.Status,
				filter.Rarity != "" && t.items[l.ItemID].Rarity != filter.Rarity,
				filter.MinPrice > 0 && l.PricePerUnit < filter.MinPrice,
				filter.MaxPrice > 0 && l.PricePerUnit > filter.MaxPrice:
				continue
			}
			res = append(res, l)
		}
		return nil
	})
	orderBy(res, ordering, listingFields, func(a, b market.Listing) bool { return a.CreatedAt.After(b.CreatedAt) })
	return paginate(res, page), err
}

func (repo *marketRepository) UpdateListing(ctx context.Context, l market.Listing) (market.Listing, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.listings[l.ID]
		if !ok {
			return market.ErrNotFound
		}
		l.SellerID = orig.SellerID
		l.ItemID = orig.ItemID
		l.CreatedAt = orig.CreatedAt
		t.listings[l.ID] = l
		return nil
	})
	return l, err
}

func (repo *marketRepository) IncrementViews(ctx context.Context, id string) error {
	return repo.db.write(ctx, func(t *tables) error {
		l, ok := t.listings[id]
		if !ok {
			return market.ErrNotFound
		}
		l.Views++
		t.listings[id] = l
		return nil
	})
}

func (repo *marketRepository) CountListingsSince(ctx context.Context, sellerID string, since time.Time) (int, error) {
	var count int
	err := repo.db.read(ctx, func(t *tables) error {
		for _, l := range t.listings {
			if l.SellerID == sellerID && !l.CreatedAt.Before(since) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (repo *marketRepository) QueryExpiredListings(ctx context.Context, before time.Time) ([]market.Listing, error) {
	var res []market.Listing
	err := repo.db.read(ctx, func(t *tables) error {
		for _, l := range t.listings {
			if l.Status == market.ListingActive && !l.ExpiresAt.After(before) {
				res = append(res, l)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b market.Listing) bool { return a.ExpiresAt.Before(b.ExpiresAt) })
	return res, err
}

func (repo *marketRepository) CreateTransaction(ctx context.Context, tx market.Transaction) (market.Transaction, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		tx.ID = newID()
		t.marketTxs = append(t.marketTxs, tx)
		return nil
	})
	return tx, err
}

func (repo *marketRepository) QueryTransactions(ctx context.Context, userID string, page core.Page) ([]market.Transaction, error) {
	var res []market.Transaction
	err := repo.db.read(ctx, func(t *tables) error {
		for i := len(t.marketTxs) - 1; i >= 0; i-- {
			tx := t.marketTxs[i]
			if tx.SellerID == userID || tx.BuyerID == userID {
				res = append(res, tx)
			}
		}
		return nil
	})
	return paginate(res, page), err
}

func (repo *marketRepository) CountUserTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := repo.db.read(ctx, func(t *tables) error {
		for _, tx := range t.marketTxs {
			if (tx.SellerID == userID || tx.BuyerID == userID) && !tx.CreatedAt.Before(since) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (repo *marketRepository) QueryItemSales(ctx context.Context, itemID string, since time.Time) ([]market.Transaction, error) {
	var res []market.Transaction
	err := repo.db.read(ctx, func(t *tables) error {
		for _, tx := range t.marketTxs {
			if tx.ItemID == itemID && !tx.CreatedAt.Before(since) {
				res = append(res, tx)
			}
		}
		return nil
	})
	return res, err
}

func (repo *marketRepository) QueryTradedItemIDs(ctx context.Context, since time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var res []string
	err := repo.db.read(ctx, func(t *tables) error {
		for _, tx := range t.marketTxs {
			if !tx.CreatedAt.Before(since) && !seen[tx.ItemID] {
				seen[tx.ItemID] = true
				res = append(res, tx.ItemID)
			}
		}
		return nil
	})
	sort.Strings(res)
	return res, err
}

func (repo *marketRepository) GetDemand(ctx context.Context, itemID string, since time.Time) (market.Demand, error) {
	var d market.Demand
	err := repo.db.read(ctx, func(t *tables) error {
		var sum, n int
		for _, tx := range t.marketTxs {
			if tx.ItemID == itemID && !tx.CreatedAt.Before(since) {
				d.Sales24h += tx.Quantity
				sum += tx.PricePerUnit
				n++
			}
		}
		if n > 0 {
			d.AvgPrice24h = float64(sum) / float64(n)
		}
		for _, l := range t.listings {
			if l.ItemID == itemID && l.Status == market.ListingActive {
				d.Supply++
				d.Views += l.Views
			}
		}
		for k := range t.watches {
			if watchItem(k) == itemID {
				d.Watchers++
			}
		}
		return nil
	})
	return d, err
}

func (repo *marketRepository) GetReputation(ctx context.Context, userID string) (market.Reputation, error) {
	var r market.Reputation
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if r, ok = t.reputations[userID]; !ok {
			return market.ErrReputationNotFound
		}
		return nil
	})
	return r, err
}

func (repo *marketRepository) SaveReputation(ctx context.Context, r market.Reputation) (market.Reputation, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		t.reputations[r.UserID] = r
		return nil
	})
	return r, err
}

func (repo *marketRepository) SavePricePoint(ctx context.Context, p market.PricePoint) (market.PricePoint, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		t.pricePoints[key(p.ItemID, string(p.Period), p.PeriodStart.UTC().Format(time.RFC3339))] = p
		return nil
	})
	return p, err
}

func (repo *marketRepository) QueryPriceHistory(ctx context.Context, itemID string, period market.Period, limit int) ([]market.PricePoint, error) {
	var res []market.PricePoint
	err := repo.db.read(ctx, func(t *tables) error {
		for _, p := range t.pricePoints {
			if p.ItemID == itemID && p.Period == period {
				res = append(res, p)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b market.PricePoint) bool { return a.PeriodStart.After(b.PeriodStart) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, err
}

// watch keys are "userID/itemID"; IDs never contain a slash.
func watchItem(k string) string {
	return k[strings.LastIndex(k, "/")+1:]
}

func (repo *marketRepository) AddWatch(ctx context.Context, userID, itemID string, at time.Time) error {
	return repo.db.write(ctx, func(t *tables) error {
		k := key(userID, itemID)
		if _, ok := t.watches[k]; !ok {
			t.watches[k] = at
		}
		return nil
	})
}

func (repo *marketRepository) RemoveWatch(ctx context.Context, userID, itemID string) error {
	return repo.db.write(ctx, func(t *tables) error {
		delete(t.watches, key(userID, itemID))
		return nil
	})
}

func (repo *marketRepository) QueryWatchlist(ctx context.Context, userID string) ([]string, error) {
	type watch struct {
		itemID string
		at     time.Time
	}
	var watches []watch
	err := repo.db.read(ctx, func(t *tables) error {
		prefix := userID + "/"
		for k, at := range t.watches {
			if strings.HasPrefix(k, prefix) {
				watches = append(watches, watch{itemID: strings.TrimPrefix(k, prefix), at: at})
			}
		}
		return nil
	})
	sort.Slice(watches, func(i, j int) bool { return watches[i].at.After(watches[j].at) })
	res := make([]string, len(watches))
	for i, w := range watches {
		res[i] = w.itemID
	}
	return res, err
}
