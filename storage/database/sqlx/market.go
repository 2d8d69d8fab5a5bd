package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/market"
)

type listingRow struct {
	ID           string    `db:"id"`
	SellerID     string    `db:"seller_id"`
	ItemID       string    `db:"item_id"`
	Quantity     int       `db:"quantity"`
	Remaining    int       `db:"remaining"`
	PricePerUnit int       `db:"price_per_unit"`
	Status       string    `db:"status"`
	Views        int       `db:"views"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	ClosedAt     null.Time `db:"closed_at"`
}

func toListingRow(l market.Listing) listingRow {
	return listingRow{
		ID:           l.ID,
		SellerID:     l.SellerID,
		ItemID:       l.ItemID,
		Quantity:     l.Quantity,
		Remaining:    l.Remaining,
		PricePerUnit: l.PricePerUnit,
		Status:       string(l.Status),
		Views:        l.Views,
		ExpiresAt:    l.ExpiresAt.UTC(),
		CreatedAt:    l.CreatedAt.UTC(),
		UpdatedAt:    l.UpdatedAt.UTC(),
		ClosedAt:     nullTime(l.ClosedAt),
	}
}

func (r listingRow) listing() market.Listing {
	return market.Listing{
		ID:           r.ID,
		SellerID:     r.SellerID,
		ItemID:       r.ItemID,
		Quantity:     r.Quantity,
		Remaining:    r.Remaining,
		PricePerUnit: r.PricePerUnit,
		Status:       market.ListingStatus(r.Status),
		Views:        r.Views,
		ExpiresAt:    r.ExpiresAt.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		ClosedAt:     utc(r.ClosedAt),
	}
}

type marketTxRow struct {
	ID           string    `db:"id"`
	ListingID    string    `db:"listing_id"`
	SellerID     string    `db:"seller_id"`
	BuyerID      string    `db:"buyer_id"`
	ItemID       string    `db:"item_id"`
	Quantity     int       `db:"quantity"`
	PricePerUnit int       `db:"price_per_unit"`
	Total        int       `db:"total"`
	Fee          int       `db:"fee"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r marketTxRow) transaction() market.Transaction {
	return market.Transaction{
		ID:           r.ID,
		ListingID:    r.ListingID,
		SellerID:     r.SellerID,
		BuyerID:      r.BuyerID,
		ItemID:       r.ItemID,
		Quantity:     r.Quantity,
		PricePerUnit: r.PricePerUnit,
		Total:        r.Total,
		Fee:          r.Fee,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type reputationRow struct {
	UserID         string    `db:"user_id"`
	TrustScore     int       `db:"trust_score"`
	TotalSales     int       `db:"total_sales"`
	TotalPurchases int       `db:"total_purchases"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type pricePointRow struct {
	ItemID        string    `db:"item_id"`
	Period        string    `db:"period"`
	PeriodStart   time.Time `db:"period_start"`
	PeriodEnd     time.Time `db:"period_end"`
	AvgPrice      int       `db:"avg_price"`
	LowPrice      int       `db:"low_price"`
	HighPrice     int       `db:"high_price"`
	MedianPrice   int       `db:"median_price"`
	TotalSold     int       `db:"total_sold"`
	TotalListings int       `db:"total_listings"`
}

const (
	listingColumns    = `id, seller_id, item_id, quantity, remaining, price_per_unit, status, views, expires_at, created_at, updated_at, closed_at`
	marketTxColumns   = `id, listing_id, seller_id, buyer_id, item_id, quantity, price_per_unit, total, fee, created_at`
	pricePointColumns = `item_id, period, period_start, period_end, avg_price, low_price, high_price, median_price, total_sold, total_listings`
)

var listingOrderings = map[string]string{
	"price_per_unit": "l.price_per_unit",
	"created_at":     "l.created_at",
	"expires_at":     "l.expires_at",
	"views":          "l.views",
}

type marketRepository struct {
	*Store
}

var _ market.Repository = (*marketRepository)(nil)

func NewMarketRepository(s *Store) *marketRepository {
	return &marketRepository{Store: s}
}

func (repo marketRepository) CreateListing(ctx context.Context, l market.Listing) (market.Listing, error) {
	l.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO market_listing (`+listingColumns+`)
		VALUES (:id, :seller_id, :item_id, :quantity, :remaining, :price_per_unit, :status, :views, :expires_at,
			:created_at, :updated_at, :closed_at)`,
		toListingRow(l))
	if err != nil {
		return market.Listing{}, errors.Wrap(err, "inserting listing")
	}
	return l, nil
}

func (repo marketRepository) GetListing(ctx context.Context, id string) (market.Listing, error) {
	if !validID(id) {
		return market.Listing{}, market.ErrNotFound
	}
	var r listingRow
	if err := repo.get(ctx, &r, `SELECT `+listingColumns+` FROM market_listing WHERE id = ?`+forUpdate(ctx), id); err != nil {
		return market.Listing{}, trapNoRows(err, market.ErrNotFound, "getting listing")
	}
	return r.listing(), nil
}

func (repo marketRepository) QueryListings(ctx context.Context, lf market.ListingFilter, ordering []core.DBOrdering, page core.Page) ([]market.Listing, error) {
	var f filter
	if lf.ItemID != "" {
		f.and("l.item_id::text = ?", lf.ItemID)
	}
	if lf.SellerID != "" {
		f.and("l.seller_id::text = ?", lf.SellerID)
	}
	if lf.Status != "" {
		f.and("l.status = ?", string(lf.Status))
	}
	if lf.Rarity != "" {
		f.and("i.rarity = ?", string(lf.Rarity))
	}
	if lf.MinPrice > 0 {
		f.and("l.price_per_unit >= ?", lf.MinPrice)
	}
	if lf.MaxPrice > 0 {
		f.and("l.price_per_unit <= ?", lf.MaxPrice)
	}

	var rows []listingRow
	q := `SELECT l.id, l.seller_id, l.item_id, l.quantity, l.remaining, l.price_per_unit, l.status, l.views,
			l.expires_at, l.created_at, l.updated_at, l.closed_at
		FROM market_listing l JOIN item i ON i.id = l.item_id` +
		f.where() + orderBy(ordering, listingOrderings, "l.created_at DESC") + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying listings")
	}
	res := make([]market.Listing, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.listing())
	}
	return res, nil
}

func (repo marketRepository) UpdateListing(ctx context.Context, l market.Listing) (market.Listing, error) {
	var orig struct {
		SellerID  string    `db:"seller_id"`
		ItemID    string    `db:"item_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	r := toListingRow(l)
	err := repo.get(ctx, &orig, `
		UPDATE market_listing SET
			quantity = ?, remaining = ?, price_per_unit = ?, status = ?, views = ?, expires_at = ?,
			updated_at = ?, closed_at = ?
		WHERE id = ?
		RETURNING seller_id, item_id, created_at`,
		r.Quantity, r.Remaining, r.PricePerUnit, r.Status, r.Views, r.ExpiresAt,
		r.UpdatedAt, r.ClosedAt, r.ID)
	if err != nil {
		return market.Listing{}, trapNoRows(err, market.ErrNotFound, "updating listing")
	}
	l.SellerID = orig.SellerID
	l.ItemID = orig.ItemID
	l.CreatedAt = orig.CreatedAt.UTC()
	return l, nil
}

func (repo marketRepository) IncrementViews(ctx context.Context, id string) error {
	if !validID(id) {
		return market.ErrNotFound
	}
	n, err := repo.execx(ctx, `UPDATE market_listing SET views = views + 1 WHERE id = ?`, id)
	return mustAffect(n, err, market.ErrNotFound, "incrementing listing views")
}

func (repo marketRepository) CountListingsSince(ctx context.Context, sellerID string, since time.Time) (int, error) {
	var count int
	err := repo.get(ctx, &count,
		`SELECT COUNT(*) FROM market_listing WHERE seller_id = ? AND created_at >= ?`, sellerID, since.UTC())
	return count, errors.Wrap(err, "counting listings")
}

func (repo marketRepository) QueryExpiredListings(ctx context.Context, before time.Time) ([]market.Listing, error) {
	var rows []listingRow
	err := repo.selectx(ctx, &rows,
		`SELECT `+listingColumns+` FROM market_listing WHERE status = ? AND expires_at <= ? ORDER BY expires_at, id`,
		string(market.ListingActive), before.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying expired listings")
	}
	res := make([]market.Listing, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.listing())
	}
	return res, nil
}

func (repo marketRepository) CreateTransaction(ctx context.Context, t market.Transaction) (market.Transaction, error) {
	t.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO market_transaction (`+marketTxColumns+`)
		VALUES (:id, :listing_id, :seller_id, :buyer_id, :item_id, :quantity, :price_per_unit, :total, :fee, :created_at)`,
		marketTxRow{
			ID:           t.ID,
			ListingID:    t.ListingID,
			SellerID:     t.SellerID,
			BuyerID:      t.BuyerID,
			ItemID:       t.ItemID,
			Quantity:     t.Quantity,
			PricePerUnit: t.PricePerUnit,
			Total:        t.Total,
			Fee:          t.Fee,
			CreatedAt:    t.CreatedAt.UTC(),
		})
	if err != nil {
		return market.Transaction{}, errors.Wrap(err, "inserting market transaction")
	}
	return t, nil
}

func (repo marketRepository) selectTransactions(ctx context.Context, q string, args ...interface{}) ([]market.Transaction, error) {
	var rows []marketTxRow
	if err := repo.selectx(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying market transactions")
	}
	res := make([]market.Transaction, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.transaction())
	}
	return res, nil
}

func (repo marketRepository) QueryTransactions(ctx context.Context, userID string, page core.Page) ([]market.Transaction, error) {
	var f filter
	f.and("(seller_id = ? OR buyer_id = ?)", userID, userID)
	return repo.selectTransactions(ctx,
		`SELECT `+marketTxColumns+` FROM market_transaction`+f.where()+` ORDER BY created_at DESC, id`+f.page(page),
		f.args...)
}

func (repo marketRepository) CountUserTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := repo.get(ctx, &count,
		`SELECT COUNT(*) FROM market_transaction WHERE (seller_id = ? OR buyer_id = ?) AND created_at >= ?`,
		userID, userID, since.UTC())
	return count, errors.Wrap(err, "counting market transactions")
}

func (repo marketRepository) QueryItemSales(ctx context.Context, itemID string, since time.Time) ([]market.Transaction, error) {
	if !validID(itemID) {
		return nil, nil
	}
	return repo.selectTransactions(ctx,
		`SELECT `+marketTxColumns+` FROM market_transaction WHERE item_id = ? AND created_at >= ? ORDER BY created_at`,
		itemID, since.UTC())
}

func (repo marketRepository) QueryTradedItemIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := repo.selectx(ctx, &ids,
		`SELECT DISTINCT item_id::text FROM market_transaction WHERE created_at >= ? ORDER BY 1`, since.UTC())
	return ids, errors.Wrap(err, "querying traded items")
}

func (repo marketRepository) GetDemand(ctx context.Context, itemID string, since time.Time) (market.Demand, error) {
	var d market.Demand
	if !validID(itemID) {
		return d, nil
	}
	var row struct {
		Sales24h    int     `db:"sales_24h"`
		AvgPrice24h float64 `db:"avg_price_24h"`
		Supply      int     `db:"supply"`
		Views       int     `db:"views"`
		Watchers    int     `db:"watchers"`
	}
	err := repo.get(ctx, &row, `
		SELECT
			(SELECT COALESCE(SUM(quantity), 0) FROM market_transaction WHERE item_id = ? AND created_at >= ?) AS sales_24h,
			(SELECT COALESCE(AVG(price_per_unit), 0) FROM market_transaction WHERE item_id = ? AND created_at >= ?) AS avg_price_24h,
			(SELECT COUNT(*) FROM market_listing WHERE item_id = ? AND status = ?) AS supply,
			(SELECT COALESCE(SUM(views), 0) FROM market_listing WHERE item_id = ? AND status = ?) AS views,
			(SELECT COUNT(*) FROM market_watch WHERE item_id = ?) AS watchers`,
		itemID, since.UTC(), itemID, since.UTC(),
		itemID, string(market.ListingActive), itemID, string(market.ListingActive),
		itemID)
	if err != nil {
		return d, errors.Wrap(err, "getting demand")
	}
	d = market.Demand{
		Sales24h:    row.Sales24h,
		AvgPrice24h: row.AvgPrice24h,
		Supply:      row.Supply,
		Views:       row.Views,
		Watchers:    row.Watchers,
	}
	return d, nil
}

func (repo marketRepository) GetReputation(ctx context.Context, userID string) (market.Reputation, error) {
	var r reputationRow
	err := repo.get(ctx, &r,
		`SELECT user_id, trust_score, total_sales, total_purchases, updated_at FROM market_reputation WHERE user_id = ?`+forUpdate(ctx),
		userID)
	if err != nil {
		return market.Reputation{}, trapNoRows(err, market.ErrReputationNotFound, "getting reputation")
	}
	return market.Reputation{
		UserID:         r.UserID,
		TrustScore:     r.TrustScore,
		TotalSales:     r.TotalSales,
		TotalPurchases: r.TotalPurchases,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}, nil
}

func (repo marketRepository) SaveReputation(ctx context.Context, r market.Reputation) (market.Reputation, error) {
	_, err := repo.named(ctx, `
		INSERT INTO market_reputation (user_id, trust_score, total_sales, total_purchases, updated_at)
		VALUES (:user_id, :trust_score, :total_sales, :total_purchases, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			trust_score = EXCLUDED.trust_score, total_sales = EXCLUDED.total_sales,
			total_purchases = EXCLUDED.total_purchases, updated_at = EXCLUDED.updated_at`,
		reputationRow{
			UserID:         r.UserID,
			TrustScore:     r.TrustScore,
			TotalSales:     r.TotalSales,
			TotalPurchases: r.TotalPurchases,
			UpdatedAt:      r.UpdatedAt.UTC(),
		})
	if err != nil {
		return market.Reputation{}, errors.Wrap(err, "saving reputation")
	}
	return r, nil
}

func (repo marketRepository) SavePricePoint(ctx context.Context, p market.PricePoint) (market.PricePoint, error) {
	_, err := repo.named(ctx, `
		INSERT INTO market_price_point (`+pricePointColumns+`)
		VALUES (:item_id, :period, :period_start, :period_end, :avg_price, :low_price, :high_price, :median_price,
			:total_sold, :total_listings)
		ON CONFLICT (item_id, period, period_start) DO UPDATE SET
			period_end = EXCLUDED.period_end, avg_price = EXCLUDED.avg_price, low_price = EXCLUDED.low_price,
			high_price = EXCLUDED.high_price, median_price = EXCLUDED.median_price,
			total_sold = EXCLUDED.total_sold, total_listings = EXCLUDED.total_listings`,
		pricePointRow{
			ItemID:        p.ItemID,
			Period:        string(p.Period),
			PeriodStart:   p.PeriodStart.UTC(),
			PeriodEnd:     p.PeriodEnd.UTC(),
			AvgPrice:      p.AvgPrice,
			LowPrice:      p.LowPrice,
			HighPrice:     p.HighPrice,
			MedianPrice:   p.MedianPrice,
			TotalSold:     p.TotalSold,
			TotalListings: p.TotalListings,
		})
	if err != nil {
		return market.PricePoint{}, errors.Wrap(err, "saving price point")
	}
	return p, nil
}

func (repo marketRepository) QueryPriceHistory(ctx context.Context, itemID string, period market.Period, limit int) ([]market.PricePoint, error) {
	if !validID(itemID) {
		return nil, nil
	}
	var f filter
	f.and("item_id = ?", itemID)
	f.and("period = ?", string(period))
	q := `SELECT ` + pricePointColumns + ` FROM market_price_point` + f.where() + ` ORDER BY period_start DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		f.args = append(f.args, limit)
	}

	var rows []pricePointRow
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying price history")
	}
	res := make([]market.PricePoint, 0, len(rows))
	for _, r := range rows {
		res = append(res, market.PricePoint{
			ItemID:        r.ItemID,
			Period:        market.Period(r.Period),
			PeriodStart:   r.PeriodStart.UTC(),
			PeriodEnd:     r.PeriodEnd.UTC(),
			AvgPrice:      r.AvgPrice,
			LowPrice:      r.LowPrice,
			HighPrice:     r.HighPrice,
			MedianPrice:   r.MedianPrice,
			TotalSold:     r.TotalSold,
			TotalListings: r.TotalListings,
		})
	}
	return res, nil
}

func (repo marketRepository) AddWatch(ctx context.Context, userID, itemID string, at time.Time) error {
	_, err := repo.execx(ctx,
		`INSERT INTO market_watch (user_id, item_id, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, item_id) DO NOTHING`,
		userID, itemID, at.UTC())
	return errors.Wrap(err, "adding watch")
}

func (repo marketRepository) RemoveWatch(ctx context.Context, userID, itemID string) error {
	if !validID(itemID) {
		return nil
	}
	_, err := repo.execx(ctx, `DELETE FROM market_watch WHERE user_id = ? AND item_id = ?`, userID, itemID)
	return errors.Wrap(err, "removing watch")
}

func (repo marketRepository) QueryWatchlist(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := repo.selectx(ctx, &ids,
		`SELECT item_id::text FROM market_watch WHERE user_id = ? ORDER BY created_at DESC`, userID)
	return ids, errors.Wrap(err, "querying watchlist")
}
