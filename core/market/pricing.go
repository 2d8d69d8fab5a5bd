package market

import (
	"math"
	"sort"

	"github.com/edurpg/edurpg/core/item"
)

const (
	minPriceRatio = 0.1
	maxPriceRatio = 5.0

	minDemandMultiplier = 0.5
	maxDemandMultiplier = 2.0
	maxPopularity       = 100
)

var rarityMultipliers = map[item.Rarity]float64{
	item.RarityCommon:    1,
	item.RarityUncommon:  2,
	item.RarityRare:      4,
	item.RarityEpic:      8,
	item.RarityLegendary: 16,
}

// RarityMultiplier scales the base price of an item by its rarity.
func RarityMultiplier(r item.Rarity) float64 {
	if m, ok := rarityMultipliers[r]; ok {
		return m
	}
	return 1
}

// Demand summarizes recent market activity on an item.
type Demand struct {
	Sales24h int `json:"sales_24h"`
	Views    int `json:"views"`
	Watchers int `json:"watchers"`
	// Supply is the number of active listings.
	Supply int `json:"supply"`
	// AvgPrice24h is the average unit price of the last day sales, 0 without sales.
	AvgPrice24h float64 `json:"avg_price_24h"`
}

// DemandMultiplier raises prices of wanted items and lowers those of abundant ones, within [0.5, 2].
func DemandMultiplier(d Demand) float64 {
	m := 1.0
	if d.Sales24h > 10 {
		m += 0.3
	}
	if d.Sales24h > 20 {
		m += 0.3
	}
	if d.Views > 50 {
		m += 0.2
	}
	if d.Watchers > 10 {
		m += 0.2
	}
	if d.Supply > 20 {
		m -= 0.2
	}
	if d.Supply > 50 {
		m -= 0.3
	}
	m = math.Max(minDemandMultiplier, math.Min(maxDemandMultiplier, m))
	return math.Round(m*100) / 100
}

// PopularityScore rates the item interest from 0 to 100.
func PopularityScore(d Demand) int {
	score := math.Floor(2*float64(d.Sales24h) + 0.5*float64(d.Views) + 3*float64(d.Watchers) - 0.5*float64(d.Supply))
	switch {
	case score > maxPopularity:
		return maxPopularity
	case score < 0:
		return 0
	}
	return int(score)
}

type Trend string

const (
	TrendRising   Trend = "RISING"
	TrendFalling  Trend = "FALLING"
	TrendVolatile Trend = "VOLATILE"
	TrendStable   Trend = "STABLE"
)

// DetectTrend classifies a price change in percent.
func DetectTrend(change float64) Trend {
	switch {
	case change > 10:
		return TrendRising
	case change < -10:
		return TrendFalling
	case math.Abs(change) > 5:
		return TrendVolatile
	}
	return TrendStable
}

// PriceChange returns the change from prev to curr in percent, 0 if either is unknown.
func PriceChange(prev, curr float64) float64 {
	if prev <= 0 || curr <= 0 {
		return 0
	}
	return math.Round((curr-prev)/prev*10000) / 100
}

// RecommendedPrice is the fair unit price of an item given its rarity & demand.
func RecommendedPrice(base int, r item.Rarity, demandMult float64) int {
	return int(math.Floor(float64(base)*RarityMultiplier(r)*demandMult + 1e-9))
}

// PriceBounds returns the lowest & highest unit prices an item may be listed at.
func PriceBounds(base int) (int, int) {
	low := int(math.Ceil(float64(base)*minPriceRatio - 1e-9))
	if low < 1 {
		low = 1
	}
	return low, int(math.Floor(float64(base) * maxPriceRatio))
}

// ValidatePrice checks that a unit price is within the allowed range for the base price.
func ValidatePrice(base, price int) error {
	low, high := PriceBounds(base)
	if price < low {
		return ErrPriceTooLow
	}
	if price > high {
		return ErrPriceTooHigh
	}
	return nil
}

type Fees struct {
	Total          int `json:"total"`
	Fee            int `json:"fee"`
	SellerReceives int `json:"seller_receives"`
}

// CalculateFees splits a sale between the seller and the market fee, rounded to the nearest unit.
func CalculateFees(pricePerUnit, qty, feePercent int) Fees {
	total := pricePerUnit * qty
	fee := int(math.Round(float64(total) * float64(feePercent) / 100))
	return Fees{Total: total, Fee: fee, SellerReceives: total - fee}
}

type PriceStats struct {
	Avg    int
	Low    int
	High   int
	Median int
}

// ComputePriceStats summarizes unit prices. The median of an even count is the upper middle value.
func ComputePriceStats(prices []int) PriceStats {
	if len(prices) == 0 {
		return PriceStats{}
	}
	sorted := make([]int, len(prices))
	copy(sorted, prices)
	sort.Ints(sorted)

	var sum int
	for _, p := range sorted {
		sum += p
	}
	return PriceStats{
		Avg:    int(math.Round(float64(sum) / float64(len(sorted)))),
		Low:    sorted[0],
		High:   sorted[len(sorted)-1],
		Median: sorted[len(sorted)/2],
	}
}
