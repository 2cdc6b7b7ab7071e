package bounty

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

// roundMoney rounds half-up to cents. Amounts here are never negative, so
// decimal's half-away-from-zero rounding is half-up.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// Metrics holds raw engagement counts for one platform.
type Metrics struct {
	Posts          int64
	Likes          int64
	Shares         int64
	Comments       int64
	Views          int64
	Impressions    int64
	EngagementRate float64
}

func (m Metrics) count(kind MetricKind) int64 {
	switch kind {
	case MetricPost:
		return m.Posts
	case MetricLike:
		return m.Likes
	case MetricShare:
		return m.Shares
	case MetricComment:
		return m.Comments
	case MetricView:
		return m.Views
	case MetricImpression:
		return m.Impressions
	}
	return 0
}

// RawTotal sums the counted metrics. Engagement rate is not a count.
func (m Metrics) RawTotal() int64 {
	return m.Posts + m.Likes + m.Shares + m.Comments + m.Views + m.Impressions
}

// MetricPrices is the priced form of a Metrics snapshot.
type MetricPrices struct {
	ByKind map[MetricKind]decimal.Decimal
	Total  decimal.Decimal
}

// Price converts a raw count into money, rounded to cents.
func Price(p Platform, kind MetricKind, count int64) (decimal.Decimal, error) {
	if count < 0 {
		return decimal.Zero, fmt.Errorf("%w: %s %s=%d", ErrNegativeMetric, p, kind, count)
	}
	unit, _ := UnitPrice(p, kind)
	return roundMoney(unit.Mul(decimal.NewFromInt(count))), nil
}

// PriceMetrics prices every metric of a snapshot. Unpriced pairs are recorded as
// zero without going through Price.
func PriceMetrics(p Platform, m Metrics) (MetricPrices, error) {
	out := MetricPrices{
		ByKind: make(map[MetricKind]decimal.Decimal, len(MetricKinds)),
		Total:  decimal.Zero,
	}
	for _, kind := range MetricKinds {
		if m.count(kind) < 0 {
			return MetricPrices{}, fmt.Errorf("%w: %s %s=%d", ErrNegativeMetric, p, kind, m.count(kind))
		}
		if !Priced(p, kind) {
			out.ByKind[kind] = decimal.Zero
			continue
		}
		amount, err := Price(p, kind, m.count(kind))
		if err != nil {
			return MetricPrices{}, err
		}
		out.ByKind[kind] = amount
		out.Total = out.Total.Add(amount)
	}
	return out, nil
}
