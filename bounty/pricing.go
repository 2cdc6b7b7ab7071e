package bounty

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	Twitter   Platform = "twitter"
	YouTube   Platform = "youtube"
	TikTok    Platform = "tiktok"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{Facebook, Instagram, Twitter, YouTube, TikTok}

type MetricKind string

const (
	MetricPost       MetricKind = "post"
	MetricLike       MetricKind = "like"
	MetricShare      MetricKind = "share"
	MetricComment    MetricKind = "comment"
	MetricView       MetricKind = "view"
	MetricImpression MetricKind = "impression"
)

// MetricKinds lists every priceable metric in a stable order.
var MetricKinds = []MetricKind{MetricPost, MetricLike, MetricShare, MetricComment, MetricView, MetricImpression}

// Unit prices in USD. Missing pairs are intentional: instagram does not price
// shares or views, twitter does not price comments, youtube and tiktok do not
// price impressions.
var pricingTable = map[Platform]map[MetricKind]decimal.Decimal{
	Facebook: {
		MetricPost:       decimal.RequireFromString("4.00"),
		MetricLike:       decimal.RequireFromString("0.01"),
		MetricShare:      decimal.RequireFromString("0.05"),
		MetricComment:    decimal.RequireFromString("0.02"),
		MetricView:       decimal.RequireFromString("0.005"),
		MetricImpression: decimal.RequireFromString("0.002"),
	},
	Instagram: {
		MetricPost:       decimal.RequireFromString("3.00"),
		MetricLike:       decimal.RequireFromString("0.01"),
		MetricComment:    decimal.RequireFromString("0.02"),
		MetricImpression: decimal.RequireFromString("0.002"),
	},
	Twitter: {
		MetricPost:       decimal.RequireFromString("2.00"),
		MetricLike:       decimal.RequireFromString("0.01"),
		MetricShare:      decimal.RequireFromString("0.03"),
		MetricView:       decimal.RequireFromString("0.003"),
		MetricImpression: decimal.RequireFromString("0.002"),
	},
	YouTube: {
		MetricPost:    decimal.RequireFromString("10.00"),
		MetricLike:    decimal.RequireFromString("0.02"),
		MetricShare:   decimal.RequireFromString("0.05"),
		MetricComment: decimal.RequireFromString("0.03"),
		MetricView:    decimal.RequireFromString("0.005"),
	},
	TikTok: {
		MetricPost:    decimal.RequireFromString("5.00"),
		MetricLike:    decimal.RequireFromString("0.01"),
		MetricShare:   decimal.RequireFromString("0.05"),
		MetricComment: decimal.RequireFromString("0.02"),
		MetricView:    decimal.RequireFromString("0.003"),
	},
}

// UnitPrice returns the configured unit price. Unpriced pairs yield zero and ok=false.
func UnitPrice(p Platform, m MetricKind) (price decimal.Decimal, ok bool) {
	price, ok = pricingTable[p][m]
	if !ok {
		return decimal.Zero, false
	}
	return price, true
}

// Priced reports whether the platform prices the metric at all.
func Priced(p Platform, m MetricKind) bool {
	_, ok := pricingTable[p][m]
	return ok
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := pricingTable[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return p, nil
}
