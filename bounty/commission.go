package bounty

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CommissionClass selects the rate applied by Commission.
type CommissionClass string

const (
	// Rate-on-net: applied to the pool left after the platform cut.
	ClassPlatform CommissionClass = "platform"
	// Rate-on-participant-share classes.
	ClassAgency               CommissionClass = "agency"
	ClassAgencyWithIntroducer CommissionClass = "agency_with_introducer"
	ClassIntroducingAgency    CommissionClass = "introducing_agency"
)

var (
	platformCutRate          = decimal.RequireFromString("0.20")
	platformCommissionRate   = decimal.RequireFromString("0.05")
	agencyRate               = decimal.RequireFromString("0.075")
	agencyWithIntroducerRate = decimal.RequireFromString("0.07")
	introducingAgencyRate    = decimal.RequireFromString("0.005")
)

var commissionRates = map[CommissionClass]decimal.Decimal{
	ClassPlatform:             platformCommissionRate,
	ClassAgency:               agencyRate,
	ClassAgencyWithIntroducer: agencyWithIntroducerRate,
	ClassIntroducingAgency:    introducingAgencyRate,
}

// Commission applies the class rate to base and rounds to cents.
func Commission(class CommissionClass, base decimal.Decimal) (decimal.Decimal, error) {
	rate, ok := commissionRates[class]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown commission class %q", class)
	}
	if base.IsNegative() {
		return decimal.Zero, fmt.Errorf("commission base must not be negative: %s", base)
	}
	return roundMoney(base.Mul(rate)), nil
}

// PlatformCommission is 5% of the bounty left after the platform cut.
func PlatformCommission(bountyAfterCommission decimal.Decimal) (decimal.Decimal, error) {
	return Commission(ClassPlatform, bountyAfterCommission)
}

// AgencyCommission splits the agency tier commission on one participant share.
// Without an introducing agency the agency earns 7.5%; with one, 7% + 0.5%.
func AgencyCommission(share decimal.Decimal, hasIntroducer bool) (agency, introducing decimal.Decimal, err error) {
	if !hasIntroducer {
		agency, err = Commission(ClassAgency, share)
		return agency, decimal.Zero, err
	}
	if agency, err = Commission(ClassAgencyWithIntroducer, share); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if introducing, err = Commission(ClassIntroducingAgency, share); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return agency, introducing, nil
}
