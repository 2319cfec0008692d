package settle

// FeePolicy holds the platform's monetary and loyalty constants. All money is
// integer cents; the fee rate is basis points so the split never touches
// floating point.
type FeePolicy struct {
	RateBasisPoints         int64
	MinimumFeeCents         int64
	PointsDivisorCents      int64
	SubscriberMultiplier    int64
	ResaleBonusDivisorCents int64
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		RateBasisPoints:         500, // 5%
		MinimumFeeCents:         50,
		PointsDivisorCents:      200, // 1 point per $2
		SubscriberMultiplier:    2,
		ResaleBonusDivisorCents: 200,
	}
}

// PlatformFee is the platform's cut of an order total, floored per cent and
// never below the minimum fee.
func (p FeePolicy) PlatformFee(totalCents int64) int64 {
	fee := totalCents * p.RateBasisPoints / 10000
	if fee < p.MinimumFeeCents {
		fee = p.MinimumFeeCents
	}
	return fee
}

// SellerCredit is what the seller's ledger receives after the platform fee.
func (p FeePolicy) SellerCredit(totalCents int64) int64 {
	return totalCents - p.PlatformFee(totalCents)
}

// Points converts an order total into loyalty points, rounding half up, with
// the subscriber multiplier applied after rounding.
func (p FeePolicy) Points(totalCents int64, subscriber bool) int64 {
	points := (totalCents + p.PointsDivisorCents/2) / p.PointsDivisorCents
	if subscriber {
		points *= p.SubscriberMultiplier
	}
	return points
}

// ResaleBonus is the seller-side point bonus for an all-peer-listing order.
// No subscriber multiplier applies on the seller side.
func (p FeePolicy) ResaleBonus(totalCents int64) int64 {
	return (totalCents + p.ResaleBonusDivisorCents/2) / p.ResaleBonusDivisorCents
}
