package transaction

import "github.com/shopspring/decimal"

// SplitFee divides amount into the platform commission and the seller's
// share. The commission is rounded half-to-even to minor units and the seller
// gets the remainder, so the two always sum to amount exactly.
func SplitFee(amount, rate decimal.Decimal) (adminFee, sellerAmount decimal.Decimal) {
	adminFee = amount.Mul(rate).RoundBank(moneyPlaces)
	sellerAmount = amount.Sub(adminFee)
	return adminFee, sellerAmount
}
