package transaction

import (
	"encoding/hex"
	"strings"

	apperrors "campusmarket/internal/errors"
	"campusmarket/internal/models"

	"golang.org/x/crypto/sha3"
)

// ComputeHash fingerprints the immutable fields of a transaction.
func ComputeHash(tx *models.Transaction) string {
	h := sha3.New256()
	h.Write([]byte(strings.Join([]string{
		tx.ListingID,
		tx.SellerID,
		tx.BuyerID,
		tx.Amount.StringFixed(moneyPlaces),
		tx.AdminFee.StringFixed(moneyPlaces),
		tx.SellerAmount.StringFixed(moneyPlaces),
	}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyIntegrity checks the stored fingerprint and the fee-sum invariant.
func VerifyIntegrity(tx *models.Transaction) error {
	if !tx.AdminFee.Add(tx.SellerAmount).Equal(tx.Amount) {
		return apperrors.Integrity("admin fee and seller amount do not add up to the amount")
	}
	if tx.IntegrityHash == "" || tx.IntegrityHash != ComputeHash(tx) {
		return apperrors.Integrity("transaction failed integrity verification")
	}
	return nil
}
