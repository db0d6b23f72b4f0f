package transaction

// Operation names used in metrics and logs.
const (
	OpInitiate = "transaction_initiate"
	OpApprove  = "transaction_approve"
	OpCancel   = "transaction_cancel"
)

// Pagination bounds for history queries.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// moneyPlaces is the number of decimal places money is kept to.
const moneyPlaces = 2
