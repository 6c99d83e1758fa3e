package errors

const (
	KindInvalidArgument           = "InvalidArgument"
	KindInsufficientSupply        = "InsufficientSupply"
	KindInsufficientFunds         = "InsufficientFunds"
	KindInsufficientBalance       = "InsufficientBalance"
	KindTokensLocked              = "TokensLocked"
	KindSaleInactive              = "SaleInactive"
	KindNotFound                  = "NotFound"
	KindAlreadyFinalized          = "AlreadyFinalized"
	KindExternalLedgerUnavailable = "ExternalLedgerUnavailable"
	KindConflict                  = "Conflict"
	KindUnauthorized              = "Unauthorized"
	KindForbidden                 = "Forbidden"
	KindRateLimited               = "RateLimited"
	KindInternal                  = "Internal"
)

// Sentinels for the ledger error taxonomy. Use Explain to attach a message;
// errors.Is matches on kind only.
var (
	InvalidArgument           = NewWithKind(KindInvalidArgument)
	InsufficientSupply        = NewWithKind(KindInsufficientSupply)
	InsufficientFunds         = NewWithKind(KindInsufficientFunds)
	InsufficientBalance       = NewWithKind(KindInsufficientBalance)
	TokensLocked              = NewWithKind(KindTokensLocked)
	SaleInactive              = NewWithKind(KindSaleInactive)
	NotFound                  = NewWithKind(KindNotFound)
	AlreadyFinalized          = NewWithKind(KindAlreadyFinalized)
	ExternalLedgerUnavailable = NewWithKind(KindExternalLedgerUnavailable)
	Conflict                  = NewWithKind(KindConflict)
	Unauthorized              = NewWithKind(KindUnauthorized)
	Forbidden                 = NewWithKind(KindForbidden)
	RateLimited               = NewWithKind(KindRateLimited)
	Internal                  = NewWithKind(KindInternal)
)
