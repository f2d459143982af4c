package enums

import "fmt"

// TransactionType classifies an immutable wallet ledger entry.
type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeWithdrawal    TransactionType = "withdrawal"
	TransactionTypeEscrowHold    TransactionType = "escrow_hold"
	TransactionTypeEscrowRelease TransactionType = "escrow_release"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeFee           TransactionType = "fee"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypeEscrowHold,
	TransactionTypeEscrowRelease,
	TransactionTypeRefund,
	TransactionTypeFee,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
