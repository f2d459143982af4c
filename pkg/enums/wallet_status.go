package enums

import "fmt"

type WalletStatus string

const (
	WalletStatusActive WalletStatus = "active"
	WalletStatusFrozen WalletStatus = "frozen"
)

var validWalletStatuses = []WalletStatus{
	WalletStatusActive,
	WalletStatusFrozen,
}

// String implements fmt.Stringer.
func (w WalletStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletStatus.
func (w WalletStatus) IsValid() bool {
	for _, candidate := range validWalletStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletStatus converts raw input into a WalletStatus.
func ParseWalletStatus(value string) (WalletStatus, error) {
	for _, candidate := range validWalletStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet status %q", value)
}
