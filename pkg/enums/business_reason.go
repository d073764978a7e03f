package enums

import "fmt"

// BusinessReason is the process code explaining why a document is sent.
type BusinessReason string

const (
	ReasonPeriodicMetering BusinessReason = "E23"
	ReasonPreliminaryAgg   BusinessReason = "D03"
	ReasonBalanceFixing    BusinessReason = "D04"
	ReasonWholesaleFixing  BusinessReason = "D05"
	ReasonCorrection       BusinessReason = "D32"
)

var validBusinessReasons = []BusinessReason{
	ReasonPeriodicMetering,
	ReasonPreliminaryAgg,
	ReasonBalanceFixing,
	ReasonWholesaleFixing,
	ReasonCorrection,
}

// String implements fmt.Stringer.
func (r BusinessReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known business reason code.
func (r BusinessReason) IsValid() bool {
	for _, candidate := range validBusinessReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseBusinessReason converts raw input into a BusinessReason.
func ParseBusinessReason(value string) (BusinessReason, error) {
	for _, candidate := range validBusinessReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid business reason %q", value)
}
