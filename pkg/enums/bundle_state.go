package enums

import "fmt"

// BundleState tracks a delivery bundle through its lifecycle. Transitions
// only move forward: open -> closed -> materialized -> dequeued.
type BundleState string

const (
	BundleOpen         BundleState = "open"
	BundleClosed       BundleState = "closed"
	BundleMaterialized BundleState = "materialized"
	BundleDequeued     BundleState = "dequeued"
)

var validBundleStates = []BundleState{
	BundleOpen,
	BundleClosed,
	BundleMaterialized,
	BundleDequeued,
}

// Deliverable reports whether a bundle in this state occupies the
// partition's delivery slot.
func (s BundleState) Deliverable() bool {
	return s == BundleClosed || s == BundleMaterialized
}

// String implements fmt.Stringer.
func (s BundleState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known bundle state.
func (s BundleState) IsValid() bool {
	for _, candidate := range validBundleStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBundleState converts raw input into a BundleState.
func ParseBundleState(value string) (BundleState, error) {
	for _, candidate := range validBundleStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bundle state %q", value)
}
