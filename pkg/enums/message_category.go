package enums

import "fmt"

// MessageCategory groups document types that may share a delivery bundle.
// Together with the receiver actor number and role it forms the partition
// key of the outgoing mailbox.
type MessageCategory string

const (
	CategoryMeasureData  MessageCategory = "measure-data"
	CategoryAggregations MessageCategory = "aggregations"
)

var validMessageCategories = []MessageCategory{
	CategoryMeasureData,
	CategoryAggregations,
}

// String implements fmt.Stringer.
func (c MessageCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known message category.
func (c MessageCategory) IsValid() bool {
	for _, candidate := range validMessageCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseMessageCategory converts raw input into a MessageCategory.
func ParseMessageCategory(value string) (MessageCategory, error) {
	for _, candidate := range validMessageCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message category %q", value)
}
