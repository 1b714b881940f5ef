package enums

import "fmt"

// OrderItemStatus marks whether a line still counts toward the bill.
type OrderItemStatus string

const (
	OrderItemStatusActive OrderItemStatus = "active"
	OrderItemStatusVoided OrderItemStatus = "voided"
)

var validOrderItemStatuses = []OrderItemStatus{
	OrderItemStatusActive,
	OrderItemStatusVoided,
}

// String implements fmt.Stringer.
func (s OrderItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderItemStatus.
func (s OrderItemStatus) IsValid() bool {
	for _, candidate := range validOrderItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderItemStatus converts raw input into an OrderItemStatus.
func ParseOrderItemStatus(value string) (OrderItemStatus, error) {
	for _, candidate := range validOrderItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item status %q", value)
}
