package enums

import (
	"fmt"
	"strings"
)

// SplitType names the strategy used to divide a bill between guests.
type SplitType string

const (
	SplitTypeEven   SplitType = "even"
	SplitTypeByItem SplitType = "by_item"
	SplitTypeCustom SplitType = "custom"
)

var validSplitTypes = []SplitType{
	SplitTypeEven,
	SplitTypeByItem,
	SplitTypeCustom,
}

// String implements fmt.Stringer.
func (s SplitType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SplitType.
func (s SplitType) IsValid() bool {
	for _, candidate := range validSplitTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSplitType converts raw input into a SplitType. Matching ignores case.
func ParseSplitType(value string) (SplitType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSplitTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid split type %q", value)
}
