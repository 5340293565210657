package enums

import "fmt"

// MovementReason explains why an inventory movement was recorded.
type MovementReason string

const (
	MovementReasonSale                 MovementReason = "sale"
	MovementReasonCancellationReversal MovementReason = "cancellation_reversal"
	MovementReasonRestock              MovementReason = "restock"
	MovementReasonManualAdjustment     MovementReason = "manual_adjustment"
)

var validMovementReasons = []MovementReason{
	MovementReasonSale,
	MovementReasonCancellationReversal,
	MovementReasonRestock,
	MovementReasonManualAdjustment,
}

// String implements fmt.Stringer.
func (r MovementReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known MovementReason.
func (r MovementReason) IsValid() bool {
	for _, candidate := range validMovementReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseMovementReason converts raw input into a MovementReason.
func ParseMovementReason(value string) (MovementReason, error) {
	for _, candidate := range validMovementReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement reason %q", value)
}
