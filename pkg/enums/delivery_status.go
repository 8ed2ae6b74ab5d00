package enums

import "fmt"

// DeliveryStatus tracks fulfillment of a parent order or sub-order.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusShipped    DeliveryStatus = "shipped"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusCompleted  DeliveryStatus = "completed"
	DeliveryStatusCancelled  DeliveryStatus = "cancelled"
	DeliveryStatusReturned   DeliveryStatus = "returned"
)

// forward progression; cancelled and returned branch off any non-terminal step.
var deliveryProgression = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusProcessing,
	DeliveryStatusShipped,
	DeliveryStatusDelivered,
	DeliveryStatusCompleted,
}

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusProcessing,
	DeliveryStatusShipped,
	DeliveryStatusDelivered,
	DeliveryStatusCompleted,
	DeliveryStatusCancelled,
	DeliveryStatusReturned,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further delivery transition is allowed.
func (d DeliveryStatus) IsTerminal() bool {
	switch d {
	case DeliveryStatusCompleted, DeliveryStatusCancelled, DeliveryStatusReturned:
		return true
	}
	return false
}

// IsReversal reports whether moving into d undoes a sale.
func (d DeliveryStatus) IsReversal() bool {
	return d == DeliveryStatusCancelled || d == DeliveryStatusReturned
}

// Rank is the position along the forward progression, or -1 for branch states.
func (d DeliveryStatus) Rank() int {
	for i, candidate := range deliveryProgression {
		if candidate == d {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether d may move to next. Forward moves may skip
// steps; staying put or moving backwards is rejected.
func (d DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if !d.IsValid() || !next.IsValid() || d.IsTerminal() || d == next {
		return false
	}
	if next.IsReversal() {
		return true
	}
	return next.Rank() > d.Rank()
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
