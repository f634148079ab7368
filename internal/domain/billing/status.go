package billing

import "tradeledger/internal/core/types"

// PaymentStatus of a billing.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "Unpaid"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPaid    PaymentStatus = "Paid"
)

// DerivePaymentStatus is the one place payment status is computed.
// received == 0 is Unpaid even for a zero total; received >= total is Paid.
func DerivePaymentStatus(received, total types.Money) PaymentStatus {
	switch {
	case !received.IsPositive():
		return PaymentUnpaid
	case received.GreaterThanOrEqual(total):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// DeliveryStatus of a product line, a delivery or a whole billing.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "Pending"
	DeliveryPartial   DeliveryStatus = "Partially Delivered"
	DeliveryDelivered DeliveryStatus = "Delivered"
)

// deriveLineStatus compares cumulative delivered quantity with the ordered quantity.
func deriveLineStatus(ordered, delivered types.Quantity) DeliveryStatus {
	switch {
	case delivered >= ordered && ordered.IsPositive():
		return DeliveryDelivered
	case delivered.IsPositive():
		return DeliveryPartial
	default:
		return DeliveryPending
	}
}

// aggregateStatus folds line statuses: Delivered iff all are Delivered,
// Partially Delivered iff any made progress, otherwise Pending.
func aggregateStatus(statuses []DeliveryStatus) DeliveryStatus {
	if len(statuses) == 0 {
		return DeliveryPending
	}
	all, progressed := true, false
	for _, s := range statuses {
		if s != DeliveryDelivered {
			all = false
		}
		if s == DeliveryDelivered || s == DeliveryPartial {
			progressed = true
		}
	}
	switch {
	case all:
		return DeliveryDelivered
	case progressed:
		return DeliveryPartial
	default:
		return DeliveryPending
	}
}
