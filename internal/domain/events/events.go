// Package events defines the domain events handed to the transactional outbox.
// Delivery to subscribers (notifications) is asynchronous and best effort.
package events

import "context"

// Event types.
const (
	TransferPosted          = "TransferPosted"
	TransferReversed        = "TransferReversed"
	EntryPosted             = "EntryPosted"
	EntryReversed           = "EntryReversed"
	BillingCreated          = "BillingCreated"
	BillingDeleted          = "BillingDeleted"
	BillingPaymentAdded     = "BillingPaymentAdded"
	BillingPaymentUpdated   = "BillingPaymentUpdated"
	BillingPaymentDeleted   = "BillingPaymentDeleted"
	DeliveryStarted         = "DeliveryStarted"
	DeliveryEnded           = "DeliveryEnded"
	DeliveryCancelled       = "DeliveryCancelled"
	BillingExpensesUpdated  = "BillingExpensesUpdated"
	PurchaseCreated         = "PurchaseCreated"
	PurchaseUpdated         = "PurchaseUpdated"
	PurchaseDeleted         = "PurchaseDeleted"
	ReturnCreated           = "ReturnCreated"
	ReturnDeleted           = "ReturnDeleted"
	StockUpdated            = "StockUpdated"
	StockUpdateReverted     = "StockUpdateReverted"
	SupplierPaymentPosted   = "SupplierPaymentPosted"
	SupplierPaymentReversed = "SupplierPaymentReversed"
	SellerPaymentPosted     = "SellerPaymentPosted"
	SellerPaymentReversed   = "SellerPaymentReversed"
	CustomerAccountUpdated  = "CustomerAccountUpdated"
	CustomerAccountDeleted  = "CustomerAccountDeleted"
)

// Event is one outbox message.
type Event struct {
	AggregateType string `json:"aggregateType"`
	AggregateKey  string `json:"aggregateKey"`
	EventType     string `json:"eventType"`
	Payload       any    `json:"payload,omitempty"`
}

// Publisher writes events inside the caller's transaction.
type Publisher interface {
	PublishBatch(ctx context.Context, events []Event) error
}

// Nop discards events.
type Nop struct{}

// PublishBatch implements Publisher.
func (Nop) PublishBatch(context.Context, []Event) error { return nil }
