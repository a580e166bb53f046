package models

// OrderStatus is set by the order-management layer; this core does not
// validate transitions, it only reacts to whatever status lands on the row.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefundRequested OrderStatus = "refund_requested"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusReturnRequested OrderStatus = "return_requested"
	OrderStatusReturned        OrderStatus = "returned"
)

var knownOrderStatuses = map[OrderStatus]bool{
	OrderStatusPending:         true,
	OrderStatusConfirmed:       true,
	OrderStatusShipped:         true,
	OrderStatusDelivered:       true,
	OrderStatusCancelled:       true,
	OrderStatusRefundRequested: true,
	OrderStatusRefunded:        true,
	OrderStatusReturnRequested: true,
	OrderStatusReturned:        true,
}

func IsKnownOrderStatus(s OrderStatus) bool {
	return knownOrderStatuses[s]
}

// SlipVerdict classifies a payment proof. "manual" means a human has to look.
type SlipVerdict string

const (
	SlipVerdictApproved   SlipVerdict = "approved"
	SlipVerdictSuspicious SlipVerdict = "suspicious"
	SlipVerdictManual     SlipVerdict = "manual"
)

// Slip note codes persisted in slip_notes.
const (
	SlipNoteNoSlip        = "no_slip"
	SlipNoteFileMissing   = "file_missing"
	SlipNoteProcessFailed = "process_failed"
	SlipNoteInvalidOutput = "invalid_output"
	SlipNoteDuplicateHash = "duplicate_hash"
)

// DocumentType for sequence allocation.
type DocumentType string

const (
	DocumentTypeInvoice DocumentType = "invoice"
	DocumentTypeReceipt DocumentType = "receipt"
	DocumentTypeJob     DocumentType = "job"
)

// StockEventType tags why a stock movement happened.
type StockEventType string

const (
	StockEventSale       StockEventType = "sale"
	StockEventReturn     StockEventType = "return"
	StockEventAdjustment StockEventType = "adjustment"
	StockEventTransfer   StockEventType = "transfer"
	StockEventOpening    StockEventType = "opening"
)

// ReferenceKind enumerates the entities a ledger/audit row may point at.
type ReferenceKind string

const (
	ReferenceKindOrder               ReferenceKind = "order"
	ReferenceKindInventoryAdjustment ReferenceKind = "inventory_adjustment"
	ReferenceKindTransferOrder       ReferenceKind = "transfer_order"
	ReferenceKindOpeningStock        ReferenceKind = "opening_stock"
)

// DocumentRef is a tagged (kind, id) pair replacing ad-hoc polymorphic
// references. Stored as two columns via gorm:"embedded".
type DocumentRef struct {
	Kind ReferenceKind `gorm:"column:reference_kind;size:40" json:"kind"`
	Id   int           `gorm:"column:reference_id" json:"id"`
}

func OrderRef(orderId int) DocumentRef {
	return DocumentRef{Kind: ReferenceKindOrder, Id: orderId}
}

// Push app identifiers.
const (
	PushAppCustomerMobile = "customer-mobile"
)
