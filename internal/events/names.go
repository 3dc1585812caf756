package events

import "bilancio/internal/core"

// Name identifies a domain event.
type Name string

// The closed vocabulary panels publish and subscribe to.
const (
	InvoiceCreated    Name = "invoice_created"
	PurchaseCompleted Name = "purchase_completed"
	SaleCompleted     Name = "sale_completed"
	SupplierUpdated   Name = "supplier_updated"
	CustomerUpdated   Name = "customer_updated"
	StatsUpdated      Name = "stats_updated"
	SyncRequested     Name = "sync_requested"
)

var vocabulary = []Name{
	InvoiceCreated,
	PurchaseCompleted,
	SaleCompleted,
	SupplierUpdated,
	CustomerUpdated,
	StatsUpdated,
	SyncRequested,
}

// Known reports whether name belongs to the documented vocabulary.
func Known(name Name) bool {
	for _, n := range vocabulary {
		if n == name {
			return true
		}
	}
	return false
}

// Vocabulary returns every documented event name.
func Vocabulary() []Name {
	return append([]Name(nil), vocabulary...)
}

// Payloads, one per event family.
type (
	// InvoicePayload accompanies invoice_created.
	InvoicePayload struct {
		InvoiceID string     `json:"invoiceId"`
		PartyID   string     `json:"partyId,omitempty"`
		Amount    core.Money `json:"amount"`
		Kind      core.Kind  `json:"kind,omitempty"`
	}

	// PurchasePayload accompanies purchase_completed (a supplier invoice paid).
	PurchasePayload struct {
		InvoiceID string     `json:"invoiceId"`
		Amount    core.Money `json:"amount"`
	}

	// SalePayload accompanies sale_completed (a customer invoice collected).
	SalePayload struct {
		InvoiceID string     `json:"invoiceId"`
		Amount    core.Money `json:"amount"`
	}

	// PartyPayload accompanies supplier_updated and customer_updated.
	PartyPayload struct {
		PartyID string `json:"partyId"`
	}

	// StatsPayload accompanies stats_updated.
	StatsPayload struct {
		Domain string `json:"domain"`
	}

	// SyncPayload accompanies sync_requested.
	SyncPayload struct {
		Origin string `json:"origin"`
	}
)
