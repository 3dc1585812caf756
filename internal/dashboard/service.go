package dashboard

import (
	"context"
	"fmt"

	"bilancio/internal/backend"
	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/log"
)

// Stats domains carried by stats_updated.
const (
	DomainInvoices = "invoices"
	DomainPayments = "payments"
)

// Service performs backend writes and announces them on the bus. Events are
// published only after the write succeeded.
type Service struct {
	writer backend.RecordWriter
	bus    *events.Bus
	logger *log.Logger
}

func NewService(w backend.RecordWriter, bus *events.Bus, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{writer: w, bus: bus, logger: logger.WithComponent(log.ComponentDashboard)}
}

// CreateInvoice stores r and publishes invoice_created then stats_updated.
func (s *Service) CreateInvoice(ctx context.Context, r core.FinancialRecord) (core.FinancialRecord, error) {
	id, err := s.writer.CreateRecord(ctx, r)
	if err != nil {
		return core.FinancialRecord{}, fmt.Errorf("create invoice: %w", err)
	}
	r.ID = id
	if r.Status == "" {
		r.Status = core.StatusIssued
	}

	s.logger.InfoContext(ctx, "Invoice created",
		log.NewFields().WithOperation(log.OpCreate).WithRecord(id, r.PartyID, r.AmountOrZero().Cents).ToSlice()...)

	s.bus.Publish(ctx, events.InvoiceCreated, events.InvoicePayload{
		InvoiceID: id,
		PartyID:   r.PartyID,
		Amount:    r.AmountOrZero(),
		Kind:      r.Kind,
	})
	s.bus.Publish(ctx, events.StatsUpdated, events.StatsPayload{Domain: DomainInvoices})
	return r, nil
}

// MarkPaid settles a record. A paid cost is a completed purchase, a paid
// revenue a completed sale; stats_updated follows either.
func (s *Service) MarkPaid(ctx context.Context, id string) (core.FinancialRecord, error) {
	rec, err := s.writer.MarkPaid(ctx, id)
	if err != nil {
		return core.FinancialRecord{}, fmt.Errorf("mark paid %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Invoice marked as paid",
		log.NewFields().WithOperation(log.OpMarkPaid).WithRecord(id, rec.PartyID, rec.AmountOrZero().Cents).ToSlice()...)

	if rec.Kind == core.Cost {
		s.bus.Publish(ctx, events.PurchaseCompleted, events.PurchasePayload{InvoiceID: id, Amount: rec.AmountOrZero()})
	} else {
		s.bus.Publish(ctx, events.SaleCompleted, events.SalePayload{InvoiceID: id, Amount: rec.AmountOrZero()})
	}
	s.bus.Publish(ctx, events.StatsUpdated, events.StatsPayload{Domain: DomainPayments})
	return rec, nil
}

// RequestSync asks every mounted panel to refetch.
func (s *Service) RequestSync(ctx context.Context, origin string) {
	s.bus.Publish(ctx, events.SyncRequested, events.SyncPayload{Origin: origin})
}
