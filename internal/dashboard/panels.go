package dashboard

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/aggregate"
	"bilancio/internal/core"
	"bilancio/internal/events"
)

const (
	PanelSuppliers  = "suppliers"
	PanelCustomers  = "customers"
	PanelProfitLoss = "profit_loss"
	PanelTaxes      = "taxes"
)

// topCategories bounds the rankings on the profit and loss panel.
const topCategories = 5

func NewSuppliersPanel(deps Deps, r Renderer[PartyView]) *Panel[PartyView] {
	return newPanel(PanelSuppliers, deps,
		FetchSpec{Parties: true, Role: core.RoleSupplier},
		[]events.Name{events.SupplierUpdated, events.StatsUpdated, events.SyncRequested},
		func(in Input) (PartyView, aggregate.Diagnostics) { return PartyModel(in, core.RoleSupplier) },
		r)
}

func NewCustomersPanel(deps Deps, r Renderer[PartyView]) *Panel[PartyView] {
	return newPanel(PanelCustomers, deps,
		FetchSpec{Parties: true, Role: core.RoleCustomer},
		[]events.Name{events.CustomerUpdated, events.StatsUpdated, events.SyncRequested},
		func(in Input) (PartyView, aggregate.Diagnostics) { return PartyModel(in, core.RoleCustomer) },
		r)
}

func NewProfitLossPanel(deps Deps, bucket aggregate.BucketFunc, r Renderer[ProfitLossView]) *Panel[ProfitLossView] {
	return newPanel(PanelProfitLoss, deps,
		FetchSpec{},
		[]events.Name{events.StatsUpdated, events.SyncRequested},
		func(in Input) (ProfitLossView, aggregate.Diagnostics) { return ProfitLossModel(in, bucket, topCategories) },
		r)
}

func NewTaxPanel(deps Deps, rate decimal.Decimal, bucket aggregate.BucketFunc, r Renderer[TaxView]) *Panel[TaxView] {
	return newPanel(PanelTaxes, deps,
		FetchSpec{},
		[]events.Name{events.StatsUpdated, events.SyncRequested},
		func(in Input) (TaxView, aggregate.Diagnostics) { return TaxModel(in, rate, bucket) },
		r)
}
