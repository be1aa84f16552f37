// Package metrics exposes engine-level prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics counts the business events the billing engines emit.
type Metrics struct {
	LedgerPostings *prometheus.CounterVec
	Charges        *prometheus.CounterVec
	Refunds        *prometheus.CounterVec
	Coupons        prometheus.Counter
	MixedUnitSums  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LedgerPostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subledger_ledger_postings_total",
			Help: "Ledger transactions appended, by destination account.",
		}, []string{"dest_account"}),
		Charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subledger_charges_total",
			Help: "Charge state transitions.",
		}, []string{"state"}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subledger_refunds_total",
			Help: "Refund attempts by outcome.",
		}, []string{"outcome"}),
		Coupons: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subledger_coupons_generated_total",
			Help: "Coupons minted during checkout for pending organizations.",
		}),
		MixedUnitSums: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subledger_mixed_unit_sums_total",
			Help: "Transaction sums that spanned more than one currency unit.",
		}),
	}
	reg.MustRegister(m.LedgerPostings, m.Charges, m.Refunds, m.Coupons, m.MixedUnitSums)
	return m
}

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer { return reg }

func provideGatherer(reg *prometheus.Registry) prometheus.Gatherer { return reg }

// Module wires the prometheus registry and instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry, provideRegisterer, provideGatherer, New),
)
