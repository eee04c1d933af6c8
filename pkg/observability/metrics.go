// Package observability exposes Prometheus metrics and health checks for
// the billing jobs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invoicesGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_invoices_generated_total",
		Help: "Total number of invoices generated",
	}, []string{
		"payment_profile_id",
	})

	invoicesPaidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_invoices_paid_total",
		Help: "Total number of invoices marked paid by reconciliation",
	}, []string{
		"payment_profile_id",
		"method", // bank_return, gateway
	})

	paidAmountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_paid_amount_cents_total",
		Help: "Total reconciled payment amount in cents",
	}, []string{
		"payment_profile_id",
		"method",
	})

	renewalContractsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_renewal_contracts_total",
		Help: "Contracts handled per batch renewal run, by outcome",
	}, []string{
		"payment_profile_id",
		"outcome", // succeeded, skipped, failed
	})

	bankReturnLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_bank_return_lines_total",
		Help: "Bank return detail lines processed, by result",
	}, []string{
		"bank_code",
		"result", // registered, paid, written_off, rejected, unmatched, failed, noop
	})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Gateway webhook deliveries processed, by outcome",
	}, []string{
		"outcome", // processed, stale, failed
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_job_duration_seconds",
		Help:    "Wall time of one batch job run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{
		"job", // renew, import_return, process_webhook, build_remittance, overdue_sweep
	})
)

// RecordInvoicesGenerated increments the generation counter
func RecordInvoicesGenerated(profileID string, count int) {
	invoicesGeneratedTotal.WithLabelValues(profileID).Add(float64(count))
}

// RecordInvoicePaid records one reconciled payment
func RecordInvoicePaid(profileID, method string, amountCents int64) {
	invoicesPaidTotal.WithLabelValues(profileID, method).Inc()
	paidAmountCents.WithLabelValues(profileID, method).Add(float64(amountCents))
}

// RecordRenewalOutcome records per-contract renewal outcomes from one run
func RecordRenewalOutcome(profileID, outcome string, count int) {
	renewalContractsTotal.WithLabelValues(profileID, outcome).Add(float64(count))
}

// RecordBankReturnLines counts processed detail lines by result
func RecordBankReturnLines(bankCode, result string, count int) {
	bankReturnLinesTotal.WithLabelValues(bankCode, result).Add(float64(count))
}

// RecordWebhookEvent counts one webhook delivery outcome
func RecordWebhookEvent(outcome string) {
	webhookEventsTotal.WithLabelValues(outcome).Inc()
}

// ObserveJobDuration records one job run's wall time in seconds
func ObserveJobDuration(job string, seconds float64) {
	jobDuration.WithLabelValues(job).Observe(seconds)
}
