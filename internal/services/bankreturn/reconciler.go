// Package bankreturn imports fixed-width bank return files and applies their
// occurrence codes to invoices, idempotently per invoice.
package bankreturn

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/pkg/observability"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

// ImportResult is the structured partial-success report of one file import
type ImportResult struct {
	Batch *models.ReconciliationBatch

	Registered     int
	Paid           int
	WrittenOff     int
	Rejected       int
	AlreadyApplied int

	// Unmatched holds decoded references with no corresponding invoice;
	// they are logged and skipped, never fatal
	Unmatched []string

	// Failed maps line numbers (1-based, header included) to the reason the
	// line could not be applied
	Failed map[int]string
}

// Reconciler imports bank return files for a payment profile
type Reconciler struct {
	db       ports.DBPort
	profiles ports.PaymentProfileRepository
	invoices ports.InvoiceRepository
	batches  ports.ReconciliationBatchRepository
	policy   ports.ConnectionPolicy
	layouts  map[string]*Layout
	logger   ports.Logger
}

// NewReconciler creates a bank return reconciler with the default bank
// layout registry
func NewReconciler(
	db ports.DBPort,
	profiles ports.PaymentProfileRepository,
	invoices ports.InvoiceRepository,
	batches ports.ReconciliationBatchRepository,
	policy ports.ConnectionPolicy,
	logger ports.Logger,
) *Reconciler {
	return &Reconciler{
		db:       db,
		profiles: profiles,
		invoices: invoices,
		batches:  batches,
		policy:   policy,
		layouts:  DefaultLayouts(),
		logger:   logger,
	}
}

// Import parses a return file, validates its header against the payment
// profile and applies every detail line. Each line commits in its own
// transaction: a crash mid-file leaves the already-applied lines applied,
// and reprocessing the same file is a per-invoice no-op.
func (r *Reconciler) Import(ctx context.Context, content []byte, profileID uuid.UUID) (*ImportResult, error) {
	profile, err := r.profiles.GetByID(ctx, nil, profileID)
	if err != nil {
		return nil, err
	}

	layout, ok := r.layouts[profile.BankCode]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeProfileUnsupportedBank, "no return-file layout registered for bank").
			WithDetail("bank_code", profile.BankCode)
	}

	lines := splitLines(content)
	if len(lines) == 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeReconMalformedFile, "return file is empty")
	}

	header := lines[0]
	if len(header) < layout.MinLineLen || header[0] != '0' {
		return nil, domain.NewDomainError(domain.ErrorCodeReconMalformedFile, "first line is not a valid header").
			WithDetail("bank", layout.BankName)
	}

	if agreement := layout.headerAgreement.extract(header); !matchesAgreement(agreement, profile.AgreementCode) {
		return nil, domain.NewDomainError(domain.ErrorCodeReconIncompatibleFile, "return file does not belong to this payment profile").
			WithDetail("file_agreement", strings.TrimSpace(agreement)).
			WithDetail("profile_agreement", profile.AgreementCode)
	}

	sequence, err := parseSequence(layout.headerSequence.extract(header))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeReconMalformedFile, "unreadable file sequence", err)
	}
	fileDate, hasDate, err := parseFileDate(layout.headerDate.extract(header))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeReconMalformedFile, "unreadable file date", err)
	}
	if !hasDate {
		fileDate = timeutil.Today()
	}

	// the batch row goes in before any line so a partially-processed file
	// is still attributable
	batch := &models.ReconciliationBatch{
		ID:               uuid.New(),
		PaymentProfileID: profile.ID,
		Source:           models.BatchSourceBankReturn,
		ReceivedOn:       fileDate,
		Sequence:         sequence,
		RawReference:     fmt.Sprintf("%s-%07d", profile.BankCode, sequence),
		RawContent:       content,
	}
	if err := r.batches.Create(ctx, nil, batch); err != nil {
		return nil, err
	}

	result := &ImportResult{
		Batch:  batch,
		Failed: make(map[int]string),
	}
	for i, line := range lines[1:] {
		lineNo := i + 2
		r.applyLine(ctx, layout, profile, batch, line, lineNo, result)
	}

	r.logger.Info("bank return imported",
		ports.String("payment_profile_id", profile.ID.String()),
		ports.String("bank", layout.BankName),
		ports.Int("sequence", sequence),
		ports.Int("paid", result.Paid),
		ports.Int("registered", result.Registered),
		ports.Int("written_off", result.WrittenOff),
		ports.Int("unmatched", len(result.Unmatched)),
		ports.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (r *Reconciler) applyLine(ctx context.Context, layout *Layout, profile *models.PaymentProfile, batch *models.ReconciliationBatch, line string, lineNo int, result *ImportResult) {
	if len(line) < layout.MinLineLen || line[0] != '1' {
		// trailers and padding lines
		return
	}

	occurrenceDate, hasOccurrence, err := parseFileDate(layout.detailOccurrenceDate.extract(line))
	if err != nil {
		result.Failed[lineNo] = err.Error()
		return
	}
	if !hasOccurrence {
		return
	}

	code := layout.detailOccurrence.extract(line)
	kind := layout.occurrences[code]
	if kind == OccurrenceUnknown {
		return
	}
	if kind == OccurrenceRejected {
		result.Rejected++
		return
	}

	reference, err := layout.decodeReference(layout.detailReference.extract(line))
	if err != nil {
		result.Failed[lineNo] = err.Error()
		return
	}

	paidCents, err := parseCents(layout.detailPaidAmount.extract(line))
	if err != nil {
		result.Failed[lineNo] = err.Error()
		return
	}

	var (
		applied    bool
		paidFor    uuid.UUID
		notifyPaid bool
	)
	err = r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		invoice, err := r.invoices.GetByExternalReference(ctx, tx, profile.ID, reference)
		if err != nil {
			return err
		}

		switch kind {
		case OccurrenceRegistered:
			if invoice.IsRegistered() {
				return nil
			}
			applied = true
			return r.invoices.MarkRegistered(ctx, tx, invoice.ID, batch.ID)

		case OccurrencePaid:
			if invoice.IsPaid() || invoice.IsCancelled() {
				return nil
			}
			paid := decimal.New(paidCents, -2)
			invoice.ApplyPaymentDelta(paid)
			applied = true
			notifyPaid = true
			paidFor = invoice.ContractID
			return r.invoices.MarkPaid(ctx, tx, ports.MarkPaidParams{
				InvoiceID:        invoice.ID,
				PaidOn:           occurrenceDate,
				PaidAmount:       paid,
				Method:           models.PaymentMethodBankReturn,
				InterestReceived: invoice.InterestReceived,
				DiscountGranted:  invoice.DiscountGranted,
				PaidBatchID:      batch.ID,
			})

		case OccurrenceWriteoff:
			if invoice.IsWrittenOff() {
				return nil
			}
			applied = true
			return r.invoices.MarkWriteoff(ctx, tx, invoice.ID, batch.ID)
		}
		return nil
	})
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeInvoiceNotFound) {
			result.Unmatched = append(result.Unmatched, reference)
			r.logger.Warn("return line references unknown invoice",
				ports.String("reference", reference),
				ports.Int("line", lineNo),
			)
			return
		}
		result.Failed[lineNo] = err.Error()
		return
	}

	switch {
	case !applied:
		result.AlreadyApplied++
	case kind == OccurrenceRegistered:
		result.Registered++
	case kind == OccurrencePaid:
		result.Paid++
	case kind == OccurrenceWriteoff:
		result.WrittenOff++
	}

	// fire-and-forget, after the line's transaction committed
	if notifyPaid {
		observability.RecordInvoicePaid(profile.ID.String(), string(models.PaymentMethodBankReturn), paidCents)
		if r.policy != nil {
			r.policy.OnInvoicePaid(ctx, paidFor)
		}
	}
}

// splitLines splits the file into lines, tolerating CRLF and a trailing
// newline
func splitLines(content []byte) []string {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
