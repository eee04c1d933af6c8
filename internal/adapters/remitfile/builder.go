// Package remitfile is the default RemittanceBuilder: it writes a manifest
// of the selected invoices to an output directory. The bank-specific
// byte-level serialization lives in a separate component that consumes the
// same selection.
package remitfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
)

// Builder writes one manifest file per remittance generation
type Builder struct {
	outputDir string
	logger    ports.Logger
}

// NewBuilder creates a manifest builder writing into outputDir
func NewBuilder(outputDir string, logger ports.Logger) *Builder {
	return &Builder{outputDir: outputDir, logger: logger}
}

// Build writes REM-<bank>-<sequence>.txt listing every selected invoice
func (b *Builder) Build(ctx context.Context, profile *models.PaymentProfile, sequence int, invoices []*models.Invoice) error {
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "bank=%s agreement=%s sequence=%d count=%d\n",
		profile.BankCode, profile.AgreementCode, sequence, len(invoices))
	for _, invoice := range invoices {
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\n",
			invoice.ExternalReference,
			invoice.DueDate.Format("2006-01-02"),
			invoice.Amount.StringFixed(2),
			invoice.Status(),
		)
	}

	name := fmt.Sprintf("REM-%s-%07d.txt", profile.BankCode, sequence)
	path := filepath.Join(b.outputDir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write remittance manifest: %w", err)
	}

	b.logger.Info("remittance manifest written",
		ports.String("path", path),
		ports.Int("invoices", len(invoices)),
	)
	return nil
}
