package remitfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/testutil/mocks"
)

func TestBuild_WritesSequencedManifest(t *testing.T) {
	dir := t.TempDir()
	builder := NewBuilder(dir, mocks.NewMockLogger())

	profile := &models.PaymentProfile{
		ID:            uuid.New(),
		BankCode:      "237",
		AgreementCode: "12345",
	}
	invoices := []*models.Invoice{
		{
			ExternalReference: "1001",
			DueDate:           time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
			Amount:            decimal.RequireFromString("100.00"),
		},
		{
			ExternalReference: "1002",
			DueDate:           time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
			Amount:            decimal.RequireFromString("45.16"),
		},
	}

	err := builder.Build(context.Background(), profile, 8, invoices)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "REM-237-0000008.txt"))
	require.NoError(t, err)

	want := "bank=237 agreement=12345 sequence=8 count=2\n" +
		"1001\t2026-04-10\t100.00\tgenerated\n" +
		"1002\t2026-05-10\t45.16\tgenerated\n"
	assert.Equal(t, want, string(content))
}

func TestBuild_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "remittance")
	builder := NewBuilder(dir, mocks.NewMockLogger())

	profile := &models.PaymentProfile{ID: uuid.New(), BankCode: "001", AgreementCode: "7"}

	err := builder.Build(context.Background(), profile, 1, nil)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "REM-001-0000001.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bank=001 agreement=7 sequence=1 count=0\n", string(content))
}
