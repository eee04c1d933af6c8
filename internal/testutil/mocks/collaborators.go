package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
)

// MockLogger is a no-op logger that captures calls
type MockLogger struct {
	InfoCalls  []LogCall
	ErrorCalls []LogCall
	WarnCalls  []LogCall
	DebugCalls []LogCall
}

// LogCall represents a captured log call
type LogCall struct {
	Message string
	Fields  []ports.Field
}

// NewMockLogger creates a new mock logger
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Info(msg string, fields ...ports.Field) {
	m.InfoCalls = append(m.InfoCalls, LogCall{Message: msg, Fields: fields})
}

func (m *MockLogger) Error(msg string, fields ...ports.Field) {
	m.ErrorCalls = append(m.ErrorCalls, LogCall{Message: msg, Fields: fields})
}

func (m *MockLogger) Warn(msg string, fields ...ports.Field) {
	m.WarnCalls = append(m.WarnCalls, LogCall{Message: msg, Fields: fields})
}

func (m *MockLogger) Debug(msg string, fields ...ports.Field) {
	m.DebugCalls = append(m.DebugCalls, LogCall{Message: msg, Fields: fields})
}

// MockConnectionPolicy mocks the connection suspension policy
type MockConnectionPolicy struct {
	mock.Mock
}

func (m *MockConnectionPolicy) OnInvoicePaid(ctx context.Context, contractID uuid.UUID) {
	m.Called(ctx, contractID)
}

func (m *MockConnectionPolicy) OnInvoiceOverdue(ctx context.Context, contractID uuid.UUID) {
	m.Called(ctx, contractID)
}

// MockRemittanceBuilder mocks the outgoing-file builder
type MockRemittanceBuilder struct {
	mock.Mock
}

func (m *MockRemittanceBuilder) Build(ctx context.Context, profile *models.PaymentProfile, sequence int, invoices []*models.Invoice) error {
	args := m.Called(ctx, profile, sequence, invoices)
	return args.Error(0)
}

// MockGatewayClient mocks the webhook token exchange
type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) ExchangeToken(ctx context.Context, token string) ([]models.GatewayChargeEvent, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GatewayChargeEvent), args.Error(1)
}
