package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/internal/domain/models"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/pkg/httpclient"
	"github.com/tupinet/billing-engine/pkg/resilience"
	"golang.org/x/time/rate"
)

// Config holds the gateway client configuration
type Config struct {
	// BaseURL of the gateway API, without trailing slash
	BaseURL string

	// APIToken authenticates every request; resolved from the secret store
	// at startup
	APIToken string

	// RequestTimeout bounds one HTTP round trip
	RequestTimeout time.Duration

	// RequestsPerSecond and Burst throttle outbound calls during webhook
	// storms; the gateway rate-limits aggressively on its side
	RequestsPerSecond float64
	Burst             int

	// MaxRetries bounds retry attempts on transport errors and 5xx
	MaxRetries int

	// Backoff overrides the retry delay strategy; nil means exponential
	// backoff with jitter
	Backoff resilience.BackoffStrategy
}

// DefaultConfig returns production defaults
func DefaultConfig(baseURL, apiToken string) *Config {
	return &Config{
		BaseURL:           baseURL,
		APIToken:          apiToken,
		RequestTimeout:    30 * time.Second,
		RequestsPerSecond: 10,
		Burst:             20,
		MaxRetries:        3,
	}
}

// Client exchanges webhook notification tokens against the gateway's HTTP
// API. It implements ports.GatewayClient.
type Client struct {
	cfg     *Config
	http    *http.Client
	limiter *rate.Limiter
	backoff resilience.BackoffStrategy
	logger  ports.Logger
}

// NewClient creates a gateway client
func NewClient(cfg *Config, logger ports.Logger) *Client {
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = resilience.DefaultExponentialBackoff()
	}
	return &Client{
		cfg:     cfg,
		http:    httpclient.New(httpclient.GatewayConfig(), cfg.RequestTimeout),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		backoff: backoff,
		logger:  logger,
	}
}

// notificationResponse is the gateway's token-exchange payload: the ordered
// history of status transitions the token stands for
type notificationResponse struct {
	Data []struct {
		ID       int    `json:"id"`
		Type     string `json:"type"`
		CustomID string `json:"custom_id"`
		ChargeID string `json:"charge_id"`
		Status   struct {
			Current  string `json:"current"`
			Previous string `json:"previous"`
		} `json:"status"`
		Value            int64  `json:"value"`
		ReceivedByBankAt string `json:"received_by_bank_at"`
		Reason           string `json:"reason"`
	} `json:"data"`
}

// ExchangeToken resolves an opaque notification token into its typed
// sub-events. Callers invoke it before opening any transaction.
func (c *Client) ExchangeToken(ctx context.Context, token string) ([]models.GatewayChargeEvent, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/v1/notification/%s", c.cfg.BaseURL, token))
	if err != nil {
		return nil, err
	}

	var resp notificationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeWebhookExchange,
			"gateway returned an unparseable notification payload", err)
	}

	events := make([]models.GatewayChargeEvent, 0, len(resp.Data))
	for _, d := range resp.Data {
		event := models.GatewayChargeEvent{
			Type:         mapEventType(d.Status.Current),
			Status:       d.Status.Current,
			ChargeID:     d.ChargeID,
			CustomID:     d.CustomID,
			ValueCents:   d.Value,
			CancelReason: d.Reason,
		}
		if d.ReceivedByBankAt != "" {
			if at, perr := time.Parse(time.RFC3339, d.ReceivedByBankAt); perr == nil {
				event.ReceivedByBankAt = at.UTC()
			}
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff.NextDelay(attempt - 1)
			c.logger.Warn("retrying gateway request",
				ports.Int("attempt", attempt),
				ports.String("delay", delay.String()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.doOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, domain.WrapError(domain.ErrorCodeWebhookExchange,
		"gateway token exchange failed", lastErr)
}

func (c *Client) doOnce(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("gateway responded %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("gateway responded %d", resp.StatusCode)
	}
}

// mapEventType classifies the gateway's status vocabulary into the
// transitions reconciliation understands; unknown statuses come back empty
// and are skipped upstream
func mapEventType(status string) models.GatewayEventType {
	switch status {
	case "paid", "approved":
		return models.GatewayEventPaid
	case "identified":
		return models.GatewayEventPreIdentified
	case "waiting", "registered":
		return models.GatewayEventRegistered
	case "canceled", "cancelled", "expired":
		return models.GatewayEventCancelled
	case "settled":
		return models.GatewayEventManuallySettled
	default:
		return ""
	}
}
