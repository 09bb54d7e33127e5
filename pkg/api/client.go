package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"printshop-pricing/internal/pricing"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client reads shop-wide settings from the storefront API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *zap.Logger
}

type ShopSettings struct {
	VatRate          decimal.Decimal `json:"vat_rate"`
	PricesIncludeVAT bool            `json:"prices_include_vat"`
	Currency         string          `json:"currency"`
}

// statusError is returned for non-200 answers. 4xx answers are not retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}

func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxElapsed: 30 * time.Second,
		logger:     logger,
	}
}

// GetSettings fetches the shop settings, retrying transient failures.
func (c *Client) GetSettings(ctx context.Context) (ShopSettings, error) {
	var settings ShopSettings

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed

	err := backoff.RetryNotify(
		func() error {
			s, err := c.fetchSettings(ctx)
			if err != nil {
				var se *statusError
				if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
					return backoff.Permanent(err)
				}
				return err
			}
			settings = s
			return nil
		},
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			c.logger.Warn("Shop settings request failed, retrying...",
				zap.Error(err),
				zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		return ShopSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

func (c *Client) fetchSettings(ctx context.Context) (ShopSettings, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/api/settings", c.baseURL),
		nil,
	)
	if err != nil {
		return ShopSettings{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ShopSettings{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ShopSettings{}, &statusError{code: resp.StatusCode}
	}

	var s ShopSettings
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return ShopSettings{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return s, nil
}

// Settings adapts the client to the pricing settings source.
func (c *Client) Settings(ctx context.Context) (pricing.VATSettings, error) {
	s, err := c.GetSettings(ctx)
	if err != nil {
		return pricing.VATSettings{}, err
	}
	return pricing.VATSettings{
		Rate:             s.VatRate,
		PricesIncludeVAT: s.PricesIncludeVAT,
		Currency:         s.Currency,
	}, nil
}
