package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"purchase-confirmation-service/internal/domain"
)

const (
	pricingTimeout  = 6 * time.Second
	mutationTimeout = 10 * time.Second
)

// Service is the host fulfillment API as seen by this system: a pricing
// source for session creation and an opaque mutation endpoint for
// completion reports.
type Service interface {
	SubscriptionPricing(ctx context.Context) (monthly, yearly decimal.Decimal, err error)
	TitlePricing(ctx context.Context, bookID string) (ebook, audiobook decimal.Decimal, err error)
	RecordSubscriptionCompletion(ctx context.Context, rec domain.CompletionRecord) error
	RecordTitleCompletion(ctx context.Context, rec domain.CompletionRecord) error
}

// GraphQLClient talks to the host's GraphQL endpoint.
type GraphQLClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewGraphQLClient(endpoint string) *GraphQLClient {
	return &GraphQLClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: mutationTimeout},
	}
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *GraphQLClient) SubscriptionPricing(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	const query = `query { getSubscriptionPricing(subscriptionType:"lumedot_plus") { monthlyPrice yearlyPrice } }`

	ctx, cancel := context.WithTimeout(ctx, pricingTimeout)
	defer cancel()

	data, err := c.post(ctx, query)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("subscription pricing query: %w", err)
	}

	var payload struct {
		Pricing struct {
			Monthly float64 `json:"monthlyPrice"`
			Yearly  float64 `json:"yearlyPrice"`
		} `json:"getSubscriptionPricing"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("decode subscription pricing: %w", err)
	}
	return decimal.NewFromFloat(payload.Pricing.Monthly), decimal.NewFromFloat(payload.Pricing.Yearly), nil
}

func (c *GraphQLClient) TitlePricing(ctx context.Context, bookID string) (decimal.Decimal, decimal.Decimal, error) {
	query := fmt.Sprintf(`query { getTitlePricing(bookId:%q) { ebook_price audiobook_price } }`, bookID)

	ctx, cancel := context.WithTimeout(ctx, pricingTimeout)
	defer cancel()

	data, err := c.post(ctx, query)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("title pricing query: %w", err)
	}

	var payload struct {
		Pricing struct {
			Ebook     float64 `json:"ebook_price"`
			Audiobook float64 `json:"audiobook_price"`
		} `json:"getTitlePricing"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("decode title pricing: %w", err)
	}
	return decimal.NewFromFloat(payload.Pricing.Ebook), decimal.NewFromFloat(payload.Pricing.Audiobook), nil
}

func (c *GraphQLClient) RecordSubscriptionCompletion(ctx context.Context, rec domain.CompletionRecord) error {
	// The host computes the real expiry; the end date sent here is a
	// deliberate far-future placeholder.
	mutation := fmt.Sprintf(
		`mutation { recordCompletedSubscriptionPurchase(userId:%q, subscriptionType:"lumedot_plus", purchaseType:%q, price:%s, currency:%q, endDate:"2099-01-01", txSignature:%q, reference:%q) { id } }`,
		rec.UserID, rec.PurchaseType, rec.AmountSOL.String(), rec.Currency, rec.TxSignature, rec.Reference,
	)
	if _, err := c.post(ctx, mutation); err != nil {
		return fmt.Errorf("record subscription completion: %w", err)
	}
	return nil
}

func (c *GraphQLClient) RecordTitleCompletion(ctx context.Context, rec domain.CompletionRecord) error {
	mutation := fmt.Sprintf(
		`mutation { recordCompletedTitlePurchase(userId:%q, bookId:%s, purchaseType:%q, price:%s, currency:%q, txSignature:%q, reference:%q) { id } }`,
		rec.UserID, rec.BookID, rec.PurchaseType, rec.AmountSOL.String(), rec.Currency, rec.TxSignature, rec.Reference,
	)
	if _, err := c.post(ctx, mutation); err != nil {
		return fmt.Errorf("record title completion: %w", err)
	}
	return nil
}

func (c *GraphQLClient) post(ctx context.Context, query string) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("host returned %s", resp.Status)
	}

	var parsed graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("host rejected query: %s", parsed.Errors[0].Message)
	}
	return parsed.Data, nil
}
