package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"purchase-confirmation-service/internal/domain"
	"purchase-confirmation-service/internal/memo"
)

var (
	ErrMerchantNotConfigured = errors.New("merchant wallet is not configured")
	ErrSpotPriceUnavailable  = errors.New("spot price is zero")
)

// PricingSource supplies the USD prices the host charges.
type PricingSource interface {
	SubscriptionPricing(ctx context.Context) (monthly, yearly decimal.Decimal, err error)
	TitlePricing(ctx context.Context, bookID string) (ebook, audiobook decimal.Decimal, err error)
}

// SpotPriceSource supplies the current USD value of one SOL.
type SpotPriceSource interface {
	SolPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// Encoder turns a purchase request into a payable solana: URI. Pricing and
// oracle failures propagate unchanged; there is no retry at this layer.
type Encoder struct {
	merchant string
	pricing  PricingSource
	oracle   SpotPriceSource
}

func NewEncoder(merchant string, pricing PricingSource, oracle SpotPriceSource) *Encoder {
	return &Encoder{merchant: merchant, pricing: pricing, oracle: oracle}
}

func (e *Encoder) CreateSubscriptionSession(ctx context.Context, userID string, purchaseType domain.PurchaseType) (*domain.PurchaseSession, error) {
	if e.merchant == "" {
		return nil, ErrMerchantNotConfigured
	}

	monthly, yearly, err := e.pricing.SubscriptionPricing(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription pricing: %w", err)
	}
	usd := yearly
	if purchaseType == domain.TypeMonthly {
		usd = monthly
	}

	return e.build(ctx, sessionParams{
		userID:       userID,
		kind:         domain.KindSubscription,
		purchaseType: purchaseType,
		usd:          usd,
		tag:          memo.SubscriptionTag(purchaseType),
		label:        "lumedot plus",
		message:      "Subscription",
	})
}

func (e *Encoder) CreateTitleSession(ctx context.Context, userID, bookID string, purchaseType domain.PurchaseType) (*domain.PurchaseSession, error) {
	if e.merchant == "" {
		return nil, ErrMerchantNotConfigured
	}

	ebook, audiobook, err := e.pricing.TitlePricing(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("title pricing: %w", err)
	}

	usd := audiobook
	message := "Audiobook purchase"
	if purchaseType == domain.TypeEbook {
		usd = ebook
		message = "eBook purchase"
	}

	return e.build(ctx, sessionParams{
		userID:       userID,
		kind:         domain.KindTitle,
		purchaseType: purchaseType,
		bookID:       bookID,
		usd:          usd,
		tag:          memo.TitleTag(purchaseType, bookID),
		label:        "lumedot title",
		message:      message,
	})
}

type sessionParams struct {
	userID       string
	kind         domain.PurchaseKind
	purchaseType domain.PurchaseType
	bookID       string
	usd          decimal.Decimal
	tag          string
	label        string
	message      string
}

func (e *Encoder) build(ctx context.Context, p sessionParams) (*domain.PurchaseSession, error) {
	spot, err := e.oracle.SolPriceUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("spot price: %w", err)
	}
	if spot.IsZero() {
		return nil, ErrSpotPriceUnavailable
	}

	amount := p.usd.Div(spot).Round(6)

	reference, err := newReference()
	if err != nil {
		return nil, err
	}
	memoText := memo.Encode(p.userID, p.tag)

	return &domain.PurchaseSession{
		UserID:       p.userID,
		Kind:         p.kind,
		PurchaseType: p.purchaseType,
		BookID:       p.bookID,
		AmountSOL:    amount,
		Reference:    reference,
		Label:        p.label,
		Message:      p.message,
		Memo:         memoText,
		Recipient:    e.merchant,
		PayURL:       payURL(e.merchant, amount, reference, p.label, p.message, memoText),
	}, nil
}

// newReference returns 32 fresh random bytes, base58-encoded. Generated per
// session and never reused.
func newReference() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	return base58.Encode(buf[:]), nil
}

func payURL(merchant string, amount decimal.Decimal, reference, label, message, memoText string) string {
	q := url.Values{}
	q.Set("amount", amount.String())
	q.Set("reference", reference)
	q.Set("label", label)
	q.Set("message", message)
	q.Set("memo", memoText)
	// url.Values encodes spaces as "+"; wallets expect %20. Literal plus
	// signs are already %2B at this point, so the replace is safe.
	return "solana:" + merchant + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}
