package domain

import "github.com/shopspring/decimal"

type PurchaseKind string

const (
	KindSubscription PurchaseKind = "subscription"
	KindTitle        PurchaseKind = "title"
)

type PurchaseType string

const (
	TypeMonthly   PurchaseType = "monthly"
	TypeYearly    PurchaseType = "yearly"
	TypeEbook     PurchaseType = "ebook"
	TypeAudiobook PurchaseType = "audiobook"
)

// PurchaseSession is handed back to the caller that requested a payment.
// It is never persisted; the memo text is the only correlation channel
// between the session and the eventual on-chain transaction.
type PurchaseSession struct {
	UserID       string          `json:"userId"`
	Kind         PurchaseKind    `json:"kind"`
	PurchaseType PurchaseType    `json:"purchaseType"`
	BookID       string          `json:"bookId,omitempty"`
	AmountSOL    decimal.Decimal `json:"amount"`
	Reference    string          `json:"reference"`
	Label        string          `json:"label"`
	Message      string          `json:"message"`
	Memo         string          `json:"memo"`
	Recipient    string          `json:"recipient"`
	PayURL       string          `json:"solanaPayUrl"`
}

// LedgerEvent is one confirmed transaction mentioning the merchant account,
// as delivered by the log stream. Discarded after handling.
type LedgerEvent struct {
	Signature string
	Logs      []string
}

// CompletionRecord is what gets reported to the fulfillment service. The
// transaction signature doubles as the idempotency reference so the host
// can deduplicate even though this pipeline is stateless.
type CompletionRecord struct {
	UserID       string
	Kind         PurchaseKind
	PurchaseType PurchaseType
	BookID       string
	AmountSOL    decimal.Decimal
	Currency     string
	TxSignature  string
	Reference    string
}
