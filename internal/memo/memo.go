package memo

import (
	"errors"
	"fmt"
	"strings"

	"purchase-confirmation-service/internal/domain"
)

// ErrUnparseable marks a memo that does not follow the correlation format.
// Frequent and expected: the watcher sees every transaction touching the
// merchant account, not just purchases.
var ErrUnparseable = errors.New("unparseable memo")

// Decoded is the purchase intent recovered from a memo string.
type Decoded struct {
	UserID       string
	Kind         domain.PurchaseKind
	PurchaseType domain.PurchaseType
	BookID       string
}

// Encode builds the correlation string embedded in the transaction memo,
// e.g. "ud:3 pl30".
func Encode(userID, tag string) string {
	return fmt.Sprintf("ud:%s %s", userID, tag)
}

func SubscriptionTag(purchaseType domain.PurchaseType) string {
	if purchaseType == domain.TypeMonthly {
		return "pl30"
	}
	return "pl365"
}

func TitleTag(purchaseType domain.PurchaseType, bookID string) string {
	if purchaseType == domain.TypeEbook {
		return "eb:" + bookID
	}
	return "au:" + bookID
}

// Decode parses a memo string back into a purchase intent. The first token
// must carry the "ud:" user prefix; the second token selects the plan or
// title. Anything else fails with ErrUnparseable.
func Decode(text string) (Decoded, error) {
	parts := strings.Fields(text)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "ud:") {
		return Decoded{}, ErrUnparseable
	}

	decoded := Decoded{UserID: strings.SplitN(parts[0], ":", 2)[1]}
	tag := parts[1]

	if strings.HasPrefix(tag, "pl") {
		decoded.Kind = domain.KindSubscription
		if tag == "pl30" {
			decoded.PurchaseType = domain.TypeMonthly
		} else {
			decoded.PurchaseType = domain.TypeYearly
		}
		return decoded, nil
	}

	decoded.Kind = domain.KindTitle
	if strings.HasPrefix(tag, "eb:") {
		decoded.PurchaseType = domain.TypeEbook
	} else {
		decoded.PurchaseType = domain.TypeAudiobook
	}
	if i := strings.Index(tag, ":"); i >= 0 {
		decoded.BookID = tag[i+1:]
	}
	return decoded, nil
}
