package memo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchase-confirmation-service/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		userID string
		tag    string
	}{
		{"alice", "pl30"},
		{"alice", "pl365"},
		{"bob", "eb:42"},
		{"bob", "au:7"},
		{"3", "pl30"},
	}

	for _, tc := range cases {
		encoded := Encode(tc.userID, tc.tag)
		decoded, err := Decode(encoded)
		require.NoError(t, err, "memo %q", encoded)
		assert.Equal(t, tc.userID, decoded.UserID)
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		text string
		want Decoded
	}{
		{"ud:alice pl30", Decoded{UserID: "alice", Kind: domain.KindSubscription, PurchaseType: domain.TypeMonthly}},
		{"ud:alice pl365", Decoded{UserID: "alice", Kind: domain.KindSubscription, PurchaseType: domain.TypeYearly}},
		{"ud:bob eb:42", Decoded{UserID: "bob", Kind: domain.KindTitle, PurchaseType: domain.TypeEbook, BookID: "42"}},
		{"ud:bob au:7", Decoded{UserID: "bob", Kind: domain.KindTitle, PurchaseType: domain.TypeAudiobook, BookID: "7"}},
		// any unknown pl tag maps to yearly
		{"ud:carol pl999", Decoded{UserID: "carol", Kind: domain.KindSubscription, PurchaseType: domain.TypeYearly}},
	}

	for _, tc := range cases {
		decoded, err := Decode(tc.text)
		require.NoError(t, err, "memo %q", tc.text)
		assert.Equal(t, tc.want, decoded, "memo %q", tc.text)
	}
}

func TestDecodeFailures(t *testing.T) {
	for _, text := range []string{
		"garbage",
		"ud:alice",
		"",
		"   ",
		"alice pl30",
		"xd:alice pl30",
	} {
		_, err := Decode(text)
		assert.ErrorIs(t, err, ErrUnparseable, "memo %q", text)
	}
}

func TestTags(t *testing.T) {
	assert.Equal(t, "pl30", SubscriptionTag(domain.TypeMonthly))
	assert.Equal(t, "pl365", SubscriptionTag(domain.TypeYearly))
	assert.Equal(t, "eb:42", TitleTag(domain.TypeEbook, "42"))
	assert.Equal(t, "au:7", TitleTag(domain.TypeAudiobook, "7"))
}
