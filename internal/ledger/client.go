package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known memo program on mainnet. Transactions that attach a memo carry
// either a jsonParsed "spl-memo" instruction or a raw instruction under
// this program id.
const memoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

const memoLogPrefix = "Program log: Memo"

var (
	ErrNoMemo     = errors.New("no memo in transaction")
	ErrNoMerchant = errors.New("merchant account not in transaction")
	ErrNotFound   = errors.New("transaction not found")
)

// Client resolves full transactions over the node's HTTP JSON-RPC endpoint.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Transaction is the jsonParsed getTransaction result, trimmed to the
// fields this pipeline reads.
type Transaction struct {
	Meta struct {
		PreBalances  []int64 `json:"preBalances"`
		PostBalances []int64 `json:"postBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys  []accountKey  `json:"accountKeys"`
			Instructions []instruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// accountKey tolerates both encodings the node uses: a bare base58 string
// or an object with a "pubkey" field.
type accountKey struct {
	Pubkey string
}

func (k *accountKey) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &k.Pubkey)
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	k.Pubkey = obj.Pubkey
	return nil
}

type instruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
	Data      string          `json:"data"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GetTransaction fetches one confirmed transaction. The result is reused
// for both memo extraction and balance-delta computation, so one call per
// handled signature suffices.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []any{
			signature,
			map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getTransaction %s: %w", signature, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc returned %s", resp.Status)
	}

	var parsed struct {
		Result *Transaction `json:"result"`
		Error  *rpcError    `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if parsed.Result == nil {
		return nil, ErrNotFound
	}
	return parsed.Result, nil
}

var memoPayloadRe = regexp.MustCompile(`"([^"]+)"`)

// MemoFromLogs is the fast path: notification log lines like
//
//	Program log: Memo (len 9): "ud:3 pl30"
//
// carry the payload quoted, sparing a getTransaction round trip.
func MemoFromLogs(logs []string) (string, bool) {
	for _, line := range logs {
		if !strings.HasPrefix(line, memoLogPrefix) {
			continue
		}
		if m := memoPayloadRe.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
		return "", false
	}
	return "", false
}

// MemoFromTransaction scans the parsed instruction list for a memo,
// preferring the structured spl-memo form over the raw program fallback.
func MemoFromTransaction(tx *Transaction) (string, error) {
	for _, ix := range tx.Transaction.Message.Instructions {
		if ix.Program == "spl-memo" && len(ix.Parsed) > 0 {
			var structured struct {
				Info struct {
					Memo string `json:"memo"`
				} `json:"info"`
			}
			if err := json.Unmarshal(ix.Parsed, &structured); err == nil && structured.Info.Memo != "" {
				return structured.Info.Memo, nil
			}
			var plain string
			if err := json.Unmarshal(ix.Parsed, &plain); err == nil && plain != "" {
				return plain, nil
			}
		}
		if ix.ProgramID == memoProgramID && ix.Data != "" {
			return ix.Data, nil
		}
	}
	return "", ErrNoMemo
}

// MerchantDelta is postBalance-preBalance in lamports at the merchant's
// index in the transaction's account list.
func MerchantDelta(tx *Transaction, merchant string) (int64, error) {
	idx := -1
	for i, key := range tx.Transaction.Message.AccountKeys {
		if key.Pubkey == merchant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrNoMerchant
	}
	if idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return 0, fmt.Errorf("balance arrays shorter than account index %d", idx)
	}
	return tx.Meta.PostBalances[idx] - tx.Meta.PreBalances[idx], nil
}

// LamportsToSOL converts the smallest unit to SOL (1 SOL = 1e9 lamports).
func LamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -9)
}
