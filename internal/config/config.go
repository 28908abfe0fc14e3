package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gagliardetto/solana-go"
)

// Config is loaded once at startup and passed by pointer to every component
// that needs it. No package reads the environment on its own.
type Config struct {
	MerchantWallet      string        `env:"MERCHANT_WALLET,required"`
	RPCAPIKey           string        `env:"RPC_API_KEY,required"`
	RPCWSURL            string        `env:"RPC_WS_URL" envDefault:"wss://mainnet.helius-rpc.com/"`
	RPCHTTPURL          string        `env:"RPC_HTTP_URL" envDefault:"https://mainnet.helius-rpc.com/"`
	FulfillmentEndpoint string        `env:"FULFILLMENT_API_ENDPOINT,required"`
	PriceAPIURL         string        `env:"PRICE_API_URL" envDefault:"https://api.coingecko.com/api/v3/simple/price"`
	TolerancePct        float64       `env:"TOLERANCE_PCT" envDefault:"0.05"`
	HeartbeatInterval   time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	PingTimeout         time.Duration `env:"PING_TIMEOUT" envDefault:"10s"`
	ReconnectDelay      time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
	MaxInflightHandlers int64         `env:"MAX_INFLIGHT_HANDLERS" envDefault:"64"`
	SeenSignatureTTL    time.Duration `env:"SEEN_SIGNATURE_TTL" envDefault:"10m"`
	ListenAddr          string        `env:"LISTEN_ADDR" envDefault:":8080"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(cfg.MerchantWallet); err != nil {
		return nil, fmt.Errorf("MERCHANT_WALLET %q is not a valid address: %w", cfg.MerchantWallet, err)
	}
	return &cfg, nil
}

// WSEndpoint is the websocket URL of the upstream node with the API key applied.
func (c *Config) WSEndpoint() string {
	return withAPIKey(c.RPCWSURL, c.RPCAPIKey)
}

// RPCEndpoint is the HTTP JSON-RPC URL of the upstream node with the API key applied.
func (c *Config) RPCEndpoint() string {
	return withAPIKey(c.RPCHTTPURL, c.RPCAPIKey)
}

func withAPIKey(raw, key string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("api-key", key)
	u.RawQuery = q.Encode()
	return u.String()
}
