// Package broker is the per-user authenticated gateway to the external
// brokerage. It owns the token lifecycle (memory cache, durable sessions,
// fresh acquisition) and the global call-rate gate.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/secrets"
	"github.com/finvex/autotrader/internal/storage"
)

const (
	productionURL = "https://openapi.koreainvestment.com:9443"
	simulationURL = "https://openapivts.koreainvestment.com:29443"
)

type cachedToken struct {
	token     string
	expiresAt time.Time
}

type Gateway struct {
	repo       *storage.Repository
	cipher     *secrets.Cipher
	httpClient *http.Client
	gate       *rateGate
	exchange   string
	log        zerolog.Logger

	mu     sync.Mutex
	tokens map[uint]cachedToken

	// overrides the per-account-type base URL; used by tests
	baseURLOverride string
}

func NewGateway(repo *storage.Repository, cipher *secrets.Cipher, cfg *config.Config, log zerolog.Logger) *Gateway {
	return &Gateway{
		repo:       repo,
		cipher:     cipher,
		httpClient: &http.Client{Timeout: cfg.BrokerTimeout()},
		gate:       newRateGate(cfg.MinBrokerInterval()),
		exchange:   cfg.Broker.Exchange,
		log:        log.With().Str("component", "broker").Logger(),
		tokens:     make(map[uint]cachedToken),
	}
}

func (g *Gateway) baseURL(accountType storage.AccountType) string {
	if g.baseURLOverride != "" {
		return g.baseURLOverride
	}
	if accountType == storage.AccountReal {
		return productionURL
	}
	return simulationURL
}

func (g *Gateway) activeAccount(userID uint) (*storage.BrokerAccount, error) {
	acct, err := g.repo.ActiveBrokerAccount(userID)
	if err != nil {
		return nil, fmt.Errorf("no active broker account for user %d: %w", userID, err)
	}
	return acct, nil
}

// postJSON sends a JSON body and decodes the response into out. Transport and
// decode failures come back as retryable broker errors; HTTP 5xx likewise.
func (g *Gateway) postJSON(ctx context.Context, url string, headers map[string]string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return g.do(req, out)
}

func (g *Gateway) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return g.do(req, out)
}

func (g *Gateway) do(req *http.Request, out interface{}) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return retryableErr("broker unreachable: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return retryableErr("read broker response: %v", err)
	}
	if resp.StatusCode >= 500 {
		return retryableErr("broker returned HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retryableErr("malformed broker response (HTTP %d): %v", resp.StatusCode, err)
	}
	return nil
}
