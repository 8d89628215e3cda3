package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/secrets"
	"github.com/finvex/autotrader/internal/storage"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

type gatewayFixture struct {
	repo    *storage.Repository
	gateway *Gateway
	account *storage.BrokerAccount
}

// newGatewayFixture builds a gateway over a fresh database with one mock
// account, pointed at the given test server.
func newGatewayFixture(t *testing.T, serverURL string) *gatewayFixture {
	t.Helper()

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := storage.NewRepository(db)

	cipher, err := secrets.NewCipher(testEncryptionKey)
	require.NoError(t, err)
	encrypted, err := cipher.Encrypt("app-secret")
	require.NoError(t, err)

	account := &storage.BrokerAccount{
		UserID:             1,
		AccountType:        storage.AccountMock,
		AccountNumber:      "12345678",
		ProductCode:        "01",
		AppKey:             "app-key",
		AppSecretEncrypted: encrypted,
		Active:             true,
	}
	require.NoError(t, db.Create(account).Error)

	cfg := &config.Config{}
	cfg.Broker.MinIntervalMs = 1
	cfg.Broker.TimeoutSeconds = 5
	cfg.Broker.Exchange = "NASD"

	g := NewGateway(repo, cipher, cfg, zerolog.Nop())
	g.baseURLOverride = serverURL

	return &gatewayFixture{repo: repo, gateway: g, account: account}
}

func tokenHandler(t *testing.T, hits *int, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*hits++
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client_credentials", body["grant_type"])
		assert.Equal(t, "app-key", body["appkey"])
		assert.Equal(t, "app-secret", body["appsecret"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": token,
			"expires_in":   86400,
		})
	}
}

func TestAccessTokenAcquiresAndCaches(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", tokenHandler(t, &hits, "tok-1"))
	server := httptest.NewServer(mux)
	defer server.Close()

	fx := newGatewayFixture(t, server.URL)
	ctx := context.Background()

	token, err := fx.gateway.AccessToken(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, hits)

	// Second lookup is served from memory.
	token, err = fx.gateway.AccessToken(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, hits)

	// The durable session tier was written too.
	session, err := fx.repo.LatestActiveSession(1, storage.AccountMock)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.AccessToken)
	assert.True(t, session.Active)
}

func TestAccessTokenUsesStoredSession(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", tokenHandler(t, &hits, "tok-fresh"))
	server := httptest.NewServer(mux)
	defer server.Close()

	fx := newGatewayFixture(t, server.URL)

	// A valid session exists before the process ever talks to the broker,
	// as after a restart.
	require.NoError(t, fx.repo.CreateSession(&storage.BrokerSession{
		UserID:      1,
		AccountType: storage.AccountMock,
		AccessToken: "tok-stored",
		ExpiresAt:   time.Now().Add(time.Hour),
		Active:      true,
	}))

	token, err := fx.gateway.AccessToken(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "tok-stored", token)
	assert.Equal(t, 0, hits)
}

func TestAccessTokenRefreshesExpiredSession(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", tokenHandler(t, &hits, "tok-fresh"))
	server := httptest.NewServer(mux)
	defer server.Close()

	fx := newGatewayFixture(t, server.URL)

	require.NoError(t, fx.repo.CreateSession(&storage.BrokerSession{
		UserID:      1,
		AccountType: storage.AccountMock,
		AccessToken: "tok-expired",
		ExpiresAt:   time.Now().Add(-time.Hour),
		Active:      true,
	}))

	token, err := fx.gateway.AccessToken(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", token)
	assert.Equal(t, 1, hits)

	// The expired session was replaced, not accumulated.
	session, err := fx.repo.LatestActiveSession(1, storage.AccountMock)
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", session.AccessToken)
}

func TestAccessTokenEmptyTokenIsTerminal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "", "expires_in": 0})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fx := newGatewayFixture(t, server.URL)

	_, err := fx.gateway.AccessToken(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
}

func TestAccessTokenNoAccount(t *testing.T) {
	fx := newGatewayFixture(t, "http://127.0.0.1:0")

	_, err := fx.gateway.AccessToken(context.Background(), 99)
	assert.Error(t, err)
}
