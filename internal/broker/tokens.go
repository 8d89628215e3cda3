package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/finvex/autotrader/internal/storage"
)

// AccessToken resolves a usable token for the user through the three tiers:
// in-memory cache, durable session store, fresh acquisition. A token is usable
// while now < expiresAt; acquisition replaces both tiers for the key.
func (g *Gateway) AccessToken(ctx context.Context, userID uint) (string, error) {
	now := time.Now()

	g.mu.Lock()
	cached, ok := g.tokens[userID]
	g.mu.Unlock()
	if ok && now.Before(cached.expiresAt) {
		return cached.token, nil
	}

	acct, err := g.activeAccount(userID)
	if err != nil {
		return "", err
	}

	session, err := g.repo.LatestActiveSession(userID, acct.AccountType)
	if err == nil && now.Before(session.ExpiresAt) {
		g.mu.Lock()
		g.tokens[userID] = cachedToken{token: session.AccessToken, expiresAt: session.ExpiresAt}
		g.mu.Unlock()
		return session.AccessToken, nil
	}

	return g.refreshToken(ctx, acct)
}

// refreshToken exchanges the account credentials for a new token and replaces
// both cache tiers. The app secret is decrypted only for the call itself.
func (g *Gateway) refreshToken(ctx context.Context, acct *storage.BrokerAccount) (string, error) {
	g.log.Info().Uint("user_id", acct.UserID).Str("account_type", string(acct.AccountType)).
		Msg("refreshing broker access token")

	appSecret, err := g.cipher.Decrypt(acct.AppSecretEncrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt app secret for user %d: %w", acct.UserID, err)
	}

	var resp tokenResponse
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     acct.AppKey,
		"appsecret":  appSecret,
	}
	if err := g.postJSON(ctx, g.baseURL(acct.AccountType)+"/oauth2/tokenP", nil, body, &resp); err != nil {
		return "", fmt.Errorf("acquire access token for user %d: %w", acct.UserID, err)
	}
	if resp.AccessToken == "" {
		return "", terminalErr("", fmt.Sprintf("broker issued empty access token for user %d", acct.UserID))
	}

	expiresAt := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	if err := g.repo.DeactivateSessions(acct.UserID, acct.AccountType); err != nil {
		return "", fmt.Errorf("deactivate stale sessions for user %d: %w", acct.UserID, err)
	}
	session := &storage.BrokerSession{
		UserID:      acct.UserID,
		AccountType: acct.AccountType,
		AccessToken: resp.AccessToken,
		ExpiresAt:   expiresAt,
		Active:      true,
	}
	if err := g.repo.CreateSession(session); err != nil {
		return "", fmt.Errorf("store session for user %d: %w", acct.UserID, err)
	}

	g.mu.Lock()
	g.tokens[acct.UserID] = cachedToken{token: resp.AccessToken, expiresAt: expiresAt}
	g.mu.Unlock()

	return resp.AccessToken, nil
}
