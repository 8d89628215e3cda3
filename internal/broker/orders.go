package broker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/finvex/autotrader/internal/storage"
)

// Exchange-specific transaction codes, keyed by account type and side.
func transactionID(accountType storage.AccountType, side storage.OrderSide) (string, error) {
	switch {
	case accountType == storage.AccountMock && side == storage.SideBuy:
		return "VTTT1002U", nil
	case accountType == storage.AccountMock && side == storage.SideSell:
		return "VTTT1001U", nil
	case accountType == storage.AccountReal && side == storage.SideBuy:
		return "TTTT1002U", nil
	case accountType == storage.AccountReal && side == storage.SideSell:
		return "TTTT1001U", nil
	}
	return "", fmt.Errorf("invalid account type %q / side %q", accountType, side)
}

// PlaceOrder submits an order for the user's active account. An accepted order
// returns the broker order identifier; an explicit rejection surfaces as a
// terminal broker error, transport trouble as a retryable one.
func (g *Gateway) PlaceOrder(ctx context.Context, userID uint, symbol string, side storage.OrderSide, quantity int64, price float64) (*OrderResult, error) {
	if err := g.gate.wait(ctx); err != nil {
		return nil, err
	}

	acct, err := g.activeAccount(userID)
	if err != nil {
		return nil, err
	}
	trID, err := transactionID(acct.AccountType, side)
	if err != nil {
		return nil, err
	}
	token, err := g.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	appSecret, err := g.cipher.Decrypt(acct.AppSecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt app secret for user %d: %w", userID, err)
	}

	g.log.Info().Uint("user_id", userID).Str("symbol", symbol).Str("side", string(side)).
		Int64("quantity", quantity).Float64("price", price).
		Msg("placing broker order")

	body := map[string]string{
		"CANO":            acct.AccountNumber,
		"ACNT_PRDT_CD":    acct.ProductCode,
		"OVRS_EXCG_CD":    g.exchange,
		"PDNO":            symbol,
		"ORD_QTY":         strconv.FormatInt(quantity, 10),
		"OVRS_ORD_UNPR":   strconv.FormatFloat(price, 'f', 2, 64),
		"ORD_SVR_DVSN_CD": "0",
		"ORD_DVSN":        "00",
	}
	headers := map[string]string{
		"authorization": "Bearer " + token,
		"appkey":        acct.AppKey,
		"appsecret":     appSecret,
		"tr_id":         trID,
	}

	var resp orderResponse
	url := g.baseURL(acct.AccountType) + "/uapi/overseas-stock/v1/trading/order"
	if err := g.postJSON(ctx, url, headers, body, &resp); err != nil {
		return nil, err
	}

	if resp.RtCd != "0" {
		g.log.Warn().Uint("user_id", userID).Str("symbol", symbol).
			Str("code", resp.RtCd).Str("message", resp.Msg1).
			Msg("broker rejected order")
		return nil, terminalErr(resp.RtCd, resp.Msg1)
	}

	g.log.Info().Uint("user_id", userID).Str("symbol", symbol).
		Str("broker_order_id", resp.Output.OrderNo).
		Msg("broker order accepted")

	return &OrderResult{
		BrokerOrderID: resp.Output.OrderNo,
		Code:          resp.RtCd,
		Message:       resp.Msg1,
	}, nil
}
