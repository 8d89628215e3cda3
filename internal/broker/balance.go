package broker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/finvex/autotrader/internal/storage"
)

func balanceTransactionID(accountType storage.AccountType) string {
	if accountType == storage.AccountReal {
		return "TTTS3012R"
	}
	return "VTTS3012R"
}

// GetBalance fetches the broker's view of the user's account. Advisory only:
// reconciliation and reporting, never an input to reservations.
func (g *Gateway) GetBalance(ctx context.Context, userID uint) (*BalanceSnapshot, error) {
	if err := g.gate.wait(ctx); err != nil {
		return nil, err
	}

	acct, err := g.activeAccount(userID)
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

	q := url.Values{}
	q.Set("CANO", acct.AccountNumber)
	q.Set("ACNT_PRDT_CD", acct.ProductCode)
	q.Set("OVRS_EXCG_CD", g.exchange)
	q.Set("TR_CRCY_CD", "USD")
	q.Set("CTX_AREA_FK200", "")
	q.Set("CTX_AREA_NK200", "")

	headers := map[string]string{
		"authorization": "Bearer " + token,
		"appkey":        acct.AppKey,
		"appsecret":     appSecret,
		"tr_id":         balanceTransactionID(acct.AccountType),
	}

	var resp balanceResponse
	reqURL := g.baseURL(acct.AccountType) + "/uapi/overseas-stock/v1/trading/inquire-balance?" + q.Encode()
	if err := g.getJSON(ctx, reqURL, headers, &resp); err != nil {
		return nil, err
	}
	if resp.RtCd != "0" {
		return nil, terminalErr(resp.RtCd, resp.Msg1)
	}

	snapshot := &BalanceSnapshot{
		TotalEvaluation:  parseAmount(resp.Output2.TotalEvaluation),
		RealizedProfit:   parseAmount(resp.Output2.RealizedProfit),
		UnrealizedProfit: parseAmount(resp.Output2.UnrealizedProfit),
	}
	for _, item := range resp.Output1 {
		qty, _ := strconv.ParseInt(item.Quantity, 10, 64)
		snapshot.Holdings = append(snapshot.Holdings, Holding{
			Symbol:           item.Symbol,
			Name:             item.Name,
			Quantity:         qty,
			AveragePrice:     parseAmount(item.AveragePrice),
			CurrentPrice:     parseAmount(item.CurrentPrice),
			EvaluationAmount: parseAmount(item.EvaluationAmount),
			ProfitAmount:     parseAmount(item.ProfitAmount),
		})
	}
	return snapshot, nil
}

func parseAmount(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
