package broker

// OrderResult is the broker's acknowledgement of a submitted order.
type OrderResult struct {
	BrokerOrderID string
	Code          string
	Message       string
}

// Holding is one position as reported by the broker.
type Holding struct {
	Symbol           string
	Name             string
	Quantity         int64
	AveragePrice     float64
	CurrentPrice     float64
	EvaluationAmount float64
	ProfitAmount     float64
}

// BalanceSnapshot is the broker's view of the account, used for reconciliation
// and reporting. The ledger stays authoritative for reservations.
type BalanceSnapshot struct {
	Holdings         []Holding
	TotalEvaluation  float64
	RealizedProfit   float64
	UnrealizedProfit float64
}

// Wire shapes of the brokerage REST API. Numeric fields arrive as strings.

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type orderResponse struct {
	RtCd   string `json:"rt_cd"`
	Msg1   string `json:"msg1"`
	Output struct {
		OrderNo string `json:"ODNO"`
	} `json:"output"`
}

type balanceResponse struct {
	RtCd    string `json:"rt_cd"`
	Msg1    string `json:"msg1"`
	Output1 []struct {
		Symbol           string `json:"pdno"`
		Name             string `json:"prdt_name"`
		Quantity         string `json:"ovrs_cblc_qty"`
		AveragePrice     string `json:"pchs_avg_pric"`
		CurrentPrice     string `json:"now_pric2"`
		EvaluationAmount string `json:"ovrs_stck_evlu_amt"`
		ProfitAmount     string `json:"evlu_pfls_amt"`
	} `json:"output1"`
	Output2 struct {
		TotalEvaluation  string `json:"tot_evlu_amt"`
		RealizedProfit   string `json:"ovrs_rlzt_pfls_amt"`
		UnrealizedProfit string `json:"evlu_pfls_smtl_amt"`
	} `json:"output2"`
}
