package explorer

// TransactionPage is one page of an address transaction listing, newest
// first.
type TransactionPage struct {
	Items []Transaction `json:"items"`
	Total int64         `json:"total"`
}

// Transaction is an explorer transaction, concise form.
type Transaction struct {
	ID              string `json:"id"`
	InclusionHeight int64  `json:"inclusionHeight"`
	Timestamp       int64  `json:"timestamp"`
	Confirmations   int64  `json:"numConfirmations"`
	Inputs          []Box  `json:"inputs"`
	Outputs         []Box  `json:"outputs"`
}

// Box is a transaction input or output.
type Box struct {
	Address string       `json:"address"`
	Value   int64        `json:"value"`
	Assets  []TokenValue `json:"assets,omitempty"`
}

// TokenValue is a token amount carried by a box or balance.
type TokenValue struct {
	TokenID string `json:"tokenId"`
	Amount  int64  `json:"amount"`
	Name    string `json:"name,omitempty"`
}

// Balance is a confirmed address balance.
type Balance struct {
	NanoErgs int64        `json:"nanoErgs"`
	Tokens   []TokenValue `json:"tokens,omitempty"`
}

// NetworkInfo is the explorer's network summary.
type NetworkInfo struct {
	Height      int64  `json:"height"`
	Difficulty  int64  `json:"difficulty"`
	Network     string `json:"network,omitempty"`
	Supply      int64  `json:"supply,omitempty"`
	Hashrate    int64  `json:"hashRate,omitempty"`
	LastBlockID string `json:"lastBlockId,omitempty"`
}
