package domain

import (
	"context"
	"encoding/json"
)

// AssetAmount is a balance figure as reported by the payment agent. Amount is
// a decimal string in the asset's display units.
type AssetAmount struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// Balance holds the wallet's gas-asset and payment-asset balances.
type Balance struct {
	Gas     AssetAmount `json:"gas"`
	Payment AssetAmount `json:"payment"`
}

// WalletConfig identifies the wallet the payment agent should operate with.
// Key material never enters this process.
type WalletConfig struct {
	Path    string
	Network string
	RPCURL  string
}

// PaymentClient is the boundary to the external payment collaborator, which
// owns wallet keys, on-chain balance queries, vault verification and call
// settlement. Errors from CallPortal surface the collaborator's message
// verbatim so the dispatcher can classify payment failures.
type PaymentClient interface {
	Address(ctx context.Context) (string, error)
	Balance(ctx context.Context) (Balance, error)
	Portal(ctx context.Context, id string) (Portal, error)
	CallPortal(ctx context.Context, id string, args map[string]any, operation string) (json.RawMessage, error)
}
