package domain

const (
	DefaultNetwork                    = "mainnet-beta"
	DefaultPaymentAgentURL            = "http://127.0.0.1:8402"
	DefaultWalletPath                 = "~/.portald/wallet.json"
	DefaultStorePath                  = "~/.portald/portals.db"
	DefaultObservabilityListenAddress = "127.0.0.1:9464"
	DefaultSchemaFetchTimeoutSeconds  = 8
	DefaultPaymentTimeoutSeconds      = 60
	DefaultRefreshConcurrency         = 4
	DefaultResyncSeconds              = 30
	DefaultTransport                  = "stdio"
	DefaultHTTPListenAddress          = "127.0.0.1:8090"
	DefaultHTTPPath                   = "/mcp"
)

const (
	// GasAssetSymbol is the chain-native asset that pays transaction fees.
	GasAssetSymbol = "SOL"
	// PaymentAssetSymbol is the token portals are paid in.
	PaymentAssetSymbol = "USDC"
)

// WhitelistEnvVar is the environment variable holding the comma-separated
// portal whitelist. Referenced in configuration-error guidance.
const WhitelistEnvVar = "PORTALD_PORTALS"
