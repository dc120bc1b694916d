package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"portald/internal/domain"
)

// Config addresses the external payment agent and names the wallet it should
// operate with. The agent owns key material, balance queries and settlement;
// this process never sees a private key.
type Config struct {
	AgentURL string
	Wallet   domain.WalletConfig
	Timeout  time.Duration
}

// Client speaks JSON over HTTP to the payment agent and implements
// domain.PaymentClient. Agent error messages are surfaced verbatim so the
// dispatcher can classify payment failures from their text.
type Client struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

type walletOpenRequest struct {
	Path    string `json:"path"`
	Network string `json:"network"`
	RPCURL  string `json:"rpcUrl,omitempty"`
}

type addressResponse struct {
	Address string `json:"address"`
}

type callRequest struct {
	Arguments map[string]any `json:"arguments"`
	Operation string         `json:"operation,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Open connects to the payment agent and has it load or create the wallet.
// Failure here is fatal to startup: continuing without a wallet identity
// would leave every later call unfundable.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.AgentURL, "/")
	if base == "" {
		base = domain.DefaultPaymentAgentURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("payment agent url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultPaymentTimeoutSeconds * time.Second
	}

	c := &Client{
		base:   base,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("payment"),
	}

	req := walletOpenRequest{
		Path:    cfg.Wallet.Path,
		Network: cfg.Wallet.Network,
		RPCURL:  cfg.Wallet.RPCURL,
	}
	if req.Network == "" {
		req.Network = domain.DefaultNetwork
	}
	if err := c.do(ctx, http.MethodPost, "/v1/wallet/open", req, nil); err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}
	c.logger.Info("wallet opened", zap.String("network", req.Network))
	return c, nil
}

func (c *Client) Address(ctx context.Context) (string, error) {
	var resp addressResponse
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/address", nil, &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

func (c *Client) Balance(ctx context.Context) (domain.Balance, error) {
	var balance domain.Balance
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/balance", nil, &balance); err != nil {
		return domain.Balance{}, err
	}
	return balance, nil
}

func (c *Client) Portal(ctx context.Context, id string) (domain.Portal, error) {
	var portal domain.Portal
	if err := c.do(ctx, http.MethodGet, "/v1/portals/"+url.PathEscape(id), nil, &portal); err != nil {
		return domain.Portal{}, fmt.Errorf("%w: %s", domain.ErrPortalUnreachable, err)
	}
	return portal, nil
}

func (c *Client) CallPortal(ctx context.Context, id string, args map[string]any, operation string) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	var result json.RawMessage
	err := c.do(ctx, http.MethodPost, "/v1/portals/"+url.PathEscape(id)+"/call", callRequest{
		Arguments: args,
		Operation: operation,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ domain.PaymentClient = (*Client)(nil)

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var agentErr errorResponse
		if unmarshalErr := json.Unmarshal(data, &agentErr); unmarshalErr == nil && agentErr.Error != "" {
			// The agent's message must survive untouched for classification.
			return errors.New(agentErr.Error)
		}
		return fmt.Errorf("payment agent returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
