package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"portald/internal/domain"
)

const op = "dispatch.Dispatch"

// Dispatcher invokes resolved portal operations through the payment client
// and classifies failures into actionable categories. It performs no retries:
// every failure is a single terminal result, and the calling agent decides
// whether to retry (typically after funding the wallet).
type Dispatcher struct {
	payment domain.PaymentClient
	logger  *zap.Logger

	mu      sync.Mutex
	address string
}

func New(payment domain.PaymentClient, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		payment: payment,
		logger:  logger.Named("dispatch"),
	}
}

// Dispatch executes one resolved tool call. On success the collaborator's
// result passes through unchanged. Payment failures are rewritten into
// funding guidance containing the wallet address; the raw collaborator text
// is discarded. Anything else is wrapped with the original message preserved.
func (d *Dispatcher) Dispatch(ctx context.Context, target domain.ToolTarget, args map[string]any) (json.RawMessage, error) {
	result, err := d.payment.CallPortal(ctx, target.PortalID, args, target.Operation)
	if err == nil {
		return result, nil
	}

	if asset, ok := classifyPaymentFailure(err); ok {
		d.logger.Info("portal call needs funding",
			zap.String("portal", target.PortalID),
			zap.String("asset", asset),
		)
		return nil, &domain.Error{
			Code:      domain.CodePaymentRequired,
			Op:        op,
			Message:   fundingGuidance(asset, d.walletAddress(ctx)),
			Retryable: true,
		}
	}

	d.logger.Warn("portal call failed",
		zap.String("portal", target.PortalID),
		zap.String("operation", target.Operation),
		zap.Error(err),
	)
	return nil, domain.E(domain.CodeInternal, op, fmt.Sprintf("portal call failed: %s", err), err)
}

var gasFailureMarkers = []string{
	"insufficient sol",
	"insufficient lamports",
	"insufficient funds for fee",
}

var paymentFailureMarkers = []string{
	"insufficient usdc",
	"insufficient token balance",
	"insufficient payment balance",
}

func classifyPaymentFailure(err error) (asset string, ok bool) {
	text := strings.ToLower(err.Error())
	for _, marker := range gasFailureMarkers {
		if strings.Contains(text, marker) {
			return domain.GasAssetSymbol, true
		}
	}
	for _, marker := range paymentFailureMarkers {
		if strings.Contains(text, marker) {
			return domain.PaymentAssetSymbol, true
		}
	}
	return "", false
}

func fundingGuidance(asset, address string) string {
	if address == "" {
		return fmt.Sprintf("insufficient %s balance: fund the bridge wallet with %s and retry the call", asset, asset)
	}
	return fmt.Sprintf("insufficient %s balance: send %s to wallet %s and retry the call", asset, asset, address)
}

// walletAddress fetches the wallet's public address once and caches it; the
// address is stable for the life of the wallet file.
func (d *Dispatcher) walletAddress(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.address != "" {
		return d.address
	}
	address, err := d.payment.Address(ctx)
	if err != nil {
		d.logger.Warn("wallet address lookup failed", zap.Error(err))
		return ""
	}
	d.address = address
	return address
}
