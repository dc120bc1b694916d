package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portald/internal/domain"
	"portald/internal/infra/payment"
	"portald/internal/infra/registry"
	"portald/internal/infra/schemafetch"
)

func openPayment(ctx context.Context, opts *ctlOptions) (*payment.Client, error) {
	return payment.Open(ctx, payment.Config{
		AgentURL: opts.cfg.PaymentAgentURL,
		Wallet: domain.WalletConfig{
			Path:    opts.cfg.Wallet.Path,
			Network: opts.cfg.Wallet.Network,
			RPCURL:  opts.cfg.Wallet.RPCURL,
		},
		Timeout: opts.cfg.PaymentTimeout(),
	}, zap.NewNop())
}

func refreshSnapshot(ctx context.Context, opts *ctlOptions) (*domain.Snapshot, error) {
	client, err := openPayment(ctx, opts)
	if err != nil {
		return nil, err
	}
	fetcher := schemafetch.NewFetcher(opts.cfg.SchemaFetchTimeout(), zap.NewNop())
	reg := registry.New(registry.Config{
		Whitelist:   opts.cfg.Portals,
		Concurrency: opts.cfg.RefreshConcurrency,
	}, client, fetcher, nil, nil, zap.NewNop())
	return reg.Refresh(ctx)
}

func newToolsCommand(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the bridge would expose right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := refreshSnapshot(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printTools(snapshot, opts.jsonOutput)
		},
	}
}

func newPortalsCommand(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "portals",
		Short: "Show the whitelisted portals and their fetch state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := refreshSnapshot(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printPortals(snapshot, opts.jsonOutput)
		},
	}
}

func newAddressCommand(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the bridge wallet's public address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := openPayment(cmd.Context(), opts)
			if err != nil {
				return err
			}
			address, err := client.Address(cmd.Context())
			if err != nil {
				return err
			}
			return printAddress(address, opts.jsonOutput)
		},
	}
}

func newBalanceCommand(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the bridge wallet's gas and payment balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := openPayment(cmd.Context(), opts)
			if err != nil {
				return err
			}
			balance, err := client.Balance(cmd.Context())
			if err != nil {
				return err
			}
			return printBalance(balance, opts.jsonOutput)
		},
	}
}
