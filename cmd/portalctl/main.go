package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portald/internal/app"
	"portald/internal/infra/catalog"
)

type ctlOptions struct {
	configPath string
	jsonOutput bool
	cfg        catalog.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &ctlOptions{}
	v := catalog.NewViper()

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Inspect the portal whitelist, tools, and bridge wallet",
		Version:       fmt.Sprintf("%s (%s)", app.Version, app.Build),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := catalog.NewLoader(zap.NewNop()).Load(v, opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	flags.BoolVar(&opts.jsonOutput, "json", false, "emit JSON instead of tables")
	flags.String("portals", "", "comma-separated whitelist of portal ids")
	flags.String("payment-agent-url", "", "base URL of the payment agent")
	flags.String("wallet-path", "", "wallet keypair path handed to the payment agent")
	flags.String("network", "", "payment network (mainnet-beta, devnet)")

	for flag, key := range map[string]string{
		"portals":           "portals",
		"payment-agent-url": "paymentAgentURL",
		"wallet-path":       "wallet.path",
		"network":           "wallet.network",
	} {
		if f := flags.Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	root.AddCommand(
		newToolsCommand(opts),
		newPortalsCommand(opts),
		newAddressCommand(opts),
		newBalanceCommand(opts),
	)
	return root
}
