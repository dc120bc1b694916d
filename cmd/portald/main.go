package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"portald/internal/app"
	"portald/internal/infra/catalog"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	v := catalog.NewViper()

	root := &cobra.Command{
		Use:   "portald",
		Short: "MCP bridge exposing whitelisted pay-per-use portals as tools",
		Long: "portald discovers the APIs of whitelisted portals, normalizes them into MCP tools,\n" +
			"and mediates every invocation through schema validation and the payment agent.",
		Version:       fmt.Sprintf("%s (%s)", app.Version, app.Build),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := catalog.NewLoader(zap.NewNop()).Load(v, configPath)
			if err != nil {
				return err
			}

			logger, err := buildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return application.Run(ctx, configPath)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flags.String("portals", "", "comma-separated whitelist of portal ids")
	flags.String("payment-agent-url", "", "base URL of the payment agent")
	flags.String("wallet-path", "", "wallet keypair path handed to the payment agent")
	flags.String("network", "", "payment network (mainnet-beta, devnet)")
	flags.String("rpc-url", "", "payment network RPC endpoint override")
	flags.String("store-path", "", "bbolt file for last-known-good portal entries")
	flags.String("transport", "", "MCP transport (stdio or http)")
	flags.String("http-addr", "", "listen address for the http transport")
	flags.String("http-path", "", "endpoint path for the http transport")
	flags.Bool("observability", false, "serve /metrics and /healthz")
	flags.String("observability-addr", "", "listen address for the observability server")
	flags.Int("resync-seconds", 0, "interval between portal resyncs")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	bindFlags(v, flags)
	return root
}

// bindFlags maps flags onto config keys so flags win over environment and
// file values. Unchanged flags fall through to the lower-precedence sources.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for flag, key := range map[string]string{
		"portals":            "portals",
		"payment-agent-url":  "paymentAgentURL",
		"wallet-path":        "wallet.path",
		"network":            "wallet.network",
		"rpc-url":            "wallet.rpcURL",
		"store-path":         "storePath",
		"transport":          "transport",
		"http-addr":          "http.listenAddress",
		"http-path":          "http.path",
		"observability":      "observability.enabled",
		"observability-addr": "observability.listenAddress",
		"resync-seconds":     "resyncSeconds",
		"log-level":          "logLevel",
	} {
		if f := flags.Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// buildLogger writes structured logs to stderr. Stdout stays reserved for
// the stdio transport.
func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
