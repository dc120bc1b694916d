package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"portald/internal/domain"
)

// Config is the fully resolved daemon configuration. Precedence is flags over
// environment over config file over defaults; flags are bound by the command
// layer before Load runs.
type Config struct {
	// Portals is the comma-separated whitelist of portal ids to expose.
	Portals string `mapstructure:"portals"`

	PaymentAgentURL string `mapstructure:"paymentAgentURL"`

	Wallet WalletConfig `mapstructure:"wallet"`

	// StorePath is the bbolt file holding last-known-good portal entries.
	// Empty disables the cache.
	StorePath string `mapstructure:"storePath"`

	Transport string     `mapstructure:"transport"`
	HTTP      HTTPConfig `mapstructure:"http"`

	Observability ObservabilityConfig `mapstructure:"observability"`

	SchemaFetchTimeoutSeconds int `mapstructure:"schemaFetchTimeoutSeconds"`
	PaymentTimeoutSeconds     int `mapstructure:"paymentTimeoutSeconds"`
	ResyncSeconds             int `mapstructure:"resyncSeconds"`
	RefreshConcurrency        int `mapstructure:"refreshConcurrency"`

	LogLevel string `mapstructure:"logLevel"`
}

type WalletConfig struct {
	Path    string `mapstructure:"path"`
	Network string `mapstructure:"network"`
	RPCURL  string `mapstructure:"rpcURL"`
}

type HTTPConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
	Path          string `mapstructure:"path"`
}

type ObservabilityConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listenAddress"`
}

func (c Config) SchemaFetchTimeout() time.Duration {
	return time.Duration(c.SchemaFetchTimeoutSeconds) * time.Second
}

func (c Config) PaymentTimeout() time.Duration {
	return time.Duration(c.PaymentTimeoutSeconds) * time.Second
}

func (c Config) Resync() time.Duration {
	return time.Duration(c.ResyncSeconds) * time.Second
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("catalog")}
}

// NewViper builds the daemon's viper instance with defaults and environment
// binding applied. The command layer binds its flags onto the same instance
// so every source shares one precedence chain.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix("PORTALD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("portals", "")
	v.SetDefault("paymentAgentURL", domain.DefaultPaymentAgentURL)
	v.SetDefault("wallet.path", domain.DefaultWalletPath)
	v.SetDefault("wallet.network", domain.DefaultNetwork)
	v.SetDefault("wallet.rpcURL", "")
	v.SetDefault("storePath", domain.DefaultStorePath)
	v.SetDefault("transport", domain.DefaultTransport)
	v.SetDefault("http.listenAddress", domain.DefaultHTTPListenAddress)
	v.SetDefault("http.path", domain.DefaultHTTPPath)
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("schemaFetchTimeoutSeconds", domain.DefaultSchemaFetchTimeoutSeconds)
	v.SetDefault("paymentTimeoutSeconds", domain.DefaultPaymentTimeoutSeconds)
	v.SetDefault("resyncSeconds", domain.DefaultResyncSeconds)
	v.SetDefault("refreshConcurrency", domain.DefaultRefreshConcurrency)
	v.SetDefault("logLevel", "info")
}

// Load resolves the configuration, optionally merging a YAML config file.
func (l *Loader) Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = NewViper()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		l.logger.Debug("config file loaded", zap.String("path", path))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if errs := validate(cfg); len(errs) > 0 {
		return Config{}, errors.New(strings.Join(errs, "; "))
	}
	return cfg, nil
}

func validate(cfg Config) []string {
	var errs []string
	switch cfg.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Sprintf("transport: unsupported value %q (want stdio or http)", cfg.Transport))
	}
	if cfg.Transport == "http" && cfg.HTTP.ListenAddress == "" {
		errs = append(errs, "http.listenAddress: required for http transport")
	}
	if cfg.PaymentAgentURL == "" {
		errs = append(errs, "paymentAgentURL: required")
	}
	if cfg.SchemaFetchTimeoutSeconds <= 0 {
		errs = append(errs, "schemaFetchTimeoutSeconds: must be positive")
	}
	if cfg.PaymentTimeoutSeconds <= 0 {
		errs = append(errs, "paymentTimeoutSeconds: must be positive")
	}
	if cfg.ResyncSeconds <= 0 {
		errs = append(errs, "resyncSeconds: must be positive")
	}
	if cfg.Observability.Enabled && cfg.Observability.ListenAddress == "" {
		errs = append(errs, "observability.listenAddress: required when observability is enabled")
	}
	return errs
}
