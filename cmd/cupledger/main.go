package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cupledger/internal/config"
	"github.com/MarkoPoloResearchLab/cupledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/cupledger/internal/storage"
	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	flagConfig         = "config"
	flagStorageURL     = "storage-url"
	flagKeyPrefix      = "key-prefix"
	flagLogLevel       = "log-level"
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagRequestTimeout = "request-timeout"
	configKeyStores    = "stores"
	configKeyChannels  = "redeem_methods"
	envPrefix          = "CUPLEDGER"
	defaultLogLevel    = "info"
)

// app carries state shared by every subcommand once flags are resolved.
type app struct {
	cfg      config.Config
	logLevel string
	logger   *zap.Logger
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cupledger: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	state := &app{}
	cmd := &cobra.Command{
		Use:           "cupledger",
		Short:         "Track prepaid coffee deposits and their expiry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, state); err != nil {
				return err
			}
			logger, err := newLogger(state.logLevel)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			state.logger = logger
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "optional YAML config file")
	flags.String(flagStorageURL, "", "storage URL (memory://, sqlite://, postgres://, pgx+postgres://, redis://, grpc://)")
	flags.String(flagKeyPrefix, "", "storage key prefix for deposit records")
	flags.String(flagLogLevel, defaultLogLevel, "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(state),
		newListCommand(state),
		newAddCommand(state),
		newRedeemCommand(state),
		newDeleteCommand(state),
		newStatsCommand(state),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command, state *app) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagConfig, flagStorageURL, flagKeyPrefix, flagLogLevel, flagListenAddr, flagAllowedOrigins, flagRequestTimeout} {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(flagName, flag); err != nil {
			return err
		}
	}

	if configFile := strings.TrimSpace(v.GetString(flagConfig)); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	cfg := config.Config{
		ListenAddr:     strings.TrimSpace(v.GetString(flagListenAddr)),
		StorageURL:     strings.TrimSpace(v.GetString(flagStorageURL)),
		KeyPrefix:      v.GetString(flagKeyPrefix),
		AllowedOrigins: config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		RequestTimeout: v.GetDuration(flagRequestTimeout),
		Stores:         v.GetStringSlice(configKeyStores),
	}
	if v.IsSet(configKeyChannels) {
		if err := v.UnmarshalKey(configKeyChannels, &cfg.RedeemMethods); err != nil {
			return fmt.Errorf("read %s: %w", configKeyChannels, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	state.cfg = cfg
	state.logLevel = strings.TrimSpace(v.GetString(flagLogLevel))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	parsed, err := zapcore.ParseLevel(defaultIfBlank(level, defaultLogLevel))
	if err != nil {
		return nil, err
	}
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(parsed)
	return loggerConfig.Build()
}

// openStore connects the configured storage and loads every record.
func (state *app) openStore(ctx context.Context) (*deposit.Store, func() error, error) {
	backend, cleanup, err := storage.Open(ctx, state.cfg.StorageURL, state.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("storage open: %w", err)
	}
	store, err := deposit.NewStore(
		backend,
		func() time.Time { return time.Now() },
		deposit.WithKeyPrefix(state.cfg.KeyPrefix),
		deposit.WithOperationLogger(oplog.NewZapLogger(state.logger)),
	)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("deposit store init: %w", err)
	}
	loadCtx, cancel := context.WithTimeout(ctx, state.cfg.RequestTimeout)
	defer cancel()
	records, err := store.Load(loadCtx)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("load deposits: %w", err)
	}
	state.logger.Debug("deposits loaded",
		zap.String("key_prefix", store.KeyPrefix()),
		zap.Int("records", len(records)),
	)
	return store, cleanup, nil
}

func defaultIfBlank(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
