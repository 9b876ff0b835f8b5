package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/cupledger/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/cupledger/internal/storage"
	"github.com/MarkoPoloResearchLab/cupledger/internal/storagerpc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	flagStorageURL        = "storage-url"
	flagListenAddr        = "listen-addr"
	configKeyStorageURL   = "storage_url"
	configKeyListenAddr   = "listen_addr"
	defaultStorageURL     = "sqlite:///tmp/cupledger.db"
	defaultGRPCListenAddr = ":7070"
)

type runtimeConfig struct {
	StorageURL string
	ListenAddr string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "storaged: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "storaged",
		Short:         "Key-value storage gRPC server for cupledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagStorageURL, defaultStorageURL, "backing storage URL (sqlite://, postgres://, pgx+postgres://, redis://, memory://)")
	cmd.Flags().String(flagListenAddr, defaultGRPCListenAddr, "gRPC listen address")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv(configKeyStorageURL, "STORAGE_URL"); err != nil {
		return err
	}
	if err := v.BindEnv(configKeyListenAddr, "GRPC_LISTEN_ADDR"); err != nil {
		return err
	}

	if err := v.BindPFlag(configKeyStorageURL, cmd.Flags().Lookup(flagStorageURL)); err != nil {
		return err
	}
	if err := v.BindPFlag(configKeyListenAddr, cmd.Flags().Lookup(flagListenAddr)); err != nil {
		return err
	}

	cfg.StorageURL = strings.TrimSpace(v.GetString(configKeyStorageURL))
	if cfg.StorageURL == "" {
		cfg.StorageURL = defaultStorageURL
	}
	cfg.ListenAddr = strings.TrimSpace(v.GetString(configKeyListenAddr))
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultGRPCListenAddr
	}
	if strings.HasPrefix(cfg.StorageURL, "grpc://") || strings.HasPrefix(cfg.StorageURL, "grpcs://") {
		return fmt.Errorf("storaged cannot proxy another storaged: %s", cfg.StorageURL)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, cleanup, err := storage.Open(ctx, cfg.StorageURL, logger)
	if err != nil {
		return fmt.Errorf("storage open: %w", err)
	}
	defer func() { _ = cleanup() }()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	grpcServer := grpc.NewServer()
	storagerpc.RegisterStorageServiceServer(grpcServer, grpcserver.NewStorageServiceServer(backend, logger))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.ListenAddr))
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && serveErr != grpc.ErrServerStopped {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if serveErr == grpc.ErrServerStopped {
			return nil
		}
		return serveErr
	}
}
