package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"oraclegate/internal/admin"
	"oraclegate/internal/chain"
	"oraclegate/internal/config"
	"oraclegate/internal/oracle"
	"oraclegate/internal/server"
	"oraclegate/internal/storage"
	"oraclegate/internal/storage/postgres"
	"oraclegate/internal/verify"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "gateway",
		Short:        "Oracle payment gateway",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("rpc", "", "chain RPC URL")
	serveCmd.Flags().String("treasury-wallet", "", "payment recipient address")
	serveCmd.Flags().String("admin-wallet", "", "admin wallet address")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty uses in-memory store)")
	serveCmd.Flags().String("audit-log", "", "optional payment audit JSONL path")
	serveCmd.Flags().String("oracle-api-key", "", "oracle completion API key")
	serveCmd.Flags().String("oracle-base-url", "", "oracle completions endpoint")
	serveCmd.Flags().String("oracle-model", "", "oracle model name")
	serveCmd.Flags().Int("max-retries", 2, "maximum RPC retry attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	serveCmd.Flags().Duration("rpc-timeout", 10*time.Second, "per-call RPC timeout")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify <tx-hash> <wallet> <payment-type>",
		Short: "Verify a single payment claim and exit",
		Args:  cobra.ExactArgs(3),
		RunE:  runVerify,
	}

	verifyCmd.Flags().String("rpc", "", "chain RPC URL")
	verifyCmd.Flags().String("treasury-wallet", "", "payment recipient address")
	verifyCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty uses in-memory store)")
	verifyCmd.Flags().String("audit-log", "", "optional payment audit JSONL path")
	verifyCmd.Flags().Int("max-retries", 2, "maximum RPC retry attempts")
	verifyCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	verifyCmd.Flags().Duration("rpc-timeout", 10*time.Second, "per-call RPC timeout")
	verifyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(verifyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	profiles, ledger, chat, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := verify.New(verify.Config{
		TreasuryWallet: cfg.TreasuryWallet,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		RPCTimeout:     cfg.RPCTimeout,
	}, chainClient, ledger, profiles, logger)
	if err != nil {
		return err
	}
	if cfg.AuditLog != "" {
		verifier.WithAudit(storage.NewJsonlAuditLog(cfg.AuditLog))
	}

	adminSvc, err := admin.New(cfg.AdminWallet, profiles, ledger, logger)
	if err != nil {
		return err
	}

	var completerOpts []oracle.ClientOption
	if cfg.OracleBaseURL != "" {
		completerOpts = append(completerOpts, oracle.WithBaseURL(cfg.OracleBaseURL))
	}
	if cfg.OracleModel != "" {
		completerOpts = append(completerOpts, oracle.WithModel(cfg.OracleModel))
	}
	completer := oracle.NewClient(cfg.OracleAPIKey, completerOpts...)

	oracleSvc, err := oracle.NewService(profiles, chat, completer, logger)
	if err != nil {
		return err
	}

	srv := server.NewServer(verifier, adminSvc, oracleSvc, profiles, logger)

	logger.Info("gateway start",
		zap.String("listen", cfg.ListenAddr),
		zap.String("rpc", cfg.RPCURL),
		zap.String("treasury", cfg.TreasuryWallet),
		zap.Bool("postgres", cfg.PgDSN != ""),
		zap.Bool("audit", cfg.AuditLog != ""),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("gateway shutdown")
	return srv.Shutdown(shutdownCtx)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	profiles, ledger, _, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := verify.New(verify.Config{
		TreasuryWallet: cfg.TreasuryWallet,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		RPCTimeout:     cfg.RPCTimeout,
	}, chainClient, ledger, profiles, logger)
	if err != nil {
		return err
	}
	if cfg.AuditLog != "" {
		verifier.WithAudit(storage.NewJsonlAuditLog(cfg.AuditLog))
	}

	result, verr := verifier.Verify(ctx, verify.Request{
		TxHash:        args[0],
		WalletAddress: args[1],
		PaymentType:   args[2],
	})
	if verr != nil {
		return verr
	}

	fmt.Printf("payment %s confirmed: %s\n", result.PaymentID, result.Message)
	if result.ExpiresAt != nil {
		fmt.Printf("expires: %s\n", result.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// openStores returns either a Postgres-backed store set or the in-memory
// implementation, plus a close func.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.ProfileStore, storage.PaymentLedger, storage.ChatLog, func(), error) {
	if cfg.PgDSN == "" {
		logger.Warn("no pg-dsn configured, using in-memory store")
		mem := storage.NewMemoryStore()
		return mem, mem, mem, func() {}, nil
	}

	store, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, nil, nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return store, store, store, store.Close, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
