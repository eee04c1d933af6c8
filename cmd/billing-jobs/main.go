// billing-jobs is the batch entry point the scheduler invokes: contract
// renewal, bank return import, webhook processing, remittance generation and
// the overdue sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tupinet/billing-engine/internal/adapters/connection"
	"github.com/tupinet/billing-engine/internal/adapters/gateway"
	"github.com/tupinet/billing-engine/internal/adapters/postgres"
	"github.com/tupinet/billing-engine/internal/adapters/remitfile"
	"github.com/tupinet/billing-engine/internal/adapters/secrets"
	"github.com/tupinet/billing-engine/internal/adapters/zaplog"
	"github.com/tupinet/billing-engine/internal/config"
	"github.com/tupinet/billing-engine/internal/domain/ports"
	"github.com/tupinet/billing-engine/pkg/observability"
	"github.com/tupinet/billing-engine/pkg/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the wired dependencies every job shares
type app struct {
	cfg    *config.Config
	logger ports.Logger
	pool   *pgxpool.Pool
	db     *postgres.DBExecutor

	contracts *postgres.ContractRepository
	invoices  *postgres.InvoiceRepository
	profiles  *postgres.PaymentProfileRepository
	batches   *postgres.ReconciliationBatchRepository
	events    *postgres.WebhookEventRepository

	policy  ports.ConnectionPolicy
	secrets ports.SecretManager

	teardown *shutdown.Manager
}

func newRootCmd() *cobra.Command {
	var envFile string
	a := &app{}

	root := &cobra.Command{
		Use:           "billing-jobs",
		Short:         "Invoice lifecycle and reconciliation batch jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), envFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file to load")

	root.AddCommand(
		newRenewCmd(a),
		newCancelCmd(a),
		newImportReturnCmd(a),
		newProcessWebhookCmd(a),
		newPendingCmd(a),
		newBuildRemittanceCmd(a),
		newOverdueSweepCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		// best effort: a .env in the working directory is a dev convenience
		_ = godotenv.Load()
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.Logger)
	if err != nil {
		return err
	}
	a.logger = logger

	a.teardown = shutdown.NewManager(logger, 10*time.Second)

	pool, err := pgxpool.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool
	a.db = postgres.NewDBExecutor(pool)
	a.teardown.RegisterCloser("database pool", pool)

	a.contracts = postgres.NewContractRepository(a.db)
	a.invoices = postgres.NewInvoiceRepository(a.db)
	a.profiles = postgres.NewPaymentProfileRepository(a.db)
	a.batches = postgres.NewReconciliationBatchRepository(a.db)
	a.events = postgres.NewWebhookEventRepository(a.db)

	a.policy = connection.NewLoggingPolicy(logger)

	a.secrets, err = newSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return err
	}

	// long-running jobs (webhook processing loops, large imports) can be
	// scraped mid-run
	if cfg.Metrics.Enabled {
		server := observability.StartMetricsServer(
			cfg.Metrics.Port, observability.NewHealthChecker(pool))
		a.teardown.Register("metrics server", func(context.Context) error {
			return observability.ShutdownMetricsServer(server)
		})
	}
	return nil
}

func (a *app) close() {
	if a.teardown != nil {
		a.teardown.Close()
	}
}

// gatewayClient resolves the API token lazily: only webhook jobs need it
func (a *app) gatewayClient(ctx context.Context) (*gateway.Client, error) {
	cfg := a.cfg.Gateway
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL is required for webhook processing")
	}

	token := cfg.APIToken
	if token == "" && cfg.TokenSecretPath != "" {
		secret, err := a.secrets.GetSecret(ctx, cfg.TokenSecretPath)
		if err != nil {
			return nil, fmt.Errorf("resolve gateway token: %w", err)
		}
		token = secret.Value
	}
	if token == "" {
		return nil, fmt.Errorf("no gateway API token configured")
	}

	clientCfg := gateway.DefaultConfig(cfg.BaseURL, token)
	clientCfg.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
	clientCfg.Burst = cfg.Burst
	return gateway.NewClient(clientCfg, a.logger), nil
}

func (a *app) remittanceBuilder(outputDir string) ports.RemittanceBuilder {
	return remitfile.NewBuilder(outputDir, a.logger)
}

func newLogger(cfg config.LoggerConfig) (ports.Logger, error) {
	return zaplog.New(cfg.Level, cfg.Development)
}

func newSecretManager(ctx context.Context, cfg config.SecretsConfig, logger ports.Logger) (ports.SecretManager, error) {
	switch cfg.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		return secrets.NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		return secrets.NewVaultAdapter(ctx, vaultCfg, logger)
	default:
		return secrets.NewLocalSecretManager(logger), nil
	}
}
