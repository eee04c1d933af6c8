package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/tupinet/billing-engine/internal/services/bankreturn"
	"github.com/tupinet/billing-engine/internal/services/cancellation"
	"github.com/tupinet/billing-engine/internal/services/gatewayhook"
	"github.com/tupinet/billing-engine/internal/services/invoicing"
	"github.com/tupinet/billing-engine/internal/services/remittance"
	"github.com/tupinet/billing-engine/internal/services/renewal"
	"github.com/tupinet/billing-engine/pkg/observability"
)

func parseUUIDFlag(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return id, nil
}

func newRenewCmd(a *app) *cobra.Command {
	var profileFlag string
	var monthsPerInvoice int

	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Generate renewal invoices for every eligible contract on a payment profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseUUIDFlag("profile", profileFlag)
			if err != nil {
				return err
			}

			generator := invoicing.NewGenerator(a.db, a.contracts, a.invoices, a.profiles, a.logger)
			runner := renewal.NewRunner(a.contracts, renewal.NewPlanner(a.invoices), generator, a.logger)

			start := time.Now()
			result, err := runner.Run(cmd.Context(), profileID, monthsPerInvoice)
			observability.ObserveJobDuration("renewal", time.Since(start).Seconds())
			if err != nil {
				return err
			}

			observability.RecordRenewalOutcome(profileFlag, "succeeded", len(result.Succeeded))
			observability.RecordRenewalOutcome(profileFlag, "skipped", len(result.Skipped))
			observability.RecordRenewalOutcome(profileFlag, "failed", len(result.Failed))

			fmt.Printf("renewal run: %d contracts, %d renewed, %d skipped, %d failed\n",
				result.Total(), len(result.Succeeded), len(result.Skipped), len(result.Failed))
			for _, contractID := range lo.Keys(result.Failed) {
				fmt.Printf("  failed %s: %s\n", contractID, result.Failed[contractID])
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d contracts failed to renew", len(result.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileFlag, "profile", "", "payment profile id")
	cmd.Flags().IntVar(&monthsPerInvoice, "months-per-invoice", 1, "service months covered by each invoice")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newCancelCmd(a *app) *cobra.Command {
	var contractFlag, dateFlag string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a contract effective on a given date",
		RunE: func(cmd *cobra.Command, args []string) error {
			contractID, err := parseUUIDFlag("contract", contractFlag)
			if err != nil {
				return err
			}
			date, err := time.ParseInLocation("2006-01-02", dateFlag, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --date %q, want YYYY-MM-DD: %w", dateFlag, err)
			}

			processor := cancellation.NewProcessor(a.db, a.contracts, a.invoices, a.policy, a.logger)
			if err := processor.Cancel(cmd.Context(), contractID, date); err != nil {
				return err
			}
			fmt.Printf("contract %s cancelled effective %s\n", contractID, date.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().StringVar(&contractFlag, "contract", "", "contract id")
	cmd.Flags().StringVar(&dateFlag, "date", "", "cancellation date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newImportReturnCmd(a *app) *cobra.Command {
	var profileFlag, fileFlag string

	cmd := &cobra.Command{
		Use:   "import-return",
		Short: "Import a bank return file and apply its occurrences",
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseUUIDFlag("profile", profileFlag)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(fileFlag)
			if err != nil {
				return fmt.Errorf("read return file: %w", err)
			}
			profile, err := a.profiles.GetByID(cmd.Context(), nil, profileID)
			if err != nil {
				return err
			}

			reconciler := bankreturn.NewReconciler(a.db, a.profiles, a.invoices, a.batches, a.policy, a.logger)

			start := time.Now()
			result, err := reconciler.Import(cmd.Context(), content, profileID)
			observability.ObserveJobDuration("bank_return_import", time.Since(start).Seconds())
			if err != nil {
				return err
			}

			for outcome, count := range map[string]int{
				"registered":  result.Registered,
				"paid":        result.Paid,
				"written_off": result.WrittenOff,
				"rejected":    result.Rejected,
				"noop":        result.AlreadyApplied,
				"unmatched":   len(result.Unmatched),
				"failed":      len(result.Failed),
			} {
				observability.RecordBankReturnLines(profile.BankCode, outcome, count)
			}

			fmt.Printf("batch %s: %d registered, %d paid, %d written off, %d rejected, %d already applied\n",
				result.Batch.ID, result.Registered, result.Paid, result.WrittenOff, result.Rejected, result.AlreadyApplied)
			for _, ref := range result.Unmatched {
				fmt.Printf("  unmatched reference %s\n", ref)
			}
			for lineNo, msg := range result.Failed {
				fmt.Printf("  line %d failed: %s\n", lineNo, msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileFlag, "profile", "", "payment profile id")
	cmd.Flags().StringVar(&fileFlag, "file", "", "path to the bank return file")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newProcessWebhookCmd(a *app) *cobra.Command {
	var profileFlag, tokenFlag string

	cmd := &cobra.Command{
		Use:   "process-webhook",
		Short: "Store a gateway webhook token and process its charge events",
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseUUIDFlag("profile", profileFlag)
			if err != nil {
				return err
			}
			client, err := a.gatewayClient(cmd.Context())
			if err != nil {
				return err
			}

			reconciler := gatewayhook.NewReconciler(
				a.db, profileID, a.events, a.invoices, a.batches, client, a.policy, a.logger)

			eventID, err := reconciler.Receive(cmd.Context(), tokenFlag)
			if err != nil {
				return err
			}

			start := time.Now()
			result, err := reconciler.Process(cmd.Context(), eventID)
			observability.ObserveJobDuration("webhook_process", time.Since(start).Seconds())
			if err != nil {
				observability.RecordWebhookEvent("failed")
				return err
			}
			observability.RecordWebhookEvent("processed")

			fmt.Printf("event %s: %d paid, %d registered, %d written off, %d cancel confirms, %d skipped\n",
				eventID, result.Paid, result.Registered, result.WrittenOff, result.CancelConfirms, result.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&profileFlag, "profile", "", "payment profile id the gateway bills through")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "notification token delivered by the gateway")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newPendingCmd(a *app) *cobra.Command {
	var profileFlag string
	var writeoff bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List invoices pending bank registration or writeoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseUUIDFlag("profile", profileFlag)
			if err != nil {
				return err
			}

			svc := remittance.NewService(a.db, a.profiles, a.invoices, a.remittanceBuilder(""), a.logger)

			invoices, err := svc.PendingRegistration(cmd.Context(), profileID)
			kind := "registration"
			if writeoff {
				invoices, err = svc.PendingWriteoff(cmd.Context(), profileID)
				kind = "writeoff"
			}
			if err != nil {
				return err
			}

			fmt.Printf("%d invoices pending %s\n", len(invoices), kind)
			for _, inv := range invoices {
				fmt.Printf("  %s\tdue %s\t%s\n",
					inv.ExternalReference, inv.DueDate.Format("2006-01-02"), inv.Amount.StringFixed(2))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileFlag, "profile", "", "payment profile id")
	cmd.Flags().BoolVar(&writeoff, "writeoff", false, "list the writeoff selection instead of registration")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newBuildRemittanceCmd(a *app) *cobra.Command {
	var profileFlag, outDir string

	cmd := &cobra.Command{
		Use:   "build-remittance",
		Short: "Generate the next outgoing remittance file for a payment profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseUUIDFlag("profile", profileFlag)
			if err != nil {
				return err
			}

			svc := remittance.NewService(a.db, a.profiles, a.invoices, a.remittanceBuilder(outDir), a.logger)

			start := time.Now()
			result, err := svc.BuildRemittance(cmd.Context(), profileID)
			observability.ObserveJobDuration("remittance_build", time.Since(start).Seconds())
			if err != nil {
				return err
			}

			fmt.Printf("remittance %07d: %d registrations, %d writeoffs\n",
				result.Sequence, result.Registration, result.Writeoff)
			return nil
		},
	}
	cmd.Flags().StringVar(&profileFlag, "profile", "", "payment profile id")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory the remittance file is written to")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newOverdueSweepCmd(a *app) *cobra.Command {
	var profileFlag string

	cmd := &cobra.Command{
		Use:   "overdue-sweep",
		Short: "Notify the connection policy about contracts with overdue invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseUUIDFlag("profile", profileFlag)
			if err != nil {
				return err
			}

			sweeper := renewal.NewOverdueSweeper(a.invoices, a.policy, a.logger)

			start := time.Now()
			notified, err := sweeper.NotifyOverdue(cmd.Context(), profileID)
			observability.ObserveJobDuration("overdue_sweep", time.Since(start).Seconds())
			if err != nil {
				return err
			}

			fmt.Printf("%d contracts notified overdue\n", notified)
			return nil
		},
	}
	cmd.Flags().StringVar(&profileFlag, "profile", "", "payment profile id")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
