package cli

import (
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-portal/internal/persistence"
	"github.com/spec-kit/ticket-portal/internal/push"
	"github.com/spec-kit/ticket-portal/internal/repository"
)

var pushEmail string

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Manage Web Push delivery",
}

var vapidKeysCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return fmt.Errorf("generate keys: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
		return nil
	},
}

var pushTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification to every device of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pushEmail == "" {
			return fmt.Errorf("--email is required")
		}
		if !cfg.Push.Enabled() {
			return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set")
		}
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is not set")
		}
		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()

		svc := push.NewService(
			repository.NewPushSubscriptionRepository(pg.PoolHandle()),
			push.NewWebPushSender(cfg.Push, nil),
			cfg.Push,
			logger,
		)
		report, err := svc.SendTest(cmd.Context(), pushEmail)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent=%d failed=%d pruned=%d total=%d\n",
			report.Sent, report.Failed, report.Pruned, report.Total)
		return nil
	},
}

func init() {
	pushTestCmd.Flags().StringVar(&pushEmail, "email", "", "owner identity to notify")

	pushCmd.AddCommand(vapidKeysCmd)
	pushCmd.AddCommand(pushTestCmd)
}
