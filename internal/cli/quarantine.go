package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-portal/internal/persistence"
	"github.com/spec-kit/ticket-portal/internal/repository"
)

var quarantineLimit int

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect webhook payloads that could not be routed",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined payloads, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeFn, err := openQuarantine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		items, err := repo.List(cmd.Context(), quarantineLimit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No quarantined payloads.")
			return nil
		}
		for _, item := range items {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n  %s\n",
				item.ReceivedAt.Format("2006-01-02 15:04:05"), item.Reason, oneLine(item.Raw, 200))
		}
		return nil
	},
}

var quarantineClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every quarantined payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeFn, err := openQuarantine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := repo.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Quarantine cleared.")
		return nil
	},
}

func openQuarantine(cmd *cobra.Command) (repository.QuarantineRepository, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, nil, fmt.Errorf("REDIS_ADDR is not set")
	}
	redis := persistence.NewRedis(cmd.Context(), cfg.Redis, logger)
	if err := redis.Ping(cmd.Context()); err != nil {
		redis.Close()
		return nil, nil, fmt.Errorf("redis unavailable: %w", err)
	}
	return repository.NewQuarantineRepository(redis.Client, cfg.Webhook.QuarantineKey, cfg.Webhook.QuarantineMax), redis.Close, nil
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) > limit {
		return string([]rune(s)[:limit]) + "…"
	}
	return s
}

func init() {
	quarantineListCmd.Flags().IntVarP(&quarantineLimit, "limit", "n", 20, "maximum payloads to show")

	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineClearCmd)
}
