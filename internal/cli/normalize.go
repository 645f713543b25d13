package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/normalizer"
)

var statusDictionaryPath string

type normalizeOutput struct {
	Update     domain.TicketUpdate `json:"update"`
	Source     string              `json:"source"`
	Extractor  string              `json:"extractor,omitempty"`
	StatusText string              `json:"statusText,omitempty"`
	Override   *overrideOutput     `json:"statusOverride,omitempty"`
}

type overrideOutput struct {
	From       int    `json:"from"`
	To         int    `json:"to"`
	Text       string `json:"text"`
	Suspicious bool   `json:"suspicious"`
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Run a backend notification through the normalizer",
	Long: `Reads a raw notification from file, or stdin when no file is given,
and prints the ticket update the webhook would publish. Backend enrichment
is not performed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args)
		if err != nil {
			return err
		}

		path := statusDictionaryPath
		if path == "" {
			path = cfg.Webhook.StatusDictionaryPath
		}
		var opts []normalizer.Option
		if loc, err := time.LoadLocation(cfg.GLPI.TimeZone); err == nil {
			opts = append(opts, normalizer.WithLocation(loc))
		}
		if path != "" {
			dict, err := normalizer.LoadStatusDictionary(path)
			if err != nil {
				return err
			}
			opts = append(opts, normalizer.WithStatusDictionary(dict))
		}

		parsed, err := normalizer.New(opts...).Normalize(raw)
		if err != nil {
			return err
		}

		out := normalizeOutput{
			Update:     parsed.Update,
			Source:     parsed.Source,
			Extractor:  parsed.Extractor,
			StatusText: parsed.StatusText,
		}
		if o := parsed.Override; o != nil {
			out.Override = &overrideOutput{From: o.From, To: o.To, Text: o.Text, Suspicious: o.Suspicious()}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

func init() {
	normalizeCmd.Flags().StringVar(&statusDictionaryPath, "status-dictionary", "", "YAML status dictionary (defaults to WEBHOOK_STATUS_DICTIONARY_PATH)")
}
