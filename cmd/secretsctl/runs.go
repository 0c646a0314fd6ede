package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shavakan/secrets-fleet/pkg/report"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted run history",
	Long: `Runs reads past run summaries from the Valkey history store.
History is only available when the server was started with
SECRETS_FLEET_HISTORY_ENABLED=true.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known run IDs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := newHistoryStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		runs, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, runID := range runs {
			fmt.Println(runID)
		}
		return nil
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Print one run summary as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newHistoryStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		summary, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if summary == nil {
			return fmt.Errorf("run %s not found (it may have expired)", args[0])
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	},
}

// runsFlags holds the flags shared by the runs subcommands.
type runsFlags struct {
	valkeyAddr string
	valkeyDB   int
}

var runsOpts runsFlags

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsGetCmd)

	runsCmd.PersistentFlags().StringVar(&runsOpts.valkeyAddr, "valkey-addr", "", "Valkey address (default: SECRETS_FLEET_VALKEY_ADDR)")
	runsCmd.PersistentFlags().IntVar(&runsOpts.valkeyDB, "valkey-db", 0, "Valkey database number")
}

func newHistoryStore() (*report.HistoryStore, error) {
	addr := flagOrEnv(runsOpts.valkeyAddr, "SECRETS_FLEET_VALKEY_ADDR")
	if addr == "" {
		return nil, fmt.Errorf("--valkey-addr or SECRETS_FLEET_VALKEY_ADDR is required")
	}
	// TTL only matters on Save; reads ignore it.
	return report.NewHistoryStore(addr, os.Getenv("SECRETS_FLEET_VALKEY_PASSWORD"), runsOpts.valkeyDB, 30*24*time.Hour), nil
}
