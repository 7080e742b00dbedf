package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sweep over the pending action queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.observer.Check(cmd.Context()) {
			return fmt.Errorf("remote %s is unreachable", a.cfg.BaseURL)
		}

		res, err := a.engine.SyncNow(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d action(s) in %s: %d completed, %d scheduled for retry, %d failed\n",
			res.Processed, res.Duration.Round(time.Millisecond), res.Completed, res.Retried, res.Failed)
		if remaining := len(a.ledger.ListPending()); remaining > 0 {
			fmt.Printf("%d action(s) still pending\n", remaining)
		}
		return nil
	},
}
