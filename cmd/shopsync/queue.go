package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liyuan/shopsync/internal/models"
)

func init() {
	queueCmd.AddCommand(queueListCmd, queueRetryCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the pending action queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued actions in creation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		actions := a.ledger.List()
		if len(actions) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		for _, action := range actions {
			printAction(action)
		}
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-enqueue actions that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.ledger.RetryFailed()
		fmt.Printf("Re-enqueued %d failed action(s)\n", n)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued action",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.ledger.Count()
		if err := a.ledger.Clear(); err != nil {
			return err
		}
		fmt.Printf("Dropped %d action(s)\n", n)
		return nil
	},
}

func printAction(a models.PendingAction) {
	line := fmt.Sprintf("%s  %-22s %-9s retries=%d  %s",
		a.ID, a.Kind, a.Status, a.RetryCount, a.CreatedAtTime().Format(time.RFC3339))
	if a.LastError != "" {
		line += "  last_error=" + a.LastError
	}
	fmt.Println(line)
}
