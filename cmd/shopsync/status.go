package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue and session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		online := a.observer.Check(cmd.Context())

		fmt.Printf("Remote:       %s\n", a.cfg.BaseURL)
		fmt.Printf("Data dir:     %s\n", a.cfg.DataDir)
		if online {
			fmt.Println("Connectivity: online")
		} else {
			fmt.Println("Connectivity: offline")
		}

		pending := len(a.ledger.ListPending())
		failed := len(a.ledger.ListFailed())
		fmt.Printf("Queue:        %d pending, %d failed\n", pending, failed)

		if sess, ok := a.auth.CurrentSession(); ok {
			fmt.Printf("Signed in:    %s (%s)\n", sess.User.DisplayName, sess.User.Email)
			fmt.Printf("Token until:  %s\n", sess.ExpiresAtTime().Format(time.RFC3339))
		} else {
			fmt.Println("Signed in:    no")
		}
		return nil
	},
}
