package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liyuan/shopsync/internal/auth"
)

var (
	flagEmail       string
	flagPassword    string
	flagDisplayName string
)

func init() {
	signupCmd.Flags().StringVar(&flagEmail, "email", "", "account email")
	signupCmd.Flags().StringVar(&flagPassword, "password", "", "account password")
	signupCmd.Flags().StringVar(&flagDisplayName, "name", "", "display name")
	signupCmd.MarkFlagRequired("email")
	signupCmd.MarkFlagRequired("password")

	signinCmd.Flags().StringVar(&flagEmail, "email", "", "account email")
	signinCmd.Flags().StringVar(&flagPassword, "password", "", "account password")
	signinCmd.MarkFlagRequired("email")
	signinCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(signupCmd, signinCmd, signoutCmd, whoamiCmd)
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a local account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.auth.SignUp(auth.SignUpRequest{
			Email:       flagEmail,
			Password:    flagPassword,
			DisplayName: flagDisplayName,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Signed up as %s\n", sess.User.Email)
		return nil
	},
}

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with a local account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.auth.SignIn(flagEmail, flagPassword)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s\n", sess.User.Email)
		return nil
	},
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "End the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.auth.SignOut(); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess, ok := a.auth.CurrentSession()
		if !ok {
			fmt.Println("Not signed in")
			return nil
		}
		fmt.Printf("%s <%s> role=%s\n", sess.User.DisplayName, sess.User.Email, sess.User.Role)
		return nil
	},
}
