package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ticketledger/internal/credential"
	"github.com/steveyegge/ticketledger/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the tracker API token in the system keyring",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the tracker API token",
	Long: `Stores the tracker API token in the system keyring. It is used whenever
tracker.token is not set in the config or environment.

The token is taken from --token, prompted for on a terminal, or read from
the first line of stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			var err error
			if f, ok := cmd.InOrStdin().(*os.File); ok {
				token, err = credential.PromptToken(f)
			} else {
				token, err = credential.ReadToken(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
		}
		if err := credentials.Set(credential.TokenKey, token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Token stored in keyring\n", ui.RenderPass(ui.IconPass))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the tracker API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.Delete(credential.TokenKey); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Token removed from keyring\n", ui.RenderPass(ui.IconPass))
		return nil
	},
}

func init() {
	authLoginCmd.Flags().String("token", "", "API token (avoid on shared machines: visible in shell history)")
	authCmd.AddCommand(authLoginCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
