package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyhouse/tally/internal/config"
	"github.com/tallyhouse/tally/internal/identity"
)

var tokenName string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token",
	Long: `Mint a signed operator token whose name claim becomes the default
handled-by and recorded-by on writes. Requires auth.secret to be set.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenName, "name", "n", "", "Operator display name (required)")
	tokenCmd.MarkFlagRequired("name")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is not configured")
	}
	token, err := identity.Token(tokenName, cfg.Auth.Secret)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
