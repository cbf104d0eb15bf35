package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/lgulliver/stockpile/pkg/utils"
)

func newKeygenCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key and the bcrypt hash the server is configured with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
				return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
			}

			key, err := utils.GenerateAPIKey()
			if err != nil {
				return err
			}
			hash, err := utils.HashPassword(key, cost)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "api key: %s\n", key)
			fmt.Fprintf(out, "hash:    %s\n\n", hash)
			fmt.Fprintln(out, "Add the hash to AUTH_API_KEY_HASHES on the server (comma separated).")
			fmt.Fprintln(out, "The key is not stored anywhere; keep it safe.")
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
