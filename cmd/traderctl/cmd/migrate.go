package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage migrations and create the account if absent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			bal, err := s.ledger.Balance(cmd.Context())
			if err != nil {
				return fmt.Errorf("balance: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s storage ready, balance %s\n", s.cfg.Storage.Backend, bal)
			return nil
		},
	}
}
